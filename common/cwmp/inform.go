package cwmp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Inform is the CPE-initiated message that opens a management cycle.
type Inform struct {
	ID           string
	Manufacturer string
	OUI          string
	ProductClass string
	Sn           string
	Events       []EventStruct
	MaxEnvelopes int
	RetryCount   int
	CurrentTime  string
	// Params holds the reported parameter list; ParamList preserves the
	// order the device sent them in.
	Params    map[string]string
	ParamList []ParameterValue
}

func NewInform() *Inform {
	return &Inform{Params: map[string]string{}, MaxEnvelopes: 1}
}

func (m *Inform) GetID() string   { return m.ID }
func (m *Inform) GetName() string { return "Inform" }

// IsEvent reports whether the Inform carries the given event code.
func (m *Inform) IsEvent(code string) bool {
	for _, ev := range m.Events {
		if ev.EventCode == code {
			return true
		}
	}
	return false
}

// GetParam returns a reported parameter value or "".
func (m *Inform) GetParam(name string) string {
	return m.Params[name]
}

func (m *Inform) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	body := findElement(doc.Root(), "Inform")
	if body == nil {
		return fmt.Errorf("cwmp: Inform body missing")
	}

	if dev := findElement(body, "DeviceId"); dev != nil {
		m.Manufacturer = childText(dev, "Manufacturer")
		m.OUI = childText(dev, "OUI")
		m.ProductClass = childText(dev, "ProductClass")
		m.Sn = childText(dev, "SerialNumber")
	}
	if m.Sn == "" {
		return fmt.Errorf("cwmp: Inform without SerialNumber")
	}

	if ev := findElement(body, "Event"); ev != nil {
		for _, e := range ev.ChildElements() {
			if e.Tag != "EventStruct" {
				continue
			}
			m.Events = append(m.Events, EventStruct{
				EventCode:  childText(e, "EventCode"),
				CommandKey: childText(e, "CommandKey"),
			})
		}
	}

	if v := childText(body, "MaxEnvelopes"); v != "" {
		m.MaxEnvelopes, _ = strconv.Atoi(v)
	}
	if m.MaxEnvelopes == 0 {
		m.MaxEnvelopes = 1
	}
	if v := childText(body, "RetryCount"); v != "" {
		m.RetryCount, _ = strconv.Atoi(v)
	}
	m.CurrentTime = childText(body, "CurrentTime")

	if m.Params == nil {
		m.Params = map[string]string{}
	}
	if pl := findElement(body, "ParameterList"); pl != nil {
		for _, pvs := range pl.ChildElements() {
			name := childText(pvs, "Name")
			if name == "" {
				continue
			}
			value := childText(pvs, "Value")
			m.Params[name] = value
			m.ParamList = append(m.ParamList, ParameterValue{Name: name, Value: value})
		}
	}
	return nil
}

func (m *Inform) CreateXML() []byte {
	var b strings.Builder
	b.WriteString(`<cwmp:Inform>`)
	b.WriteString(`<DeviceId>`)
	b.WriteString(`<Manufacturer>` + xmlEscape(m.Manufacturer) + `</Manufacturer>`)
	b.WriteString(`<OUI>` + xmlEscape(m.OUI) + `</OUI>`)
	b.WriteString(`<ProductClass>` + xmlEscape(m.ProductClass) + `</ProductClass>`)
	b.WriteString(`<SerialNumber>` + xmlEscape(m.Sn) + `</SerialNumber>`)
	b.WriteString(`</DeviceId>`)
	b.WriteString(fmt.Sprintf(`<Event soapenc:arrayType="cwmp:EventStruct[%d]">`, len(m.Events)))
	for _, ev := range m.Events {
		b.WriteString(`<EventStruct>`)
		b.WriteString(`<EventCode>` + xmlEscape(ev.EventCode) + `</EventCode>`)
		b.WriteString(`<CommandKey>` + xmlEscape(ev.CommandKey) + `</CommandKey>`)
		b.WriteString(`</EventStruct>`)
	}
	b.WriteString(`</Event>`)
	b.WriteString(fmt.Sprintf(`<MaxEnvelopes>%d</MaxEnvelopes>`, m.MaxEnvelopes))
	b.WriteString(`<CurrentTime>` + xmlEscape(m.CurrentTime) + `</CurrentTime>`)
	b.WriteString(fmt.Sprintf(`<RetryCount>%d</RetryCount>`, m.RetryCount))
	b.WriteString(fmt.Sprintf(`<ParameterList soapenc:arrayType="cwmp:ParameterValueStruct[%d]">`, len(m.ParamList)))
	for _, pv := range m.ParamList {
		b.WriteString(`<ParameterValueStruct>`)
		b.WriteString(`<Name>` + xmlEscape(pv.Name) + `</Name>`)
		b.WriteString(`<Value xsi:type="xsd:string">` + xmlEscape(pv.Value) + `</Value>`)
		b.WriteString(`</ParameterValueStruct>`)
	}
	b.WriteString(`</ParameterList>`)
	b.WriteString(`</cwmp:Inform>`)
	return soapEnvelope(m.ID, b.String())
}

// InformResponse acknowledges an Inform and keeps the HTTP session open.
type InformResponse struct {
	ID           string
	MaxEnvelopes int
}

func (m *InformResponse) GetID() string   { return m.ID }
func (m *InformResponse) GetName() string { return "InformResponse" }

func (m *InformResponse) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	return nil
}

func (m *InformResponse) CreateXML() []byte {
	max := m.MaxEnvelopes
	if max == 0 {
		max = 1
	}
	body := fmt.Sprintf(`<cwmp:InformResponse><MaxEnvelopes>%d</MaxEnvelopes></cwmp:InformResponse>`, max)
	return soapEnvelope(m.ID, body)
}
