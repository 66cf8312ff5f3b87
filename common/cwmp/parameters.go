package cwmp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// GetParameterValues asks a CPE for the values under each listed name or
// partial path.
type GetParameterValues struct {
	ID             string
	Name           string
	ParameterNames []string
}

func (m *GetParameterValues) GetID() string   { return m.ID }
func (m *GetParameterValues) GetName() string { return "GetParameterValues" }

func (m *GetParameterValues) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	if body := findElement(doc.Root(), "GetParameterValues"); body != nil {
		if names := findElement(body, "ParameterNames"); names != nil {
			for _, c := range names.ChildElements() {
				m.ParameterNames = append(m.ParameterNames, strings.TrimSpace(c.Text()))
			}
		}
	}
	return nil
}

func (m *GetParameterValues) CreateXML() []byte {
	var b strings.Builder
	b.WriteString(`<cwmp:GetParameterValues>`)
	b.WriteString(fmt.Sprintf(`<ParameterNames soapenc:arrayType="xsd:string[%d]">`, len(m.ParameterNames)))
	for _, name := range m.ParameterNames {
		b.WriteString(`<string>` + xmlEscape(name) + `</string>`)
	}
	b.WriteString(`</ParameterNames>`)
	b.WriteString(`</cwmp:GetParameterValues>`)
	return soapEnvelope(m.ID, b.String())
}

// GetParameterValuesResponse carries the reported values. Values is keyed
// access, List preserves received order.
type GetParameterValuesResponse struct {
	ID     string
	Values map[string]string
	List   []ParameterValue
}

func (m *GetParameterValuesResponse) GetID() string   { return m.ID }
func (m *GetParameterValuesResponse) GetName() string { return "GetParameterValuesResponse" }

func (m *GetParameterValuesResponse) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	m.Values = map[string]string{}
	body := findElement(doc.Root(), "GetParameterValuesResponse")
	if body == nil {
		return fmt.Errorf("cwmp: GetParameterValuesResponse body missing")
	}
	if pl := findElement(body, "ParameterList"); pl != nil {
		for _, pvs := range pl.ChildElements() {
			name := childText(pvs, "Name")
			if name == "" {
				continue
			}
			value := childText(pvs, "Value")
			m.Values[name] = value
			m.List = append(m.List, ParameterValue{Name: name, Value: value})
		}
	}
	return nil
}

func (m *GetParameterValuesResponse) CreateXML() []byte {
	var b strings.Builder
	b.WriteString(`<cwmp:GetParameterValuesResponse>`)
	b.WriteString(fmt.Sprintf(`<ParameterList soapenc:arrayType="cwmp:ParameterValueStruct[%d]">`, len(m.List)))
	for _, pv := range m.List {
		b.WriteString(`<ParameterValueStruct>`)
		b.WriteString(`<Name>` + xmlEscape(pv.Name) + `</Name>`)
		b.WriteString(`<Value xsi:type="xsd:string">` + xmlEscape(pv.Value) + `</Value>`)
		b.WriteString(`</ParameterValueStruct>`)
	}
	b.WriteString(`</ParameterList>`)
	b.WriteString(`</cwmp:GetParameterValuesResponse>`)
	return soapEnvelope(m.ID, b.String())
}

// SetParameterValues writes configuration to a CPE.
type SetParameterValues struct {
	ID           string
	Name         string
	ParameterKey string
	Params       map[string]ValueStruct
}

func (m *SetParameterValues) GetID() string   { return m.ID }
func (m *SetParameterValues) GetName() string { return "SetParameterValues" }

func (m *SetParameterValues) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	m.Params = map[string]ValueStruct{}
	body := findElement(doc.Root(), "SetParameterValues")
	if body == nil {
		return fmt.Errorf("cwmp: SetParameterValues body missing")
	}
	if pl := findElement(body, "ParameterList"); pl != nil {
		for _, pvs := range pl.ChildElements() {
			name := childText(pvs, "Name")
			if name == "" {
				continue
			}
			m.Params[name] = ValueStruct{Value: childText(pvs, "Value")}
		}
	}
	m.ParameterKey = childText(body, "ParameterKey")
	return nil
}

func (m *SetParameterValues) CreateXML() []byte {
	// Sorted names keep the rendered envelope deterministic.
	names := make([]string, 0, len(m.Params))
	for name := range m.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(`<cwmp:SetParameterValues>`)
	b.WriteString(fmt.Sprintf(`<ParameterList soapenc:arrayType="cwmp:ParameterValueStruct[%d]">`, len(names)))
	for _, name := range names {
		vs := m.Params[name]
		vtype := vs.Type
		if vtype == "" {
			vtype = "xsd:string"
		}
		b.WriteString(`<ParameterValueStruct>`)
		b.WriteString(`<Name>` + xmlEscape(name) + `</Name>`)
		b.WriteString(`<Value xsi:type="` + vtype + `">` + xmlEscape(vs.Value) + `</Value>`)
		b.WriteString(`</ParameterValueStruct>`)
	}
	b.WriteString(`</ParameterList>`)
	b.WriteString(`<ParameterKey>` + xmlEscape(m.ParameterKey) + `</ParameterKey>`)
	b.WriteString(`</cwmp:SetParameterValues>`)
	return soapEnvelope(m.ID, b.String())
}

// SetParameterValuesResponse reports the write outcome; status "0" means
// applied, anything else is a device-side error code.
type SetParameterValuesResponse struct {
	ID     string
	Status string
}

func (m *SetParameterValuesResponse) GetID() string   { return m.ID }
func (m *SetParameterValuesResponse) GetName() string { return "SetParameterValuesResponse" }

func (m *SetParameterValuesResponse) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	body := findElement(doc.Root(), "SetParameterValuesResponse")
	if body == nil {
		return fmt.Errorf("cwmp: SetParameterValuesResponse body missing")
	}
	m.Status = childText(body, "Status")
	if m.Status == "" {
		// Some firmwares omit Status on success.
		m.Status = "0"
	}
	return nil
}

func (m *SetParameterValuesResponse) CreateXML() []byte {
	body := `<cwmp:SetParameterValuesResponse><Status>` + xmlEscape(m.Status) + `</Status></cwmp:SetParameterValuesResponse>`
	return soapEnvelope(m.ID, body)
}
