package cwmp

import (
	"github.com/beevik/etree"
)

// Fault is a device-reported SOAP fault. The CWMP detail block carries the
// protocol fault code; the outer faultcode/faultstring pair is kept as a
// fallback for firmwares that omit the detail.
type Fault struct {
	ID          string
	FaultCode   string
	FaultString string
}

func (m *Fault) GetID() string   { return m.ID }
func (m *Fault) GetName() string { return "Fault" }

func (m *Fault) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	fault := findElement(doc.Root(), "Fault")
	if fault == nil {
		return nil
	}
	// CWMP nests a second Fault element inside detail.
	if detail := findElement(fault, "detail"); detail != nil {
		if inner := findElement(detail, "Fault"); inner != nil {
			m.FaultCode = childText(inner, "FaultCode")
			m.FaultString = childText(inner, "FaultString")
		}
	}
	if m.FaultCode == "" {
		m.FaultCode = childText(fault, "faultcode")
	}
	if m.FaultString == "" {
		m.FaultString = childText(fault, "faultstring")
	}
	return nil
}

func (m *Fault) CreateXML() []byte {
	body := `<soapenv:Fault>` +
		`<faultcode>Client</faultcode>` +
		`<faultstring>CWMP fault</faultstring>` +
		`<detail><cwmp:Fault>` +
		`<FaultCode>` + xmlEscape(m.FaultCode) + `</FaultCode>` +
		`<FaultString>` + xmlEscape(m.FaultString) + `</FaultString>` +
		`</cwmp:Fault></detail>` +
		`</soapenv:Fault>`
	return soapEnvelope(m.ID, body)
}
