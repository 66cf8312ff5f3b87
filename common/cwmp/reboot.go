package cwmp

import (
	"fmt"

	"github.com/beevik/etree"
)

// Reboot is the standard TR-069 reboot RPC.
type Reboot struct {
	ID         string
	CommandKey string
}

func (m *Reboot) GetID() string   { return m.ID }
func (m *Reboot) GetName() string { return "Reboot" }

func (m *Reboot) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	if body := findElement(doc.Root(), "Reboot"); body != nil {
		m.CommandKey = childText(body, "CommandKey")
	}
	return nil
}

func (m *Reboot) CreateXML() []byte {
	body := `<cwmp:Reboot><CommandKey>` + xmlEscape(m.CommandKey) + `</CommandKey></cwmp:Reboot>`
	return soapEnvelope(m.ID, body)
}

// X_HW_DelayReboot is Huawei's delayed reboot RPC, used for ONTs whose
// standard Reboot is unreliable.
type X_HW_DelayReboot struct {
	ID           string
	CommandKey   string
	DelaySeconds int
}

func (m *X_HW_DelayReboot) GetID() string   { return m.ID }
func (m *X_HW_DelayReboot) GetName() string { return "X_HW_DelayReboot" }

func (m *X_HW_DelayReboot) Parse(doc *etree.Document) error {
	m.ID = headerID(doc)
	return nil
}

func (m *X_HW_DelayReboot) CreateXML() []byte {
	delay := m.DelaySeconds
	if delay <= 0 {
		delay = 1
	}
	body := `<cwmp:X_HW_DelayReboot>` +
		`<CommandKey>` + xmlEscape(m.CommandKey) + `</CommandKey>` +
		fmt.Sprintf(`<DelaySeconds>%d</DelaySeconds>`, delay) +
		`</cwmp:X_HW_DelayReboot>`
	return soapEnvelope(m.ID, body)
}
