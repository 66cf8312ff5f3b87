package cwmp

import (
	"errors"
	"fmt"

	"github.com/beevik/etree"
)

// ErrUnknownMessage marks a well-formed envelope whose body element is not
// one this engine handles. Callers treat it as a fail-safe no-op.
var ErrUnknownMessage = errors.New("cwmp: unknown message type")

// ParseXML classifies a raw envelope by the first element inside Body and
// parses it into a typed message. Classification is by local element name
// only; no schema validation happens here.
func ParseXML(data []byte) (Message, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("cwmp: read xml: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("cwmp: empty document")
	}
	body := findElement(doc.Root(), "Body")
	if body == nil {
		return nil, errors.New("cwmp: no SOAP Body")
	}

	var name string
	for _, child := range body.ChildElements() {
		if child.Tag != "" {
			name = child.Tag
			break
		}
	}
	if name == "" {
		return nil, errors.New("cwmp: no element found in SOAP Body")
	}

	var msg Message
	switch name {
	case "Inform":
		msg = NewInform()
	case "GetParameterValuesResponse":
		msg = &GetParameterValuesResponse{}
	case "SetParameterValuesResponse":
		msg = &SetParameterValuesResponse{}
	case "Fault":
		msg = &Fault{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	if err := msg.Parse(doc); err != nil {
		return nil, err
	}
	return msg, nil
}
