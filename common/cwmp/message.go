// Package cwmp implements the subset of the CWMP ("TR-069") SOAP envelope
// codec this ACS speaks: Inform handling, parameter get/set and the reboot
// RPCs, in the urn:dslforum-org:cwmp-1-0 namespace. Parsing is structural
// and namespace-lenient because CPE firmwares disagree on prefixes and
// frequently omit elements the schema calls mandatory.
package cwmp

import (
	"strings"

	"github.com/beevik/etree"
)

// Message is one CWMP envelope, inbound or outbound.
type Message interface {
	GetID() string
	GetName() string
	CreateXML() []byte
	Parse(doc *etree.Document) error
}

// ValueStruct is a typed parameter value carried in SetParameterValues.
type ValueStruct struct {
	Type  string
	Value string
}

// ParameterValue is a reported (name, value) pair in received order.
type ParameterValue struct {
	Name  string
	Value string
}

// EventStruct is one entry of an Inform's Event array.
type EventStruct struct {
	EventCode  string
	CommandKey string
}

// Inform event codes.
const (
	EventBootStrap         = "0 BOOTSTRAP"
	EventBoot              = "1 BOOT"
	EventPeriodic          = "2 PERIODIC"
	EventScheduled         = "3 SCHEDULED"
	EventValueChange       = "4 VALUE CHANGE"
	EventConnectionRequest = "6 CONNECTION REQUEST"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

// soapEnvelope wraps a body fragment in a CWMP SOAP 1.1 envelope. The
// correlation id is echoed into the cwmp:ID header when present.
func soapEnvelope(id, body string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<soapenv:Envelope` +
		` xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/"` +
		` xmlns:soapenc="http://schemas.xmlsoap.org/soap/encoding/"` +
		` xmlns:xsd="http://www.w3.org/2001/XMLSchema"` +
		` xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"` +
		` xmlns:cwmp="urn:dslforum-org:cwmp-1-0">`)
	b.WriteString(`<soapenv:Header>`)
	if id != "" {
		b.WriteString(`<cwmp:ID soapenv:mustUnderstand="1">` + xmlEscape(id) + `</cwmp:ID>`)
	}
	b.WriteString(`</soapenv:Header>`)
	b.WriteString(`<soapenv:Body>`)
	b.WriteString(body)
	b.WriteString(`</soapenv:Body>`)
	b.WriteString(`</soapenv:Envelope>`)
	return []byte(b.String())
}

// findElement walks the tree and returns the first element whose local
// name matches, regardless of namespace prefix.
func findElement(e *etree.Element, local string) *etree.Element {
	if e == nil {
		return nil
	}
	if e.Tag == local {
		return e
	}
	for _, c := range e.ChildElements() {
		if m := findElement(c, local); m != nil {
			return m
		}
	}
	return nil
}

func childText(e *etree.Element, local string) string {
	if e == nil {
		return ""
	}
	for _, c := range e.ChildElements() {
		if c.Tag == local {
			return strings.TrimSpace(c.Text())
		}
	}
	return ""
}

// headerID extracts the cwmp:ID correlation element from the envelope
// header, tolerating a missing header entirely.
func headerID(doc *etree.Document) string {
	header := findElement(doc.Root(), "Header")
	if header == nil {
		return ""
	}
	if id := findElement(header, "ID"); id != nil {
		return strings.TrimSpace(id.Text())
	}
	return ""
}
