package arscparser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ManifestEncoder is the sink DecodeXml writes tokens to, like Encoder from
// encoding/xml.
type ManifestEncoder interface {
	EncodeToken(t xml.Token) error
	Flush() error
}

// Some samples have the manifest in plaintext, this is an error.
var ErrPlainTextManifest = errors.New("xml is in plaintext, binary form expected")

// DecodeXml converts a compiled XML document to text XML tokens. The
// resource table is optional and used to resolve references; it can be nil.
func DecodeXml(data []byte, enc ManifestEncoder, table *ResourceTableChunk) error {
	if len(data) >= 6 {
		if s := string(data[:6]); strings.HasPrefix(s, "<?xml ") || strings.HasPrefix(s, "<manif") {
			return ErrPlainTextManifest
		}
	}

	file, err := ParseResourceFile(data)
	if err != nil {
		return err
	}
	doc := file.Xml()
	if doc == nil {
		return fmt.Errorf("input has no xml root chunk")
	}

	defer enc.Flush()
	for _, child := range doc.Children() {
		switch node := child.(type) {
		case *XmlStartElementChunk:
			if err := encodeStartElement(enc, node, table); err != nil {
				return err
			}
		case *XmlEndElementChunk:
			name, err := node.Name()
			if err != nil {
				return err
			}
			namespace, err := node.Namespace()
			if err != nil {
				return err
			}
			tok := xml.EndElement{Name: xml.Name{Local: name, Space: namespace}}
			if err := enc.EncodeToken(tok); err != nil {
				return err
			}
		case *XmlCdataChunk:
			text, err := node.RawValue()
			if err != nil {
				return err
			}
			if err := enc.EncodeToken(xml.CharData(text)); err != nil {
				return err
			}
		}
	}
	return enc.Flush()
}

func encodeStartElement(enc ManifestEncoder, node *XmlStartElementChunk, table *ResourceTableChunk) error {
	name, err := node.Name()
	if err != nil {
		return err
	}
	namespace, err := node.Namespace()
	if err != nil {
		return err
	}
	tok := xml.StartElement{Name: xml.Name{Local: name, Space: namespace}}

	resMap := enclosingResourceMap(node)
	for i, attr := range node.Attributes() {
		// Attribute names live in the string pool, but when a resource map is
		// present the authoritative name is the key of the mapped resource.
		// Obfuscators strip the pool copies, so prefer the map when it
		// resolves.
		attrName, err := attr.Name()
		if err != nil {
			return fmt.Errorf("attribute %d: %s", i, err.Error())
		}
		if resMap != nil && table != nil && attr.NameIndex >= 0 && int(attr.NameIndex) < len(resMap.Resources()) {
			if mapped := attrNameFromTable(table, resMap.Resources()[attr.NameIndex]); mapped != "" {
				attrName = mapped
			}
		}

		attrNamespace, err := attr.Namespace()
		if err != nil {
			return fmt.Errorf("attribute %d: %s", i, err.Error())
		}

		value, err := formatAttrValue(attr, table)
		if err != nil {
			return fmt.Errorf("attribute %s: %s", attrName, err.Error())
		}
		tok.Attr = append(tok.Attr, xml.Attr{
			Name:  xml.Name{Local: attrName, Space: attrNamespace},
			Value: value,
		})
	}
	return enc.EncodeToken(tok)
}

func enclosingResourceMap(node *XmlStartElementChunk) *XmlResourceMapChunk {
	for p := node.Parent(); p != nil; p = p.Parent() {
		if doc, ok := p.(*XmlChunk); ok {
			return doc.ResourceMap()
		}
	}
	return nil
}

// attrNameFromTable resolves a resource id to its entry key name.
func attrNameFromTable(table *ResourceTableChunk, resourceID uint32) string {
	for _, entry := range table.LookupResource(ResourceID(resourceID)) {
		if key, err := entry.Key(); err == nil && key != "" {
			return key
		}
	}
	return ""
}

func formatAttrValue(attr XmlAttribute, table *ResourceTableChunk) (string, error) {
	value := attr.TypedValue
	switch value.Type {
	case TypeString:
		return attr.RawValue()
	case TypeIntBoolean:
		return strconv.FormatBool(value.Data != 0), nil
	case TypeIntHex:
		return fmt.Sprintf("0x%x", value.Data), nil
	case TypeFloat:
		return fmt.Sprintf("%g", math.Float32frombits(value.Data)), nil
	case TypeReference:
		if table != nil {
			if s, ok := resolveReference(table, value.Data); ok {
				return s, nil
			}
		}
		return fmt.Sprintf("@%x", value.Data), nil
	default:
		return strconv.FormatInt(int64(int32(value.Data)), 10), nil
	}
}

// resolveReference follows reference chains, bounded to keep crafted files
// from looping.
func resolveReference(table *ResourceTableChunk, resourceID uint32) (string, bool) {
	for i := 0; i < 5; i++ {
		entries := table.LookupResource(ResourceID(resourceID))
		if len(entries) == 0 {
			return "", false
		}
		entry := entries[0]
		if entry.IsComplex() || entry.Value == nil {
			return "", false
		}
		value := *entry.Value
		switch value.Type {
		case TypeReference:
			resourceID = value.Data
		case TypeString:
			s, err := table.StringPool().String(int(value.Data))
			return s, err == nil
		case TypeIntBoolean:
			return strconv.FormatBool(value.Data != 0), true
		case TypeIntDec:
			return strconv.FormatInt(int64(int32(value.Data)), 10), true
		case TypeIntHex:
			return fmt.Sprintf("0x%x", value.Data), true
		case TypeFloat:
			return fmt.Sprintf("%g", math.Float32frombits(value.Data)), true
		default:
			return "", false
		}
	}
	return "", false
}

// DecodeXmlToString is a convenience wrapper rendering a compiled XML
// document to an indented string.
func DecodeXmlToString(data []byte, table *ResourceTableChunk) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := DecodeXml(data, enc, table); err != nil {
		return "", err
	}
	return buf.String(), nil
}
