package arscparser

import "fmt"

// noStringEntry marks "no string" in XML node string references.
const noStringEntry int32 = -1

// xmlAttributeSize is the serialized size of one attribute record.
const xmlAttributeSize = 12 + resourceValueSize

// XmlChunk is one compiled XML document: a string pool, an optional resource
// map, and a stream of namespace/element/cdata nodes.
type XmlChunk struct {
	chunkBase

	children []Chunk
}

func parseXmlChunk(r *bytesReader, base chunkBase) (*XmlChunk, error) {
	c := &XmlChunk{chunkBase: base}
	children, err := parseChildChunks(r, c)
	if err != nil {
		return nil, err
	}
	c.children = children
	return c, nil
}

// Children returns the document's chunks in stream order.
func (c *XmlChunk) Children() []Chunk {
	return c.children
}

// StringPool returns the document's string pool, or nil.
func (c *XmlChunk) StringPool() *StringPoolChunk {
	for _, child := range c.children {
		if p, ok := child.(*StringPoolChunk); ok {
			return p
		}
	}
	return nil
}

// ResourceMap returns the document's resource map, or nil.
func (c *XmlChunk) ResourceMap() *XmlResourceMapChunk {
	for _, child := range c.children {
		if m, ok := child.(*XmlResourceMapChunk); ok {
			return m
		}
	}
	return nil
}

// String resolves an index against the document's string pool.
func (c *XmlChunk) String(index int) (string, error) {
	pool := c.StringPool()
	if pool == nil {
		return "", fmt.Errorf("xml chunk has no string pool")
	}
	return pool.String(index)
}

func (c *XmlChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	return nil
}

func (c *XmlChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	return writeChildChunks(w, c.children, opts)
}

// xmlNodeChunk carries the fields every XML node has: the source line number
// and an optional comment string. Both are part of the node's header.
type xmlNodeChunk struct {
	chunkBase

	lineNumber uint32
	comment    int32
}

func (c *xmlNodeChunk) parseNodeHeader(r *bytesReader) {
	c.lineNumber = r.uint32()
	c.comment = int32(r.uint32())
}

// LineNumber returns the line in the original source this node came from.
func (c *xmlNodeChunk) LineNumber() int {
	return int(c.lineNumber)
}

// HasComment reports whether the node carries a comment.
func (c *xmlNodeChunk) HasComment() bool {
	return c.comment != noStringEntry
}

// Comment returns the node's comment, or the empty string.
func (c *xmlNodeChunk) Comment() (string, error) {
	return c.getString(c.comment)
}

// getString resolves an index against the nearest ancestor XML chunk's pool.
func (c *xmlNodeChunk) getString(index int32) (string, error) {
	if index == noStringEntry {
		return "", nil
	}
	for p := c.Parent(); p != nil; p = p.Parent() {
		if x, ok := p.(*XmlChunk); ok {
			return x.String(int(index))
		}
	}
	return "", fmt.Errorf("xml node at 0x%08x has no enclosing xml chunk", c.offset)
}

func (c *xmlNodeChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint32(c.lineNumber)
	w.uint32(uint32(c.comment))
	return nil
}

// XmlNamespaceChunk opens or closes a namespace scope; the type code
// distinguishes start from end.
type XmlNamespaceChunk struct {
	xmlNodeChunk

	prefix int32
	uri    int32
}

func parseXmlNamespaceChunk(r *bytesReader, base chunkBase) (*XmlNamespaceChunk, error) {
	c := &XmlNamespaceChunk{xmlNodeChunk: xmlNodeChunk{chunkBase: base}}
	c.parseNodeHeader(r)
	c.prefix = int32(r.uint32())
	c.uri = int32(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// IsStart reports whether this chunk opens the namespace scope.
func (c *XmlNamespaceChunk) IsStart() bool {
	return c.typeCode == chunkXmlNsStart
}

// Prefix returns the namespace prefix.
func (c *XmlNamespaceChunk) Prefix() (string, error) {
	return c.getString(c.prefix)
}

// Uri returns the namespace URI.
func (c *XmlNamespaceChunk) Uri() (string, error) {
	return c.getString(c.uri)
}

func (c *XmlNamespaceChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	w.uint32(uint32(c.prefix))
	w.uint32(uint32(c.uri))
	return nil
}

// XmlAttribute is one attribute record of an element-start chunk. Attributes
// are structurally immutable: mutation produces a replacement record.
type XmlAttribute struct {
	NamespaceIndex int32
	NameIndex      int32
	RawValueIndex  int32
	TypedValue     ResourceValue

	parent *XmlStartElementChunk
}

// Namespace returns the attribute's namespace URI, or the empty string.
func (a XmlAttribute) Namespace() (string, error) {
	return a.parent.getString(a.NamespaceIndex)
}

// Name returns the attribute's name.
func (a XmlAttribute) Name() (string, error) {
	return a.parent.getString(a.NameIndex)
}

// RawValue returns the attribute's raw character value, or the empty string.
func (a XmlAttribute) RawValue() (string, error) {
	return a.parent.getString(a.RawValueIndex)
}

func (a XmlAttribute) writeTo(w *bytesWriter) {
	w.uint32(uint32(a.NamespaceIndex))
	w.uint32(uint32(a.NameIndex))
	w.uint32(uint32(a.RawValueIndex))
	a.TypedValue.writeTo(w)
}

// XmlStartElementChunk opens one element and carries its attribute table.
type XmlStartElementChunk struct {
	xmlNodeChunk

	namespace int32
	name      int32

	// 0-based indices of the id/class/style attributes, -1 when absent.
	idIndex    int
	classIndex int
	styleIndex int

	attributes []XmlAttribute
}

func parseXmlStartElementChunk(r *bytesReader, base chunkBase) (*XmlStartElementChunk, error) {
	c := &XmlStartElementChunk{xmlNodeChunk: xmlNodeChunk{chunkBase: base}}
	c.parseNodeHeader(r)
	c.namespace = int32(r.uint32())
	c.name = int32(r.uint32())
	attributeStart := int(r.uint16())
	attributeSize := int(r.uint16())
	attributeCount := int(r.uint16())
	c.idIndex = int(r.uint16()) - 1
	c.classIndex = int(r.uint16()) - 1
	c.styleIndex = int(r.uint16()) - 1
	if r.err != nil {
		return nil, r.err
	}
	if attributeSize != xmlAttributeSize {
		return nil, fmt.Errorf("attribute size %d, want %d", attributeSize, xmlAttributeSize)
	}

	r.seek(base.offset + base.headerSize + attributeStart)
	for i := 0; i < attributeCount; i++ {
		a := XmlAttribute{
			NamespaceIndex: int32(r.uint32()),
			NameIndex:      int32(r.uint32()),
			RawValueIndex:  int32(r.uint32()),
			parent:         c,
		}
		if r.err != nil {
			return nil, r.err
		}
		value, err := parseResourceValue(r)
		if err != nil {
			return nil, fmt.Errorf("attribute %d: %s", i, err.Error())
		}
		a.TypedValue = value
		c.attributes = append(c.attributes, a)
	}
	return c, nil
}

// Namespace returns the element's namespace URI, or the empty string.
func (c *XmlStartElementChunk) Namespace() (string, error) {
	return c.getString(c.namespace)
}

// Name returns the element name.
func (c *XmlStartElementChunk) Name() (string, error) {
	return c.getString(c.name)
}

// Attributes returns the element's attributes in file order.
func (c *XmlStartElementChunk) Attributes() []XmlAttribute {
	return c.attributes
}

// SetAttribute replaces the attribute at index with a new record.
func (c *XmlStartElementChunk) SetAttribute(index int, a XmlAttribute) error {
	if index < 0 || index >= len(c.attributes) {
		return fmt.Errorf("attribute index %d outside table of %d", index, len(c.attributes))
	}
	a.parent = c
	c.attributes[index] = a
	return nil
}

// RemapReferences rewrites every REFERENCE-typed attribute whose value is a
// key of remap, substituting the mapped resource id. It returns the number of
// attributes rewritten.
func (c *XmlStartElementChunk) RemapReferences(remap map[uint32]uint32) int {
	count := 0
	for i, a := range c.attributes {
		if a.TypedValue.Type != TypeReference {
			continue
		}
		newData, ok := remap[a.TypedValue.Data]
		if !ok {
			continue
		}
		replacement := a
		replacement.TypedValue.Data = newData
		c.attributes[i] = replacement
		count++
	}
	return count
}

func (c *XmlStartElementChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	w.uint32(uint32(c.namespace))
	w.uint32(uint32(c.name))
	// The attribute table begins right after these 20 bytes of element
	// fields, which happens to equal the attribute record size.
	w.uint16(uint16(xmlAttributeSize))
	w.uint16(uint16(xmlAttributeSize))
	w.uint16(uint16(len(c.attributes)))
	w.uint16(uint16(c.idIndex + 1))
	w.uint16(uint16(c.classIndex + 1))
	w.uint16(uint16(c.styleIndex + 1))
	for _, a := range c.attributes {
		a.writeTo(w)
	}
	return nil
}

// XmlEndElementChunk closes one element.
type XmlEndElementChunk struct {
	xmlNodeChunk

	namespace int32
	name      int32
}

func parseXmlEndElementChunk(r *bytesReader, base chunkBase) (*XmlEndElementChunk, error) {
	c := &XmlEndElementChunk{xmlNodeChunk: xmlNodeChunk{chunkBase: base}}
	c.parseNodeHeader(r)
	c.namespace = int32(r.uint32())
	c.name = int32(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// Namespace returns the element's namespace URI, or the empty string.
func (c *XmlEndElementChunk) Namespace() (string, error) {
	return c.getString(c.namespace)
}

// Name returns the element name.
func (c *XmlEndElementChunk) Name() (string, error) {
	return c.getString(c.name)
}

func (c *XmlEndElementChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	w.uint32(uint32(c.namespace))
	w.uint32(uint32(c.name))
	return nil
}

// XmlCdataChunk is character data between elements.
type XmlCdataChunk struct {
	xmlNodeChunk

	rawValue   int32
	typedValue ResourceValue
}

func parseXmlCdataChunk(r *bytesReader, base chunkBase) (*XmlCdataChunk, error) {
	c := &XmlCdataChunk{xmlNodeChunk: xmlNodeChunk{chunkBase: base}}
	c.parseNodeHeader(r)
	c.rawValue = int32(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	value, err := parseResourceValue(r)
	if err != nil {
		return nil, err
	}
	c.typedValue = value
	return c, nil
}

// RawValue returns the raw character data.
func (c *XmlCdataChunk) RawValue() (string, error) {
	return c.getString(c.rawValue)
}

// TypedValue returns the parsed cdata value.
func (c *XmlCdataChunk) TypedValue() ResourceValue {
	return c.typedValue
}

func (c *XmlCdataChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	w.uint32(uint32(c.rawValue))
	c.typedValue.writeTo(w)
	return nil
}

// XmlResourceMapChunk maps the string pool indices of attribute names to
// resource ids: the name at pool index i corresponds to Resources()[i].
type XmlResourceMapChunk struct {
	chunkBase

	resources []uint32
}

func parseXmlResourceMapChunk(r *bytesReader, base chunkBase) (*XmlResourceMapChunk, error) {
	c := &XmlResourceMapChunk{chunkBase: base}
	count := (base.chunkSize - base.headerSize) / 4
	r.seek(base.offset + base.headerSize)
	for i := 0; i < count; i++ {
		c.resources = append(c.resources, r.uint32())
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// Resources returns the attribute-index-to-resource-id table.
func (c *XmlResourceMapChunk) Resources() []uint32 {
	return c.resources
}

// ResourceID returns the resource identifier the given attribute pool index
// maps to.
func (c *XmlResourceMapChunk) ResourceID(attributeIndex int) (ResourceIdentifier, error) {
	if attributeIndex < 0 || attributeIndex >= len(c.resources) {
		return ResourceIdentifier{}, fmt.Errorf("attribute index %d outside resource map of %d", attributeIndex, len(c.resources))
	}
	return ResourceID(c.resources[attributeIndex]), nil
}

func (c *XmlResourceMapChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	return nil
}

func (c *XmlResourceMapChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	for _, res := range c.resources {
		w.uint32(res)
	}
	return nil
}
