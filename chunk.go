package arscparser

import "fmt"

// Chunk is a single length-prefixed record in the tree. Concrete chunk types
// expose their own accessors; the interface carries only what the framing
// layer and generic consumers need.
type Chunk interface {
	// TypeCode is the 16-bit chunk type.
	TypeCode() uint16

	// HeaderSize is the declared size of the chunk header, metadata included.
	HeaderSize() int

	// OriginalSize is the total chunk size as read from the input. It can
	// deviate from the serialized size after mutation.
	OriginalSize() int

	// Offset is the chunk's position in the original input.
	Offset() int

	// Parent is the chunk whose payload contains this chunk, or nil. It is a
	// non-owning back-reference used only for string pool resolution.
	Parent() Chunk

	writeHeaderBody(w *bytesWriter, chunkStart int) error
	writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error
}

// ContainerChunk is a chunk whose payload is a sequence of child chunks.
type ContainerChunk interface {
	Chunk
	Children() []Chunk
}

type chunkBase struct {
	parent     Chunk
	offset     int
	typeCode   uint16
	headerSize int
	chunkSize  int
}

func (c *chunkBase) TypeCode() uint16  { return c.typeCode }
func (c *chunkBase) HeaderSize() int   { return c.headerSize }
func (c *chunkBase) OriginalSize() int { return c.chunkSize }
func (c *chunkBase) Offset() int       { return c.offset }
func (c *chunkBase) Parent() Chunk     { return c.parent }

// parseChunk reads the metadata at the cursor, dispatches on the type code
// and runs the chunk's two-phase initialization: header fields first, then
// the payload (which may recurse into children). The cursor is always left at
// the end of the declared chunk size so intra-chunk slack and unknown
// trailing bytes survive a round-trip.
func parseChunk(r *bytesReader, parent Chunk) (Chunk, error) {
	offset := r.pos
	typeCode := r.uint16()
	headerSize := int(r.uint16())
	chunkSize := int(r.uint32())
	if r.err != nil {
		return nil, parseErrorf(offset, typeCode, "reading chunk metadata: %s", r.err.Error())
	}
	if headerSize < chunkMetadataSize {
		return nil, parseErrorf(offset, typeCode, "header size %d below metadata size %d", headerSize, chunkMetadataSize)
	}
	if chunkSize < headerSize {
		return nil, parseErrorf(offset, typeCode, "chunk size %d below header size %d", chunkSize, headerSize)
	}
	if offset+chunkSize > len(r.data) {
		return nil, parseErrorf(offset, typeCode, "chunk size %d exceeds remaining input %d", chunkSize, len(r.data)-offset)
	}
	if parent != nil && offset+chunkSize > parent.Offset()+parent.OriginalSize() {
		return nil, parseErrorf(offset, typeCode, "chunk exceeds parent chunk 0x%04x ending at 0x%08x",
			parent.TypeCode(), parent.Offset()+parent.OriginalSize())
	}

	base := chunkBase{
		parent:     parent,
		offset:     offset,
		typeCode:   typeCode,
		headerSize: headerSize,
		chunkSize:  chunkSize,
	}

	var (
		chunk Chunk
		err   error
	)
	switch typeCode {
	case chunkStringPool:
		chunk, err = parseStringPoolChunk(r, base)
	case chunkTable:
		chunk, err = parseResourceTableChunk(r, base)
	case chunkXml:
		chunk, err = parseXmlChunk(r, base)
	case chunkXmlNsStart, chunkXmlNsEnd:
		chunk, err = parseXmlNamespaceChunk(r, base)
	case chunkXmlTagStart:
		chunk, err = parseXmlStartElementChunk(r, base)
	case chunkXmlTagEnd:
		chunk, err = parseXmlEndElementChunk(r, base)
	case chunkXmlCdata:
		chunk, err = parseXmlCdataChunk(r, base)
	case chunkXmlResMap:
		chunk, err = parseXmlResourceMapChunk(r, base)
	case chunkTablePackage:
		chunk, err = parsePackageChunk(r, base)
	case chunkTableType:
		chunk, err = parseTypeChunk(r, base)
	case chunkTableTypeSpec:
		chunk, err = parseTypeSpecChunk(r, base)
	case chunkTableLibrary:
		chunk, err = parseLibraryChunk(r, base)
	default:
		chunk, err = parseUnknownChunk(r, base)
	}
	if err != nil {
		if _, ok := err.(*ParseError); ok {
			return nil, err
		}
		return nil, &ParseError{Offset: offset, TypeCode: typeCode, Err: err}
	}

	r.seek(offset + chunkSize)
	return chunk, nil
}

// parseChildChunks parses the contiguous child sequence of a container.
func parseChildChunks(r *bytesReader, parent Chunk) ([]Chunk, error) {
	start := parent.Offset() + parent.HeaderSize()
	end := parent.Offset() + parent.OriginalSize()
	saved := r.pos
	r.seek(start)
	if r.err != nil {
		return nil, r.err
	}

	var children []Chunk
	for r.pos < end {
		child, err := parseChunk(r, parent)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	r.seek(saved)
	return children, nil
}

// writeChunk emits one chunk: metadata with a placeholder size, the header
// body, then the payload, finally back-patching the real chunk size.
func writeChunk(w *bytesWriter, c Chunk, opts SerializeOptions) error {
	start := w.len()
	w.uint16(c.TypeCode())
	w.uint16(uint16(c.HeaderSize()))
	w.uint32(0) // chunk size, patched below

	if err := c.writeHeaderBody(w, start); err != nil {
		return err
	}
	if written := w.len() - start; written != c.HeaderSize() {
		return fmt.Errorf("chunk 0x%04x: wrote %d header bytes, declared %d", c.TypeCode(), written, c.HeaderSize())
	}
	if err := c.writePayload(w, start, opts); err != nil {
		return err
	}
	w.patchUint32(start+4, uint32(w.len()-start))
	return nil
}

// writeChildChunks emits each child followed by padding to the next 4-byte
// boundary.
func writeChildChunks(w *bytesWriter, children []Chunk, opts SerializeOptions) error {
	for _, child := range children {
		if err := writeChunk(w, child, opts); err != nil {
			return err
		}
		w.pad()
	}
	return nil
}

// UnknownChunk preserves a chunk of an uncatalogued kind verbatim. It carries
// no interpretation.
type UnknownChunk struct {
	chunkBase

	rawHeader  []byte
	rawPayload []byte
}

func parseUnknownChunk(r *bytesReader, base chunkBase) (*UnknownChunk, error) {
	c := &UnknownChunk{chunkBase: base}
	c.rawHeader = append([]byte(nil), r.read(base.headerSize-chunkMetadataSize)...)
	c.rawPayload = append([]byte(nil), r.read(base.chunkSize-base.headerSize)...)
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func (c *UnknownChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.write(c.rawHeader)
	return nil
}

func (c *UnknownChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	w.write(c.rawPayload)
	return nil
}

// ResourceFile is the ordered sequence of root chunks in one compiled
// resource stream (a resources.arsc or a compiled XML).
type ResourceFile struct {
	chunks []Chunk
}

// ParseResourceFile maps the whole input into a chunk tree.
func ParseResourceFile(data []byte) (*ResourceFile, error) {
	r := newBytesReader(data)
	f := &ResourceFile{}
	for r.remaining() > 0 {
		chunk, err := parseChunk(r, nil)
		if err != nil {
			return nil, err
		}
		f.chunks = append(f.chunks, chunk)
	}
	return f, nil
}

// Chunks returns the root chunk sequence.
func (f *ResourceFile) Chunks() []Chunk {
	return f.chunks
}

// Table returns the first resource table root chunk, if any.
func (f *ResourceFile) Table() *ResourceTableChunk {
	for _, c := range f.chunks {
		if t, ok := c.(*ResourceTableChunk); ok {
			return t
		}
	}
	return nil
}

// Xml returns the first XML root chunk, if any.
func (f *ResourceFile) Xml() *XmlChunk {
	for _, c := range f.chunks {
		if x, ok := c.(*XmlChunk); ok {
			return x
		}
	}
	return nil
}

// Bytes serializes the whole file with the given options.
func (f *ResourceFile) Bytes(opts SerializeOptions) ([]byte, error) {
	var w bytesWriter
	for _, chunk := range f.chunks {
		if err := writeChunk(&w, chunk, opts); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}
