package arscparser

import (
	"fmt"
	"unicode/utf16"
)

// Header offsets of the two pool-offset fields that get back-patched during
// serialization.
const (
	typeStringsFieldOffset = 268
	keyStringsFieldOffset  = 276

	// Package headers written with the type-id-offset field are this large;
	// older tools wrote 284-byte headers without it.
	packageHeaderFullSize = 288
)

// decodePackageName reads a fixed-width UTF-16LE package name field,
// stopping at the null terminator.
func decodePackageName(raw []byte) string {
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u := uint16(raw[i]) | uint16(raw[i+1])<<8
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// encodePackageName renders name into the fixed-width UTF-16LE field.
func encodePackageName(name string) []byte {
	raw := make([]byte, packageNameSize)
	units := utf16.Encode([]rune(name))
	if len(units) > packageNameSize/2-1 {
		units = units[:packageNameSize/2-1]
	}
	for i, u := range units {
		raw[2*i] = byte(u)
		raw[2*i+1] = byte(u >> 8)
	}
	return raw
}

// PackageChunk groups the resource data of one package: its type string pool
// and key string pool, type specs and type chunks filed by type id, and at
// most one library chunk.
type PackageChunk struct {
	chunkBase

	id      uint32
	name    string
	rawName []byte

	typeStringsOffset int
	lastPublicType    uint32
	keyStringsOffset  int
	lastPublicKey     uint32
	typeIDOffset      uint32

	children []Chunk

	typePool  *StringPoolChunk
	keyPool   *StringPoolChunk
	types     map[int][]*TypeChunk
	typeSpecs map[int]*TypeSpecChunk
	library   *LibraryChunk
}

func parsePackageChunk(r *bytesReader, base chunkBase) (*PackageChunk, error) {
	c := &PackageChunk{chunkBase: base}
	c.id = r.uint32()
	c.rawName = append([]byte(nil), r.read(packageNameSize)...)
	c.name = decodePackageName(c.rawName)
	c.typeStringsOffset = int(r.uint32())
	c.lastPublicType = r.uint32()
	c.keyStringsOffset = int(r.uint32())
	c.lastPublicKey = r.uint32()
	if base.headerSize >= packageHeaderFullSize {
		c.typeIDOffset = r.uint32()
	}
	if r.err != nil {
		return nil, r.err
	}

	children, err := parseChildChunks(r, c)
	if err != nil {
		return nil, err
	}
	c.children = children
	if err := c.classifyChildren(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *PackageChunk) classifyChildren() error {
	c.typePool, c.keyPool, c.library = nil, nil, nil
	c.types = make(map[int][]*TypeChunk)
	c.typeSpecs = make(map[int]*TypeSpecChunk)
	for _, child := range c.children {
		switch chunk := child.(type) {
		case *StringPoolChunk:
			switch chunk.Offset() {
			case c.offset + c.typeStringsOffset:
				c.typePool = chunk
			case c.offset + c.keyStringsOffset:
				c.keyPool = chunk
			}
		case *TypeChunk:
			// The first chunk per id stays first; downstream tools expect the
			// default configuration to lead.
			c.types[chunk.ID()] = append(c.types[chunk.ID()], chunk)
		case *TypeSpecChunk:
			c.typeSpecs[chunk.ID()] = chunk
		case *LibraryChunk:
			if c.library != nil {
				return parseErrorf(chunk.Offset(), chunk.TypeCode(), "multiple library chunks in package %q", c.name)
			}
			c.library = chunk
		case *UnknownChunk:
			// Preserved verbatim, no interpretation.
		default:
			return parseErrorf(child.Offset(), child.TypeCode(), "unexpected chunk kind inside package %q", c.name)
		}
	}
	return nil
}

// ID returns the package id, or 0 if this is not a base package.
func (c *PackageChunk) ID() int {
	return int(c.id)
}

// SetID changes the package id.
func (c *PackageChunk) SetID(id int) {
	c.id = uint32(id)
}

// PackageName returns the package's name.
func (c *PackageChunk) PackageName() string {
	return c.name
}

// SetPackageName renames the package.
func (c *PackageChunk) SetPackageName(name string) {
	c.name = name
	c.rawName = encodePackageName(name)
}

// TypeStringPool returns the pool naming this package's resource types.
func (c *PackageChunk) TypeStringPool() *StringPoolChunk {
	return c.typePool
}

// KeyStringPool returns the pool naming this package's resource entries.
func (c *PackageChunk) KeyStringPool() *StringPoolChunk {
	return c.keyPool
}

// LibraryChunk returns the package's library chunk, or nil.
func (c *PackageChunk) LibraryChunk() *LibraryChunk {
	return c.library
}

// TypeString resolves a 1-based type id to its name.
func (c *PackageChunk) TypeString(id int) (string, error) {
	if c.typePool == nil {
		return "", fmt.Errorf("package %q has no type string pool", c.name)
	}
	if id < 1 || id > c.typePool.StringCount() {
		return "", fmt.Errorf("no type for id %d in package %q", id, c.name)
	}
	return c.typePool.String(id - 1)
}

// TypeChunks returns every type chunk in the package, in file order.
func (c *PackageChunk) TypeChunks() []*TypeChunk {
	var chunks []*TypeChunk
	for _, child := range c.children {
		if t, ok := child.(*TypeChunk); ok {
			chunks = append(chunks, t)
		}
	}
	return chunks
}

// TypeChunksByID returns the type chunks for a 1-based type id in file
// order, so the first chunk read for the id stays first.
func (c *PackageChunk) TypeChunksByID(id int) []*TypeChunk {
	return c.types[id]
}

// TypeChunksByName returns the type chunks for a type name such as "string"
// or "attr".
func (c *PackageChunk) TypeChunksByName(name string) []*TypeChunk {
	if c.typePool == nil {
		return nil
	}
	idx := c.typePool.IndexOf(name)
	if idx < 0 {
		return nil
	}
	return c.TypeChunksByID(idx + 1)
}

// TypeSpecChunks returns every type spec in the package.
func (c *PackageChunk) TypeSpecChunks() []*TypeSpecChunk {
	var chunks []*TypeSpecChunk
	for _, child := range c.children {
		if t, ok := child.(*TypeSpecChunk); ok {
			chunks = append(chunks, t)
		}
	}
	return chunks
}

// TypeSpecChunk returns the type spec for a 1-based type id, or nil.
func (c *PackageChunk) TypeSpecChunk(id int) *TypeSpecChunk {
	return c.typeSpecs[id]
}

// Children returns the package's child chunks in file order.
func (c *PackageChunk) Children() []Chunk {
	return c.children
}

// RemoveTypeChunk removes a type chunk from the package. Its type spec is
// removed too when no other type chunk shares the id.
func (c *PackageChunk) RemoveTypeChunk(chunk *TypeChunk) error {
	id := chunk.ID()
	chunks := c.types[id]
	found := -1
	for i, t := range chunks {
		if t == chunk {
			found = i
			break
		}
	}
	if found < 0 {
		return fmt.Errorf("type chunk with id %d is not in package %q", id, c.name)
	}
	c.types[id] = append(chunks[:found:found], chunks[found+1:]...)
	if len(c.types[id]) == 0 {
		delete(c.types, id)
	}
	c.removeChild(chunk)

	if _, stillUsed := c.types[id]; !stillUsed {
		if spec := c.typeSpecs[id]; spec != nil {
			delete(c.typeSpecs, id)
			c.removeChild(spec)
		}
	}
	return nil
}

func (c *PackageChunk) removeChild(chunk Chunk) {
	for i, child := range c.children {
		if child == chunk {
			c.children = append(c.children[:i:i], c.children[i+1:]...)
			return
		}
	}
}

// DeleteKeyStrings deletes the given sorted key string pool indexes, rewrites
// every entry's key index through the returned remap, nulls entries whose key
// was deleted, and drops type chunks that become entirely empty. It returns
// the number of type chunks removed.
func (c *PackageChunk) DeleteKeyStrings(indexes []int) (int, error) {
	if c.keyPool == nil {
		return 0, fmt.Errorf("package %q has no key string pool", c.name)
	}
	remap, err := c.keyPool.DeleteStrings(indexes)
	if err != nil {
		return 0, err
	}

	var toDelete []*TypeChunk
	for _, typeChunk := range c.TypeChunks() {
		deleteChunk := true
		replacement := make(map[int]*TypeEntry)
		for index, entry := range typeChunk.Entries() {
			if entry.KeyIndex < 0 || entry.KeyIndex >= len(remap) {
				return 0, fmt.Errorf("entry %d in type %d references key %d outside the pool",
					index, typeChunk.ID(), entry.KeyIndex)
			}
			newIndex := remap[entry.KeyIndex]
			if newIndex == -1 {
				replacement[index] = nil
			} else {
				replacement[index] = entry.WithKeyIndex(newIndex)
				deleteChunk = false
			}
		}
		typeChunk.OverrideEntries(replacement)
		if deleteChunk {
			toDelete = append(toDelete, typeChunk)
		}
	}
	for _, typeChunk := range toDelete {
		if err := c.RemoveTypeChunk(typeChunk); err != nil {
			return 0, err
		}
	}
	return len(toDelete), nil
}

func (c *PackageChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint32(c.id)
	w.write(c.rawName)
	w.uint32(0) // typeStringsOffset, patched after the payload is laid out
	w.uint32(c.lastPublicType)
	w.uint32(0) // keyStringsOffset, patched after the payload is laid out
	w.uint32(c.lastPublicKey)
	if c.headerSize >= packageHeaderFullSize {
		w.uint32(c.typeIDOffset)
	}
	return nil
}

func (c *PackageChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	typeOffset := c.typeStringsOffset
	keyOffset := c.keyStringsOffset
	for _, child := range c.children {
		childStart := w.len()
		if child == Chunk(c.typePool) && c.typePool != nil {
			typeOffset = childStart - chunkStart
		} else if child == Chunk(c.keyPool) && c.keyPool != nil {
			keyOffset = childStart - chunkStart
		}
		if err := writeChunk(w, child, opts); err != nil {
			return err
		}
		w.pad()
	}
	w.patchUint32(chunkStart+typeStringsFieldOffset, uint32(typeOffset))
	w.patchUint32(chunkStart+keyStringsFieldOffset, uint32(keyOffset))
	return nil
}
