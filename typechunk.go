package arscparser

import (
	"fmt"
	"sort"
)

const (
	// Type chunk flag: entries are encoded as (index, offset/4) pairs.
	typeFlagSparse = 1 << 0

	// Entry offset marking an absent entry in a dense offset table.
	noEntry uint32 = 0xFFFFFFFF

	entryFlagComplex uint16 = 0x0001
	entryFlagPublic  uint16 = 0x0002

	simpleEntryHeaderSize  = 8
	complexEntryHeaderSize = 16

	// One (attribute id, value) mapping in a complex entry.
	mappingSize = 4 + resourceValueSize
)

// MapValue is one (attribute id, value) pair of a complex entry. Order is
// preserved from the input.
type MapValue struct {
	Name  uint32
	Value ResourceValue
}

// TypeEntry is one resource entry in a TypeChunk: either a single value
// (simple) or a parent reference plus value mappings (complex).
type TypeEntry struct {
	EntryHeaderSize int
	Flags           uint16
	KeyIndex        int

	// Value is set for simple entries, nil for complex ones.
	Value *ResourceValue

	// ParentEntry and Values are meaningful only for complex entries.
	ParentEntry uint32
	Values      []MapValue

	parent *TypeChunk
}

// IsComplex reports whether this entry carries value mappings instead of a
// single value.
func (e *TypeEntry) IsComplex() bool {
	return e.Flags&entryFlagComplex != 0
}

// IsPublic reports whether libraries may reference this entry.
func (e *TypeEntry) IsPublic() bool {
	return e.Flags&entryFlagPublic != 0
}

// Size is the number of bytes this entry occupies when serialized.
func (e *TypeEntry) Size() int {
	if e.IsComplex() {
		return e.EntryHeaderSize + len(e.Values)*mappingSize
	}
	return e.EntryHeaderSize + resourceValueSize
}

// Key returns the entry's name from the owning package's key string pool.
func (e *TypeEntry) Key() (string, error) {
	pkg := e.parent.PackageChunk()
	if pkg == nil {
		return "", fmt.Errorf("entry has no parent package")
	}
	pool := pkg.KeyStringPool()
	if pool == nil {
		return "", fmt.Errorf("parent package has no key string pool")
	}
	return pool.String(e.KeyIndex)
}

// TypeName returns the name of the resource type this entry belongs to.
func (e *TypeEntry) TypeName() (string, error) {
	return e.parent.TypeName()
}

// Parent returns the TypeChunk this entry belongs to.
func (e *TypeEntry) Parent() *TypeChunk {
	return e.parent
}

// WithKeyIndex returns a copy of the entry with a different key index.
func (e *TypeEntry) WithKeyIndex(keyIndex int) *TypeEntry {
	c := *e
	c.KeyIndex = keyIndex
	return &c
}

func parseTypeEntry(r *bytesReader, parent *TypeChunk) (*TypeEntry, error) {
	e := &TypeEntry{parent: parent}
	e.EntryHeaderSize = int(r.uint16())
	e.Flags = r.uint16()
	e.KeyIndex = int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	if e.IsComplex() {
		e.ParentEntry = r.uint32()
		valueCount := int(r.uint32())
		if r.err != nil {
			return nil, r.err
		}
		for i := 0; i < valueCount; i++ {
			name := r.uint32()
			if r.err != nil {
				return nil, r.err
			}
			value, err := parseResourceValue(r)
			if err != nil {
				return nil, err
			}
			e.Values = append(e.Values, MapValue{Name: name, Value: value})
		}
	} else {
		value, err := parseResourceValue(r)
		if err != nil {
			return nil, err
		}
		e.Value = &value
	}
	return e, nil
}

func (e *TypeEntry) writeTo(w *bytesWriter, opts SerializeOptions) error {
	flags := e.Flags
	if opts&OptPrivateResources != 0 {
		flags &^= entryFlagPublic
	}
	w.uint16(uint16(e.EntryHeaderSize))
	w.uint16(flags)
	w.uint32(uint32(e.KeyIndex))
	if e.IsComplex() {
		w.uint32(e.ParentEntry)
		w.uint32(uint32(len(e.Values)))
		for _, mv := range e.Values {
			w.uint32(mv.Name)
			mv.Value.writeTo(w)
		}
		return nil
	}
	if e.Value == nil {
		return fmt.Errorf("simple entry with key index %d has no value", e.KeyIndex)
	}
	e.Value.writeTo(w)
	return nil
}

// TypeChunk holds the entries of one resource type for one configuration.
// A package has one of these per (type id, configuration) pair.
type TypeChunk struct {
	chunkBase

	id    uint8
	flags uint8

	// Total entry count including absent entries, as declared on the wire.
	entryCount   int
	entriesStart int
	config       ResourceConfiguration

	// Sparse map of dense index to entry.
	entries map[int]*TypeEntry
}

func parseTypeChunk(r *bytesReader, base chunkBase) (*TypeChunk, error) {
	c := &TypeChunk{chunkBase: base, entries: make(map[int]*TypeEntry)}
	c.id = r.uint8()
	c.flags = r.uint8()
	r.skip(2) // reserved
	c.entryCount = int(r.uint32())
	c.entriesStart = int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	config, err := parseConfiguration(r)
	if err != nil {
		return nil, err
	}
	c.config = config

	entriesBase := base.offset + c.entriesStart
	if c.HasSparseEntries() {
		for i := 0; i < c.entryCount; i++ {
			index := int(r.uint16())
			entryOffset := int(r.uint16()) * 4
			if r.err != nil {
				return nil, r.err
			}
			entry, err := c.parseEntryAt(r, entriesBase+entryOffset)
			if err != nil {
				return nil, fmt.Errorf("sparse entry %d: %s", index, err.Error())
			}
			c.entries[index] = entry
		}
	} else {
		for i := 0; i < c.entryCount; i++ {
			entryOffset := r.uint32()
			if r.err != nil {
				return nil, r.err
			}
			if entryOffset == noEntry {
				continue
			}
			entry, err := c.parseEntryAt(r, entriesBase+int(entryOffset))
			if err != nil {
				return nil, fmt.Errorf("entry %d: %s", i, err.Error())
			}
			c.entries[i] = entry
		}
	}
	return c, nil
}

func (c *TypeChunk) parseEntryAt(r *bytesReader, offset int) (*TypeEntry, error) {
	saved := r.pos
	r.seek(offset)
	if r.err != nil {
		return nil, r.err
	}
	entry, err := parseTypeEntry(r, c)
	if err != nil {
		return nil, err
	}
	r.seek(saved)
	return entry, nil
}

// ID returns the 1-based type id this chunk holds entries for.
func (c *TypeChunk) ID() int {
	return int(c.id)
}

// SetID changes the type id. The id must be a valid 1-based index into the
// owning package's type string pool.
func (c *TypeChunk) SetID(newID int) error {
	if newID < 1 {
		return fmt.Errorf("type id %d must be >= 1", newID)
	}
	pkg := c.PackageChunk()
	if pkg == nil {
		return fmt.Errorf("type chunk has no parent package")
	}
	if pool := pkg.TypeStringPool(); pool == nil || pool.StringCount() < newID {
		return fmt.Errorf("type id %d has no name in the type string pool", newID)
	}
	c.id = uint8(newID)
	return nil
}

// HasSparseEntries reports whether the on-disk entry layout is sparse.
func (c *TypeChunk) HasSparseEntries() bool {
	return c.flags&typeFlagSparse != 0
}

// SetSparseEntries switches the on-disk entry layout. The logical entry set
// is unchanged.
func (c *TypeChunk) SetSparseEntries(sparse bool) {
	if sparse {
		c.flags |= typeFlagSparse
	} else {
		c.flags &^= typeFlagSparse
	}
}

// TypeName returns the type's name (e.g. "string", "attr") from the owning
// package's type string pool.
func (c *TypeChunk) TypeName() (string, error) {
	pkg := c.PackageChunk()
	if pkg == nil {
		return "", fmt.Errorf("type chunk has no parent package")
	}
	return pkg.TypeString(c.ID())
}

// Configuration returns the configuration these entries correspond to.
func (c *TypeChunk) Configuration() *ResourceConfiguration {
	return &c.config
}

// SetConfiguration replaces the configuration.
func (c *TypeChunk) SetConfiguration(config ResourceConfiguration) {
	c.config = config
}

// TotalEntryCount returns the declared entry count, absent entries included.
func (c *TypeChunk) TotalEntryCount() int {
	return c.entryCount
}

// SetTotalEntryCount changes the declared entry count.
func (c *TypeChunk) SetTotalEntryCount(count int) {
	c.entryCount = count
}

// PresentEntryCount returns the number of entries actually present.
func (c *TypeChunk) PresentEntryCount() int {
	return len(c.entries)
}

// NullEntryCount returns the number of absent slots in the dense index space.
func (c *TypeChunk) NullEntryCount() int {
	return c.entryCount - len(c.entries)
}

// Entries returns the sparse index-to-entry map. The map is live; use
// OverrideEntry to mutate it.
func (c *TypeChunk) Entries() map[int]*TypeEntry {
	return c.entries
}

// entryIndexes returns the present indexes in ascending order.
func (c *TypeChunk) entryIndexes() []int {
	indexes := make([]int, 0, len(c.entries))
	for i := range c.entries {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	return indexes
}

// ContainsResource reports whether id addresses an entry in this chunk.
func (c *TypeChunk) ContainsResource(id ResourceIdentifier) bool {
	pkg := c.PackageChunk()
	if pkg == nil || pkg.ID() != id.PackageID || c.ID() != id.TypeID {
		return false
	}
	_, ok := c.entries[id.EntryID]
	return ok
}

// OverrideEntry replaces the entry at index; nil removes it. Indexes outside
// [0, TotalEntryCount) are a no-op.
func (c *TypeChunk) OverrideEntry(index int, entry *TypeEntry) {
	if index < 0 || index >= c.entryCount {
		return
	}
	if entry == nil {
		delete(c.entries, index)
		return
	}
	entry.parent = c
	c.entries[index] = entry
}

// OverrideEntries applies OverrideEntry for every pair in entries.
func (c *TypeChunk) OverrideEntries(entries map[int]*TypeEntry) {
	for index, entry := range entries {
		c.OverrideEntry(index, entry)
	}
}

// PackageChunk returns the package enclosing this chunk, if any.
func (c *TypeChunk) PackageChunk() *PackageChunk {
	for p := c.Parent(); p != nil; p = p.Parent() {
		if pkg, ok := p.(*PackageChunk); ok {
			return pkg
		}
	}
	return nil
}

func (c *TypeChunk) offsetTableSize() int {
	return c.entryCount * 4
}

func (c *TypeChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint8(c.id)
	w.uint8(c.flags)
	w.uint16(0) // reserved
	w.uint32(uint32(c.entryCount))
	w.uint32(uint32(c.headerSize + c.offsetTableSize()))
	c.config.writeTo(w)
	return nil
}

func (c *TypeChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	// Reserve the offset table; absent dense slots keep the sentinel.
	fill := noEntry
	if c.HasSparseEntries() {
		fill = 0
	}
	offsetsBase := w.len()
	for i := 0; i < c.offsetTableSize()/4; i++ {
		w.uint32(fill)
	}
	entriesBase := w.len()

	if c.HasSparseEntries() {
		slot := 0
		for _, index := range c.entryIndexes() {
			entryOffset := w.len() - entriesBase
			if entryOffset%4 != 0 {
				return fmt.Errorf("sparse entry offset %d is not a multiple of 4", entryOffset)
			}
			w.patchUint16(offsetsBase+4*slot, uint16(index))
			w.patchUint16(offsetsBase+4*slot+2, uint16(entryOffset/4))
			if err := c.entries[index].writeTo(w, opts); err != nil {
				return err
			}
			slot++
		}
	} else {
		for _, index := range c.entryIndexes() {
			w.patchUint32(offsetsBase+4*index, uint32(w.len()-entriesBase))
			if err := c.entries[index].writeTo(w, opts); err != nil {
				return err
			}
		}
	}
	w.pad()
	return nil
}
