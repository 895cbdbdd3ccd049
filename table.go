package arscparser

import "fmt"

// ResourceTableChunk is the root of a resources.arsc: one global string pool
// holding every string resource value, followed by one or more packages.
type ResourceTableChunk struct {
	chunkBase

	children []Chunk

	stringPool *StringPoolChunk
	packages   map[string]*PackageChunk
}

func parseResourceTableChunk(r *bytesReader, base chunkBase) (*ResourceTableChunk, error) {
	c := &ResourceTableChunk{chunkBase: base}
	// The declared package count is informational; the child enumeration is
	// authoritative.
	packageCount := r.uint32()
	if r.err != nil {
		return nil, r.err
	}
	if packageCount < 1 {
		return nil, fmt.Errorf("resource table declares %d packages", packageCount)
	}

	children, err := parseChildChunks(r, c)
	if err != nil {
		return nil, err
	}
	c.children = children
	c.packages = make(map[string]*PackageChunk)
	for _, child := range children {
		switch chunk := child.(type) {
		case *PackageChunk:
			c.packages[chunk.PackageName()] = chunk
		case *StringPoolChunk:
			c.stringPool = chunk
		case *UnknownChunk:
			// Preserved verbatim.
		default:
			return nil, parseErrorf(child.Offset(), child.TypeCode(), "unexpected chunk kind inside resource table")
		}
	}
	if c.stringPool == nil {
		return nil, parseErrorf(base.offset, base.typeCode, "resource table has no string pool")
	}
	return c, nil
}

// StringPool returns the global value string pool.
func (c *ResourceTableChunk) StringPool() *StringPoolChunk {
	return c.stringPool
}

// Package returns the package with the given name, or nil.
func (c *ResourceTableChunk) Package(name string) *PackageChunk {
	return c.packages[name]
}

// Packages returns the table's packages in file order.
func (c *ResourceTableChunk) Packages() []*PackageChunk {
	var pkgs []*PackageChunk
	for _, child := range c.children {
		if p, ok := child.(*PackageChunk); ok {
			pkgs = append(pkgs, p)
		}
	}
	return pkgs
}

// Children returns the table's child chunks in file order.
func (c *ResourceTableChunk) Children() []Chunk {
	return c.children
}

// LookupResource resolves a packed resource identifier to its entries, one
// per type chunk (configuration) that carries it.
func (c *ResourceTableChunk) LookupResource(id ResourceIdentifier) []*TypeEntry {
	var entries []*TypeEntry
	for _, pkg := range c.Packages() {
		if pkg.ID() != id.PackageID {
			continue
		}
		for _, typeChunk := range pkg.TypeChunksByID(id.TypeID) {
			if entry, ok := typeChunk.Entries()[id.EntryID]; ok {
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

// DeleteStrings deletes the given sorted global pool indexes and applies the
// remap to every string-typed value in every entry of every package. A
// simple entry whose string was deleted becomes a null entry but keeps its
// slot; a sibling configuration may rely on the slot existing. Complex
// sub-values are rewritten independently because an entry may mix string and
// non-string values.
func (c *ResourceTableChunk) DeleteStrings(indexes []int) ([]int, error) {
	remap, err := c.stringPool.DeleteStrings(indexes)
	if err != nil {
		return nil, err
	}
	for _, pkg := range c.Packages() {
		for _, typeChunk := range pkg.TypeChunks() {
			for index, entry := range typeChunk.Entries() {
				updated, err := remapEntryStrings(entry, remap)
				if err != nil {
					return nil, fmt.Errorf("package %q type %d entry %d: %s",
						pkg.PackageName(), typeChunk.ID(), index, err.Error())
				}
				if updated != entry {
					typeChunk.OverrideEntry(index, updated)
				}
			}
		}
	}
	return remap, nil
}

// remapEntryStrings rewrites the string-typed values of one entry through the
// remap. It returns the original entry when nothing referenced a moved
// string.
func remapEntryStrings(entry *TypeEntry, remap []int) (*TypeEntry, error) {
	mapIndex := func(data uint32) (uint32, bool, error) {
		if int(data) >= len(remap) {
			return 0, false, fmt.Errorf("string value index %d outside pool of %d", data, len(remap))
		}
		newIndex := remap[data]
		if newIndex == -1 {
			return 0, false, nil
		}
		return uint32(newIndex), true, nil
	}

	if !entry.IsComplex() {
		if entry.Value == nil || entry.Value.Type != TypeString {
			return entry, nil
		}
		newIndex, kept, err := mapIndex(entry.Value.Data)
		if err != nil {
			return nil, err
		}
		updated := *entry
		if !kept {
			null := NullValue()
			updated.Value = &null
		} else if newIndex != entry.Value.Data {
			value := *entry.Value
			value.Data = newIndex
			updated.Value = &value
		} else {
			return entry, nil
		}
		return &updated, nil
	}

	changed := false
	values := make([]MapValue, len(entry.Values))
	copy(values, entry.Values)
	for i, mv := range values {
		if mv.Value.Type != TypeString {
			continue
		}
		newIndex, kept, err := mapIndex(mv.Value.Data)
		if err != nil {
			return nil, err
		}
		if !kept {
			values[i].Value = NullValue()
			changed = true
		} else if newIndex != mv.Value.Data {
			values[i].Value.Data = newIndex
			changed = true
		}
	}
	if !changed {
		return entry, nil
	}
	updated := *entry
	updated.Values = values
	return &updated, nil
}

func (c *ResourceTableChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint32(uint32(len(c.packages)))
	return nil
}

func (c *ResourceTableChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	return writeChildChunks(w, c.children, opts)
}
