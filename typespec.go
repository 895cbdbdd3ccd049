package arscparser

import "fmt"

// Bit in a type spec mask marking the entry as public.
const specPublicFlag uint32 = 0x40000000

// TypeSpecChunk carries one configuration-change mask per entry of the
// resource type it describes.
type TypeSpecChunk struct {
	chunkBase

	id        uint8
	resources []uint32
}

func parseTypeSpecChunk(r *bytesReader, base chunkBase) (*TypeSpecChunk, error) {
	c := &TypeSpecChunk{chunkBase: base}
	c.id = r.uint8()
	r.skip(3) // reserved
	resourceCount := int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	c.resources = make([]uint32, resourceCount)
	for i := range c.resources {
		c.resources[i] = r.uint32()
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// ID returns the 1-based type id this spec describes.
func (c *TypeSpecChunk) ID() int {
	return int(c.id)
}

// SetID changes the type id.
func (c *TypeSpecChunk) SetID(newID int) error {
	if newID < 1 {
		return fmt.Errorf("type id %d must be >= 1", newID)
	}
	c.id = uint8(newID)
	return nil
}

// ResourceCount returns the number of entries this spec has masks for.
func (c *TypeSpecChunk) ResourceCount() int {
	return len(c.resources)
}

// Resources returns the configuration masks.
func (c *TypeSpecChunk) Resources() []uint32 {
	return c.resources
}

// SetResources replaces the configuration masks.
func (c *TypeSpecChunk) SetResources(resources []uint32) {
	c.resources = resources
}

// IsPublic reports whether the entry at index carries the public bit.
func (c *TypeSpecChunk) IsPublic(index int) bool {
	return index >= 0 && index < len(c.resources) && c.resources[index]&specPublicFlag != 0
}

func (c *TypeSpecChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint8(c.id)
	w.uint8(0)
	w.uint16(0) // reserved
	w.uint32(uint32(len(c.resources)))
	return nil
}

func (c *TypeSpecChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	mask := ^uint32(0)
	if opts&OptPrivateResources != 0 {
		mask = ^specPublicFlag
	}
	for _, res := range c.resources {
		w.uint32(res & mask)
	}
	return nil
}
