package arscparser

// packageNameSize is the fixed width of a serialized package name in bytes
// (128 UTF-16LE code units, null-terminated within the field).
const packageNameSize = 256

const libraryEntrySize = 4 + packageNameSize

// LibraryEntry maps a shared library's build-time package id to its name.
type LibraryEntry struct {
	PackageID uint32
	name      string
	rawName   []byte
}

// PackageName returns the library's package name.
func (e *LibraryEntry) PackageName() string {
	return e.name
}

// LibraryChunk lists the shared libraries a package references for dynamic
// reference resolution. A package has at most one.
type LibraryChunk struct {
	chunkBase

	entries []LibraryEntry
}

func parseLibraryChunk(r *bytesReader, base chunkBase) (*LibraryChunk, error) {
	c := &LibraryChunk{chunkBase: base}
	entryCount := int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	r.seek(base.offset + base.headerSize)
	for i := 0; i < entryCount; i++ {
		id := r.uint32()
		raw := append([]byte(nil), r.read(packageNameSize)...)
		if r.err != nil {
			return nil, r.err
		}
		c.entries = append(c.entries, LibraryEntry{
			PackageID: id,
			name:      decodePackageName(raw),
			rawName:   raw,
		})
	}
	return c, nil
}

// Entries returns the library entries in file order.
func (c *LibraryChunk) Entries() []LibraryEntry {
	return c.entries
}

func (c *LibraryChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint32(uint32(len(c.entries)))
	return nil
}

func (c *LibraryChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	for _, e := range c.entries {
		w.uint32(e.PackageID)
		w.write(e.rawName)
	}
	return nil
}
