package arscparser

import "testing"

// noString is the wire form of "no string entry" in XML node references.
const noString uint32 = 0xFFFFFFFF

// beginChunk writes chunk metadata with a placeholder size and returns the
// chunk's start offset.
func beginChunk(w *bytesWriter, code uint16, headerSize int) int {
	start := w.len()
	w.uint16(code)
	w.uint16(uint16(headerSize))
	w.uint32(0)
	return start
}

func endChunk(w *bytesWriter, start int) {
	w.patchUint32(start+4, uint32(w.len()-start))
}

// buildStringPool renders a string pool chunk the way aapt lays it out. One
// style per leading string; pass nil spans for unstyled pools.
func buildStringPool(t *testing.T, strs []string, enc StringEncoding, styles [][]StringPoolSpan) []byte {
	t.Helper()
	if len(styles) > len(strs) {
		t.Fatalf("more styles (%d) than strings (%d)", len(styles), len(strs))
	}

	var w bytesWriter
	start := beginChunk(&w, chunkStringPool, 28)
	w.uint32(uint32(len(strs)))
	w.uint32(uint32(len(styles)))
	flags := uint32(0)
	if enc == EncodingUTF8 {
		flags |= utf8Flag
	}
	w.uint32(flags)
	w.uint32(uint32(28 + 4*(len(strs)+len(styles))))
	styleStartAt := w.len()
	w.uint32(0)

	offsetsBase := w.len()
	for i := 0; i < len(strs)+len(styles); i++ {
		w.uint32(0)
	}

	dataBase := w.len()
	for i, s := range strs {
		encoded, err := encodeString(s, enc)
		if err != nil {
			t.Fatalf("encode %q: %v", s, err)
		}
		w.patchUint32(offsetsBase+4*i, uint32(w.len()-dataBase))
		w.write(encoded)
	}
	w.pad()

	if len(styles) > 0 {
		styleBase := w.len()
		for i, spans := range styles {
			w.patchUint32(offsetsBase+4*(len(strs)+i), uint32(w.len()-styleBase))
			for _, span := range spans {
				w.uint32(uint32(span.NameIndex))
				w.uint32(span.Start)
				w.uint32(span.Stop)
			}
			w.uint32(spanEnd)
		}
		w.uint32(spanEnd)
		w.uint32(spanEnd)
		w.pad()
		w.patchUint32(styleStartAt, uint32(styleBase-start))
	}

	endChunk(&w, start)
	return w.bytes()
}

func buildDefaultConfig(w *bytesWriter) {
	w.uint32(configCurrentAllKnownSize)
	w.write(make([]byte, configCurrentAllKnownSize-4))
}

// writeSimpleEntry renders one simple entry with the given value.
func writeSimpleEntry(w *bytesWriter, keyIndex int, value ResourceValue) {
	w.uint16(simpleEntryHeaderSize)
	w.uint16(0)
	w.uint32(uint32(keyIndex))
	value.writeTo(w)
}

// buildTypeChunk renders a dense type chunk with the default configuration.
// entries maps dense index to value and keys maps dense index to key index;
// absent indexes get the sentinel.
func buildTypeChunk(t *testing.T, id int, totalCount int, entries map[int]ResourceValue, keys map[int]int) []byte {
	t.Helper()
	var w bytesWriter
	headerSize := 20 + configCurrentAllKnownSize
	start := beginChunk(&w, chunkTableType, int(headerSize))
	w.uint8(uint8(id))
	w.uint8(0)
	w.uint16(0)
	w.uint32(uint32(totalCount))
	w.uint32(uint32(int(headerSize) + totalCount*4))
	buildDefaultConfig(&w)

	offsetsBase := w.len()
	for i := 0; i < totalCount; i++ {
		w.uint32(noEntry)
	}
	entriesBase := w.len()
	for i := 0; i < totalCount; i++ {
		value, ok := entries[i]
		if !ok {
			continue
		}
		w.patchUint32(offsetsBase+4*i, uint32(w.len()-entriesBase))
		writeSimpleEntry(&w, keys[i], value)
	}
	w.pad()
	endChunk(&w, start)
	return w.bytes()
}

// buildTypeSpec renders a type spec chunk.
func buildTypeSpec(t *testing.T, id int, masks []uint32) []byte {
	t.Helper()
	var w bytesWriter
	start := beginChunk(&w, chunkTableTypeSpec, 16)
	w.uint8(uint8(id))
	w.uint8(0)
	w.uint16(0)
	w.uint32(uint32(len(masks)))
	for _, m := range masks {
		w.uint32(m)
	}
	endChunk(&w, start)
	return w.bytes()
}

// buildPackage renders a package chunk holding the given pools and children.
func buildPackage(t *testing.T, id int, name string, typePool, keyPool []byte, rest ...[]byte) []byte {
	t.Helper()
	var w bytesWriter
	start := beginChunk(&w, chunkTablePackage, packageHeaderFullSize)
	w.uint32(uint32(id))
	w.write(encodePackageName(name))
	typeOffsetAt := w.len()
	w.uint32(0)
	w.uint32(0) // lastPublicType
	keyOffsetAt := w.len()
	w.uint32(0)
	w.uint32(0) // lastPublicKey
	w.uint32(0) // typeIdOffset

	w.patchUint32(typeOffsetAt, uint32(w.len()-start))
	w.write(typePool)
	w.pad()
	w.patchUint32(keyOffsetAt, uint32(w.len()-start))
	w.write(keyPool)
	w.pad()
	for _, child := range rest {
		w.write(child)
		w.pad()
	}
	endChunk(&w, start)
	return w.bytes()
}

// buildTable renders a resource table chunk from a global pool and packages.
func buildTable(t *testing.T, globalPool []byte, packages ...[]byte) []byte {
	t.Helper()
	var w bytesWriter
	start := beginChunk(&w, chunkTable, 12)
	w.uint32(uint32(len(packages)))
	w.write(globalPool)
	w.pad()
	for _, pkg := range packages {
		w.write(pkg)
		w.pad()
	}
	endChunk(&w, start)
	return w.bytes()
}

// testTable builds the corpus table used across the table, package and
// blamer tests:
//
//	global pool: "hello", "world", "goodbye"
//	package "com.example.app" id 0x7f
//	  types: "string"; keys: "greeting", "farewell", "unused_key"
//	  type spec 1, three masks
//	  type chunk 1 (default config, 3 slots):
//	    0 -> greeting = string "hello"
//	    1 -> farewell = string "goodbye"
//	    2 -> absent
func testTable(t *testing.T) []byte {
	t.Helper()
	globalPool := buildStringPool(t, []string{"hello", "world", "goodbye"}, EncodingUTF8, nil)
	typePool := buildStringPool(t, []string{"string"}, EncodingUTF8, nil)
	keyPool := buildStringPool(t, []string{"greeting", "farewell", "unused_key"}, EncodingUTF8, nil)
	spec := buildTypeSpec(t, 1, []uint32{0, specPublicFlag, 0})
	typeChunk := buildTypeChunk(t, 1, 3,
		map[int]ResourceValue{
			0: {Size: resourceValueSize, Type: TypeString, Data: 0},
			1: {Size: resourceValueSize, Type: TypeString, Data: 2},
		},
		map[int]int{0: 0, 1: 1})
	pkg := buildPackage(t, 0x7f, "com.example.app", typePool, keyPool, spec, typeChunk)
	return buildTable(t, globalPool, pkg)
}

func parseTestTable(t *testing.T) *ResourceTableChunk {
	t.Helper()
	file, err := ParseResourceFile(testTable(t))
	if err != nil {
		t.Fatalf("parse test table: %v", err)
	}
	table := file.Table()
	if table == nil {
		t.Fatal("test table has no resource table chunk")
	}
	return table
}
