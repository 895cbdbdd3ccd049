package arscparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func firstTypeChunk(t *testing.T, table *ResourceTableChunk) *TypeChunk {
	t.Helper()
	pkgs := table.Packages()
	require.NotEmpty(t, pkgs)
	chunks := pkgs[0].TypeChunks()
	require.NotEmpty(t, chunks)
	return chunks[0]
}

func TestTypeChunkDenseLayout(t *testing.T) {
	table := parseTestTable(t)
	typeChunk := firstTypeChunk(t, table)

	assert.Equal(t, 1, typeChunk.ID())
	assert.False(t, typeChunk.HasSparseEntries())
	assert.Equal(t, 3, typeChunk.TotalEntryCount())
	assert.Equal(t, 2, typeChunk.PresentEntryCount())
	assert.Equal(t, 1, typeChunk.NullEntryCount())
	assert.True(t, typeChunk.Configuration().IsDefault())

	name, err := typeChunk.TypeName()
	require.NoError(t, err)
	assert.Equal(t, "string", name)

	entry := typeChunk.Entries()[0]
	require.NotNil(t, entry)
	key, err := entry.Key()
	require.NoError(t, err)
	assert.Equal(t, "greeting", key)
	assert.False(t, entry.IsComplex())
	assert.Equal(t, simpleEntryHeaderSize+resourceValueSize, entry.Size())

	_, absent := typeChunk.Entries()[2]
	assert.False(t, absent)
}

func TestTypeChunkRoundTrip(t *testing.T) {
	raw := testTable(t)
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)
	out, err := file.Bytes(OptNone)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

// buildSparseTypeChunk renders a sparse chunk with entries at the given
// indexes.
func buildSparseTypeChunk(t *testing.T, indexes []int) []byte {
	t.Helper()
	var w bytesWriter
	headerSize := 20 + configCurrentAllKnownSize
	start := beginChunk(&w, chunkTableType, headerSize)
	w.uint8(1)
	w.uint8(typeFlagSparse)
	w.uint16(0)
	w.uint32(uint32(len(indexes)))
	w.uint32(uint32(headerSize + len(indexes)*4))
	buildDefaultConfig(&w)

	offsetsBase := w.len()
	for range indexes {
		w.uint32(0)
	}
	entriesBase := w.len()
	for slot, index := range indexes {
		entryOffset := w.len() - entriesBase
		w.patchUint16(offsetsBase+4*slot, uint16(index))
		w.patchUint16(offsetsBase+4*slot+2, uint16(entryOffset/4))
		writeSimpleEntry(&w, slot, ResourceValue{Size: resourceValueSize, Type: TypeIntDec, Data: uint32(index)})
	}
	w.pad()
	endChunk(&w, start)
	return w.bytes()
}

func TestTypeChunkSparseLayout(t *testing.T) {
	raw := buildSparseTypeChunk(t, []int{2, 5, 700})
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)
	typeChunk, ok := file.Chunks()[0].(*TypeChunk)
	require.True(t, ok)

	assert.True(t, typeChunk.HasSparseEntries())
	assert.Equal(t, 3, typeChunk.PresentEntryCount())
	for _, index := range []int{2, 5, 700} {
		entry, ok := typeChunk.Entries()[index]
		require.True(t, ok, "entry %d missing", index)
		assert.Equal(t, uint32(index), entry.Value.Data)
	}

	out, err := file.Bytes(OptNone)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

// buildComplexTypeChunk renders one complex entry with two mappings.
func buildComplexTypeChunk(t *testing.T) []byte {
	t.Helper()
	var w bytesWriter
	headerSize := 20 + configCurrentAllKnownSize
	start := beginChunk(&w, chunkTableType, headerSize)
	w.uint8(1)
	w.uint8(0)
	w.uint16(0)
	w.uint32(1)
	w.uint32(uint32(headerSize + 4))
	buildDefaultConfig(&w)

	w.uint32(0) // offset of entry 0
	w.uint16(complexEntryHeaderSize)
	w.uint16(entryFlagComplex | entryFlagPublic)
	w.uint32(0)          // key index
	w.uint32(0x02000000) // parent entry
	w.uint32(2)          // value count
	w.uint32(0x01010001)
	(ResourceValue{Size: resourceValueSize, Type: TypeIntDec, Data: 17}).writeTo(&w)
	w.uint32(0x01010002)
	(ResourceValue{Size: resourceValueSize, Type: TypeString, Data: 3}).writeTo(&w)
	endChunk(&w, start)
	return w.bytes()
}

func TestComplexEntryRoundTrip(t *testing.T) {
	raw := buildComplexTypeChunk(t)
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)
	typeChunk := file.Chunks()[0].(*TypeChunk)

	entry := typeChunk.Entries()[0]
	require.NotNil(t, entry)
	assert.True(t, entry.IsComplex())
	assert.True(t, entry.IsPublic())
	assert.Equal(t, uint32(0x02000000), entry.ParentEntry)
	require.Len(t, entry.Values, 2)
	assert.Equal(t, uint32(0x01010001), entry.Values[0].Name)
	assert.Equal(t, uint32(17), entry.Values[0].Value.Data)
	assert.Equal(t, complexEntryHeaderSize+2*mappingSize, entry.Size())

	out, err := file.Bytes(OptNone)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestPrivateResourcesStripsPublicFlags(t *testing.T) {
	raw := buildComplexTypeChunk(t)
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)

	out, err := file.Bytes(OptPrivateResources)
	require.NoError(t, err)
	reparsed, err := ParseResourceFile(out)
	require.NoError(t, err)
	entry := reparsed.Chunks()[0].(*TypeChunk).Entries()[0]
	assert.False(t, entry.IsPublic())
	assert.True(t, entry.IsComplex())
}

func TestTypeSpecPublicFlags(t *testing.T) {
	table := parseTestTable(t)
	pkg := table.Packages()[0]
	spec := pkg.TypeSpecChunk(1)
	require.NotNil(t, spec)

	assert.Equal(t, 3, spec.ResourceCount())
	assert.False(t, spec.IsPublic(0))
	assert.True(t, spec.IsPublic(1))

	var w bytesWriter
	require.NoError(t, writeChunk(&w, spec, OptPrivateResources))
	stripped, err := ParseResourceFile(w.bytes())
	require.NoError(t, err)
	assert.False(t, stripped.Chunks()[0].(*TypeSpecChunk).IsPublic(1))
}

func TestSetIDValidatesAgainstTypePool(t *testing.T) {
	table := parseTestTable(t)
	typeChunk := firstTypeChunk(t, table)

	assert.Error(t, typeChunk.SetID(0))
	assert.Error(t, typeChunk.SetID(2)) // only one type name in the pool
	assert.NoError(t, typeChunk.SetID(1))
}

func TestOverrideEntry(t *testing.T) {
	table := parseTestTable(t)
	typeChunk := firstTypeChunk(t, table)

	typeChunk.OverrideEntry(0, nil)
	_, ok := typeChunk.Entries()[0]
	assert.False(t, ok)
	assert.Equal(t, 2, typeChunk.NullEntryCount())

	// Out-of-range indexes are a no-op.
	typeChunk.OverrideEntry(99, nil)
	typeChunk.OverrideEntry(-1, nil)

	entry := typeChunk.Entries()[1].WithKeyIndex(2)
	typeChunk.OverrideEntry(0, entry)
	restored, ok := typeChunk.Entries()[0]
	require.True(t, ok)
	assert.Equal(t, 2, restored.KeyIndex)
}

func TestContainsResource(t *testing.T) {
	table := parseTestTable(t)
	typeChunk := firstTypeChunk(t, table)

	assert.True(t, typeChunk.ContainsResource(ResourceID(0x7F010000)))
	assert.True(t, typeChunk.ContainsResource(ResourceID(0x7F010001)))
	assert.False(t, typeChunk.ContainsResource(ResourceID(0x7F010002))) // absent slot
	assert.False(t, typeChunk.ContainsResource(ResourceID(0x7E010000))) // other package
}
