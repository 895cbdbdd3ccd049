package arscparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceIdentifierUnpacking(t *testing.T) {
	tests := []struct {
		packed    uint32
		packageID int
		typeID    int
		entryID   int
	}{
		{0x01234567, 0x01, 0x23, 0x4567},
		{0xFEDCBA98, 0xFE, 0xDC, 0xBA98},
		{0x7F010000, 0x7F, 0x01, 0x0000},
	}
	for _, tt := range tests {
		id := ResourceID(tt.packed)
		assert.Equal(t, tt.packageID, id.PackageID)
		assert.Equal(t, tt.typeID, id.TypeID)
		assert.Equal(t, tt.entryID, id.EntryID)
		assert.Equal(t, tt.packed, id.Packed())
	}
}

func TestResourceIdentifierRanges(t *testing.T) {
	_, err := NewResourceIdentifier(0x100, 1, 0)
	assert.Error(t, err)
	_, err = NewResourceIdentifier(1, 0x100, 0)
	assert.Error(t, err)
	_, err = NewResourceIdentifier(1, 1, 0x10000)
	assert.Error(t, err)

	id, err := NewResourceIdentifier(0x7F, 0x02, 0x1234)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7F021234), id.Packed())
}

func TestResourceValueRoundTrip(t *testing.T) {
	raw := []byte{0x08, 0x00, 0x00, 0x03, 0x2A, 0x00, 0x00, 0x00}
	r := newBytesReader(raw)
	v, err := parseResourceValue(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(8), v.Size)
	assert.Equal(t, TypeString, v.Type)
	assert.Equal(t, uint32(0x2A), v.Data)

	var w bytesWriter
	v.writeTo(&w)
	assert.Equal(t, raw, w.bytes())
}

func TestResourceValueUnknownType(t *testing.T) {
	raw := []byte{0x08, 0x00, 0x00, 0x55, 0x00, 0x00, 0x00, 0x00}
	_, err := parseResourceValue(newBytesReader(raw))
	assert.Error(t, err)
}

func TestResourceValueTruncated(t *testing.T) {
	_, err := parseResourceValue(newBytesReader([]byte{0x08, 0x00, 0x00}))
	assert.Error(t, err)
}
