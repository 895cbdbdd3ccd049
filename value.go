package arscparser

import "fmt"

// ValueType is the type tag of a ResourceValue.
type ValueType uint8

const (
	TypeNull             ValueType = 0x00
	TypeReference        ValueType = 0x01
	TypeAttribute        ValueType = 0x02
	TypeString           ValueType = 0x03
	TypeFloat            ValueType = 0x04
	TypeDimension        ValueType = 0x05
	TypeFraction         ValueType = 0x06
	TypeDynamicReference ValueType = 0x07
	TypeDynamicAttribute ValueType = 0x08
	TypeIntDec           ValueType = 0x10
	TypeIntHex           ValueType = 0x11
	TypeIntBoolean       ValueType = 0x12
	TypeIntColorArgb8    ValueType = 0x1c
	TypeIntColorRgb8     ValueType = 0x1d
	TypeIntColorArgb4    ValueType = 0x1e
	TypeIntColorRgb4     ValueType = 0x1f
)

var valueTypeNames = map[ValueType]string{
	TypeNull:             "null",
	TypeReference:        "reference",
	TypeAttribute:        "attribute",
	TypeString:           "string",
	TypeFloat:            "float",
	TypeDimension:        "dimension",
	TypeFraction:         "fraction",
	TypeDynamicReference: "dynamic-reference",
	TypeDynamicAttribute: "dynamic-attribute",
	TypeIntDec:           "int-dec",
	TypeIntHex:           "int-hex",
	TypeIntBoolean:       "boolean",
	TypeIntColorArgb8:    "color-argb8",
	TypeIntColorRgb8:     "color-rgb8",
	TypeIntColorArgb4:    "color-argb4",
	TypeIntColorRgb4:     "color-rgb4",
}

func (t ValueType) valid() bool {
	_, ok := valueTypeNames[t]
	return ok
}

func (t ValueType) String() string {
	if s, ok := valueTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ValueType(0x%02x)", uint8(t))
}

// resourceValueSize is the serialized size of a ResourceValue in bytes.
const resourceValueSize = 8

// ResourceValue is a single typed resource value: a 16-bit struct size, a
// reserved byte, a type tag, and a 4-byte data word whose interpretation
// depends on the type.
type ResourceValue struct {
	Size uint16
	Type ValueType
	Data uint32
}

// NullValue is the form a simple entry takes when its value has been deleted.
func NullValue() ResourceValue {
	return ResourceValue{Size: resourceValueSize, Type: TypeNull}
}

func parseResourceValue(r *bytesReader) (ResourceValue, error) {
	pos := r.pos
	size := r.uint16()
	r.skip(1) // reserved
	typ := ValueType(r.uint8())
	data := r.uint32()
	if r.err != nil {
		return ResourceValue{}, r.err
	}
	if !typ.valid() {
		return ResourceValue{}, fmt.Errorf("unknown resource value type 0x%02x at 0x%08x", uint8(typ), pos)
	}
	return ResourceValue{Size: size, Type: typ, Data: data}, nil
}

func (v ResourceValue) writeTo(w *bytesWriter) {
	w.uint16(v.Size)
	w.uint8(0) // reserved
	w.uint8(uint8(v.Type))
	w.uint32(v.Data)
}

// ResourceIdentifier is the unpacked form of a 0xpptteeee resource id: a
// 1-based package id, a 1-based type id and a 0-based entry index.
type ResourceIdentifier struct {
	PackageID int
	TypeID    int
	EntryID   int
}

// ResourceID unpacks a packed 0xpptteeee resource id.
func ResourceID(id uint32) ResourceIdentifier {
	return ResourceIdentifier{
		PackageID: int(id >> 24),
		TypeID:    int(id >> 16 & 0xFF),
		EntryID:   int(id & 0xFFFF),
	}
}

// NewResourceIdentifier builds an identifier from its parts, enforcing the
// packed field widths.
func NewResourceIdentifier(packageID, typeID, entryID int) (ResourceIdentifier, error) {
	if packageID&0xFF != packageID {
		return ResourceIdentifier{}, fmt.Errorf("package id 0x%x must fit one byte", packageID)
	}
	if typeID&0xFF != typeID {
		return ResourceIdentifier{}, fmt.Errorf("type id 0x%x must fit one byte", typeID)
	}
	if entryID&0xFFFF != entryID {
		return ResourceIdentifier{}, fmt.Errorf("entry id 0x%x must fit two bytes", entryID)
	}
	return ResourceIdentifier{PackageID: packageID, TypeID: typeID, EntryID: entryID}, nil
}

// Packed returns the 0xpptteeee form.
func (r ResourceIdentifier) Packed() uint32 {
	return uint32(r.PackageID)<<24 | uint32(r.TypeID)<<16 | uint32(r.EntryID)
}

func (r ResourceIdentifier) String() string {
	return fmt.Sprintf("0x%08x", r.Packed())
}
