package arscparser

import (
	"fmt"
	"unicode/utf16"
)

// StringEncoding selects the wire form of a string pool.
type StringEncoding int

const (
	// EncodingUTF8 strings carry two length prefixes (character count, then
	// byte count) and a single 0x00 terminator. Bytes follow Android's
	// modified UTF-8 rules: code points outside the BMP are stored as two
	// surrogate halves, each a 3-byte sequence.
	EncodingUTF8 StringEncoding = iota

	// EncodingUTF16 strings carry one length prefix in UTF-16 code units and
	// a 16-bit terminator.
	EncodingUTF16
)

func (e StringEncoding) String() string {
	if e == EncodingUTF8 {
		return "UTF-8"
	}
	return "UTF-16"
}

// decodeLength8 reads a 1- or 2-byte UTF-8 style length prefix.
func decodeLength8(data []byte, offset int) (length, consumed int, err error) {
	if offset >= len(data) {
		return 0, 0, fmt.Errorf("string offset 0x%x exceeds pool data length %d", offset, len(data))
	}
	b := data[offset]
	if b&0x80 == 0 {
		return int(b), 1, nil
	}
	if offset+1 >= len(data) {
		return 0, 0, fmt.Errorf("truncated two-byte length prefix at 0x%x", offset)
	}
	return int(b&0x7F)<<8 | int(data[offset+1]), 2, nil
}

// decodeLength16 reads a 1- or 2-word UTF-16 style length prefix.
func decodeLength16(data []byte, offset int) (length, consumed int, err error) {
	if offset+2 > len(data) {
		return 0, 0, fmt.Errorf("string offset 0x%x exceeds pool data length %d", offset, len(data))
	}
	high := int(data[offset]) | int(data[offset+1])<<8
	if high&0x8000 == 0 {
		return high, 2, nil
	}
	if offset+4 > len(data) {
		return 0, 0, fmt.Errorf("truncated two-word length prefix at 0x%x", offset)
	}
	low := int(data[offset+2]) | int(data[offset+3])<<8
	return (high&0x7FFF)<<16 | low, 4, nil
}

// decodeString reads one length-prefixed string at offset from the packed
// string data region of a pool.
func decodeString(data []byte, offset int, enc StringEncoding) (string, error) {
	if enc == EncodingUTF8 {
		return decodeStringUTF8(data, offset)
	}
	return decodeStringUTF16(data, offset)
}

func decodeStringUTF8(data []byte, offset int) (string, error) {
	charCount, n, err := decodeLength8(data, offset)
	if err != nil {
		return "", err
	}
	offset += n
	byteCount, n, err := decodeLength8(data, offset)
	if err != nil {
		return "", err
	}
	offset += n
	if offset+byteCount > len(data) {
		return "", fmt.Errorf("string data at 0x%x overruns pool: need %d bytes, have %d",
			offset, byteCount, len(data)-offset)
	}
	units, err := decodeModifiedUTF8(data[offset:offset+byteCount], charCount)
	if err != nil {
		return "", err
	}
	return string(utf16.Decode(units)), nil
}

// decodeModifiedUTF8 converts a modified UTF-8 byte run into exactly
// charCount UTF-16 code units. A 4-byte sequence yields a surrogate pair.
func decodeModifiedUTF8(b []byte, charCount int) ([]uint16, error) {
	out := make([]uint16, 0, charCount)
	pos := 0
	for len(out) < charCount {
		if pos >= len(b) {
			return nil, fmt.Errorf("modified UTF-8 run ends after %d of %d code units", len(out), charCount)
		}
		one := b[pos]
		pos++
		if one&0x80 == 0 {
			out = append(out, uint16(one))
			continue
		}
		if pos >= len(b) {
			return nil, fmt.Errorf("truncated multi-byte sequence at %d", pos-1)
		}
		two := b[pos]
		pos++
		if one&0x20 == 0 {
			out = append(out, uint16(one&0x1F)<<6|uint16(two&0x3F))
			continue
		}
		if pos >= len(b) {
			return nil, fmt.Errorf("truncated multi-byte sequence at %d", pos-2)
		}
		three := b[pos]
		pos++
		if one&0x10 == 0 {
			out = append(out, uint16(one&0x0F)<<12|uint16(two&0x3F)<<6|uint16(three&0x3F))
			continue
		}
		if pos >= len(b) {
			return nil, fmt.Errorf("truncated four-byte sequence at %d", pos-3)
		}
		four := b[pos]
		pos++
		cp := uint32(one&0x0F)<<18 | uint32(two&0x3F)<<12 | uint32(three&0x3F)<<6 | uint32(four&0x3F)
		out = append(out, uint16((cp>>10)+0xD7C0), uint16(cp&0x3FF+0xDC00))
	}
	return out, nil
}

func decodeStringUTF16(data []byte, offset int) (string, error) {
	length, n, err := decodeLength16(data, offset)
	if err != nil {
		return "", err
	}
	offset += n
	if offset+2*length > len(data) {
		return "", fmt.Errorf("string data at 0x%x overruns pool: need %d bytes, have %d",
			offset, 2*length, len(data)-offset)
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = uint16(data[offset+2*i]) | uint16(data[offset+2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// encodeString produces the full wire form of s, including length prefixes
// and the terminator.
func encodeString(s string, enc StringEncoding) ([]byte, error) {
	units := utf16.Encode([]rune(s))
	if enc == EncodingUTF16 {
		var w bytesWriter
		if len(units) >= 0x8000 {
			w.uint16(uint16(len(units)>>16) | 0x8000)
		}
		w.uint16(uint16(len(units)))
		for _, u := range units {
			w.uint16(u)
		}
		w.uint16(0)
		return w.bytes(), nil
	}

	encoded := encodeModifiedUTF8(units)
	if len(units) > 0x7FFF || len(encoded) > 0x7FFF {
		return nil, fmt.Errorf("string of %d units / %d bytes does not fit a UTF-8 length prefix",
			len(units), len(encoded))
	}
	var w bytesWriter
	writeLength8(&w, len(units))
	writeLength8(&w, len(encoded))
	w.write(encoded)
	w.uint8(0)
	return w.bytes(), nil
}

func writeLength8(w *bytesWriter, length int) {
	if length >= 0x80 {
		w.uint8(uint8(length>>8) | 0x80)
	}
	w.uint8(uint8(length))
}

// encodeModifiedUTF8 writes each UTF-16 code unit independently, so surrogate
// halves become two 3-byte sequences.
func encodeModifiedUTF8(units []uint16) []byte {
	var out []byte
	for _, u := range units {
		switch {
		case u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}
