package arscparser

import "fmt"

const (
	sortedFlag uint32 = 1 << 0
	utf8Flag   uint32 = 1 << 8

	// Offset from the chunk start of the stylesStart header field.
	styleStartFieldOffset = 24

	// Styles and the style region are terminated with this sentinel.
	spanEnd uint32 = 0xFFFFFFFF

	spanLength = 12
)

// StringPoolSpan is a styled range within a string: the index of the string
// naming the span tag, and the inclusive first and last code units the span
// covers.
type StringPoolSpan struct {
	NameIndex int
	Start     uint32
	Stop      uint32
}

// StringPoolStyle is the ordered span list attached to the string at the same
// index in the pool.
type StringPoolStyle struct {
	Spans []StringPoolSpan
}

func (s StringPoolStyle) encode() []byte {
	var w bytesWriter
	for _, span := range s.Spans {
		w.uint32(uint32(span.NameIndex))
		w.uint32(span.Start)
		w.uint32(span.Stop)
	}
	w.uint32(spanEnd)
	return w.bytes()
}

// StringPoolChunk is a deduplicated, optionally styled string pool. Styles
// have a 1:1 index relationship with strings; there are never more styles
// than strings.
type StringPoolChunk struct {
	chunkBase

	flags uint32

	strings []string
	styles  []StringPoolStyle

	// Set when the original offset table was not strictly increasing, which
	// means the pool was written deduplicated. Re-emission then dedups even
	// without OptShrink, or the file would grow.
	alwaysDedup bool
}

func parseStringPoolChunk(r *bytesReader, base chunkBase) (*StringPoolChunk, error) {
	p := &StringPoolChunk{chunkBase: base}
	stringCount := int(r.uint32())
	styleCount := int(r.uint32())
	p.flags = r.uint32()
	stringsStart := int(r.uint32())
	stylesStart := int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	if styleCount > stringCount {
		return nil, fmt.Errorf("style count %d exceeds string count %d", styleCount, stringCount)
	}

	chunkEnd := base.offset + base.chunkSize
	enc := p.Encoding()
	previousOffset := -1
	for i := 0; i < stringCount; i++ {
		entry := int(r.uint32())
		if r.err != nil {
			return nil, r.err
		}
		stringOffset := base.offset + stringsStart + entry
		if stringOffset >= chunkEnd {
			return nil, fmt.Errorf("string %d offset 0x%x exceeds pool end 0x%x", i, stringOffset, chunkEnd)
		}
		s, err := decodeString(r.data[:chunkEnd], stringOffset, enc)
		if err != nil {
			return nil, fmt.Errorf("string %d: %s", i, err.Error())
		}
		p.strings = append(p.strings, s)
		if stringOffset <= previousOffset {
			p.alwaysDedup = true
		}
		previousOffset = stringOffset
	}

	for i := 0; i < styleCount; i++ {
		entry := int(r.uint32())
		if r.err != nil {
			return nil, r.err
		}
		style, err := parseStyle(r.data[:chunkEnd], base.offset+stylesStart+entry)
		if err != nil {
			return nil, fmt.Errorf("style %d: %s", i, err.Error())
		}
		for _, span := range style.Spans {
			if span.NameIndex < 0 || span.NameIndex >= stringCount {
				return nil, fmt.Errorf("style %d span names string %d outside pool of %d", i, span.NameIndex, stringCount)
			}
		}
		p.styles = append(p.styles, style)
	}
	return p, nil
}

func parseStyle(data []byte, offset int) (StringPoolStyle, error) {
	var style StringPoolStyle
	for {
		if offset+4 > len(data) {
			return style, fmt.Errorf("style at 0x%x runs past pool end", offset)
		}
		name := uint32(data[offset]) | uint32(data[offset+1])<<8 | uint32(data[offset+2])<<16 | uint32(data[offset+3])<<24
		if name == spanEnd {
			return style, nil
		}
		if offset+spanLength > len(data) {
			return style, fmt.Errorf("span at 0x%x runs past pool end", offset)
		}
		r := newBytesReader(data)
		r.seek(offset)
		style.Spans = append(style.Spans, StringPoolSpan{
			NameIndex: int(r.uint32()),
			Start:     r.uint32(),
			Stop:      r.uint32(),
		})
		offset += spanLength
	}
}

// Encoding returns the codec the flags select for the whole pool.
func (p *StringPoolChunk) Encoding() StringEncoding {
	if p.flags&utf8Flag != 0 {
		return EncodingUTF8
	}
	return EncodingUTF16
}

// IsSorted reports the sorted flag bit.
func (p *StringPoolChunk) IsSorted() bool {
	return p.flags&sortedFlag != 0
}

// StringCount returns the number of strings currently in the pool.
func (p *StringPoolChunk) StringCount() int {
	return len(p.strings)
}

// String returns the string at the given 0-based index.
func (p *StringPoolChunk) String(index int) (string, error) {
	if index < 0 || index >= len(p.strings) {
		return "", fmt.Errorf("string index %d outside pool of %d", index, len(p.strings))
	}
	return p.strings[index], nil
}

// IndexOf returns the 0-based index of the first occurrence of s, or -1.
func (p *StringPoolChunk) IndexOf(s string) int {
	for i, v := range p.strings {
		if v == s {
			return i
		}
	}
	return -1
}

// AddString appends a string and returns its index.
func (p *StringPoolChunk) AddString(s string) int {
	p.strings = append(p.strings, s)
	return len(p.strings) - 1
}

// SetString replaces the string at index in place; indices stay stable.
func (p *StringPoolChunk) SetString(index int, s string) error {
	if index < 0 || index >= len(p.strings) {
		return fmt.Errorf("string index %d outside pool of %d", index, len(p.strings))
	}
	p.strings[index] = s
	return nil
}

// StyleCount returns the number of styles currently in the pool.
func (p *StringPoolChunk) StyleCount() int {
	return len(p.styles)
}

// Style returns the style at the given 0-based index.
func (p *StringPoolChunk) Style(index int) (StringPoolStyle, error) {
	if index < 0 || index >= len(p.styles) {
		return StringPoolStyle{}, fmt.Errorf("style index %d outside pool of %d", index, len(p.styles))
	}
	return p.styles[index], nil
}

// SetAlwaysDedup forces dedup on emission even without OptShrink.
func (p *StringPoolChunk) SetAlwaysDedup(alwaysDedup bool) {
	p.alwaysDedup = alwaysDedup
}

// DeleteStrings removes the strings at the given sorted 0-based indexes,
// along with their styles. Indexes still referenced by a surviving style's
// span name are kept. The returned remap holds, for every old index, its new
// index or -1 if the string was deleted; callers must apply it to every
// consumer before reading the pool again.
func (p *StringPoolChunk) DeleteStrings(indexes []int) ([]int, error) {
	toDelete := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(p.strings) {
			return nil, fmt.Errorf("delete index %d outside pool of %d", idx, len(p.strings))
		}
		toDelete[idx] = true
	}

	// A span of a surviving style may name a string marked for deletion;
	// removing it would leave a dangling reference, so protect it.
	for i, style := range p.styles {
		if toDelete[i] {
			continue
		}
		for _, span := range style.Spans {
			if toDelete[span.NameIndex] {
				delete(toDelete, span.NameIndex)
			}
		}
	}

	remap := make([]int, len(p.strings))
	var (
		newStrings []string
		newStyles  []StringPoolStyle
		deleted    int
	)
	for i := range p.strings {
		if toDelete[i] {
			remap[i] = -1
			deleted++
			continue
		}
		remap[i] = i - deleted
		newStrings = append(newStrings, p.strings[i])
		if i < len(p.styles) {
			newStyles = append(newStyles, p.styles[i])
		}
	}

	fixed, err := remapStyles(newStyles, remap)
	if err != nil {
		return nil, err
	}
	p.strings = newStrings
	p.styles = fixed
	return remap, nil
}

func remapStyles(styles []StringPoolStyle, remap []int) ([]StringPoolStyle, error) {
	result := make([]StringPoolStyle, 0, len(styles))
	for _, style := range styles {
		spans := make([]StringPoolSpan, 0, len(style.Spans))
		for _, span := range style.Spans {
			newIndex := remap[span.NameIndex]
			if newIndex < 0 {
				return nil, fmt.Errorf("span name index %d was deleted but survived the protection pass", span.NameIndex)
			}
			span.NameIndex = newIndex
			spans = append(spans, span)
		}
		result = append(result, StringPoolStyle{Spans: spans})
	}
	return result, nil
}

func (p *StringPoolChunk) offsetTableSize() int {
	return (len(p.strings) + len(p.styles)) * 4
}

func (p *StringPoolChunk) writeHeaderBody(w *bytesWriter, chunkStart int) error {
	w.uint32(uint32(len(p.strings)))
	w.uint32(uint32(len(p.styles)))
	w.uint32(p.flags)
	// aapt writes stringsStart as header + offset table even for an empty
	// pool; the style offset stays zero until patched.
	w.uint32(uint32(p.headerSize + p.offsetTableSize()))
	w.uint32(0)
	return nil
}

func (p *StringPoolChunk) writePayload(w *bytesWriter, chunkStart int, opts SerializeOptions) error {
	offsetsBase := w.len()
	for i := 0; i < len(p.strings)+len(p.styles); i++ {
		w.uint32(0)
	}

	shouldShrink := opts&OptShrink != 0 || p.alwaysDedup
	enc := p.Encoding()

	stringBase := w.len()
	used := make(map[string]int, len(p.strings))
	for i, s := range p.strings {
		if prev, ok := used[s]; ok && shouldShrink {
			w.patchUint32(offsetsBase+4*i, uint32(prev))
			continue
		}
		encoded, err := encodeString(s, enc)
		if err != nil {
			return fmt.Errorf("string %d: %s", i, err.Error())
		}
		stringOffset := w.len() - stringBase
		used[s] = stringOffset
		w.patchUint32(offsetsBase+4*i, uint32(stringOffset))
		w.write(encoded)
	}
	w.pad()

	if len(p.styles) > 0 {
		styleBase := w.len()
		usedStyles := make(map[string]int, len(p.styles))
		for i, style := range p.styles {
			encoded := style.encode()
			if prev, ok := usedStyles[string(encoded)]; ok && shouldShrink {
				w.patchUint32(offsetsBase+4*(len(p.strings)+i), uint32(prev))
				continue
			}
			styleOffset := w.len() - styleBase
			usedStyles[string(encoded)] = styleOffset
			w.patchUint32(offsetsBase+4*(len(p.strings)+i), uint32(styleOffset))
			w.write(encoded)
		}
		// The style region ends with two more sentinels. The second one is
		// what the on-device format contains, so it stays.
		w.uint32(spanEnd)
		w.uint32(spanEnd)
		w.pad()
		w.patchUint32(chunkStart+styleStartFieldOffset, uint32(styleBase-chunkStart))
	}
	return nil
}
