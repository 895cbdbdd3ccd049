package arscparser

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
)

// Size thresholds at which the configuration record gains fields.
const (
	configMinSize             = 28
	configScreenMinSize       = 32
	configScreenDpMinSize     = 36
	configLocaleMinSize       = 48
	configScreenExtendedSize  = 52
	configCurrentAllKnownSize = configScreenExtendedSize
)

// ResourceConfiguration describes the qualifier tuple (locale, density,
// orientation, ...) a type chunk's entries correspond to. Records smaller
// than the current layout leave later fields at their zero values; bytes past
// the last known field round-trip through Unknown.
type ResourceConfiguration struct {
	Size        int
	Mcc         uint16
	Mnc         uint16
	Language    [2]byte
	Region      [2]byte
	Orientation uint8
	Touchscreen uint8
	Density     uint16
	Keyboard    uint8
	Navigation  uint8
	InputFlags  uint8

	ScreenWidth  uint16
	ScreenHeight uint16
	SdkVersion   uint16
	MinorVersion uint16

	ScreenLayout          uint8
	UIMode                uint8
	SmallestScreenWidthDp uint16

	ScreenWidthDp  uint16
	ScreenHeightDp uint16

	LocaleScript  [4]byte
	LocaleVariant [8]byte

	ScreenLayout2 uint8
	ColorMode     uint8

	Unknown []byte
}

// DefaultConfiguration is the catch-all configuration with every qualifier
// unset, serialized at the current layout size.
func DefaultConfiguration() ResourceConfiguration {
	return ResourceConfiguration{Size: configCurrentAllKnownSize}
}

func parseConfiguration(r *bytesReader) (ResourceConfiguration, error) {
	start := r.pos
	var c ResourceConfiguration
	c.Size = int(r.uint32())
	if r.err != nil {
		return c, r.err
	}
	if c.Size < configMinSize {
		return c, fmt.Errorf("configuration size %d below minimum %d at 0x%08x", c.Size, configMinSize, start)
	}
	c.Mcc = r.uint16()
	c.Mnc = r.uint16()
	copy(c.Language[:], r.read(2))
	copy(c.Region[:], r.read(2))
	c.Orientation = r.uint8()
	c.Touchscreen = r.uint8()
	c.Density = r.uint16()
	c.Keyboard = r.uint8()
	c.Navigation = r.uint8()
	c.InputFlags = r.uint8()
	r.skip(1) // padding
	c.ScreenWidth = r.uint16()
	c.ScreenHeight = r.uint16()
	c.SdkVersion = r.uint16()
	c.MinorVersion = r.uint16()

	if c.Size >= configScreenMinSize {
		c.ScreenLayout = r.uint8()
		c.UIMode = r.uint8()
		c.SmallestScreenWidthDp = r.uint16()
	}
	if c.Size >= configScreenDpMinSize {
		c.ScreenWidthDp = r.uint16()
		c.ScreenHeightDp = r.uint16()
	}
	if c.Size >= configLocaleMinSize {
		copy(c.LocaleScript[:], r.read(4))
		copy(c.LocaleVariant[:], r.read(8))
	}
	if c.Size >= configScreenExtendedSize {
		c.ScreenLayout2 = r.uint8()
		c.ColorMode = r.uint8()
		r.skip(2) // reserved
	}

	read := r.pos - start
	if read < c.Size {
		c.Unknown = append([]byte(nil), r.read(c.Size-read)...)
	}
	if r.err != nil {
		return c, r.err
	}
	return c, nil
}

func (c *ResourceConfiguration) writeTo(w *bytesWriter) {
	w.uint32(uint32(c.Size))
	w.uint16(c.Mcc)
	w.uint16(c.Mnc)
	w.write(c.Language[:])
	w.write(c.Region[:])
	w.uint8(c.Orientation)
	w.uint8(c.Touchscreen)
	w.uint16(c.Density)
	w.uint8(c.Keyboard)
	w.uint8(c.Navigation)
	w.uint8(c.InputFlags)
	w.uint8(0) // padding
	w.uint16(c.ScreenWidth)
	w.uint16(c.ScreenHeight)
	w.uint16(c.SdkVersion)
	w.uint16(c.MinorVersion)

	if c.Size >= configScreenMinSize {
		w.uint8(c.ScreenLayout)
		w.uint8(c.UIMode)
		w.uint16(c.SmallestScreenWidthDp)
	}
	if c.Size >= configScreenDpMinSize {
		w.uint16(c.ScreenWidthDp)
		w.uint16(c.ScreenHeightDp)
	}
	if c.Size >= configLocaleMinSize {
		w.write(c.LocaleScript[:])
		w.write(c.LocaleVariant[:])
	}
	if c.Size >= configScreenExtendedSize {
		w.uint8(c.ScreenLayout2)
		w.uint8(c.ColorMode)
		w.uint16(0) // reserved
	}
	w.write(c.Unknown)
}

// IsDefault reports whether every known qualifier is unset and any unknown
// trailing bytes are zero. The record size is ignored so configurations
// written by different aapt versions compare equal.
func (c *ResourceConfiguration) IsDefault() bool {
	def := DefaultConfiguration()
	def.Size = c.Size
	def.Unknown = c.Unknown
	if !bytes.Equal(c.Unknown, make([]byte, len(c.Unknown))) {
		return false
	}
	return c.equalsIgnoringUnknown(&def)
}

func (c *ResourceConfiguration) equalsIgnoringUnknown(o *ResourceConfiguration) bool {
	a, b := *c, *o
	a.Unknown, b.Unknown = nil, nil
	return reflect.DeepEqual(a, b)
}

// Equal reports full structural equality, trailing unknown bytes included.
func (c *ResourceConfiguration) Equal(o *ResourceConfiguration) bool {
	return c.equalsIgnoringUnknown(o) && bytes.Equal(c.Unknown, o.Unknown)
}

// LanguageString returns the unpacked language code ("en", "fil", ...).
func (c *ResourceConfiguration) LanguageString() string {
	return unpackLanguageOrRegion(c.Language, 0x61)
}

// RegionString returns the unpacked region code ("US", "419", ...).
func (c *ResourceConfiguration) RegionString() string {
	return unpackLanguageOrRegion(c.Region, 0x30)
}

// unpackLanguageOrRegion reverses the two-byte packing; three-letter codes
// set the high bit of the first byte and pack 5 bits per letter.
func unpackLanguageOrRegion(value [2]byte, base byte) string {
	if value[0] == 0 && value[1] == 0 {
		return ""
	}
	if value[0]&0x80 != 0 {
		return string([]byte{
			base + (value[1] & 0x1F),
			base + (value[1]&0xE0)>>5 + (value[0]&0x03)<<3,
			base + (value[0]&0x7C)>>2,
		})
	}
	return string(value[:])
}

// PackLanguage packs a 2- or 3-letter lowercase language code into its
// two-byte wire form.
func PackLanguage(language string) ([2]byte, error) {
	var out [2]byte
	switch len(language) {
	case 2:
		copy(out[:], language)
		return out, nil
	case 3:
		for i := 0; i < 3; i++ {
			if language[i] < 'a' || language[i] > 'z' {
				return out, fmt.Errorf("three-letter code %q must be lowercase ascii", language)
			}
		}
		base := byte(0x61)
		out[0] = (language[2]-base)<<2 | (language[1]-base)>>3 | 0x80
		out[1] = (language[0] - base) | (language[1]-base)<<5
		return out, nil
	default:
		return out, fmt.Errorf("language code %q must be 2 or 3 letters", language)
	}
}

func (c *ResourceConfiguration) localeScriptString() string {
	return zeroTrimmed(c.LocaleScript[:])
}

func (c *ResourceConfiguration) localeVariantString() string {
	return zeroTrimmed(c.LocaleVariant[:])
}

func zeroTrimmed(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// Qualifier vocabularies, as aapt names them.
const (
	keyboardHiddenMask   = 0x03
	navigationHiddenMask = 0x0C
	layoutDirMask        = 0xC0
	layoutSizeMask       = 0x0F
	layoutLongMask       = 0x30
	layoutRoundMask      = 0x03
	uiModeTypeMask       = 0x0F
	uiModeNightMask      = 0x30
	colorModeGamutMask   = 0x03
	colorModeHdrMask     = 0x0C

	densityAny  = 0xFFFE
	densityNone = 0xFFFF
)

var (
	orientationNames = map[uint8]string{0x01: "port", 0x02: "land"}
	touchscreenNames = map[uint8]string{1: "notouch", 3: "finger"}
	densityNames     = map[uint16]string{
		120: "ldpi", 160: "mdpi", 213: "tvdpi", 240: "hdpi",
		320: "xhdpi", 480: "xxhdpi", 640: "xxxhdpi",
		densityAny: "anydpi", densityNone: "nodpi",
	}
	keyboardNames    = map[uint8]string{1: "nokeys", 2: "qwerty", 3: "12key"}
	keysHiddenNames  = map[uint8]string{1: "keysexposed", 2: "keyshidden", 3: "keyssoft"}
	navigationNames  = map[uint8]string{1: "nonav", 2: "dpad", 3: "trackball", 4: "wheel"}
	navHiddenNames   = map[uint8]string{0x04: "navexposed", 0x08: "navhidden"}
	layoutDirNames   = map[uint8]string{0x40: "ldltr", 0x80: "ldrtl"}
	layoutSizeNames  = map[uint8]string{0x01: "small", 0x02: "normal", 0x03: "large", 0x04: "xlarge"}
	layoutLongNames  = map[uint8]string{0x10: "notlong", 0x20: "long"}
	layoutRoundNames = map[uint8]string{0x01: "notround", 0x02: "round"}
	uiModeTypeNames  = map[uint8]string{
		0x02: "desk", 0x03: "car", 0x04: "television",
		0x05: "appliance", 0x06: "watch", 0x07: "vrheadset",
	}
	uiModeNightNames = map[uint8]string{0x10: "notnight", 0x20: "night"}
	hdrNames         = map[uint8]string{0x04: "lowdr", 0x08: "highdr"}
	gamutNames       = map[uint8]string{0x01: "nowidecg", 0x02: "widecg"}
)

// String renders the qualifier string the way resource directories name it,
// e.g. "sw600dp-land-xhdpi-v21". The default configuration renders as
// "default".
func (c *ResourceConfiguration) String() string {
	if c.IsDefault() {
		return "default"
	}

	var parts []string
	add := func(s string) {
		if s != "" {
			parts = append(parts, s)
		}
	}

	if c.Mcc != 0 {
		add(fmt.Sprintf("mcc%d", c.Mcc))
	}
	if c.Mnc != 0 {
		add(fmt.Sprintf("mnc%d", c.Mnc))
	}
	c.addLocale(add)
	add(layoutDirNames[c.ScreenLayout&layoutDirMask])
	if c.SmallestScreenWidthDp != 0 {
		add(fmt.Sprintf("sw%ddp", c.SmallestScreenWidthDp))
	}
	if c.ScreenWidthDp != 0 {
		add(fmt.Sprintf("w%ddp", c.ScreenWidthDp))
	}
	if c.ScreenHeightDp != 0 {
		add(fmt.Sprintf("h%ddp", c.ScreenHeightDp))
	}
	add(layoutSizeNames[c.ScreenLayout&layoutSizeMask])
	add(layoutLongNames[c.ScreenLayout&layoutLongMask])
	add(layoutRoundNames[c.ScreenLayout2&layoutRoundMask])
	add(hdrNames[c.ColorMode&colorModeHdrMask])
	add(gamutNames[c.ColorMode&colorModeGamutMask])
	add(orientationNames[c.Orientation])
	add(uiModeTypeNames[c.UIMode&uiModeTypeMask])
	add(uiModeNightNames[c.UIMode&uiModeNightMask])
	if c.Density != 0 {
		if name, ok := densityNames[c.Density]; ok {
			add(name)
		} else {
			add(fmt.Sprintf("%ddpi", c.Density))
		}
	}
	add(touchscreenNames[c.Touchscreen])
	add(keysHiddenNames[c.InputFlags&keyboardHiddenMask])
	add(keyboardNames[c.Keyboard])
	add(navHiddenNames[c.InputFlags&navigationHiddenMask])
	add(navigationNames[c.Navigation])
	if c.ScreenWidth != 0 || c.ScreenHeight != 0 {
		add(fmt.Sprintf("%dx%d", c.ScreenWidth, c.ScreenHeight))
	}
	if c.SdkVersion != 0 {
		v := fmt.Sprintf("v%d", c.SdkVersion)
		if c.MinorVersion != 0 {
			v += fmt.Sprintf(".%d", c.MinorVersion)
		}
		add(v)
	}
	return strings.Join(parts, "-")
}

// addLocale emits either the plain language/region pair or the modified
// BCP-47 "b+lang+script+region+variant" form when script or variant is set.
func (c *ResourceConfiguration) addLocale(add func(string)) {
	script := c.localeScriptString()
	variant := c.localeVariantString()
	if script == "" && variant == "" {
		add(c.LanguageString())
		if r := c.RegionString(); r != "" {
			add("r" + r)
		}
		return
	}
	var b strings.Builder
	b.WriteString("b+")
	b.WriteString(c.LanguageString())
	if script != "" {
		b.WriteString("+" + script)
	}
	if r := c.RegionString(); r != "" {
		b.WriteString("+" + r)
	}
	if variant != "" {
		b.WriteString("+" + variant)
	}
	add(b.String())
}
