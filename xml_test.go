package arscparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const androidNamespace = "http://schemas.android.com/apk/res/android"

// Pool indices used by buildXmlDocument.
const (
	xmlStrVersionCode = iota
	xmlStrLabel
	xmlStrAndroid
	xmlStrNamespaceURI
	xmlStrManifest
	xmlStrApplication
	xmlStrAppName
	xmlStrCdata
)

// buildXmlDocument renders a small compiled manifest:
//
//	<manifest android:versionCode="7">
//	    <application android:label="App Name">cdata</application>
//	</manifest>
func buildXmlDocument(t *testing.T, labelValue ResourceValue) []byte {
	t.Helper()
	pool := buildStringPool(t, []string{
		"versionCode", "label", "android", androidNamespace,
		"manifest", "application", "App Name", "cdata",
	}, EncodingUTF8, nil)

	var w bytesWriter
	start := beginChunk(&w, chunkXml, 8)
	w.write(pool)
	w.pad()

	// Resource map: pool index 0 -> versionCode attr id, 1 -> label attr id.
	mapStart := beginChunk(&w, chunkXmlResMap, 8)
	w.uint32(0x0101021b) // android:versionCode
	w.uint32(0x01010001) // android:label
	endChunk(&w, mapStart)

	// Namespace start.
	nsStart := beginChunk(&w, chunkXmlNsStart, 16)
	w.uint32(2)                    // line
	w.uint32(noString) // comment
	w.uint32(xmlStrAndroid)
	w.uint32(xmlStrNamespaceURI)
	endChunk(&w, nsStart)

	// <manifest android:versionCode="7">
	manifestStart := beginChunk(&w, chunkXmlTagStart, 16)
	w.uint32(3)
	w.uint32(noString)
	w.uint32(noString) // element namespace
	w.uint32(xmlStrManifest)
	w.uint16(20)
	w.uint16(xmlAttributeSize)
	w.uint16(1) // attribute count
	w.uint16(0)
	w.uint16(0)
	w.uint16(0)
	w.uint32(xmlStrNamespaceURI)
	w.uint32(xmlStrVersionCode)
	w.uint32(noString)
	(ResourceValue{Size: resourceValueSize, Type: TypeIntDec, Data: 7}).writeTo(&w)
	endChunk(&w, manifestStart)

	// <application android:label=...>
	appStart := beginChunk(&w, chunkXmlTagStart, 16)
	w.uint32(4)
	w.uint32(noString)
	w.uint32(noString)
	w.uint32(xmlStrApplication)
	w.uint16(20)
	w.uint16(xmlAttributeSize)
	w.uint16(1)
	w.uint16(0)
	w.uint16(0)
	w.uint16(0)
	w.uint32(xmlStrNamespaceURI)
	w.uint32(xmlStrLabel)
	if labelValue.Type == TypeString {
		w.uint32(labelValue.Data)
	} else {
		w.uint32(noString)
	}
	labelValue.writeTo(&w)
	endChunk(&w, appStart)

	// cdata
	cdataStart := beginChunk(&w, chunkXmlCdata, 16)
	w.uint32(5)
	w.uint32(noString)
	w.uint32(xmlStrCdata)
	(ResourceValue{Size: resourceValueSize, Type: TypeString, Data: xmlStrCdata}).writeTo(&w)
	endChunk(&w, cdataStart)

	// </application>
	appEnd := beginChunk(&w, chunkXmlTagEnd, 16)
	w.uint32(5)
	w.uint32(noString)
	w.uint32(noString)
	w.uint32(xmlStrApplication)
	endChunk(&w, appEnd)

	// </manifest>
	manifestEnd := beginChunk(&w, chunkXmlTagEnd, 16)
	w.uint32(6)
	w.uint32(noString)
	w.uint32(noString)
	w.uint32(xmlStrManifest)
	endChunk(&w, manifestEnd)

	// Namespace end.
	nsEnd := beginChunk(&w, chunkXmlNsEnd, 16)
	w.uint32(6)
	w.uint32(noString)
	w.uint32(xmlStrAndroid)
	w.uint32(xmlStrNamespaceURI)
	endChunk(&w, nsEnd)

	endChunk(&w, start)
	return w.bytes()
}

func stringLabel() ResourceValue {
	return ResourceValue{Size: resourceValueSize, Type: TypeString, Data: xmlStrAppName}
}

func parseXmlDocument(t *testing.T, raw []byte) *XmlChunk {
	t.Helper()
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)
	doc := file.Xml()
	require.NotNil(t, doc)
	return doc
}

func TestXmlDocumentStructure(t *testing.T) {
	raw := buildXmlDocument(t, stringLabel())
	doc := parseXmlDocument(t, raw)

	require.NotNil(t, doc.StringPool())
	require.NotNil(t, doc.ResourceMap())
	require.Len(t, doc.Children(), 9)

	ns, ok := doc.Children()[2].(*XmlNamespaceChunk)
	require.True(t, ok)
	assert.True(t, ns.IsStart())
	prefix, err := ns.Prefix()
	require.NoError(t, err)
	assert.Equal(t, "android", prefix)
	uri, err := ns.Uri()
	require.NoError(t, err)
	assert.Equal(t, androidNamespace, uri)
	assert.Equal(t, 2, ns.LineNumber())
	assert.False(t, ns.HasComment())

	element, ok := doc.Children()[3].(*XmlStartElementChunk)
	require.True(t, ok)
	name, err := element.Name()
	require.NoError(t, err)
	assert.Equal(t, "manifest", name)
	require.Len(t, element.Attributes(), 1)
	attrName, err := element.Attributes()[0].Name()
	require.NoError(t, err)
	assert.Equal(t, "versionCode", attrName)
	assert.Equal(t, TypeIntDec, element.Attributes()[0].TypedValue.Type)

	id, err := doc.ResourceMap().ResourceID(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x0101021b), id.Packed())

	cdata, ok := doc.Children()[5].(*XmlCdataChunk)
	require.True(t, ok)
	text, err := cdata.RawValue()
	require.NoError(t, err)
	assert.Equal(t, "cdata", text)
}

func TestXmlDocumentRoundTrip(t *testing.T) {
	raw := buildXmlDocument(t, stringLabel())
	file, err := ParseResourceFile(raw)
	require.NoError(t, err)
	out, err := file.Bytes(OptNone)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestXmlAttributeSizeValidation(t *testing.T) {
	raw := buildXmlDocument(t, stringLabel())
	doc := parseXmlDocument(t, raw)
	element := doc.Children()[3].(*XmlStartElementChunk)

	// Corrupt the attribute size field of the first element.
	offset := element.Offset() + element.HeaderSize() + 10
	raw[offset] = 16
	_, err := ParseResourceFile(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute size")
}

func TestRemapReferences(t *testing.T) {
	reference := ResourceValue{Size: resourceValueSize, Type: TypeReference, Data: 0x7F010001}
	raw := buildXmlDocument(t, reference)
	doc := parseXmlDocument(t, raw)

	element := doc.Children()[4].(*XmlStartElementChunk)
	require.Equal(t, TypeReference, element.Attributes()[0].TypedValue.Type)

	count := element.RemapReferences(map[uint32]uint32{0x7F010001: 0x7F020005})
	assert.Equal(t, 1, count)
	assert.Equal(t, uint32(0x7F020005), element.Attributes()[0].TypedValue.Data)

	// Unmatched data and non-reference attributes stay untouched.
	count = element.RemapReferences(map[uint32]uint32{0xDEAD: 1})
	assert.Equal(t, 0, count)
	manifest := doc.Children()[3].(*XmlStartElementChunk)
	count = manifest.RemapReferences(map[uint32]uint32{7: 9})
	assert.Equal(t, 0, count)
}

func TestSetAttribute(t *testing.T) {
	raw := buildXmlDocument(t, stringLabel())
	doc := parseXmlDocument(t, raw)
	element := doc.Children()[3].(*XmlStartElementChunk)

	replacement := element.Attributes()[0]
	replacement.TypedValue.Data = 42
	require.NoError(t, element.SetAttribute(0, replacement))
	assert.Equal(t, uint32(42), element.Attributes()[0].TypedValue.Data)
	assert.Error(t, element.SetAttribute(5, replacement))
}

func TestDecodeXml(t *testing.T) {
	raw := buildXmlDocument(t, stringLabel())
	out, err := DecodeXmlToString(raw, nil)
	require.NoError(t, err)

	assert.Contains(t, out, "<manifest")
	assert.Contains(t, out, `versionCode="7"`)
	assert.Contains(t, out, `label="App Name"`)
	assert.Contains(t, out, "cdata")
	assert.Contains(t, out, "</manifest>")
}

func TestDecodeXmlResolvesReferences(t *testing.T) {
	table := parseTestTable(t)
	reference := ResourceValue{Size: resourceValueSize, Type: TypeReference, Data: 0x7F010000}
	raw := buildXmlDocument(t, reference)

	out, err := DecodeXmlToString(raw, table)
	require.NoError(t, err)
	assert.Contains(t, out, `label="hello"`)

	// Without a table the reference renders as a raw id.
	out, err = DecodeXmlToString(raw, nil)
	require.NoError(t, err)
	assert.Contains(t, out, `label="@7f010000"`)
}

func TestDecodeXmlPlainText(t *testing.T) {
	for _, text := range []string{
		`<?xml version="1.0" encoding="utf-8" standalone="no"?>`,
		`<manifest xmlns:android="http://schemas.android.com/apk/res/android">`,
	} {
		_, err := DecodeXmlToString([]byte(text), nil)
		assert.Equal(t, ErrPlainTextManifest, err, "input %q", text)
	}
}

func TestXmlCommentResolution(t *testing.T) {
	pool := buildStringPool(t, []string{"note", "tag"}, EncodingUTF8, nil)

	var w bytesWriter
	start := beginChunk(&w, chunkXml, 8)
	w.write(pool)
	w.pad()
	endStart := beginChunk(&w, chunkXmlTagEnd, 16)
	w.uint32(1)
	w.uint32(0) // comment -> "note"
	w.uint32(noString)
	w.uint32(1)
	endChunk(&w, endStart)
	endChunk(&w, start)

	doc := parseXmlDocument(t, w.bytes())
	node := doc.Children()[1].(*XmlEndElementChunk)
	assert.True(t, node.HasComment())
	comment, err := node.Comment()
	require.NoError(t, err)
	assert.Equal(t, "note", comment)
	name, err := node.Name()
	require.NoError(t, err)
	assert.Equal(t, "tag", name)
	namespace, err := node.Namespace()
	require.NoError(t, err)
	assert.Equal(t, "", namespace)
}
