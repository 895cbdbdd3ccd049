// Package arscparser parses and re-serializes the Android compiled-resource
// container format: resources.arsc, AndroidManifest.xml and compiled res/*.xml.
//
// A file accepted without error re-serializes byte-for-byte identically under
// the default options.
package arscparser

import "fmt"

const (
	chunkNull          = 0x0000
	chunkStringPool    = 0x0001
	chunkTable         = 0x0002
	chunkXml           = 0x0003
	chunkXmlNsStart    = 0x0100
	chunkXmlNsEnd      = 0x0101
	chunkXmlTagStart   = 0x0102
	chunkXmlTagEnd     = 0x0103
	chunkXmlCdata      = 0x0104
	chunkXmlResMap     = 0x0180
	chunkTablePackage  = 0x0200
	chunkTableType     = 0x0201
	chunkTableTypeSpec = 0x0202
	chunkTableLibrary  = 0x0203

	chunkMaskXml = 0x0100

	// Every chunk starts with type code, header size and chunk size.
	chunkMetadataSize = 8

	// Chunks and their variable-length payloads are padded to this boundary.
	padBoundary = 4
)

// SerializeOptions selects optional transformations applied while writing.
type SerializeOptions int

const (
	// OptNone re-emits the tree as close to the original bytes as possible.
	OptNone SerializeOptions = 0

	// OptShrink dedupes string pool strings and styles by content.
	OptShrink SerializeOptions = 1 << 0

	// OptPrivateResources strips the public flag from type spec masks and
	// type entries.
	OptPrivateResources SerializeOptions = 1 << 1
)

// ParseError describes a fault in the input stream. Offset is the byte offset
// of the chunk being parsed and TypeCode its declared type.
type ParseError struct {
	Offset   int
	TypeCode uint16
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chunk 0x%04x at offset 0x%08x: %s", e.TypeCode, e.Offset, e.Err.Error())
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(offset int, typeCode uint16, format string, args ...interface{}) error {
	return &ParseError{Offset: offset, TypeCode: typeCode, Err: fmt.Errorf(format, args...)}
}
