package arscparser

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/pkg/errors"
)

// ZipReader reads APK archives, including broken ones that Android accepts
// but archive/zip rejects. When the central directory is unusable it falls
// back to scanning for local file headers.
type ZipReader struct {
	// File maps a cleaned entry name to its reader. A name can stand for
	// several physical entries in a crafted archive; Next() iterates them.
	File map[string]*ZipReaderFile

	// FilesOrdered lists the entries in the order they appear in the zip.
	FilesOrdered []*ZipReaderFile

	source io.ReadSeeker
	owned  *os.File
}

// ZipReaderFile is one named entry of the archive.
type ZipReaderFile struct {
	Name  string
	IsDir bool

	source   io.ReadSeeker
	zipEntry *zip.File

	// Raw local-header entries found by the fallback scan, newest first.
	rawEntries []rawZipEntry
	current    int

	reader io.Reader
	closer io.Closer
}

type rawZipEntry struct {
	offset int64
	method uint16
}

// OpenZip opens the archive at path.
func OpenZip(path string) (*ZipReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := OpenZipReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	zr.owned = f
	return zr, nil
}

// OpenZipReader reads an archive from source. It may seek to arbitrary
// positions.
func OpenZipReader(source io.ReadSeeker) (*ZipReader, error) {
	zr := &ZipReader{
		File:   make(map[string]*ZipReaderFile),
		source: source,
	}

	wrapped := &readAtWrapper{ReadSeeker: source}
	if info, err := readCentralDirectory(wrapped); err == nil {
		zr.addCentralDirectoryEntries(wrapped, info)
		return zr, nil
	}

	// No usable central directory; scan for raw local file headers the way
	// the platform's lenient loader effectively does.
	if _, err := wrapped.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := zr.scanLocalHeaders(wrapped); err != nil {
		return nil, err
	}
	return zr, nil
}

func (zr *ZipReader) addCentralDirectoryEntries(source io.ReadSeeker, info *zip.Reader) {
	for i, zf := range info.File {
		if zf.Method != zip.Store && zf.Method != zip.Deflate {
			// Android treats unknown methods as deflate, except the resource
			// streams it maps directly.
			switch zf.Name {
			case "AndroidManifest.xml", "resources.arsc":
				info.File[i].Method = zip.Store
				info.File[i].CompressedSize64 = info.File[i].UncompressedSize64
			default:
				info.File[i].Method = zip.Deflate
			}
		}

		name := path.Clean(zf.Name)
		if zr.File[name] != nil {
			continue
		}
		entry := &ZipReaderFile{
			Name:     name,
			IsDir:    zf.FileInfo().IsDir(),
			source:   source,
			zipEntry: zf,
		}
		zr.File[name] = entry
		zr.FilesOrdered = append(zr.FilesOrdered, entry)
	}
}

var localHeaderMagic = []byte{0x50, 0x4B, 0x03, 0x04}

func (zr *ZipReader) scanLocalHeaders(source *readAtWrapper) error {
	var pos int64
	for {
		offset, err := findNextLocalHeader(source, pos)
		if err != nil || offset < 0 {
			return err
		}

		var header [30]byte
		if _, err := source.ReadAt(header[:], offset); err != nil {
			return nil
		}
		method := binary.LittleEndian.Uint16(header[8:])
		nameLen := int64(binary.LittleEndian.Uint16(header[26:]))
		extraLen := int64(binary.LittleEndian.Uint16(header[28:]))

		nameBuf := make([]byte, nameLen)
		if _, err := source.ReadAt(nameBuf, offset+30); err != nil {
			return nil
		}
		name := path.Clean(string(nameBuf))

		entry := zr.File[name]
		if entry == nil {
			entry = &ZipReaderFile{Name: name, source: source, current: -1}
			zr.File[name] = entry
		}
		zr.FilesOrdered = append(zr.FilesOrdered, entry)

		// Later duplicates win on Android, so newer entries go first.
		entry.rawEntries = append([]rawZipEntry{{
			offset: offset + 30 + nameLen + extraLen,
			method: method,
		}}, entry.rawEntries...)

		pos = offset + int64(len(localHeaderMagic))
	}
}

func findNextLocalHeader(source io.ReaderAt, from int64) (int64, error) {
	buf := make([]byte, 64*1024)
	carry := 0
	for {
		n, err := source.ReadAt(buf[carry:], from)
		n += carry
		if n == 0 {
			if err == io.EOF || err == nil {
				return -1, nil
			}
			return -1, err
		}
		if idx := bytes.Index(buf[:n], localHeaderMagic); idx >= 0 {
			return from - int64(carry) + int64(idx), nil
		}
		if err != nil {
			if err == io.EOF {
				return -1, nil
			}
			return -1, err
		}
		// Keep a magic-sized tail so a match split across reads still hits.
		carry = len(localHeaderMagic) - 1
		copy(buf, buf[n-carry:n])
		from += int64(n - carry)
	}
}

// Open prepares the entry for reading. Iterate its physical entries with
// Next.
func (zf *ZipReaderFile) Open() error {
	if zf.reader != nil {
		return errors.New("entry is already open")
	}
	if zf.zipEntry != nil {
		rc, err := zf.zipEntry.Open()
		if err != nil {
			return err
		}
		zf.current = 0
		zf.reader = rc
		zf.closer = rc
		return nil
	}
	zf.current = -1
	return nil
}

// Next moves to the entry's next physical copy. It returns false when none
// remain.
func (zf *ZipReaderFile) Next() bool {
	if len(zf.rawEntries) == 0 && zf.reader != nil {
		zf.current++
		return zf.current == 1
	}

	zf.Close()
	if zf.current+1 >= len(zf.rawEntries) {
		return false
	}
	zf.current++
	return true
}

func (zf *ZipReaderFile) Read(p []byte) (int, error) {
	if zf.reader == nil {
		if zf.current == -1 && !zf.Next() {
			return 0, io.ErrUnexpectedEOF
		}
		if zf.current >= len(zf.rawEntries) {
			return 0, io.ErrUnexpectedEOF
		}
		raw := zf.rawEntries[zf.current]
		if _, err := zf.source.Seek(raw.offset, io.SeekStart); err != nil {
			return 0, err
		}
		if raw.method == zip.Store {
			zf.reader = zf.source
		} else {
			// Everything but 0 deflates on Android.
			rc := flate.NewReader(zf.source)
			zf.reader = rc
			zf.closer = rc
		}
	}
	return zf.reader.Read(p)
}

// ReadAll opens the entry and returns the first physical copy that reads
// fully, up to limit bytes.
func (zf *ZipReaderFile) ReadAll(limit int64) ([]byte, error) {
	if err := zf.Open(); err != nil {
		return nil, err
	}
	defer zf.Close()

	var lastErr error
	for zf.Next() {
		data, err := io.ReadAll(io.LimitReader(zf, limit))
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return nil, lastErr
}

// ZipHeader returns the central directory header, when one existed.
func (zf *ZipReaderFile) ZipHeader() *zip.FileHeader {
	if zf.zipEntry != nil {
		return &zf.zipEntry.FileHeader
	}
	return nil
}

// Close closes the currently open physical entry.
func (zf *ZipReaderFile) Close() error {
	if zf.reader != nil {
		if zf.closer != nil {
			zf.closer.Close()
			zf.closer = nil
		}
		zf.reader = nil
	}
	return nil
}

// Close closes the archive and every open entry.
func (zr *ZipReader) Close() error {
	if zr.source == nil {
		return nil
	}
	for _, zf := range zr.File {
		zf.Close()
	}
	var err error
	if zr.owned != nil {
		err = zr.owned.Close()
		zr.owned = nil
	}
	zr.source = nil
	return err
}

func readCentralDirectory(f *readAtWrapper) (r *zip.Reader, err error) {
	defer func() {
		if pn := recover(); pn != nil {
			err = errors.Errorf("panic while reading central directory: %v", pn)
			r = nil
		}
	}()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	r, err = zip.NewReader(f, size)
	if err != nil {
		return nil, err
	}
	r.RegisterDecompressor(zip.Deflate, newPooledFlateReader)
	return r, nil
}

// readAtWrapper adds ReadAt on top of a ReadSeeker, preserving its position.
type readAtWrapper struct {
	io.ReadSeeker
}

func (wr *readAtWrapper) ReadAt(b []byte, off int64) (int, error) {
	if ra, ok := wr.ReadSeeker.(io.ReaderAt); ok {
		return ra.ReadAt(b, off)
	}

	old, err := wr.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if _, err = wr.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := wr.Read(b)
	if _, serr := wr.Seek(old, io.SeekStart); err == nil {
		err = serr
	}
	return n, err
}

var flateReaderPool sync.Pool

func newPooledFlateReader(r io.Reader) io.ReadCloser {
	fr, ok := flateReaderPool.Get().(io.ReadCloser)
	if ok {
		fr.(flate.Resetter).Reset(r, nil)
	} else {
		fr = flate.NewReader(r)
	}
	return &pooledFlateReader{fr: fr}
}

// pooledFlateReader returns its flate reader to the pool on Close.
type pooledFlateReader struct {
	mu sync.Mutex
	fr io.ReadCloser
}

func (r *pooledFlateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fr == nil {
		return 0, errors.New("read after close")
	}
	return r.fr.Read(p)
}

func (r *pooledFlateReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.fr != nil {
		err = r.fr.Close()
		flateReaderPool.Put(r.fr)
		r.fr = nil
	}
	return err
}
