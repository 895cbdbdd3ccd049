package arscparser

import (
	"io"
	"os"
	"regexp"

	"github.com/pkg/errors"
)

// Apk gives access to the compiled resource streams of one application
// package.
type Apk struct {
	zip *ZipReader

	table *ResourceTableChunk
}

// OpenApk opens an APK for resource inspection. resources.arsc is parsed
// eagerly when present; a missing or broken resource table is not fatal
// because the manifest can still be decoded without reference resolving.
func OpenApk(path string) (*Apk, error) {
	zip, err := OpenZip(path)
	if err != nil {
		return nil, errors.Wrap(err, "open apk")
	}
	a := &Apk{zip: zip}
	// A table error is not kept; Table reports it again when called.
	_, _ = a.Table()
	return a, nil
}

// Close releases the underlying archive.
func (a *Apk) Close() error {
	return a.zip.Close()
}

// Zip exposes the underlying archive reader.
func (a *Apk) Zip() *ZipReader {
	return a.zip
}

// File reads one archive entry fully.
func (a *Apk) File(name string) ([]byte, error) {
	zf := a.zip.File[name]
	if zf == nil {
		return nil, errors.Wrapf(os.ErrNotExist, "entry %s", name)
	}
	data, err := zf.ReadAll(512 * 1024 * 1024)
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %s", name)
	}
	return data, nil
}

// Table parses and caches the APK's resource table.
func (a *Apk) Table() (*ResourceTableChunk, error) {
	if a.table != nil {
		return a.table, nil
	}
	data, err := a.File("resources.arsc")
	if err != nil {
		return nil, err
	}
	file, err := ParseResourceFile(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse resources.arsc")
	}
	table := file.Table()
	if table == nil {
		return nil, errors.New("resources.arsc has no resource table chunk")
	}
	a.table = table
	return table, nil
}

// Manifest decodes AndroidManifest.xml to text XML, resolving references
// through the resource table when one is available.
func (a *Apk) Manifest(enc ManifestEncoder) error {
	data, err := a.File("AndroidManifest.xml")
	if err != nil {
		return err
	}
	table, _ := a.Table()
	return DecodeXml(data, enc, table)
}

// resourceFilePattern matches the entries that hold compiled resource
// streams. xml files under res/raw/ are not compiled and are excluded by the
// caller.
var resourceFilePattern = regexp.MustCompile(`(.*?\.arsc)|(AndroidManifest\.xml)|(res/.*?\.xml)`)

// ResourceFiles returns the name and bytes of every archive entry matching
// resourceFilePattern: *.arsc, the manifest and res/*.xml. Uncompiled
// res/raw/*.xml entries match too and are returned with the rest.
func (a *Apk) ResourceFiles() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for _, zf := range a.zip.FilesOrdered {
		if zf.IsDir || !resourceFilePattern.MatchString(zf.Name) {
			continue
		}
		if _, seen := result[zf.Name]; seen {
			continue
		}
		data, err := a.File(zf.Name)
		if err != nil {
			if errors.Cause(err) == io.ErrUnexpectedEOF {
				continue
			}
			return nil, err
		}
		result[zf.Name] = data
	}
	return result, nil
}
