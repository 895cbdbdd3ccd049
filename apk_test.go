package arscparser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestApk assembles a minimal APK containing the synthetic table and
// manifest.
func writeTestApk(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.apk")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	files := map[string][]byte{
		"resources.arsc":      testTable(t),
		"AndroidManifest.xml": buildXmlDocument(t, stringLabel()),
		"res/layout/main.xml": buildXmlDocument(t, stringLabel()),
		"res/raw/notes.xml":   []byte("<notes/>"),
		"classes.dex":         {0x64, 0x65, 0x78},
	}
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestOpenApk(t *testing.T) {
	apk, err := OpenApk(writeTestApk(t))
	require.NoError(t, err)
	defer apk.Close()

	table, err := apk.Table()
	require.NoError(t, err)
	require.NotNil(t, table.Package("com.example.app"))

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	require.NoError(t, apk.Manifest(enc))
	assert.Contains(t, buf.String(), `versionCode="7"`)

	_, err = apk.File("missing.file")
	assert.Error(t, err)
}

func TestApkResourceFiles(t *testing.T) {
	apk, err := OpenApk(writeTestApk(t))
	require.NoError(t, err)
	defer apk.Close()

	files, err := apk.ResourceFiles()
	require.NoError(t, err)
	assert.Contains(t, files, "resources.arsc")
	assert.Contains(t, files, "AndroidManifest.xml")
	assert.Contains(t, files, "res/layout/main.xml")
	assert.Contains(t, files, "res/raw/notes.xml")
	assert.NotContains(t, files, "classes.dex")
}

// Every compiled resource stream in the archive must survive a default
// round-trip byte-for-byte.
func TestApkRoundTripIdentity(t *testing.T) {
	apk, err := OpenApk(writeTestApk(t))
	require.NoError(t, err)
	defer apk.Close()

	files, err := apk.ResourceFiles()
	require.NoError(t, err)
	for name, input := range files {
		if len(name) > 8 && name[:8] == "res/raw/" {
			continue
		}
		file, err := ParseResourceFile(input)
		require.NoError(t, err, name)
		output, err := file.Bytes(OptNone)
		require.NoError(t, err, name)
		assert.True(t, bytes.Equal(input, output), "%s does not round-trip", name)
	}
}
