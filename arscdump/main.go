// Command arscdump inspects the compiled resources of an APK or a bare
// resources.arsc: per-configuration statistics, entry listings, baseless
// keys, manifest decoding and round-trip verification.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin"
	"github.com/avast/arscparser"
	"github.com/pkg/errors"
)

var (
	app    = kingpin.New("arscdump", "Analyzer for Android compiled resources.")
	output = app.Flag("output", "Write to this file instead of stdout.").Short('o').String()

	configsCmd  = app.Command("configs", "Dump one CSV row per (type, configuration) chunk.")
	configsFile = configsCmd.Arg("file", "APK or resources.arsc.").Required().ExistingFile()
	configsKeys = configsCmd.Flag("keys", "Include the entry keys of each chunk.").Bool()

	entriesCmd  = app.Command("entries", "Dump one CSV row per resource entry.")
	entriesFile = entriesCmd.Arg("file", "APK or resources.arsc.").Required().ExistingFile()

	baselessCmd  = app.Command("baseless", "Dump entries that have no default-configuration value.")
	baselessFile = baselessCmd.Arg("file", "APK or resources.arsc.").Required().ExistingFile()

	xmlCmd   = app.Command("xml", "Decode a compiled XML file to text.")
	xmlFile  = xmlCmd.Arg("file", "APK, AndroidManifest.xml or compiled res xml.").Required().ExistingFile()
	xmlEntry = xmlCmd.Flag("entry", "Archive entry to decode.").Default("AndroidManifest.xml").String()

	roundtripCmd  = app.Command("roundtrip", "Re-serialize every resource stream and verify byte equality.")
	roundtripFile = roundtripCmd.Arg("file", "APK or resources.arsc.").Required().ExistingFile()
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatal(err)
		}
		defer f.Close()
		out = f
	}

	var err error
	switch cmd {
	case configsCmd.FullCommand():
		err = dumpConfigs(out, *configsFile, *configsKeys)
	case entriesCmd.FullCommand():
		err = dumpEntries(out, *entriesFile, false)
	case baselessCmd.FullCommand():
		err = dumpEntries(out, *baselessFile, true)
	case xmlCmd.FullCommand():
		err = dumpXml(out, *xmlFile, *xmlEntry)
	case roundtripCmd.FullCommand():
		err = verifyRoundtrip(out, *roundtripFile)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// loadTable reads a resource table from an APK or a bare arsc file.
func loadTable(path string) (*arscparser.ResourceTableChunk, error) {
	if strings.HasSuffix(path, ".arsc") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		file, err := arscparser.ParseResourceFile(data)
		if err != nil {
			return nil, err
		}
		if table := file.Table(); table != nil {
			return table, nil
		}
		return nil, errors.Errorf("%s has no resource table chunk", path)
	}

	apk, err := arscparser.OpenApk(path)
	if err != nil {
		return nil, err
	}
	defer apk.Close()
	return apk.Table()
}

func dumpConfigs(out *os.File, path string, withKeys bool) error {
	table, err := loadTable(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(out)
	header := []string{"Type", "Config", "Size", "Null Entries", "Entry Count", "Density"}
	if withKeys {
		header = append(header, "Keys")
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, pkg := range table.Packages() {
		for _, typeChunk := range pkg.TypeChunks() {
			typeName, err := typeChunk.TypeName()
			if err != nil {
				return errors.Wrap(err, "resolve type name")
			}
			config := typeChunk.Configuration()
			row := []string{
				typeName,
				config.String(),
				strconv.Itoa(typeChunk.OriginalSize()),
				strconv.Itoa(typeChunk.NullEntryCount()),
				strconv.Itoa(typeChunk.TotalEntryCount()),
				strconv.Itoa(int(config.Density)),
			}
			if withKeys {
				keys, err := chunkKeys(typeChunk)
				if err != nil {
					return err
				}
				row = append(row, strings.Join(keys, " "))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func chunkKeys(typeChunk *arscparser.TypeChunk) ([]string, error) {
	var keys []string
	for _, entry := range typeChunk.Entries() {
		key, err := entry.Key()
		if err != nil {
			return nil, errors.Wrap(err, "resolve entry key")
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func dumpEntries(out *os.File, path string, baselessOnly bool) error {
	table, err := loadTable(path)
	if err != nil {
		return err
	}
	blamer := arscparser.NewBlamer(table)

	entries, err := blamer.ResourceEntries()
	if err != nil {
		return err
	}
	if baselessOnly {
		entries, err = blamer.BaselessKeys()
		if err != nil {
			return err
		}
	}

	sorted := make([]arscparser.ResourceEntry, 0, len(entries))
	for re := range entries {
		sorted = append(sorted, re)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})

	collector := arscparser.NewStatsCollector(blamer, table)
	if err := collector.Compute(); err != nil {
		return err
	}

	w := csv.NewWriter(out)
	header := []string{"Type", "Name", "Private Size", "Shared Size", "Proportional Size", "Config Count", "Configs"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, re := range sorted {
		var configs []string
		for _, entry := range entries[re] {
			configs = append(configs, entry.Parent().Configuration().String())
		}
		sort.Strings(configs)
		stats := collector.StatsFor(re)
		row := []string{
			re.Type,
			re.Name,
			strconv.Itoa(stats.PrivateSize),
			strconv.Itoa(stats.SharedSize),
			strconv.FormatFloat(stats.ProportionalSize, 'f', 2, 64),
			strconv.Itoa(len(configs)),
			strings.Join(configs, " "),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func dumpXml(out *os.File, path, entry string) error {
	enc := xml.NewEncoder(out)
	enc.Indent("", "    ")

	if strings.HasSuffix(path, ".apk") {
		apk, err := arscparser.OpenApk(path)
		if err != nil {
			return err
		}
		defer apk.Close()
		data, err := apk.File(entry)
		if err != nil {
			return err
		}
		table, _ := apk.Table()
		if err := arscparser.DecodeXml(data, enc, table); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := arscparser.DecodeXml(data, enc, nil); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}

func verifyRoundtrip(out *os.File, path string) error {
	files := make(map[string][]byte)
	if strings.HasSuffix(path, ".apk") {
		apk, err := arscparser.OpenApk(path)
		if err != nil {
			return err
		}
		defer apk.Close()
		files, err = apk.ResourceFiles()
		if err != nil {
			return err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[path] = data
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := 0
	for _, name := range names {
		if strings.HasPrefix(name, "res/raw/") {
			continue
		}
		input := files[name]
		file, err := arscparser.ParseResourceFile(input)
		if err != nil {
			failures++
			fmt.Fprintf(out, "FAIL %s: %s\n", name, err.Error())
			continue
		}
		output, err := file.Bytes(arscparser.OptNone)
		if err != nil {
			failures++
			fmt.Fprintf(out, "FAIL %s: %s\n", name, err.Error())
			continue
		}
		if !bytes.Equal(input, output) {
			failures++
			fmt.Fprintf(out, "FAIL %s: output differs (%d -> %d bytes)\n", name, len(input), len(output))
			continue
		}
		fmt.Fprintf(out, "OK   %s (%d bytes)\n", name, len(input))
	}
	if failures > 0 {
		return errors.Errorf("%d of %d files did not round-trip", failures, len(names))
	}
	return nil
}
