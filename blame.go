package arscparser

import "github.com/pkg/errors"

// ResourceEntry names one logical resource: package, type and entry name.
// The same ResourceEntry covers every configuration of that resource.
type ResourceEntry struct {
	Package string
	Type    string
	Name    string
}

// Blamer attributes resource table weight to the entries responsible for it:
// which entries keep a configuration alive, which reference each global
// string, and which have no default-configuration value.
type Blamer struct {
	table *ResourceTableChunk

	resourceEntries map[ResourceEntry][]*TypeEntry
	typeChunks      []*TypeChunk

	blamed         bool
	keyToBlame     map[string][][]ResourceEntry
	typeToBlame    map[string][][]ResourceEntry
	packageToBlame map[string][]ResourceEntry
	stringToBlame  [][]ResourceEntry
}

// NewBlamer creates a blamer over the given resource table.
func NewBlamer(table *ResourceTableChunk) *Blamer {
	return &Blamer{table: table}
}

// TypeChunks returns every type chunk in the table.
func (b *Blamer) TypeChunks() []*TypeChunk {
	if b.typeChunks != nil {
		return b.typeChunks
	}
	for _, pkg := range b.table.Packages() {
		b.typeChunks = append(b.typeChunks, pkg.TypeChunks()...)
	}
	return b.typeChunks
}

// ResourceEntries maps every logical resource to the per-configuration type
// chunk entries it owns.
func (b *Blamer) ResourceEntries() (map[ResourceEntry][]*TypeEntry, error) {
	if b.resourceEntries != nil {
		return b.resourceEntries, nil
	}
	result := make(map[ResourceEntry][]*TypeEntry)
	for _, typeChunk := range b.TypeChunks() {
		typeName, err := typeChunk.TypeName()
		if err != nil {
			return nil, errors.Wrap(err, "resolve type name")
		}
		pkg := typeChunk.PackageChunk()
		if pkg == nil {
			return nil, errors.Errorf("type chunk %d has no package", typeChunk.ID())
		}
		for _, entry := range typeChunk.Entries() {
			key, err := entry.Key()
			if err != nil {
				return nil, errors.Wrap(err, "resolve entry key")
			}
			re := ResourceEntry{Package: pkg.PackageName(), Type: typeName, Name: key}
			result[re] = append(result[re], entry)
		}
	}
	b.resourceEntries = result
	return result, nil
}

// BaselessKeys returns the resources that have no value in the default
// configuration. Each survives only through configuration-specific entries.
func (b *Blamer) BaselessKeys() (map[ResourceEntry][]*TypeEntry, error) {
	entries, err := b.ResourceEntries()
	if err != nil {
		return nil, err
	}
	result := make(map[ResourceEntry][]*TypeEntry)
	for re, chunkEntries := range entries {
		hasBase := false
		for _, entry := range chunkEntries {
			if entry.Parent().Configuration().IsDefault() {
				hasBase = true
				break
			}
		}
		if !hasBase {
			result[re] = chunkEntries
		}
	}
	return result, nil
}

// Blame generates the blame mappings. It must run before the accessors
// below.
func (b *Blamer) Blame() error {
	if b.blamed {
		return nil
	}
	entries, err := b.ResourceEntries()
	if err != nil {
		return err
	}

	b.keyToBlame = make(map[string][][]ResourceEntry)
	b.typeToBlame = make(map[string][][]ResourceEntry)
	b.packageToBlame = make(map[string][]ResourceEntry)
	b.stringToBlame = make([][]ResourceEntry, b.table.StringPool().StringCount())

	for re, chunkEntries := range entries {
		pkg := b.table.Package(re.Package)
		if pkg == nil {
			return errors.Errorf("package %q disappeared from the table", re.Package)
		}
		name := pkg.PackageName()
		if _, ok := b.keyToBlame[name]; !ok {
			b.keyToBlame[name] = make([][]ResourceEntry, pkg.KeyStringPool().StringCount())
			b.typeToBlame[name] = make([][]ResourceEntry, pkg.TypeStringPool().StringCount())
		}
		for _, entry := range chunkEntries {
			if entry.KeyIndex < len(b.keyToBlame[name]) {
				b.keyToBlame[name][entry.KeyIndex] = append(b.keyToBlame[name][entry.KeyIndex], re)
			}
			typeIdx := entry.Parent().ID() - 1
			if typeIdx >= 0 && typeIdx < len(b.typeToBlame[name]) {
				b.typeToBlame[name][typeIdx] = append(b.typeToBlame[name][typeIdx], re)
			}
			b.blameStrings(entry, re)
		}
		b.packageToBlame[name] = append(b.packageToBlame[name], re)
	}
	b.blamed = true
	return nil
}

// blameStrings attributes every string-typed value of an entry to re. A
// complex entry can carry the same value under several attribute ids; each
// distinct value is blamed once, or the entry would count double against a
// string it references.
func (b *Blamer) blameStrings(entry *TypeEntry, re ResourceEntry) {
	values := make(map[ResourceValue]bool)
	if entry.Value != nil {
		values[*entry.Value] = true
	}
	for _, mv := range entry.Values {
		values[mv.Value] = true
	}
	for v := range values {
		if v.Type != TypeString {
			continue
		}
		if idx := int(v.Data); idx >= 0 && idx < len(b.stringToBlame) {
			b.stringToBlame[idx] = append(b.stringToBlame[idx], re)
		}
	}
}

// KeyToBlamedResources maps package name to, per key pool index, the
// resources blamed on that key. Blame must have run.
func (b *Blamer) KeyToBlamedResources() map[string][][]ResourceEntry {
	return b.keyToBlame
}

// TypeToBlamedResources maps package name to, per type pool index, the
// resources blamed on that type. Blame must have run.
func (b *Blamer) TypeToBlamedResources() map[string][][]ResourceEntry {
	return b.typeToBlame
}

// PackageToBlamedResources maps package name to its resources. Blame must
// have run.
func (b *Blamer) PackageToBlamedResources() map[string][]ResourceEntry {
	return b.packageToBlame
}

// StringToBlamedResources maps every global pool index to the resources
// whose values reference it. Blame must have run.
func (b *Blamer) StringToBlamedResources() [][]ResourceEntry {
	return b.stringToBlame
}
