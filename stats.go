package arscparser

import "github.com/pkg/errors"

const (
	// Size in bytes of one offset table entry.
	offsetSize = 4

	// Style region overhead in a string pool: the two trailing sentinels.
	styleOverhead = 8

	// Package chunk bytes outside the header that belong to no child chunk.
	packageChunkOverhead = 8
)

// ResourceStatistics is the byte accounting for one resource entry.
type ResourceStatistics struct {
	// PrivateSize is the number of bytes freed if the resource was removed.
	PrivateSize int

	// SharedSize is the number of bytes this resource occupies that are also
	// shared with other resources.
	SharedSize int

	// ProportionalSize is the total size this resource is responsible for,
	// with shared bytes split across their users.
	ProportionalSize float64
}

func (s *ResourceStatistics) addProportional(numerator, denominator int) {
	s.ProportionalSize += float64(numerator) / float64(denominator)
}

// StatsCollector attributes resource table bytes to individual resource
// entries: string pool strings, type chunk entries, spec masks and chunk
// overheads, split into private, shared and proportional shares.
type StatsCollector struct {
	blamer *Blamer
	table  *ResourceTableChunk

	stats map[ResourceEntry]*ResourceStatistics
}

// NewStatsCollector creates a collector over the blamer's resource table.
func NewStatsCollector(blamer *Blamer, table *ResourceTableChunk) *StatsCollector {
	return &StatsCollector{blamer: blamer, table: table}
}

// Compute runs the blame pass and fills the statistics. Call it once.
func (c *StatsCollector) Compute() error {
	if c.stats != nil {
		return errors.New("Compute must only run once")
	}
	c.stats = make(map[ResourceEntry]*ResourceStatistics)
	if err := c.blamer.Blame(); err != nil {
		return err
	}
	if err := c.computePoolSizes(c.table.StringPool(), c.blamer.StringToBlamedResources()); err != nil {
		return err
	}
	return c.computePackageSizes()
}

// Stats returns the computed statistics. Compute must have run.
func (c *StatsCollector) Stats() map[ResourceEntry]*ResourceStatistics {
	return c.stats
}

// StatsFor returns the statistics for one entry, zero when nothing was
// attributed to it.
func (c *StatsCollector) StatsFor(entry ResourceEntry) ResourceStatistics {
	if s, ok := c.stats[entry]; ok {
		return *s
	}
	return ResourceStatistics{}
}

func (c *StatsCollector) computePackageSizes() error {
	for name, usages := range c.blamer.TypeToBlamedResources() {
		pkg := c.table.Package(name)
		if pkg == nil {
			return errors.Errorf("package %q disappeared from the table", name)
		}
		if err := c.computePoolSizes(pkg.TypeStringPool(), usages); err != nil {
			return err
		}
		c.computeTypeSpecSizes(pkg, usages)
	}
	for name, usages := range c.blamer.KeyToBlamedResources() {
		pkg := c.table.Package(name)
		if pkg == nil {
			return errors.Errorf("package %q disappeared from the table", name)
		}
		if err := c.computePoolSizes(pkg.KeyStringPool(), usages); err != nil {
			return err
		}
	}
	if err := c.computeTypeChunkSizes(); err != nil {
		return err
	}
	c.computePackageChunkSizes()
	return nil
}

// computePoolSizes splits a string pool between the resources using its
// strings. Strings nobody is blamed for (e.g. referenced only from XML)
// count as pool overhead.
func (c *StatsCollector) computePoolSizes(pool *StringPoolChunk, usages [][]ResourceEntry) error {
	overhead := pool.HeaderSize()
	if pool.StyleCount() > 0 {
		overhead += styleOverhead
	}

	count := 0
	for i, users := range usages {
		if len(users) > 0 {
			count++
			continue
		}
		size, err := c.stringAndStyleSize(pool, i)
		if err != nil {
			return err
		}
		overhead += size
	}

	for i, users := range usages {
		if len(users) == 0 {
			continue
		}
		size, err := c.stringAndStyleSize(pool, i)
		if err != nil {
			return err
		}
		c.addSizes(users, overhead, size, count)
	}
	return nil
}

func (c *StatsCollector) stringAndStyleSize(pool *StringPoolChunk, index int) (int, error) {
	s, err := pool.String(index)
	if err != nil {
		return 0, err
	}
	encoded, err := encodeString(s, pool.Encoding())
	if err != nil {
		return 0, err
	}
	size := len(encoded) + offsetSize
	if index < pool.StyleCount() {
		style, err := pool.Style(index)
		if err != nil {
			return 0, err
		}
		size += len(style.encode()) + offsetSize
	}
	return size, nil
}

// computeTypeSpecSizes shares each type spec equally between the type's
// resources.
func (c *StatsCollector) computeTypeSpecSizes(pkg *PackageChunk, usages [][]ResourceEntry) {
	for i, users := range usages {
		spec := pkg.TypeSpecChunk(i + 1)
		if spec == nil {
			continue
		}
		c.addSizes(users, spec.OriginalSize(), 0, 1)
	}
}

func (c *StatsCollector) computeTypeChunkSizes() error {
	entries, err := c.blamer.ResourceEntries()
	if err != nil {
		return err
	}
	for re, chunkEntries := range entries {
		for _, entry := range chunkEntries {
			typeChunk := entry.Parent()
			size := entry.Size() + offsetSize
			count := typeChunk.PresentEntryCount()
			overhead := typeChunk.HeaderSize() + typeChunk.NullEntryCount()*offsetSize
			c.addSizes([]ResourceEntry{re}, overhead, size, count)
		}
	}
	return nil
}

func (c *StatsCollector) computePackageChunkSizes() {
	for name, users := range c.blamer.PackageToBlamedResources() {
		pkg := c.table.Package(name)
		if pkg == nil {
			continue
		}
		c.addSizes(users, pkg.HeaderSize()+packageChunkOverhead, 0, 1)
	}
}

// addSizes attributes one value of one chunk to the entries referencing it.
// overhead is the chunk's non-value bytes, size the value's bytes and count
// the number of values in the chunk.
func (c *StatsCollector) addSizes(users []ResourceEntry, overhead, size, count int) {
	usageCount := len(users)
	for _, re := range users {
		stats, ok := c.stats[re]
		if !ok {
			stats = &ResourceStatistics{}
			c.stats[re] = stats
		}
		if usageCount == 1 {
			stats.PrivateSize += size
		} else {
			stats.SharedSize += size
		}
		// A chunk with a single relevant value disappears entirely with its
		// entry.
		if usageCount == 1 && count == 1 {
			stats.PrivateSize += overhead
		}
		stats.addProportional(size, usageCount)
		stats.addProportional(overhead, usageCount*count)
	}
}
