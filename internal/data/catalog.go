package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bess-impact/internal/model"
)

// DatasetInfo summarizes one dataset file.
type DatasetInfo struct {
	Name  string    `json:"name"`
	Zone  string    `json:"zone"`
	Hours int       `json:"hours"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Catalog serves dataset files from one directory, caching parsed datasets.
// Cached datasets are shared; callers must treat them as read-only.
type Catalog struct {
	dir   string
	cache *Cache[*model.Dataset]
}

func NewCatalog(dir string, ttl time.Duration) *Catalog {
	return &Catalog{dir: dir, cache: NewCache[*model.Dataset](ttl)}
}

func (c *Catalog) Close() { c.cache.Close() }

// Load resolves name (a file name without directories) and parses it once per TTL.
func (c *Catalog) Load(name string) (*model.Dataset, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, model.ConfigErrorf("DATASET", "invalid dataset name %q", name)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	key := CacheKey(c.dir, name)
	if ds, ok := c.cache.Get(key); ok {
		return ds, nil
	}
	ds, err := LoadHourlyJSON(filepath.Join(c.dir, name))
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, ds)
	return ds, nil
}

// LoadAll loads names in order and concatenates them. A single name returns
// the cached dataset itself.
func (c *Catalog) LoadAll(names []string) (*model.Dataset, error) {
	if len(names) == 0 {
		return nil, model.ConfigErrorf("DATASET", "no datasets named")
	}
	parts := make([]*model.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := c.Load(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ds)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return Concat(parts...)
}

// List describes every .json dataset in the directory, sorted by name.
func (c *Catalog) List() ([]DatasetInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("list datasets in %s: %w", c.dir, err)
	}
	var out []DatasetInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ds, err := c.Load(e.Name())
		if err != nil {
			return nil, err
		}
		info := DatasetInfo{Name: strings.TrimSuffix(e.Name(), ".json"), Zone: ds.Zone, Hours: len(ds.Hours)}
		if n := len(ds.Hours); n > 0 {
			info.Start, info.End = ds.Hours[0].Time, ds.Hours[n-1].Time
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
