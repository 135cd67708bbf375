package handlers

import (
	"path/filepath"
	"strings"

	"bess-impact/internal/config"
	"bess-impact/internal/data"
	"bess-impact/internal/model"
)

// Scenarios turns request config maps into validated scenarios and their
// datasets. Datasets come from the catalog and storage presets from StorageDir.
type Scenarios struct {
	Catalog    *data.Catalog
	StorageDir string
}

func (s *Scenarios) Build(overrides map[string]any) (*config.ScenarioConfig, *model.Dataset, error) {
	c := &config.ScenarioConfig{}
	if err := config.ApplyOverrides(c, overrides); err != nil {
		return nil, nil, err
	}

	// If storage_file is set, load the preset and merge request keys onto it
	if c.StorageFile != "" {
		path, err := s.storagePath(c.StorageFile)
		if err != nil {
			return nil, nil, err
		}
		loaded, err := config.LoadStorageFile(path)
		if err != nil {
			return nil, nil, model.ConfigErrorf("STORAGE_FILE", "storage preset %q: %v", c.StorageFile, err)
		}
		c.StorageConfig = config.MergeStorage(loaded, c.StorageConfig)
	}

	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		if _, ok := model.ClassOf(err); !ok {
			err = model.ConfigErrorf("CONFIG", "%v", err)
		}
		return nil, nil, err
	}
	ds, err := s.Catalog.LoadAll(c.Datasets)
	if err != nil {
		return nil, nil, err
	}
	return c, ds, nil
}

// storagePath resolves a preset id (file name without extension) inside StorageDir.
func (s *Scenarios) storagePath(id string) (string, error) {
	if id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", model.ConfigErrorf("STORAGE_FILE", "invalid storage preset %q", id)
	}
	if !strings.HasSuffix(id, ".yaml") {
		id += ".yaml"
	}
	return filepath.Join(s.StorageDir, id), nil
}

// mergeConfig overlays override onto base. Nested maps (per-neighbor and
// per-technology keys) merge one level deep.
func mergeConfig(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		bm, okBase := merged[k].(map[string]any)
		om, okOver := v.(map[string]any)
		if okBase && okOver {
			m := make(map[string]any, len(bm)+len(om))
			for kk, vv := range bm {
				m[kk] = vv
			}
			for kk, vv := range om {
				m[kk] = vv
			}
			merged[k] = m
			continue
		}
		merged[k] = v
	}
	return merged
}
