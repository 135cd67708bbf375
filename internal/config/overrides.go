package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"bess-impact/internal/model"
)

// ParseOverrides turns key=value pairs into an override map. Values are read
// as YAML scalars or flow sequences ("5000", "true", "[500, 1000]"). A dotted
// key addresses a map entry: max_export_mw.ro=2000.
func ParseOverrides(pairs []string) (map[string]any, error) {
	out := make(map[string]any)
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, model.ConfigErrorf("OVERRIDE", "override %q is not key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, model.ConfigErrorf("OVERRIDE", "override %s: %v", key, err)
		}
		if parent, child, nested := strings.Cut(key, "."); nested {
			m, _ := out[parent].(map[string]any)
			if m == nil {
				m = make(map[string]any)
				out[parent] = m
			}
			m[child] = v
			continue
		}
		out[key] = v
	}
	return out, nil
}

// ApplyOverrides decodes overrides onto c using the YAML key names.
// Unknown keys are an error. Map entries merge into existing maps.
func ApplyOverrides(c *ScenarioConfig, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Squash:           true,
		Result:           c,
	})
	if err != nil {
		return fmt.Errorf("override decoder: %w", err)
	}
	if err := dec.Decode(overrides); err != nil {
		return model.ConfigErrorf("OVERRIDE", "apply overrides: %v", err)
	}
	return nil
}
