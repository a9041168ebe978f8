package config

import (
	"fmt"
	"io"
	"os"

	"github.com/pnv/catalog-sync/internal/domain/mapping"
	"gopkg.in/yaml.v3"
)

// overlayFile is the YAML shape of a mapping overlay:
//
//	rules:
//	  - field: brand
//	    column: Znamka
//	    transform: trim
//	  - field: gallery
//	    columns: [Slika 1, Slika 2]
type overlayFile struct {
	Rules []overlayRule `yaml:"rules"`
}

type overlayRule struct {
	Field     string   `yaml:"field"`
	Column    string   `yaml:"column"`
	Columns   []string `yaml:"columns"`
	Transform string   `yaml:"transform"`
}

// ParseMappingOverlay decodes overlay rules. Direct rules may name one of the
// registered transforms; collected rules take their columns as is.
func ParseMappingOverlay(r io.Reader) ([]mapping.Rule, error) {
	var file overlayFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode mapping overlay: %w", err)
	}

	rules := make([]mapping.Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		switch {
		case r.Column != "" && len(r.Columns) > 0:
			return nil, fmt.Errorf("mapping overlay rule %d (%s): column and columns are exclusive", i, r.Field)
		case len(r.Columns) > 0:
			if r.Transform != "" {
				return nil, fmt.Errorf("mapping overlay rule %d (%s): collected rules take no transform", i, r.Field)
			}
			rules = append(rules, mapping.Collected{Columns: r.Columns, Name: r.Field})
		default:
			rule := mapping.Direct{Column: r.Column, Name: r.Field}
			if r.Transform != "" {
				fn, ok := mapping.LookupTransform(r.Transform)
				if !ok {
					return nil, fmt.Errorf("mapping overlay rule %d (%s): unknown transform %q", i, r.Field, r.Transform)
				}
				rule.Transform = fn
			}
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// BuildMappingTable returns the PNV table with the configured overlay applied.
func (m MappingConfig) BuildMappingTable() (*mapping.Table, error) {
	table := mapping.PNVTable()
	if m.OverlayFile == "" {
		return table, nil
	}
	f, err := os.Open(m.OverlayFile)
	if err != nil {
		return nil, fmt.Errorf("open mapping overlay: %w", err)
	}
	defer f.Close()

	rules, err := ParseMappingOverlay(f)
	if err != nil {
		return nil, err
	}
	return table.With(rules...)
}
