package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"gopkg.in/yaml.v3"
)

// ErrTaxonomyFile is returned when a taxonomy file cannot be decoded.
var ErrTaxonomyFile = errors.New("filestore: invalid taxonomy file")

// taxonomyFile is the shape of an exported category tree, as JSON or YAML:
//
//	items:
//	  - id: 101
//	    label: Katalog > Kuhinja
type taxonomyFile struct {
	Items []taxonomyItem `yaml:"items" json:"items"`
}

type taxonomyItem struct {
	ID    scalarID `yaml:"id" json:"id"`
	Label string   `yaml:"label" json:"label"`
}

// scalarID accepts numeric and string ids alike.
type scalarID string

func (s *scalarID) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: id at line %d is not a scalar", ErrTaxonomyFile, value.Line)
	}
	*s = scalarID(value.Value)
	return nil
}

func (s *scalarID) UnmarshalJSON(data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch id := v.(type) {
	case string:
		*s = scalarID(id)
	case json.Number:
		*s = scalarID(id.String())
	default:
		return fmt.Errorf("%w: id %s is not a scalar", ErrTaxonomyFile, data)
	}
	return nil
}

// FileTaxonomyRegistry serves one export configuration whose taxonomy is a
// file. The file is read on every call.
type FileTaxonomyRegistry struct {
	path        string
	exportID    string
	name        string
	labelPrefix string
}

// NewFileTaxonomyRegistry creates a registry for exportID. When labelPrefix is
// set only entries whose label starts with it are valid targets.
func NewFileTaxonomyRegistry(path, exportID, labelPrefix string) *FileTaxonomyRegistry {
	return &FileTaxonomyRegistry{
		path:        path,
		exportID:    exportID,
		name:        exportID,
		labelPrefix: labelPrefix,
	}
}

// ListAIEnabledConfigs returns the single file-backed configuration.
func (r *FileTaxonomyRegistry) ListAIEnabledConfigs(context.Context) ([]taxonomy.ExportConfiguration, error) {
	return []taxonomy.ExportConfiguration{{
		ID:                      r.exportID,
		Name:                    r.name,
		AICategorizationEnabled: true,
	}}, nil
}

// GetTaxonomy reads the file. Other export ids have no taxonomy.
func (r *FileTaxonomyRegistry) GetTaxonomy(_ context.Context, exportID string) ([]taxonomy.Entry, error) {
	if exportID == "" {
		return nil, taxonomy.ErrEmptyExportID
	}
	if exportID != r.exportID {
		return nil, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	entries, err := ParseTaxonomy(data, exportID)
	if err != nil {
		return nil, err
	}
	return taxonomy.FilterByLabelPrefix(entries, r.labelPrefix), nil
}

// ParseTaxonomy decodes a JSON or YAML taxonomy document and stamps exportID
// on each entry.
func ParseTaxonomy(data []byte, exportID string) ([]taxonomy.Entry, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var file taxonomyFile
	var err error
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTaxonomyFile, err)
	}

	entries := make([]taxonomy.Entry, 0, len(file.Items))
	for i, item := range file.Items {
		e := taxonomy.Entry{ID: string(item.ID), ExportID: exportID, Label: item.Label}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrTaxonomyFile, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
