// Package taxonomy holds export configurations and the category entries
// an export configuration accepts as classification targets.
package taxonomy

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrEmptyExportID = errors.New("taxonomy: export id is required")
	ErrEmptyEntryID  = errors.New("taxonomy: entry id is required")
	ErrEmptyLabel    = errors.New("taxonomy: entry label is required")
)

// ExportConfiguration is a categorization target, e.g. one customer-facing catalog.
type ExportConfiguration struct {
	ID                      string `json:"_id"`
	Name                    string `json:"name"`
	AICategorizationEnabled bool   `json:"aiCategorizationEnabled"`
}

// Entry is one valid category of an export configuration.
type Entry struct {
	ID       string `json:"id"`
	ExportID string `json:"exportId"`
	Label    string `json:"label"`
}

// Validate checks that the entry is usable as a classification target.
func (e Entry) Validate() error {
	if e.ID == "" {
		return ErrEmptyEntryID
	}
	if strings.TrimSpace(e.Label) == "" {
		return ErrEmptyLabel
	}
	return nil
}

// Index resolves category ids to labels for one taxonomy.
type Index struct {
	labels map[string]string
}

// NewIndex builds an index over entries. Later duplicates overwrite earlier ones.
func NewIndex(entries []Entry) Index {
	labels := make(map[string]string, len(entries))
	for _, e := range entries {
		labels[e.ID] = e.Label
	}
	return Index{labels: labels}
}

// Label returns the label for id.
func (i Index) Label(id string) (string, bool) {
	l, ok := i.labels[id]
	return l, ok
}

// Len returns the number of distinct entries.
func (i Index) Len() int {
	return len(i.labels)
}

// FilterByLabelPrefix keeps the entries whose label starts with prefix.
// An empty prefix keeps everything.
func FilterByLabelPrefix(entries []Entry, prefix string) []Entry {
	if prefix == "" {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Label, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Registry supplies export configurations and their taxonomies.
// Callers must not cache results across runs.
type Registry interface {
	ListAIEnabledConfigs(ctx context.Context) ([]ExportConfiguration, error)
	GetTaxonomy(ctx context.Context, exportID string) ([]Entry, error)
}

// Repository extends Registry with the read queries of the HTTP API.
type Repository interface {
	Registry
	ListConfigs(ctx context.Context) ([]ExportConfiguration, error)
	GetConfig(ctx context.Context, id string) (*ExportConfiguration, error)
	ListEntries(ctx context.Context) ([]Entry, error)
}
