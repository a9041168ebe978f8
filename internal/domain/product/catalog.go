package product

import (
	"context"
	"encoding/json"
	"time"
)

// AICategory is the classification of a product for one export configuration.
// A catalog record holds at most one AICategory per ExportID.
type AICategory struct {
	ExportID     string `json:"exportId"`
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
}

// CatalogRecord is the persisted form of a parent Record.
type CatalogRecord struct {
	Record
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	AICategories []AICategory
}

// CategoryFor returns the classification for the export configuration, if any.
func (c CatalogRecord) CategoryFor(exportID string) (AICategory, bool) {
	for _, cat := range c.AICategories {
		if cat.ExportID == exportID {
			return cat, true
		}
	}
	return AICategory{}, false
}

// MarshalJSON renders the catalog document: mapped fields plus lifecycle fields.
func (c CatalogRecord) MarshalJSON() ([]byte, error) {
	doc := c.Record.document()
	doc["active"] = c.Active
	doc["createdAt"] = c.CreatedAt
	doc["updatedAt"] = c.UpdatedAt
	categories := c.AICategories
	if categories == nil {
		categories = []AICategory{}
	}
	doc["ai_categories"] = categories
	return json.Marshal(doc)
}

// SyncResult reports the outcome of one catalog synchronization.
type SyncResult struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
	// Skipped counts incoming parents that failed validation and were not written.
	Skipped int `json:"skipped"`
}

// CatalogRepository is the persistence port for catalog records.
type CatalogRepository interface {
	// DeactivateMissing marks every active record whose code is not in codes as inactive.
	DeactivateMissing(ctx context.Context, codes []string, now time.Time) (int, error)
	// Upsert inserts or replaces records by code, forcing active and leaving AI categories untouched.
	Upsert(ctx context.Context, records []Record, now time.Time) (created int, updated int, err error)
	// FindAll returns every catalog record, active or not.
	FindAll(ctx context.Context) ([]CatalogRecord, error)
	// FindByCode matches the parent code first, then child codes.
	FindByCode(ctx context.Context, code string) (*CatalogRecord, error)
}
