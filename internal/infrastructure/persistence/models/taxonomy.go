package models

import (
	"time"

	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
)

// ExportConfigurationModel is a categorization target.
type ExportConfigurationModel struct {
	ID                      string    `gorm:"type:varchar(100);primaryKey"`
	Name                    string    `gorm:"type:varchar(200);not null"`
	AICategorizationEnabled bool      `gorm:"not null;default:false;index"`
	CreatedAt               time.Time `gorm:"autoCreateTime"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the table name for the model
func (ExportConfigurationModel) TableName() string {
	return "export_configurations"
}

// ToDomain converts the model to a domain export configuration
func (m *ExportConfigurationModel) ToDomain() taxonomy.ExportConfiguration {
	return taxonomy.ExportConfiguration{
		ID:                      m.ID,
		Name:                    m.Name,
		AICategorizationEnabled: m.AICategorizationEnabled,
	}
}

// ExportConfigurationModelFromDomain creates a model from a domain export configuration
func ExportConfigurationModelFromDomain(c taxonomy.ExportConfiguration) *ExportConfigurationModel {
	return &ExportConfigurationModel{
		ID:                      c.ID,
		Name:                    c.Name,
		AICategorizationEnabled: c.AICategorizationEnabled,
	}
}

// TaxonomyEntryModel is one category accepted by an export configuration.
type TaxonomyEntryModel struct {
	ID        string    `gorm:"type:varchar(100);primaryKey"`
	ExportID  string    `gorm:"type:varchar(100);primaryKey;index"`
	Label     string    `gorm:"type:varchar(500);not null"`
	Position  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for the model
func (TaxonomyEntryModel) TableName() string {
	return "taxonomy_entries"
}

// ToDomain converts the model to a domain taxonomy entry
func (m *TaxonomyEntryModel) ToDomain() taxonomy.Entry {
	return taxonomy.Entry{ID: m.ID, ExportID: m.ExportID, Label: m.Label}
}
