package models

import (
	"time"

	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/domain/product"
)

// PipelineRunModel records one execution of the sync and categorization job.
type PipelineRunModel struct {
	ID          string     `gorm:"type:varchar(26);primaryKey"`
	Trigger     string     `gorm:"type:varchar(50);not null"`
	Status      string     `gorm:"type:varchar(20);not null;index"`
	StartedAt   time.Time  `gorm:"not null;index"`
	FinishedAt  *time.Time
	Created     int        `gorm:"not null;default:0"`
	Updated     int        `gorm:"not null;default:0"`
	Deactivated int        `gorm:"not null;default:0"`
	Skipped     int        `gorm:"not null;default:0"`
	Orphans     int        `gorm:"not null;default:0"`
	Classified  int        `gorm:"not null;default:0"`
	Error       string     `gorm:"type:text"`
}

// TableName returns the table name for the model
func (PipelineRunModel) TableName() string {
	return "pipeline_runs"
}

// ToDomain converts the model to a domain run
func (m *PipelineRunModel) ToDomain() pipeline.Run {
	return pipeline.Run{
		ID:         m.ID,
		Trigger:    m.Trigger,
		Status:     pipeline.RunStatus(m.Status),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Sync: product.SyncResult{
			Created:     m.Created,
			Updated:     m.Updated,
			Deactivated: m.Deactivated,
			Skipped:     m.Skipped,
		},
		Orphans:    m.Orphans,
		Classified: m.Classified,
		Error:      m.Error,
	}
}

// PipelineRunModelFromDomain creates a model from a domain run
func PipelineRunModelFromDomain(r *pipeline.Run) *PipelineRunModel {
	return &PipelineRunModel{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Created:     r.Sync.Created,
		Updated:     r.Sync.Updated,
		Deactivated: r.Sync.Deactivated,
		Skipped:     r.Sync.Skipped,
		Orphans:     r.Orphans,
		Classified:  r.Classified,
		Error:       r.Error,
	}
}

// All returns every model of the schema, in dependency order.
func All() []any {
	return []any{
		&CatalogProductModel{},
		&CatalogChildModel{},
		&ProductAICategoryModel{},
		&ExportConfigurationModel{},
		&TaxonomyEntryModel{},
		&AIUsageEventModel{},
		&FunctionEventModel{},
		&PipelineRunModel{},
	}
}
