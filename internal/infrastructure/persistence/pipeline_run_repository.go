package persistence

import (
	"context"
	"fmt"

	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPipelineRunRepository implements pipeline.RunRepository using GORM
type GormPipelineRunRepository struct {
	db *gorm.DB
}

// NewGormPipelineRunRepository creates a new GormPipelineRunRepository
func NewGormPipelineRunRepository(db *gorm.DB) *GormPipelineRunRepository {
	return &GormPipelineRunRepository{db: db}
}

// Save inserts or updates a run record
func (r *GormPipelineRunRepository) Save(ctx context.Context, run *pipeline.Run) error {
	if err := r.db.WithContext(ctx).Save(models.PipelineRunModelFromDomain(run)).Error; err != nil {
		return fmt.Errorf("save pipeline run: %w", err)
	}
	return nil
}

// ListRecent returns the latest runs, newest first
func (r *GormPipelineRunRepository) ListRecent(ctx context.Context, limit int) ([]pipeline.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.PipelineRunModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	runs := make([]pipeline.Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToDomain()
	}
	return runs, nil
}

var _ pipeline.RunRepository = (*GormPipelineRunRepository)(nil)
