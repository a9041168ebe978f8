package persistence

import (
	"context"

	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormUsageRepository implements usage.Repository using GORM
type GormUsageRepository struct {
	db *gorm.DB
}

// NewGormUsageRepository creates a new GormUsageRepository
func NewGormUsageRepository(db *gorm.DB) *GormUsageRepository {
	return &GormUsageRepository{db: db}
}

// SaveAIUsage persists one model call's token usage
func (r *GormUsageRepository) SaveAIUsage(ctx context.Context, u usage.AIUsage) error {
	return r.db.WithContext(ctx).Create(models.AIUsageEventModelFromDomain(u)).Error
}

// SaveFunctionCall persists one monitored step
func (r *GormUsageRepository) SaveFunctionCall(ctx context.Context, f usage.FunctionCall) error {
	return r.db.WithContext(ctx).Create(models.FunctionEventModelFromDomain(f)).Error
}

// TokensByExport sums total tokens per export id.
func (r *GormUsageRepository) TokensByExport(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		ExportID string
		Total    int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.AIUsageEventModel{}).
		Select("export_id, SUM(total_tokens) AS total").
		Group("export_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.ExportID] = row.Total
	}
	return totals, nil
}

var _ usage.Repository = (*GormUsageRepository)(nil)
