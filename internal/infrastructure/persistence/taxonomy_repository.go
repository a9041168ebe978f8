package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaxonomyRepository implements taxonomy.Repository using GORM.
// Every call reads the tables; nothing is cached between runs.
type GormTaxonomyRepository struct {
	db *gorm.DB
}

// NewGormTaxonomyRepository creates a new GormTaxonomyRepository
func NewGormTaxonomyRepository(db *gorm.DB) *GormTaxonomyRepository {
	return &GormTaxonomyRepository{db: db}
}

// ListAIEnabledConfigs returns the export configurations with AI categorization enabled.
func (r *GormTaxonomyRepository) ListAIEnabledConfigs(ctx context.Context) ([]taxonomy.ExportConfiguration, error) {
	return r.listConfigs(ctx, r.db.WithContext(ctx).Where("ai_categorization_enabled = ?", true))
}

// ListConfigs returns all export configurations.
func (r *GormTaxonomyRepository) ListConfigs(ctx context.Context) ([]taxonomy.ExportConfiguration, error) {
	return r.listConfigs(ctx, r.db.WithContext(ctx))
}

func (r *GormTaxonomyRepository) listConfigs(_ context.Context, query *gorm.DB) ([]taxonomy.ExportConfiguration, error) {
	var rows []models.ExportConfigurationModel
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list export configurations: %w", err)
	}
	configs := make([]taxonomy.ExportConfiguration, len(rows))
	for i := range rows {
		configs[i] = rows[i].ToDomain()
	}
	return configs, nil
}

// GetConfig returns one export configuration or shared.ErrNotFound.
func (r *GormTaxonomyRepository) GetConfig(ctx context.Context, id string) (*taxonomy.ExportConfiguration, error) {
	var row models.ExportConfigurationModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get export configuration: %w", err)
	}
	cfg := row.ToDomain()
	return &cfg, nil
}

// GetTaxonomy returns the entries of one export configuration in position order.
func (r *GormTaxonomyRepository) GetTaxonomy(ctx context.Context, exportID string) ([]taxonomy.Entry, error) {
	return r.listEntries(r.db.WithContext(ctx).Where("export_id = ?", exportID))
}

// ListEntries returns the entries of every export configuration.
func (r *GormTaxonomyRepository) ListEntries(ctx context.Context) ([]taxonomy.Entry, error) {
	return r.listEntries(r.db.WithContext(ctx))
}

func (r *GormTaxonomyRepository) listEntries(query *gorm.DB) ([]taxonomy.Entry, error) {
	var rows []models.TaxonomyEntryModel
	if err := query.Order("export_id, position, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list taxonomy entries: %w", err)
	}
	entries := make([]taxonomy.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}

// SaveConfig inserts or updates an export configuration.
func (r *GormTaxonomyRepository) SaveConfig(ctx context.Context, cfg taxonomy.ExportConfiguration) error {
	if cfg.ID == "" {
		return taxonomy.ErrEmptyExportID
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "ai_categorization_enabled", "updated_at"}),
	}).Create(models.ExportConfigurationModelFromDomain(cfg)).Error
}

// ReplaceTaxonomy swaps the entries of one export configuration in a transaction.
func (r *GormTaxonomyRepository) ReplaceTaxonomy(ctx context.Context, exportID string, entries []taxonomy.Entry) error {
	if exportID == "" {
		return taxonomy.ErrEmptyExportID
	}
	rows := make([]models.TaxonomyEntryModel, 0, len(entries))
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		rows = append(rows, models.TaxonomyEntryModel{ID: e.ID, ExportID: exportID, Label: e.Label, Position: i})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("export_id = ?", exportID).Delete(&models.TaxonomyEntryModel{}).Error; err != nil {
			return fmt.Errorf("clear taxonomy: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("write taxonomy: %w", err)
		}
		return nil
	})
}

var _ taxonomy.Repository = (*GormTaxonomyRepository)(nil)
