package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormClassificationStore keeps AI categories next to the catalog.
// A product holds at most one category per export; later assignments are ignored.
type GormClassificationStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormClassificationStore creates a new GormClassificationStore
func NewGormClassificationStore(db *gorm.DB) *GormClassificationStore {
	return &GormClassificationStore{db: db, now: time.Now}
}

// AlreadyClassifiedCodes returns the product codes with a category for exportID.
func (s *GormClassificationStore) AlreadyClassifiedCodes(ctx context.Context, exportID string) (map[string]struct{}, error) {
	var codes []string
	if err := s.db.WithContext(ctx).
		Model(&models.ProductAICategoryModel{}).
		Where("export_id = ?", exportID).
		Pluck("product_code", &codes).Error; err != nil {
		return nil, fmt.Errorf("list classified codes: %w", err)
	}

	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set, nil
}

// PendingCandidates returns catalog products without a category for exportID, ordered by code.
func (s *GormClassificationStore) PendingCandidates(ctx context.Context, exportID string) ([]product.Record, error) {
	classified := s.db.
		Model(&models.ProductAICategoryModel{}).
		Select("product_code").
		Where("export_id = ?", exportID)

	var rows []models.CatalogProductModel
	if err := s.db.WithContext(ctx).
		Where("code NOT IN (?)", classified).
		Order("code").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending products: %w", err)
	}

	records := make([]product.Record, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain().Record
	}
	return records, nil
}

// PersistResults stores assignments for codes present in the catalog in one insert.
// Existing (product_code, export_id) pairs are left untouched.
func (s *GormClassificationStore) PersistResults(ctx context.Context, exportID string, assignments []product.Assignment) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	codes := make([]string, 0, len(assignments))
	for _, a := range assignments {
		codes = append(codes, a.Code)
	}
	known := make(map[string]struct{}, len(codes))
	for _, chunk := range chunkStrings(codes, codeChunkSize) {
		var found []string
		if err := s.db.WithContext(ctx).
			Model(&models.CatalogProductModel{}).
			Where("code IN ?", chunk).
			Pluck("code", &found).Error; err != nil {
			return 0, fmt.Errorf("lookup catalog codes: %w", err)
		}
		for _, c := range found {
			known[c] = struct{}{}
		}
	}

	now := s.now()
	rows := make([]models.ProductAICategoryModel, 0, len(assignments))
	seen := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := known[a.Code]; !ok {
			continue
		}
		if _, dup := seen[a.Code]; dup {
			continue
		}
		seen[a.Code] = struct{}{}
		rows = append(rows, models.ProductAICategoryModel{
			ProductCode:  a.Code,
			ExportID:     exportID,
			CategoryID:   a.Category.CategoryID,
			CategoryName: a.Category.CategoryName,
			CreatedAt:    now,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("persist ai categories: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

var _ product.ClassificationStore = (*GormClassificationStore)(nil)
