package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertColumns are replaced on conflict. created_at and the AI categories are never touched.
var upsertColumns = []string{
	"product_name",
	"fields",
	"stock_amount",
	"pricelist",
	"child_products",
	"active",
	"updated_at",
}

// GormCatalogRepository implements product.CatalogRepository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// DeactivateMissing marks every active product whose code is not in codes as inactive.
func (r *GormCatalogRepository) DeactivateMissing(ctx context.Context, codes []string, now time.Time) (int, error) {
	incoming := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		incoming[c] = struct{}{}
	}

	var active []string
	if err := r.db.WithContext(ctx).
		Model(&models.CatalogProductModel{}).
		Where("active = ?", true).
		Order("code").
		Pluck("code", &active).Error; err != nil {
		return 0, fmt.Errorf("list active products: %w", err)
	}

	missing := make([]string, 0)
	for _, c := range active {
		if _, ok := incoming[c]; !ok {
			missing = append(missing, c)
		}
	}

	deactivated := 0
	for _, chunk := range chunkStrings(missing, codeChunkSize) {
		result := r.db.WithContext(ctx).
			Model(&models.CatalogProductModel{}).
			Where("code IN ? AND active = ?", chunk, true).
			Updates(map[string]any{"active": false, "updated_at": now})
		if result.Error != nil {
			return deactivated, fmt.Errorf("deactivate products: %w", result.Error)
		}
		deactivated += int(result.RowsAffected)
	}
	return deactivated, nil
}

// Upsert inserts or replaces parent records by code and rebuilds their child index.
func (r *GormCatalogRepository) Upsert(ctx context.Context, records []product.Record, now time.Time) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	// A repeated code keeps its first position and its last content.
	position := make(map[string]int, len(records))
	rows := make([]*models.CatalogProductModel, 0, len(records))
	latest := make([]product.Record, 0, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return 0, 0, err
		}
		if i, seen := position[rec.Code()]; seen {
			rows[i] = models.CatalogProductModelFromDomain(rec, now)
			latest[i] = rec
			continue
		}
		position[rec.Code()] = len(rows)
		rows = append(rows, models.CatalogProductModelFromDomain(rec, now))
		latest = append(latest, rec)
	}

	codes := make([]string, len(rows))
	for i, row := range rows {
		codes[i] = row.Code
	}

	existing, err := r.existingCodes(ctx, codes)
	if err != nil {
		return 0, 0, err
	}

	children := make([]models.CatalogChildModel, 0)
	for _, rec := range latest {
		for i, child := range rec.ChildProducts {
			children = append(children, models.CatalogChildModel{
				ParentCode: rec.Code(),
				Code:       child.Code(),
				Position:   i,
			})
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).CreateInBatches(rows, 100).Error; err != nil {
			return fmt.Errorf("upsert products: %w", err)
		}

		for _, chunk := range chunkStrings(codes, codeChunkSize) {
			if err := tx.Where("parent_code IN ?", chunk).Delete(&models.CatalogChildModel{}).Error; err != nil {
				return fmt.Errorf("clear child index: %w", err)
			}
		}
		if len(children) > 0 {
			if err := tx.CreateInBatches(children, 500).Error; err != nil {
				return fmt.Errorf("write child index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	created := 0
	for _, c := range codes {
		if _, ok := existing[c]; !ok {
			created++
		}
	}
	return created, len(codes) - created, nil
}

func (r *GormCatalogRepository) existingCodes(ctx context.Context, codes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(codes))
	for _, chunk := range chunkStrings(codes, codeChunkSize) {
		var found []string
		if err := r.db.WithContext(ctx).
			Model(&models.CatalogProductModel{}).
			Where("code IN ?", chunk).
			Pluck("code", &found).Error; err != nil {
			return nil, fmt.Errorf("lookup existing products: %w", err)
		}
		for _, c := range found {
			existing[c] = struct{}{}
		}
	}
	return existing, nil
}

// FindAll returns every catalog record, active or not, ordered by code.
func (r *GormCatalogRepository) FindAll(ctx context.Context) ([]product.CatalogRecord, error) {
	var rows []models.CatalogProductModel
	if err := r.db.WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	categories, err := r.categoriesByCode(ctx, nil)
	if err != nil {
		return nil, err
	}

	records := make([]product.CatalogRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
		if cats, ok := categories[rows[i].Code]; ok {
			records[i].AICategories = cats
		}
	}
	return records, nil
}

// FindByCode matches the parent code first, then child codes.
func (r *GormCatalogRepository) FindByCode(ctx context.Context, code string) (*product.CatalogRecord, error) {
	var row models.CatalogProductModel
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var parents []models.CatalogChildModel
		if err := r.db.WithContext(ctx).
			Where("code = ?", code).
			Order("parent_code").
			Limit(1).
			Find(&parents).Error; err != nil {
			return nil, fmt.Errorf("lookup child product: %w", err)
		}
		if len(parents) == 0 {
			return nil, shared.ErrNotFound
		}
		err = r.db.WithContext(ctx).Where("code = ?", parents[0].ParentCode).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("find product: %w", err)
	}

	categories, err := r.categoriesByCode(ctx, []string{row.Code})
	if err != nil {
		return nil, err
	}
	rec := row.ToDomain()
	if cats, ok := categories[row.Code]; ok {
		rec.AICategories = cats
	}
	return &rec, nil
}

// categoriesByCode loads AI categories grouped by product code. nil codes loads all.
func (r *GormCatalogRepository) categoriesByCode(ctx context.Context, codes []string) (map[string][]product.AICategory, error) {
	query := r.db.WithContext(ctx).Order("created_at, export_id")
	if codes != nil {
		query = query.Where("product_code IN ?", codes)
	}

	var rows []models.ProductAICategoryModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load ai categories: %w", err)
	}

	grouped := make(map[string][]product.AICategory)
	for i := range rows {
		grouped[rows[i].ProductCode] = append(grouped[rows[i].ProductCode], rows[i].ToDomain())
	}
	return grouped, nil
}

// Ensure GormCatalogRepository implements CatalogRepository
var _ product.CatalogRepository = (*GormCatalogRepository)(nil)
