package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func parent(code, name string, children ...string) product.Record {
	rec := product.NewParent(product.Fields{"code": code, "product_name": name})
	for _, c := range children {
		rec.ChildProducts = append(rec.ChildProducts, product.Record{Fields: product.Fields{"code": c}})
	}
	return rec
}

func TestGormCatalogRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	t.Run("inserts new records and reports created", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))

		a1 := parent("A1", "Lonec", "A1-S", "A1-M")
		a1.StockAmount = 7
		a1.Pricelist = []product.PriceEntry{{
			Name:      "MPC",
			ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Price:     decimal.RequireFromString("12.50"),
			VAT:       22,
		}}

		created, updated, err := repo.Upsert(ctx, []product.Record{a1, parent("B1", "Ponev")}, t0)
		require.NoError(t, err)
		assert.Equal(t, 2, created)
		assert.Equal(t, 0, updated)

		found, err := repo.FindByCode(ctx, "A1")
		require.NoError(t, err)
		assert.True(t, found.Active)
		assert.Equal(t, "Lonec", found.Name())
		assert.Equal(t, int64(7), found.StockAmount)
		require.Len(t, found.Pricelist, 1)
		assert.True(t, found.Pricelist[0].Price.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, 22, found.Pricelist[0].VAT)
		require.Len(t, found.ChildProducts, 2)
		assert.Equal(t, "A1-S", found.ChildProducts[0].Code())
		assert.Equal(t, "A1-M", found.ChildProducts[1].Code())
		assert.True(t, found.CreatedAt.Equal(t0))
		assert.Empty(t, found.AICategories)
	})

	t.Run("second upsert updates and keeps createdAt", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))

		_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec")}, t0)
		require.NoError(t, err)

		created, updated, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec XL")}, t1)
		require.NoError(t, err)
		assert.Equal(t, 0, created)
		assert.Equal(t, 1, updated)

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1, "upsert must not duplicate records")
		assert.Equal(t, "Lonec XL", all[0].Name())
		assert.True(t, all[0].CreatedAt.Equal(t0))
		assert.True(t, all[0].UpdatedAt.Equal(t1))
	})

	t.Run("upsert reactivates and leaves ai categories untouched", func(t *testing.T) {
		db := setupCatalogTestDB(t)
		repo := NewGormCatalogRepository(db)
		store := NewGormClassificationStore(db)

		_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec")}, t0)
		require.NoError(t, err)
		_, err = store.PersistResults(ctx, "tris", []product.Assignment{{
			Code:     "A1",
			Category: product.AICategory{ExportID: "tris", CategoryID: "10", CategoryName: "Kuhinja"},
		}})
		require.NoError(t, err)
		_, err = repo.DeactivateMissing(ctx, nil, t0)
		require.NoError(t, err)

		_, _, err = repo.Upsert(ctx, []product.Record{parent("A1", "Lonec")}, t1)
		require.NoError(t, err)

		found, err := repo.FindByCode(ctx, "A1")
		require.NoError(t, err)
		assert.True(t, found.Active)
		require.Len(t, found.AICategories, 1)
		assert.Equal(t, "Kuhinja", found.AICategories[0].CategoryName)
	})

	t.Run("child index follows the latest hierarchy", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))

		_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec", "A1-S")}, t0)
		require.NoError(t, err)
		_, _, err = repo.Upsert(ctx, []product.Record{parent("A1", "Lonec", "A1-L")}, t1)
		require.NoError(t, err)

		_, err = repo.FindByCode(ctx, "A1-S")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		found, err := repo.FindByCode(ctx, "A1-L")
		require.NoError(t, err)
		assert.Equal(t, "A1", found.Code())
	})

	t.Run("rejects invalid records", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))

		_, _, err := repo.Upsert(ctx, []product.Record{product.NewParent(product.Fields{})}, t0)
		assert.ErrorIs(t, err, product.ErrMissingCode)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))

		created, updated, err := repo.Upsert(ctx, nil, t0)
		require.NoError(t, err)
		assert.Zero(t, created)
		assert.Zero(t, updated)
	})
}

func TestGormCatalogRepository_DeactivateMissing(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	t.Run("deactivates only records missing from the batch", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))
		_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec"), parent("B1", "Ponev")}, t0)
		require.NoError(t, err)

		n, err := repo.DeactivateMissing(ctx, []string{"A1"}, t1)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		b1, err := repo.FindByCode(ctx, "B1")
		require.NoError(t, err)
		assert.False(t, b1.Active)
		assert.Equal(t, "Ponev", b1.Name(), "soft delete keeps fields")
		assert.True(t, b1.UpdatedAt.Equal(t1))
		assert.True(t, b1.CreatedAt.Equal(t0))

		a1, err := repo.FindByCode(ctx, "A1")
		require.NoError(t, err)
		assert.True(t, a1.Active)
		assert.True(t, a1.UpdatedAt.Equal(t0))
	})

	t.Run("already inactive records are not counted again", func(t *testing.T) {
		repo := NewGormCatalogRepository(setupCatalogTestDB(t))
		_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec")}, t0)
		require.NoError(t, err)

		n, err := repo.DeactivateMissing(ctx, nil, t1)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = repo.DeactivateMissing(ctx, nil, t1.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)

		a1, err := repo.FindByCode(ctx, "A1")
		require.NoError(t, err)
		assert.True(t, a1.UpdatedAt.Equal(t1))
	})
}

func TestGormCatalogRepository_FindByCode(t *testing.T) {
	ctx := context.Background()
	repo := NewGormCatalogRepository(setupCatalogTestDB(t))
	_, _, err := repo.Upsert(ctx, []product.Record{parent("A1", "Lonec", "A1-S")}, time.Now())
	require.NoError(t, err)

	t.Run("matches child code", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, "A1-S")
		require.NoError(t, err)
		assert.Equal(t, "A1", found.Code())
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "ZZ")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

// newMockCatalogRepository creates a GormCatalogRepository with a mocked SQL connection
func newMockCatalogRepository(t *testing.T) (*GormCatalogRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormCatalogRepository(gormDB), mock, mockDB
}

func TestGormCatalogRepository_DatabaseErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("find all wraps query error", func(t *testing.T) {
		repo, mock, mockDB := newMockCatalogRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "catalog_products" ORDER BY code`).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.FindAll(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list products")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivate wraps lookup error", func(t *testing.T) {
		repo, mock, mockDB := newMockCatalogRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT .*code.* FROM "catalog_products" WHERE active = \$1`).
			WithArgs(true).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.DeactivateMissing(ctx, []string{"A1"}, time.Now())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list active products")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
