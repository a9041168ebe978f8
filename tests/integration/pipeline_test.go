package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pnv/catalog-sync/internal/application/categorization"
	"github.com/pnv/catalog-sync/internal/application/jobs"
	"github.com/pnv/catalog-sync/internal/application/productsync"
	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/shared"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/pnv/catalog-sync/internal/infrastructure/ai"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"github.com/pnv/catalog-sync/internal/infrastructure/lock"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence"
	"github.com/pnv/catalog-sync/internal/infrastructure/source"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain runs before any tests and handles cleanup
func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

type staticERP struct {
	stock  []product.StockItem
	prices map[string][]product.PriceEntry
}

func (e staticERP) FetchAll(context.Context, string) (*product.StockSnapshot, error) {
	return product.NewStockSnapshot(e.stock), nil
}

func (e staticERP) FetchPricelist(_ context.Context, code string) ([]product.PriceEntry, error) {
	return e.prices[code], nil
}

// firstCategory answers every batch by assigning each code the same category.
type firstCategory struct {
	catID string
}

func (f firstCategory) CategorizeBatch(_ context.Context, req ai.BatchRequest) (*ai.Completion, error) {
	var items []struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(req.Prompt, categorization.PromptPrefix)), &items); err != nil {
		return nil, err
	}
	type result struct {
		Code  string `json:"code"`
		CatID string `json:"catId"`
	}
	out := struct {
		Results []result `json:"results"`
	}{}
	for _, it := range items {
		out.Results = append(out.Results, result{Code: it.Code, CatID: f.catID})
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return &ai.Completion{Text: string(text), Model: "test", Usage: ai.Usage{TotalTokens: 10}}, nil
}

func writeExport(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestPipeline_Integration(t *testing.T) {
	testDB := NewSharedTestDB(t)
	ctx := context.Background()

	catalogRepo := persistence.NewGormCatalogRepository(testDB.DB)
	store := persistence.NewGormClassificationStore(testDB.DB)
	taxonomyRepo := persistence.NewGormTaxonomyRepository(testDB.DB)
	runRepo := persistence.NewGormPipelineRunRepository(testDB.DB)

	require.NoError(t, taxonomyRepo.SaveConfig(ctx, taxonomy.ExportConfiguration{
		ID: "tris", Name: "Tris", AICategorizationEnabled: true,
	}))
	require.NoError(t, taxonomyRepo.ReplaceTaxonomy(ctx, "tris", []taxonomy.Entry{
		{ID: "7", ExportID: "tris", Label: "Katalog > Lonci"},
		{ID: "8", ExportID: "tris", Label: "Katalog > Krožniki"},
	}))

	csvPath := filepath.Join(t.TempDir(), "products.csv")
	writeExport(t, csvPath, "Code;Koda nadprodukta;Product name\n"+
		"A1;;Lonec\n"+
		"A1-S;A1;Lonec S\n"+
		"B2;;Krožnik\n")

	erp := staticERP{
		stock: []product.StockItem{{Code: "A1", Amount: 4}, {Code: "A1-S", Amount: 2}},
		prices: map[string][]product.PriceEntry{
			"A1": {{Name: "Maloprodaja", Price: decimal.RequireFromString("19.90"), VAT: 22}},
		},
	}
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	syncService := productsync.NewService(source.NewFileSource(csvPath), nil, erp, erp, catalogRepo, analytics.NopRecorder{}, nil, productsync.Config{
		Now: func() time.Time { return now },
	})
	engine := categorization.NewEngine(taxonomyRepo, store, firstCategory{catID: "7"}, analytics.NopRecorder{}, nil, categorization.Options{BatchSize: 1})
	runner := jobs.NewRunner(syncService, engine, taxonomyRepo, runRepo, lock.NewMemoryLock(), analytics.NopRecorder{}, nil, jobs.Config{})

	t.Run("first run creates and classifies", func(t *testing.T) {
		run, err := runner.RunOnce(ctx, jobs.TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, pipeline.RunStatusSuccess, run.Status)
		assert.Equal(t, 2, run.Sync.Created)
		assert.Equal(t, 2, run.Classified)

		rec, err := catalogRepo.FindByCode(ctx, "A1-S")
		require.NoError(t, err)
		assert.Equal(t, "A1", rec.Code())
		assert.True(t, rec.Active)
		assert.Equal(t, int64(4), rec.StockAmount)
		require.Len(t, rec.ChildProducts, 1)
		assert.Equal(t, int64(2), rec.ChildProducts[0].StockAmount)
		require.Len(t, rec.Pricelist, 1)
		assert.True(t, decimal.RequireFromString("19.90").Equal(rec.Pricelist[0].Price))

		cat, ok := rec.CategoryFor("tris")
		require.True(t, ok)
		assert.Equal(t, "Katalog > Lonci", cat.CategoryName)
	})

	t.Run("second run deactivates missing products and keeps categories", func(t *testing.T) {
		writeExport(t, csvPath, "Code;Koda nadprodukta;Product name\nA1;;Lonec nov\n")
		now = now.Add(24 * time.Hour)

		run, err := runner.RunOnce(ctx, jobs.TriggerSchedule)
		require.NoError(t, err)
		assert.Equal(t, pipeline.RunStatusSuccess, run.Status)
		assert.Equal(t, 1, run.Sync.Updated)
		assert.Equal(t, 1, run.Sync.Deactivated)
		assert.Equal(t, 0, run.Classified)

		all, err := catalogRepo.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		active := map[string]bool{}
		for _, r := range all {
			active[r.Code()] = r.Active
			_, ok := r.CategoryFor("tris")
			assert.True(t, ok, "category of %s survives the sync", r.Code())
		}
		assert.Equal(t, map[string]bool{"A1": true, "B2": false}, active)

		rec, err := catalogRepo.FindByCode(ctx, "A1")
		require.NoError(t, err)
		assert.Equal(t, "Lonec nov", rec.Name())
		assert.Empty(t, rec.ChildProducts)

		_, err = catalogRepo.FindByCode(ctx, "A1-S")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("runs are recorded newest first", func(t *testing.T) {
		runs, err := runRepo.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, jobs.TriggerSchedule, runs[0].Trigger)
		assert.Equal(t, jobs.TriggerManual, runs[1].Trigger)
	})
}
