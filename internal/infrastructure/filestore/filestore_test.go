package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]string{"label": "Katalog > Kuhinja"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Katalog > Kuhinja", "HTML characters are not escaped")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file is left behind")

	var back map[string]string
	require.NoError(t, ReadJSON(path, &back))
	assert.Equal(t, "Katalog > Kuhinja", back["label"])
}

func writeProducts(t *testing.T, dir string, codes ...string) string {
	t.Helper()
	records := make([]product.Record, 0, len(codes))
	for _, c := range codes {
		records = append(records, product.NewParent(product.Fields{"code": c, "product_name": "Izdelek " + c}))
	}
	path := filepath.Join(dir, "pnv", "products.json")
	require.NoError(t, WriteJSONAtomic(path, records))
	return path
}

func TestProductFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	productsPath := writeProducts(t, dir, "A1", "B2", "C3")
	checkpointPath := filepath.Join(dir, "tris", "productCategories.json")

	store := NewProductFileStore(productsPath, checkpointPath, nil)

	t.Run("everything is pending without a checkpoint", func(t *testing.T) {
		done, err := store.AlreadyClassifiedCodes(ctx, "tris")
		require.NoError(t, err)
		assert.Empty(t, done)

		pending, err := store.PendingCandidates(ctx, "tris")
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, "A1", pending[0].Code())
		assert.NotNil(t, pending[0].ChildProducts)
	})

	t.Run("persist is additive and idempotent", func(t *testing.T) {
		n, err := store.PersistResults(ctx, "tris", []product.Assignment{
			{Code: "A1", Category: product.AICategory{CategoryID: "101", CategoryName: "Katalog > Kuhinja"}},
			{Code: "B2", Category: product.AICategory{CategoryID: "102", CategoryName: "Katalog > Vrt"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.PersistResults(ctx, "tris", []product.Assignment{
			{Code: "A1", Category: product.AICategory{CategoryID: "999", CategoryName: "Other"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		cp, err := store.Checkpoint()
		require.NoError(t, err)
		require.Len(t, cp["A1"], 1)
		assert.Equal(t, "101", cp["A1"][0].CategoryID)
		assert.Equal(t, "tris", cp["A1"][0].ExportID)
	})

	t.Run("classified codes are no longer pending", func(t *testing.T) {
		done, err := store.AlreadyClassifiedCodes(ctx, "tris")
		require.NoError(t, err)
		assert.Len(t, done, 2)

		pending, err := store.PendingCandidates(ctx, "tris")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "C3", pending[0].Code())
	})

	t.Run("other exports are independent", func(t *testing.T) {
		pending, err := store.PendingCandidates(ctx, "shop")
		require.NoError(t, err)
		assert.Len(t, pending, 3)

		n, err := store.PersistResults(ctx, "shop", []product.Assignment{
			{Code: "A1", Category: product.AICategory{CategoryID: "7", CategoryName: "Dom"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		cp, err := store.Checkpoint()
		require.NoError(t, err)
		assert.Len(t, cp["A1"], 2)
	})

	t.Run("missing products file", func(t *testing.T) {
		missing := NewProductFileStore(filepath.Join(dir, "nope.json"), checkpointPath, nil)
		_, err := missing.PendingCandidates(ctx, "tris")
		assert.Error(t, err)
	})
}

func TestParseTaxonomy(t *testing.T) {
	t.Run("json with numeric ids", func(t *testing.T) {
		data := []byte(`{"items":[{"id":101,"label":"Katalog > Kuhinja"},{"id":"abc","label":"Ostalo"}]}`)

		entries, err := ParseTaxonomy(data, "tris")
		require.NoError(t, err)
		assert.Equal(t, []taxonomy.Entry{
			{ID: "101", ExportID: "tris", Label: "Katalog > Kuhinja"},
			{ID: "abc", ExportID: "tris", Label: "Ostalo"},
		}, entries)
	})

	t.Run("yaml", func(t *testing.T) {
		data := []byte("items:\n  - id: 7\n    label: Katalog > Vrt\n")

		entries, err := ParseTaxonomy(data, "tris")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "7", entries[0].ID)
	})

	t.Run("entry without label is rejected", func(t *testing.T) {
		_, err := ParseTaxonomy([]byte(`{"items":[{"id":1,"label":""}]}`), "tris")
		assert.ErrorIs(t, err, ErrTaxonomyFile)
	})

	t.Run("object id is rejected", func(t *testing.T) {
		_, err := ParseTaxonomy([]byte(`{"items":[{"id":{"x":1},"label":"A"}]}`), "tris")
		assert.Error(t, err)
	})
}

func TestFileTaxonomyRegistry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trisCategories.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items":[
		{"id":1,"label":"Katalog > Kuhinja"},
		{"id":2,"label":"Arhiv > Staro"},
		{"id":3,"label":"Katalog > Ostalo"}
	]}`), 0o644))

	reg := NewFileTaxonomyRegistry(path, "tris", "Katalog")

	configs, err := reg.ListAIEnabledConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "tris", configs[0].ID)
	assert.True(t, configs[0].AICategorizationEnabled)

	entries, err := reg.GetTaxonomy(ctx, "tris")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, "3", entries[1].ID)

	other, err := reg.GetTaxonomy(ctx, "shop")
	require.NoError(t, err)
	assert.Empty(t, other)

	_, err = reg.GetTaxonomy(ctx, "")
	assert.ErrorIs(t, err, taxonomy.ErrEmptyExportID)
}
