package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations(t *testing.T) {
	names, err := ListMigrations()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"000001_catalog",
		"000002_export_configurations",
		"000003_analytics",
	}, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := ListMigrations()
	require.NoError(t, err)

	for _, name := range names {
		down, err := fs.ReadFile(files, sourceDir+"/"+name+".down.sql")
		require.NoError(t, err, "missing down migration for %s", name)
		assert.True(t, strings.Contains(string(down), "DROP TABLE"), name)
	}
}

func TestSchemaCoversCatalogTables(t *testing.T) {
	var all strings.Builder
	require.NoError(t, fs.WalkDir(files, sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		data, err := fs.ReadFile(files, path)
		all.Write(data)
		return err
	}))

	for _, table := range []string{
		"catalog_products",
		"product_ai_categories",
		"export_configurations",
		"taxonomy_entries",
		"ai_usage_events",
		"function_events",
		"pipeline_runs",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
}
