package categorization

import (
	"testing"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResults(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []Result
		wantErr bool
	}{
		{
			name: "string ids",
			text: `{"results":[{"code":"A1","catId":"10"}]}`,
			want: []Result{{Code: "A1", CatID: "10"}},
		},
		{
			name: "numeric ids keep their literal form",
			text: `{"results":[{"code":"A1","catId":10},{"code":"A2","catId":12345678901234}]}`,
			want: []Result{{Code: "A1", CatID: "10"}, {Code: "A2", CatID: "12345678901234"}},
		},
		{
			name: "fenced output",
			text: "```json\n{\"results\":[{\"code\":\" A1 \",\"catId\":\" 10 \"}]}\n```",
			want: []Result{{Code: "A1", CatID: "10"}},
		},
		{
			name: "missing results key",
			text: `{}`,
			want: []Result{},
		},
		{name: "not json", text: "kitchen", wantErr: true},
		{name: "object id", text: `{"results":[{"code":"A1","catId":{"id":1}}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResults(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	parent := product.NewParent(product.Fields{"code": "A1", "product_name": "Lonec"})
	parent.ChildProducts = append(parent.ChildProducts, product.Record{Fields: product.Fields{"code": "A1-S"}})

	prompt, err := BuildPrompt([]product.Record{parent})
	require.NoError(t, err)

	assert.True(t, len(prompt) > len(PromptPrefix))
	assert.Equal(t, PromptPrefix, prompt[:len(PromptPrefix)])
	assert.Contains(t, prompt, `"child_products":[{"code":"A1-S"`)
}

func TestBuildSystemInstruction(t *testing.T) {
	system, err := BuildSystemInstruction([]taxonomy.Entry{{ID: "10", ExportID: "tris", Label: "Katalog > Kuhinja"}})
	require.NoError(t, err)

	assert.Contains(t, system, `[{"id":"10","label":"Katalog > Kuhinja"}]`)
	assert.Contains(t, system, "Do NOT categorize items inside the 'child_products' array.")
}
