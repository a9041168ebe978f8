package categorization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
)

const systemInstructionTemplate = `You are a Product Mapping Assistant.
You will be given a list of products. Some products may have a 'child_products' array which represent product variants.
Use the information in 'child_products' to get more context about the parent product, but ONLY return a category for the parent product.
Do NOT categorize items inside the 'child_products' array.
Map each parent product to the most specific and correct category ID from this list: %s.
If you are unsure, use the ID for "Ostalo" or a similar general category if available.`

// PromptPrefix precedes the JSON product list in every batch prompt.
const PromptPrefix = "Categorize these products: "

type promptCategory struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// BuildSystemInstruction embeds the whole taxonomy as an id/label list.
func BuildSystemInstruction(entries []taxonomy.Entry) (string, error) {
	cats := make([]promptCategory, 0, len(entries))
	for _, e := range entries {
		cats = append(cats, promptCategory{ID: e.ID, Label: e.Label})
	}
	data, err := marshalPlain(cats)
	if err != nil {
		return "", fmt.Errorf("encode taxonomy: %w", err)
	}
	return fmt.Sprintf(systemInstructionTemplate, data), nil
}

// BuildPrompt renders one batch of parent records, children included.
func BuildPrompt(batch []product.Record) (string, error) {
	data, err := marshalPlain(batch)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	var b strings.Builder
	b.Grow(len(PromptPrefix) + len(data))
	b.WriteString(PromptPrefix)
	b.Write(data)
	return b.String(), nil
}

// marshalPlain encodes v without HTML escaping so labels like "A > B" reach
// the model verbatim.
func marshalPlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
