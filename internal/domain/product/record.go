package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Reserved output keys written next to the mapped fields.
const (
	FieldCode          = "code"
	FieldProductName   = "product_name"
	FieldStockAmount   = "stock_amount"
	FieldPricelist     = "pricelist"
	FieldChildProducts = "child_products"
)

var (
	ErrMissingCode      = errors.New("product: record has no code")
	ErrNegativeStock    = errors.New("product: stock amount cannot be negative")
	ErrNegativePrice    = errors.New("product: price cannot be negative")
	ErrReservedField    = errors.New("product: field name is reserved")
	ErrNestedChildren   = errors.New("product: child products cannot own children")
	ErrDuplicateProduct = errors.New("product: duplicate product code")
)

// Fields holds the mapped output fields of one product, keyed by output name.
type Fields map[string]any

// String returns the field as a string, or "" when absent or not a string.
func (f Fields) String(name string) string {
	s, _ := f[name].(string)
	return s
}

// PriceEntry is one active pricelist of a product.
type PriceEntry struct {
	Name      string          `json:"name"`
	ValidFrom time.Time       `json:"valid_from"`
	Price     decimal.Decimal `json:"price"`
	VAT       int             `json:"vat"`
}

// Validate checks the non-negative invariants of a price entry.
func (p PriceEntry) Validate() error {
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativePrice, p.Name)
	}
	if p.VAT < 0 {
		return fmt.Errorf("%w: vat %d on %s", ErrNegativePrice, p.VAT, p.Name)
	}
	return nil
}

// Record is a mapped and enriched product.
// A parent record always has a non-nil ChildProducts slice; a child record has nil.
type Record struct {
	Fields        Fields
	StockAmount   int64
	Pricelist     []PriceEntry
	ChildProducts []Record
}

// NewParent builds a parent record with an empty (non-nil) child list.
func NewParent(fields Fields) Record {
	return Record{Fields: fields, Pricelist: []PriceEntry{}, ChildProducts: []Record{}}
}

// Code returns the natural key of the record.
func (r Record) Code() string {
	return r.Fields.String(FieldCode)
}

// Name returns the product name.
func (r Record) Name() string {
	return r.Fields.String(FieldProductName)
}

// IsParent reports whether the record owns a child list.
func (r Record) IsParent() bool {
	return r.ChildProducts != nil
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Code() == "" {
		return ErrMissingCode
	}
	if r.StockAmount < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeStock, r.Code())
	}
	for _, p := range r.Pricelist {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]struct{}, len(r.ChildProducts))
	for _, child := range r.ChildProducts {
		if child.IsParent() {
			return fmt.Errorf("%w: %s", ErrNestedChildren, child.Code())
		}
		if err := child.Validate(); err != nil {
			return err
		}
		if _, dup := seen[child.Code()]; dup {
			return fmt.Errorf("%w: child %s of %s", ErrDuplicateProduct, child.Code(), r.Code())
		}
		seen[child.Code()] = struct{}{}
	}
	return nil
}

// MarshalJSON flattens the mapped fields next to stock, pricelist and children.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.document())
}

func (r Record) document() map[string]any {
	doc := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[FieldStockAmount] = r.StockAmount
	pricelist := r.Pricelist
	if pricelist == nil {
		pricelist = []PriceEntry{}
	}
	doc[FieldPricelist] = pricelist
	if r.ChildProducts != nil {
		doc[FieldChildProducts] = r.ChildProducts
	}
	return doc
}

// UnmarshalJSON reverses MarshalJSON. The presence of child_products marks a parent.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return r.fromDocument(raw)
}

func (r *Record) fromDocument(raw map[string]json.RawMessage) error {
	*r = Record{Fields: make(Fields, len(raw))}
	for k, v := range raw {
		var err error
		switch k {
		case FieldStockAmount:
			err = json.Unmarshal(v, &r.StockAmount)
		case FieldPricelist:
			err = json.Unmarshal(v, &r.Pricelist)
		case FieldChildProducts:
			r.ChildProducts = []Record{}
			err = json.Unmarshal(v, &r.ChildProducts)
		default:
			var value any
			err = json.Unmarshal(v, &value)
			r.Fields[k] = value
		}
		if err != nil {
			return fmt.Errorf("product: decode %s: %w", k, err)
		}
	}
	return nil
}

// IsReservedField reports whether name collides with an enrichment or hierarchy key.
func IsReservedField(name string) bool {
	switch name {
	case FieldStockAmount, FieldPricelist, FieldChildProducts:
		return true
	}
	return false
}
