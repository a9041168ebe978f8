package mapping

import (
	"context"
	"fmt"

	"github.com/pnv/catalog-sync/internal/domain/product"
)

// FieldError reports which rule failed while mapping a row.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("mapping: field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Mapper applies a Table to source rows.
type Mapper struct {
	table *Table
}

// NewMapper creates a mapper for the table.
func NewMapper(table *Table) *Mapper {
	return &Mapper{table: table}
}

// Table returns the table the mapper applies.
func (m *Mapper) Table() *Table {
	return m.table
}

// Map applies every rule in order. The first failing rule aborts the row and
// no partial record is returned.
func (m *Mapper) Map(ctx context.Context, row Row) (product.Record, error) {
	fields := make(product.Fields, len(m.table.rules))
	for _, rule := range m.table.rules {
		if err := ctx.Err(); err != nil {
			return product.Record{}, err
		}
		value, err := rule.apply(ctx, row)
		if err != nil {
			return product.Record{}, &FieldError{Field: rule.Field(), Err: err}
		}
		fields[rule.Field()] = value
	}
	return product.Record{Fields: fields}, nil
}
