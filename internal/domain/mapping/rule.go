// Package mapping turns source rows of the CMS export into product fields.
//
// A Table is an ordered list of rules. Each rule is one of three variants:
//   - Direct: one source column to one field, with an optional transform
//   - Collected: several source columns to one field as a sequence
//   - Derived: no source column, the value is computed from the whole row
//
// Transforms only ever see the raw row, never the fields produced by
// earlier rules of the same table.
package mapping

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyTable     = errors.New("mapping: table has no rules")
	ErrEmptyFieldName = errors.New("mapping: rule has no field name")
	ErrDuplicateField = errors.New("mapping: duplicate field name")
	ErrReservedField  = errors.New("mapping: field name is reserved")
	ErrMissingColumn  = errors.New("mapping: rule has no source column")
	ErrMissingDerive  = errors.New("mapping: derived rule has no function")
)

// Row is one line of the source file keyed by column name.
type Row map[string]string

// Get returns the raw value of a column and whether the column exists.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// Value returns the raw value of a column, or "" when absent.
func (r Row) Value(column string) string {
	return r[column]
}

// TransformFunc converts the value of one column.
type TransformFunc func(ctx context.Context, value string, row Row) (any, error)

// CollectFunc converts the non-empty values of several columns.
type CollectFunc func(ctx context.Context, values []string, row Row) (any, error)

// DeriveFunc computes a field from the row alone.
type DeriveFunc func(ctx context.Context, row Row) (any, error)

// Rule produces exactly one named output field from a row.
// The set of implementations is closed: Direct, Collected and Derived.
type Rule interface {
	Field() string
	validate() error
	apply(ctx context.Context, row Row) (any, error)
}

// Direct copies one column into one field.
// Without a transform a missing column yields nil, otherwise the raw string.
type Direct struct {
	Column    string
	Name      string
	Transform TransformFunc
}

func (d Direct) Field() string { return d.Name }

func (d Direct) validate() error {
	if d.Column == "" {
		return fmt.Errorf("%w: %s", ErrMissingColumn, d.Name)
	}
	return nil
}

func (d Direct) apply(ctx context.Context, row Row) (any, error) {
	value, ok := row.Get(d.Column)
	if d.Transform != nil {
		return d.Transform(ctx, value, row)
	}
	if !ok {
		return nil, nil
	}
	return value, nil
}

// Collected gathers several columns into one sequence, skipping empty values.
type Collected struct {
	Columns   []string
	Name      string
	Transform CollectFunc
}

func (c Collected) Field() string { return c.Name }

func (c Collected) validate() error {
	if len(c.Columns) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, c.Name)
	}
	return nil
}

func (c Collected) apply(ctx context.Context, row Row) (any, error) {
	values := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if v := row.Value(col); v != "" {
			values = append(values, v)
		}
	}
	if c.Transform != nil {
		return c.Transform(ctx, values, row)
	}
	return values, nil
}

// Derived computes a field without a source column.
type Derived struct {
	Name   string
	Derive DeriveFunc
}

func (d Derived) Field() string { return d.Name }

func (d Derived) validate() error {
	if d.Derive == nil {
		return fmt.Errorf("%w: %s", ErrMissingDerive, d.Name)
	}
	return nil
}

func (d Derived) apply(ctx context.Context, row Row) (any, error) {
	return d.Derive(ctx, row)
}
