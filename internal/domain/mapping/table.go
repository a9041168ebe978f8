package mapping

import (
	"fmt"

	"github.com/pnv/catalog-sync/internal/domain/product"
)

// Table is an ordered, validated list of rules with unique field names.
type Table struct {
	rules []Rule
}

// NewTable validates the rules and returns a table preserving their order.
func NewTable(rules ...Rule) (*Table, error) {
	if len(rules) == 0 {
		return nil, ErrEmptyTable
	}
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		name := r.Field()
		if name == "" {
			return nil, ErrEmptyFieldName
		}
		if product.IsReservedField(name) {
			return nil, fmt.Errorf("%w: %s", ErrReservedField, name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, name)
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		seen[name] = struct{}{}
	}
	return &Table{rules: append([]Rule(nil), rules...)}, nil
}

// MustTable is NewTable for statically known tables; it panics on invalid rules.
func MustTable(rules ...Rule) *Table {
	t, err := NewTable(rules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns a copy of the rules in table order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Fields returns the output field names in table order.
func (t *Table) Fields() []string {
	names := make([]string, len(t.rules))
	for i, r := range t.rules {
		names[i] = r.Field()
	}
	return names
}

// With returns a new table where each overlay rule replaces the rule with the
// same field name in place, or is appended when no such rule exists.
func (t *Table) With(overlay ...Rule) (*Table, error) {
	rules := t.Rules()
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.Field()] = i
	}
	for _, r := range overlay {
		if i, ok := index[r.Field()]; ok {
			rules[i] = r
			continue
		}
		index[r.Field()] = len(rules)
		rules = append(rules, r)
	}
	return NewTable(rules...)
}
