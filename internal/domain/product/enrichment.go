package product

import "context"

// StockItem is one warehouse stock line reported by the ERP.
type StockItem struct {
	Code       string
	Amount     int64
	CountCode  string
	ExternalID string
}

// StockSnapshot is the per-run stock lookup of one warehouse.
type StockSnapshot struct {
	items map[string]StockItem
}

// NewStockSnapshot indexes items by code. A repeated code keeps the first item,
// the line a lookup in the ERP's listing order finds.
func NewStockSnapshot(items []StockItem) *StockSnapshot {
	s := &StockSnapshot{items: make(map[string]StockItem, len(items))}
	for _, it := range items {
		if _, seen := s.items[it.Code]; seen {
			continue
		}
		s.items[it.Code] = it
	}
	return s
}

// Amount returns the stock amount of code, 0 when unknown or negative.
func (s *StockSnapshot) Amount(code string) int64 {
	if s == nil {
		return 0
	}
	it, ok := s.items[code]
	if !ok || it.Amount < 0 {
		return 0
	}
	return it.Amount
}

// Len returns the number of distinct codes.
func (s *StockSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// StockResolver fetches the full stock of a warehouse.
type StockResolver interface {
	FetchAll(ctx context.Context, warehouseID string) (*StockSnapshot, error)
}

// PriceResolver fetches the active pricelists of one product.
type PriceResolver interface {
	FetchPricelist(ctx context.Context, code string) ([]PriceEntry, error)
}
