package productsync

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pnv/catalog-sync/internal/domain/mapping"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"go.uber.org/zap"
)

// FailureMode decides what an enrichment failure does to the row.
type FailureMode string

const (
	// FailAbort fails the row and with it the run
	FailAbort FailureMode = "abort"
	// FailDegrade substitutes zero stock and an empty pricelist
	FailDegrade FailureMode = "degrade"
)

// ParseFailureMode validates a configured mode name. "" selects abort.
func ParseFailureMode(s string) (FailureMode, error) {
	switch m := FailureMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return FailAbort, nil
	case FailAbort, FailDegrade:
		return m, nil
	}
	return "", fmt.Errorf("productsync: unknown enrichment failure mode %q", s)
}

// Enricher maps a row and attaches the stock amount and active pricelists of
// its code. Stock comes from a snapshot taken once per run; pricelists are
// fetched per code.
type Enricher struct {
	mapper     *mapping.Mapper
	stock      *product.StockSnapshot
	prices     product.PriceResolver
	mode       FailureMode
	codeColumn string
	recorder   usage.Recorder
	logger     *zap.Logger

	degraded atomic.Int64
}

// NewEnricher creates an enricher. A nil stock snapshot reads as zero stock.
func NewEnricher(
	mapper *mapping.Mapper,
	stock *product.StockSnapshot,
	prices product.PriceResolver,
	mode FailureMode,
	recorder usage.Recorder,
	logger *zap.Logger,
) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		mapper:     mapper,
		stock:      stock,
		prices:     prices,
		mode:       mode,
		codeColumn: mapping.PNVCodeColumn,
		recorder:   recorder,
		logger:     logger,
	}
}

// Map implements RowMapper. Enrichment is keyed on the raw code column.
func (e *Enricher) Map(ctx context.Context, row mapping.Row) (product.Record, error) {
	rec, err := e.mapper.Map(ctx, row)
	if err != nil {
		return product.Record{}, err
	}
	code := row.Value(e.codeColumn)

	rec.StockAmount = e.stock.Amount(code)

	pricelist, err := analytics.Monitor(ctx, e.recorder, "getProductPricelist", map[string]any{"code": code},
		func(ctx context.Context) ([]product.PriceEntry, error) {
			return e.prices.FetchPricelist(ctx, code)
		})
	if err != nil {
		if e.mode != FailDegrade || ctx.Err() != nil {
			return product.Record{}, fmt.Errorf("enrich %s: %w", code, err)
		}
		e.degraded.Add(1)
		e.logger.Warn("Pricelist lookup failed, continuing with empty pricelist",
			zap.String("product_code", code),
			zap.Error(err),
		)
		pricelist = nil
	}
	if pricelist == nil {
		pricelist = []product.PriceEntry{}
	}
	rec.Pricelist = pricelist
	return rec, nil
}

// Degraded returns how many rows were enriched with the degrade fallback.
func (e *Enricher) Degraded() int {
	return int(e.degraded.Load())
}
