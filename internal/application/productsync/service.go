// Package productsync turns the PNV export into catalog records: it reads the
// file, enriches each row from the ERP, builds the parent/child hierarchy and
// synchronizes the result into the catalog.
package productsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/mapping"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"github.com/pnv/catalog-sync/internal/infrastructure/filestore"
	csvimport "github.com/pnv/catalog-sync/internal/infrastructure/import"
	"github.com/pnv/catalog-sync/internal/infrastructure/logger"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ErrNoSource is returned by Build when the service has no fetcher.
var ErrNoSource = errors.New("productsync: no source configured")

// Fetcher opens the current product export.
type Fetcher interface {
	Fetch(ctx context.Context) (io.ReadCloser, error)
}

// Config holds the run policies of a Service.
type Config struct {
	OrphanPolicy      OrphanPolicy
	EnrichmentFailure FailureMode
	WarehouseID       string
	// Encoding of the export, "" or utf-8 for none
	Encoding string
	// SnapshotPath, when set, receives the built hierarchy as JSON after each Run
	SnapshotPath string
	Metrics      *telemetry.PipelineMetrics
	Now          func() time.Time
}

// Built is the enriched hierarchy of one export.
type Built struct {
	BuildResult
	Degraded int
}

// RunResult summarizes one Run.
type RunResult struct {
	Rows     int                `json:"rows"`
	Parents  int                `json:"parents"`
	Children int                `json:"children"`
	Orphans  int                `json:"orphans"`
	Degraded int                `json:"degraded"`
	Sync     product.SyncResult `json:"sync"`
}

// Service runs the sync half of the pipeline.
type Service struct {
	source   Fetcher
	table    *mapping.Table
	stock    product.StockResolver
	prices   product.PriceResolver
	catalog  product.CatalogRepository
	recorder usage.Recorder
	config   Config
	logger   *zap.Logger
}

// NewService creates a sync service. A nil table selects the PNV table.
func NewService(
	source Fetcher,
	table *mapping.Table,
	stock product.StockResolver,
	prices product.PriceResolver,
	catalog product.CatalogRepository,
	recorder usage.Recorder,
	log *zap.Logger,
	cfg Config,
) *Service {
	if table == nil {
		table = mapping.PNVTable()
	}
	if cfg.OrphanPolicy == "" {
		cfg.OrphanPolicy = OrphanDrop
	}
	if cfg.EnrichmentFailure == "" {
		cfg.EnrichmentFailure = FailAbort
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		source:   source,
		table:    table,
		stock:    stock,
		prices:   prices,
		catalog:  catalog,
		recorder: recorder,
		config:   cfg,
		logger:   logger.OrNop(log),
	}
}

// Build reads the export and returns the enriched hierarchy without touching
// the catalog.
func (s *Service) Build(ctx context.Context) (Built, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product_sync", "build")
	defer span.End()

	if s.source == nil {
		return Built{}, ErrNoSource
	}
	rows, err := s.readRows(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return Built{}, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRows, len(rows))

	snapshot, err := s.stockSnapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return Built{}, err
	}

	log := s.runLogger(ctx)
	enricher := NewEnricher(mapping.NewMapper(s.table), snapshot, s.prices, s.config.EnrichmentFailure, s.recorder, log)
	res, err := NewHierarchyBuilder(s.config.OrphanPolicy, log).Build(ctx, rows, enricher)
	if err != nil {
		telemetry.RecordError(span, err)
		return Built{}, fmt.Errorf("build hierarchy: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrParents, len(res.Parents),
		telemetry.SpanAttrOrphans, len(res.Orphans),
	)
	log.Info("Built product hierarchy",
		zap.Int("rows", res.Rows),
		zap.Int("parents", len(res.Parents)),
		zap.Int("children", res.Children),
		zap.Int("orphans", len(res.Orphans)),
		zap.Int("degraded", enricher.Degraded()),
	)
	return Built{BuildResult: res, Degraded: enricher.Degraded()}, nil
}

func (s *Service) readRows(ctx context.Context) ([]mapping.Row, error) {
	rc, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch export: %w", err)
	}
	defer rc.Close()

	var opts []csvimport.ParserOption
	enc, err := csvimport.EncodingByName(s.config.Encoding)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		opts = append(opts, csvimport.WithEncoding(enc))
	}

	rows, err := csvimport.ReadProducts(rc, []string{mapping.PNVCodeColumn}, opts...)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return rows, nil
}

// stockSnapshot fetches the warehouse once per run. Under the degrade mode a
// failed fetch reads as zero stock for every code.
func (s *Service) stockSnapshot(ctx context.Context) (*product.StockSnapshot, error) {
	snapshot, err := analytics.Monitor(ctx, s.recorder, "getWarehouseStock",
		map[string]any{"warehouseId": s.config.WarehouseID},
		func(ctx context.Context) (*product.StockSnapshot, error) {
			return s.stock.FetchAll(ctx, s.config.WarehouseID)
		})
	if err == nil {
		return snapshot, nil
	}
	if s.config.EnrichmentFailure != FailDegrade || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch warehouse stock: %w", err)
	}
	s.logger.Warn("Warehouse stock unavailable, continuing with zero stock",
		zap.String("warehouse_id", s.config.WarehouseID),
		zap.Error(err),
	)
	return product.NewStockSnapshot(nil), nil
}

// Sync deactivates every catalog record missing from parents, then upserts
// parents. Deactivation always completes before the first upsert.
func (s *Service) Sync(ctx context.Context, parents []product.Record) (product.SyncResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "product_sync", "sync",
		telemetry.WithAttribute(telemetry.SpanAttrParents, len(parents)),
	)
	defer span.End()

	var res product.SyncResult
	now := s.config.Now().UTC()

	valid, codes, skipped := s.validParents(parents)
	res.Skipped = skipped

	deactivated, err := s.catalog.DeactivateMissing(ctx, codes, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, fmt.Errorf("deactivate missing products: %w", err)
	}
	res.Deactivated = deactivated

	created, updated, err := s.catalog.Upsert(ctx, valid, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, fmt.Errorf("upsert products: %w", err)
	}
	res.Created = created
	res.Updated = updated

	telemetry.SetAttributes(span,
		telemetry.SpanAttrCreated, res.Created,
		telemetry.SpanAttrUpdated, res.Updated,
		telemetry.SpanAttrDeactivated, res.Deactivated,
		"skipped", res.Skipped,
	)
	return res, nil
}

// validParents drops parents that fail validation, so one bad export row
// cannot block the upsert of the others. The codes of dropped parents still
// count as incoming and their existing catalog records stay active.
func (s *Service) validParents(parents []product.Record) ([]product.Record, []string, int) {
	codes := make([]string, 0, len(parents))
	var valid []product.Record
	skipped := 0
	for i, p := range parents {
		if code := p.Code(); code != "" {
			codes = append(codes, code)
		}
		err := p.Validate()
		if err == nil {
			if valid != nil {
				valid = append(valid, p)
			}
			continue
		}
		if valid == nil {
			valid = append(make([]product.Record, 0, len(parents)), parents[:i]...)
		}
		skipped++
		s.logger.Warn("Skipping invalid product",
			zap.String("product_code", p.Code()),
			zap.Error(err),
		)
	}
	if valid == nil {
		valid = parents
	}
	return valid, codes, skipped
}

// Run builds the hierarchy and synchronizes it into the catalog.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	var out RunResult

	built, err := s.Build(ctx)
	if err != nil {
		return out, err
	}
	out.Rows = built.Rows
	out.Parents = len(built.Parents)
	out.Children = built.Children
	out.Orphans = len(built.Orphans)
	out.Degraded = built.Degraded

	if s.config.SnapshotPath != "" {
		if err := s.ExportJSON(s.config.SnapshotPath, built.Parents); err != nil {
			s.logger.Warn("Failed to write products snapshot",
				zap.String("path", s.config.SnapshotPath),
				zap.Error(err),
			)
		}
	}

	res, err := analytics.Monitor(ctx, s.recorder, "syncProducts",
		map[string]any{"count": len(built.Parents)},
		func(ctx context.Context) (product.SyncResult, error) {
			return s.Sync(ctx, built.Parents)
		})
	if err != nil {
		return out, err
	}
	out.Sync = res
	s.config.Metrics.RecordSync(ctx, res.Created, res.Updated, res.Deactivated, out.Orphans)

	s.runLogger(ctx).Info("Synchronized catalog",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("skipped", res.Skipped),
	)
	return out, nil
}

func (s *Service) runLogger(ctx context.Context) *zap.Logger {
	if runID := logger.GetRunID(ctx); runID != "" {
		return s.logger.With(zap.String("run_id", runID))
	}
	return s.logger
}

// ExportJSON writes parents to path as a JSON array.
func (s *Service) ExportJSON(path string, parents []product.Record) error {
	if parents == nil {
		parents = []product.Record{}
	}
	return filestore.WriteJSONAtomic(path, parents)
}
