// Command classify-file categorizes the products of a products.json export
// without a database. The taxonomy comes from a YAML or JSON file and the
// assignments go to a checkpoint file next to it, so an interrupted run
// resumes where it stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pnv/catalog-sync/internal/application/categorization"
	"github.com/pnv/catalog-sync/internal/application/productsync"
	"github.com/pnv/catalog-sync/internal/infrastructure/ai"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"github.com/pnv/catalog-sync/internal/infrastructure/config"
	"github.com/pnv/catalog-sync/internal/infrastructure/erp"
	"github.com/pnv/catalog-sync/internal/infrastructure/filestore"
	"github.com/pnv/catalog-sync/internal/infrastructure/logger"
	"github.com/pnv/catalog-sync/internal/infrastructure/source"
	"go.uber.org/zap"
)

type options struct {
	exportID    string
	taxonomy    string
	labelPrefix string
	products    string
	checkpoint  string
	batchSize   int
	refresh     bool
	logLevel    string
}

func main() {
	var opts options
	flag.StringVar(&opts.exportID, "export-id", "", "Export configuration id the categories belong to (required)")
	flag.StringVar(&opts.taxonomy, "taxonomy", "", "Taxonomy file, YAML or JSON (required)")
	flag.StringVar(&opts.labelPrefix, "label-prefix", "", "Only offer categories whose label starts with this prefix, e.g. Katalog")
	flag.StringVar(&opts.products, "products", "", "Products file (default {data_dir}/pnv/products.json)")
	flag.StringVar(&opts.checkpoint, "checkpoint", "", "Checkpoint file (default {data_dir}/{export-id}/productCategories.json)")
	flag.IntVar(&opts.batchSize, "batch-size", 0, "Products per model call (default ai.batch_size)")
	flag.BoolVar(&opts.refresh, "refresh", false, "Rebuild the products file from the configured source and ERP first")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	if opts.exportID == "" || opts.taxonomy == "" {
		fmt.Fprintln(os.Stderr, "classify-file: -export-id and -taxonomy are required")
		flag.Usage()
		os.Exit(2)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = opts.logLevel
	log, err := logger.New(logCfg, "pnv-classify-file")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("Categorization failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *zap.Logger) error {
	if opts.products == "" {
		opts.products = filepath.Join(cfg.Source.DataDir, "pnv", "products.json")
	}
	if opts.checkpoint == "" {
		opts.checkpoint = filepath.Join(cfg.Source.DataDir, opts.exportID, "productCategories.json")
	}
	if opts.batchSize <= 0 {
		opts.batchSize = cfg.AI.BatchSize
	}

	if opts.refresh {
		if err := refreshProducts(ctx, cfg, opts.products, log); err != nil {
			return fmt.Errorf("refresh products: %w", err)
		}
	}

	aiCfg := ai.NewGeminiConfig(cfg.AI.APIKey)
	aiCfg.Model = cfg.AI.Model
	aiCfg.Timeout = cfg.AI.Timeout
	aiCfg.MaxRetries = cfg.AI.MaxRetries
	gemini, err := ai.NewGeminiClassifier(ctx, aiCfg, log.Named("gemini"))
	if err != nil {
		return err
	}

	registry := filestore.NewFileTaxonomyRegistry(opts.taxonomy, opts.exportID, opts.labelPrefix)
	store := filestore.NewProductFileStore(opts.products, opts.checkpoint, log.Named("filestore"))
	engine := categorization.NewEngine(registry, store, gemini, analytics.NopRecorder{}, log.Named("categorization"), categorization.Options{
		BatchSize: opts.batchSize,
	})

	res, err := engine.Classify(ctx, opts.exportID)
	log.Info("Categorization finished",
		zap.String("export_id", res.ExportID),
		zap.Int("taxonomy_size", res.TaxonomySize),
		zap.Int("candidates", res.Candidates),
		zap.Int("batches", res.Batches),
		zap.Int("failed_batches", res.FailedBatches),
		zap.Int("persisted", res.Persisted),
		zap.Int("discarded", res.Discarded),
		zap.String("checkpoint", opts.checkpoint),
	)
	return err
}

// refreshProducts builds the hierarchy from the configured source and writes
// it to path. The catalog database is not touched.
func refreshProducts(ctx context.Context, cfg *config.Config, path string, log *zap.Logger) error {
	src, err := source.New(ctx, cfg.Source, log.Named("source"))
	if err != nil {
		return err
	}

	erpCfg := erp.NewMetakockaConfig(cfg.ERP.SecretKey, cfg.ERP.CompanyID)
	erpCfg.BaseURL = cfg.ERP.BaseURL
	erpCfg.WarehouseID = cfg.ERP.WarehouseID
	erpCfg.ActivePricelists = cfg.ERP.ActivePricelists
	erpCfg.Timeout = cfg.ERP.Timeout
	erpCfg.MaxRetries = cfg.ERP.MaxRetries
	erpCfg.RequestsPerSecond = cfg.ERP.RequestsPerSecond
	metakocka, err := erp.NewMetakockaClient(erpCfg, log.Named("metakocka"))
	if err != nil {
		return err
	}

	table, err := cfg.Mapping.BuildMappingTable()
	if err != nil {
		return err
	}
	orphans, err := productsync.ParseOrphanPolicy(cfg.Pipeline.OrphanPolicy)
	if err != nil {
		return err
	}
	failureMode, err := productsync.ParseFailureMode(cfg.Pipeline.EnrichmentFailure)
	if err != nil {
		return err
	}

	svc := productsync.NewService(src, table, metakocka, metakocka, nil, analytics.NopRecorder{}, log.Named("sync"), productsync.Config{
		OrphanPolicy:      orphans,
		EnrichmentFailure: failureMode,
		WarehouseID:       cfg.ERP.WarehouseID,
		Encoding:          cfg.Source.Encoding,
	})
	built, err := svc.Build(ctx)
	if err != nil {
		return err
	}
	if err := svc.ExportJSON(path, built.Parents); err != nil {
		return err
	}
	log.Info("Products file written", zap.String("path", path), zap.Int("parents", len(built.Parents)))
	return nil
}
