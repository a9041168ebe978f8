package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pnv/catalog-sync/internal/application/categorization"
	"github.com/pnv/catalog-sync/internal/application/jobs"
	"github.com/pnv/catalog-sync/internal/application/productsync"
	"github.com/pnv/catalog-sync/internal/infrastructure/ai"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"github.com/pnv/catalog-sync/internal/infrastructure/config"
	"github.com/pnv/catalog-sync/internal/infrastructure/erp"
	"github.com/pnv/catalog-sync/internal/infrastructure/lock"
	"github.com/pnv/catalog-sync/internal/infrastructure/logger"
	"github.com/pnv/catalog-sync/internal/infrastructure/persistence"
	"github.com/pnv/catalog-sync/internal/infrastructure/scheduler"
	"github.com/pnv/catalog-sync/internal/infrastructure/source"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"github.com/pnv/catalog-sync/internal/interfaces/http/handler"
	"github.com/pnv/catalog-sync/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, cfg.App.Name)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Service stopped with error", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	log.Info("Service exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting PNV catalog sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("source", cfg.Source.Kind),
		zap.String("schedule", cfg.Pipeline.Schedule),
	)

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(log, "tracer provider", tp.Shutdown)

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return err
	}
	defer shutdownWithTimeout(log, "meter provider", mp.Shutdown)

	metrics, err := telemetry.NewPipelineMetrics(mp.Meter("pnv-catalog-sync"))
	if err != nil {
		return err
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Database.LogLevel))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	if cfg.Database.Driver == "sqlite" {
		dbTracing.DBSystem = "sqlite"
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		return err
	}

	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			return err
		}
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	catalogRepo := persistence.NewGormCatalogRepository(db.DB)
	classificationStore := persistence.NewGormClassificationStore(db.DB)
	taxonomyRepo := persistence.NewGormTaxonomyRepository(db.DB)
	runRepo := persistence.NewGormPipelineRunRepository(db.DB)
	usageRepo := persistence.NewGormUsageRepository(db.DB)

	// Analytics side channel
	recorder := analytics.NewQueueRecorder(usageRepo, analytics.RecorderConfig{
		QueueSize: cfg.Pipeline.AnalyticsQueue,
		App:       cfg.App.Name,
	}, log.Named("analytics"))
	if err := recorder.Start(); err != nil {
		return err
	}
	defer shutdownWithTimeout(log, "analytics recorder", recorder.Stop)

	// Upstream clients
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
	metakocka.WithMetrics(metrics)

	aiCfg := ai.NewGeminiConfig(cfg.AI.APIKey)
	aiCfg.Model = cfg.AI.Model
	aiCfg.Timeout = cfg.AI.Timeout
	aiCfg.MaxRetries = cfg.AI.MaxRetries
	gemini, err := ai.NewGeminiClassifier(ctx, aiCfg, log.Named("gemini"))
	if err != nil {
		return err
	}
	gemini.WithMetrics(metrics)

	src, err := source.New(ctx, cfg.Source, log.Named("source"))
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

	// Pipeline
	syncService := productsync.NewService(src, table, metakocka, metakocka, catalogRepo, recorder, log.Named("sync"), productsync.Config{
		OrphanPolicy:      orphans,
		EnrichmentFailure: failureMode,
		WarehouseID:       cfg.ERP.WarehouseID,
		Encoding:          cfg.Source.Encoding,
		SnapshotPath:      cfg.Source.SnapshotPath,
		Metrics:           metrics,
	})
	engine := categorization.NewEngine(taxonomyRepo, classificationStore, gemini, recorder, log.Named("categorization"), categorization.Options{
		BatchSize: cfg.AI.BatchSize,
		Metrics:   metrics,
	})

	locker, err := lock.New(ctx, cfg.Redis, cfg.App.Env != "production", log)
	if err != nil {
		return err
	}
	if c, ok := locker.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	runner := jobs.NewRunner(syncService, engine, taxonomyRepo, runRepo, locker, recorder, log.Named("jobs"), jobs.Config{
		LockTTL:    cfg.Pipeline.LockTTL,
		RunTimeout: cfg.Pipeline.RunTimeout,
		Metrics:    metrics,
	})

	schedule, err := scheduler.ParseSchedule(cfg.Pipeline.Schedule)
	if err != nil {
		return err
	}
	trigger := scheduler.NewTrigger(scheduler.TriggerConfig{
		Schedule:   schedule,
		RunOnStart: cfg.Pipeline.RunOnStart,
		StartupJob: runner.Job(jobs.TriggerStartup),
	}, runner.Job(jobs.TriggerSchedule), log.Named("scheduler"))
	if err := trigger.Start(ctx); err != nil {
		return err
	}

	// Read API
	var srv *http.Server
	if cfg.HTTP.Enabled {
		mode := gin.DebugMode
		if cfg.App.Env == "production" {
			mode = gin.ReleaseMode
		}
		ginEngine := router.NewEngine(router.EngineConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			TracingEnabled: cfg.Telemetry.Enabled,
			Mode:           mode,
		}, log.Named("http"))

		ginEngine.GET("/health", handler.NewHealthHandler(db).Health)
		router.NewRouter(ginEngine).
			Register(handler.NewProductHandler(catalogRepo)).
			Register(handler.NewExportHandler(taxonomyRepo)).
			Register(handler.NewJobHandler(runner, runRepo)).
			Setup()

		srv = &http.Server{
			Addr:         ":" + cfg.HTTP.Port,
			Handler:      ginEngine,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  cfg.HTTP.IdleTimeout,
		}
	}

	serveErr := make(chan error, 1)
	if srv != nil {
		go func() {
			log.Info("HTTP server starting", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case runErr = <-serveErr:
		log.Error("HTTP server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced to shutdown", zap.Error(err))
		}
	}
	if err := trigger.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduled run did not finish before shutdown", zap.Error(err))
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		log.Warn("Manual run did not finish before shutdown", zap.Error(err))
	}
	return runErr
}

func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("Shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
