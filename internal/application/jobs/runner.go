// Package jobs runs the whole pipeline: catalog sync followed by AI
// categorization of every enabled export configuration.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pnv/catalog-sync/internal/application/categorization"
	"github.com/pnv/catalog-sync/internal/application/productsync"
	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/pnv/catalog-sync/internal/infrastructure/analytics"
	"github.com/pnv/catalog-sync/internal/infrastructure/lock"
	"github.com/pnv/catalog-sync/internal/infrastructure/logger"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Triggers recorded on a run.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerManual   = "manual"
)

// Syncer runs the catalog sync.
type Syncer interface {
	Run(ctx context.Context) (productsync.RunResult, error)
}

// Classifier categorizes one export configuration.
type Classifier interface {
	Classify(ctx context.Context, exportID string) (categorization.ClassifyResult, error)
}

// Config tunes a Runner. Zero values select defaults.
type Config struct {
	LockKey    string
	LockTTL    time.Duration
	RunTimeout time.Duration
	Metrics    *telemetry.PipelineMetrics
	Now        func() time.Time
}

// Runner executes pipeline runs under the run lock.
type Runner struct {
	syncer     Syncer
	classifier Classifier
	registry   taxonomy.Registry
	runs       pipeline.RunRepository
	locker     lock.Locker
	recorder   usage.Recorder
	config     Config
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewRunner creates a runner. runs and recorder may be nil.
func NewRunner(
	syncer Syncer,
	classifier Classifier,
	registry taxonomy.Registry,
	runs pipeline.RunRepository,
	locker lock.Locker,
	recorder usage.Recorder,
	log *zap.Logger,
	cfg Config,
) *Runner {
	if cfg.LockKey == "" {
		cfg.LockKey = lock.DefaultKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if locker == nil {
		locker = lock.NewMemoryLock()
	}
	return &Runner{
		syncer:     syncer,
		classifier: classifier,
		registry:   registry,
		runs:       runs,
		locker:     locker,
		recorder:   recorder,
		config:     cfg,
		logger:     logger.OrNop(log),
	}
}

// RunOnce takes the run lock and executes one run synchronously. It returns
// pipeline.ErrRunInProgress without running when the lock is held.
func (r *Runner) RunOnce(ctx context.Context, trigger string) (*pipeline.Run, error) {
	token, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, trigger, token)
}

// Start takes the run lock and executes the run in the background. Errors of
// the run itself are logged, never returned.
func (r *Runner) Start(ctx context.Context, trigger string) error {
	token, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(context.WithoutCancel(ctx), trigger, token)
	}()
	return nil
}

// Job returns a function for the scheduler that runs once and swallows errors.
func (r *Runner) Job(trigger string) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := r.RunOnce(ctx, trigger); errors.Is(err, pipeline.ErrRunInProgress) {
			r.logger.Warn("Previous run still in progress, skipping", zap.String("trigger", trigger))
		}
	}
}

// Wait blocks until background runs started with Start have finished or ctx
// is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) acquire(ctx context.Context) (string, error) {
	token, ok, err := r.locker.Acquire(ctx, r.config.LockKey, r.config.LockTTL)
	if err != nil {
		r.logger.Error("Failed to take run lock", zap.Error(err))
		return "", fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return "", pipeline.ErrRunInProgress
	}
	return token, nil
}

// execute runs the pipeline while holding token. The returned error is
// informational; it has already been logged and recorded on the run.
func (r *Runner) execute(ctx context.Context, trigger, token string) (*pipeline.Run, error) {
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), r.config.LockKey, token); err != nil {
			r.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}()

	run := &pipeline.Run{
		ID:        ulid.Make().String(),
		Trigger:   trigger,
		Status:    pipeline.RunStatusRunning,
		StartedAt: r.config.Now().UTC(),
	}

	ctx, log := logger.WithRunID(ctx, r.logger, run.ID)
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "run",
		telemetry.WithAttribute(telemetry.SpanAttrRunID, run.ID),
		telemetry.WithAttribute(telemetry.SpanAttrTrigger, trigger),
	)
	defer span.End()
	log = logger.WithTraceContext(ctx, log)

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	log.Info("Pipeline run started", zap.String("trigger", trigger))
	r.save(ctx, run)

	status, runErr := r.pipeline(ctx, run, log)

	run.Finish(status, r.config.Now().UTC(), runErr)
	r.save(ctx, run)
	r.config.Metrics.RecordRun(ctx, string(status), run.Duration())

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Duration("duration", run.Duration()),
		zap.Int("created", run.Sync.Created),
		zap.Int("updated", run.Sync.Updated),
		zap.Int("deactivated", run.Sync.Deactivated),
		zap.Int("skipped", run.Sync.Skipped),
		zap.Int("classified", run.Classified),
	}
	if runErr != nil {
		telemetry.RecordError(span, runErr)
		log.Error("Pipeline run finished with errors", append(fields, zap.Error(runErr))...)
	} else {
		log.Info("Pipeline run finished", fields...)
	}
	return run, runErr
}

func (r *Runner) pipeline(ctx context.Context, run *pipeline.Run, log *zap.Logger) (pipeline.RunStatus, error) {
	syncRes, err := r.syncer.Run(ctx)
	if err != nil {
		return pipeline.RunStatusFailed, fmt.Errorf("sync: %w", err)
	}
	run.Sync = syncRes.Sync
	run.Orphans = syncRes.Orphans

	configs, err := r.registry.ListAIEnabledConfigs(ctx)
	if err != nil {
		return pipeline.RunStatusPartial, fmt.Errorf("list export configurations: %w", err)
	}

	var errs []error
	degraded := syncRes.Degraded > 0
	for _, cfg := range configs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		exportCtx, exportLog := logger.WithExportID(ctx, log, cfg.ID)
		res, err := analytics.Monitor(exportCtx, r.recorder, "identifyProductsCategories",
			map[string]any{"exportId": cfg.ID},
			func(ctx context.Context) (categorization.ClassifyResult, error) {
				return r.classifier.Classify(ctx, cfg.ID)
			})
		run.Classified += res.Persisted
		if err != nil {
			exportLog.Error("Categorization failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("classify %s: %w", cfg.ID, err))
			continue
		}
		if res.FailedBatches > 0 {
			degraded = true
		}
	}

	if err := errors.Join(errs...); err != nil {
		return pipeline.RunStatusPartial, err
	}
	if degraded {
		return pipeline.RunStatusPartial, nil
	}
	return pipeline.RunStatusSuccess, nil
}

func (r *Runner) save(ctx context.Context, run *pipeline.Run) {
	if r.runs == nil {
		return
	}
	if err := r.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("Failed to record pipeline run", zap.String("run_id", run.ID), zap.Error(err))
	}
}
