package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the work a trigger runs. It owns its own error handling.
type Job func(ctx context.Context)

// TriggerConfig holds configuration for the trigger
type TriggerConfig struct {
	Schedule   Schedule
	RunOnStart bool
	// StartupJob runs instead of Job for the startup run, when set
	StartupJob Job
}

// Trigger runs a job on a schedule, one execution at a time.
type Trigger struct {
	config TriggerConfig
	job    Job
	logger *zap.Logger
	now    func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastFired time.Time
}

// NewTrigger creates a trigger
func NewTrigger(config TriggerConfig, job Job, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		config: config,
		job:    job,
		logger: logger,
		now:    time.Now,
	}
}

// Start starts the trigger loop
func (t *Trigger) Start(ctx context.Context) error {
	if t.job == nil || t.config.Schedule == nil {
		return ErrNoJob
	}
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Pipeline trigger started",
		zap.Stringer("schedule", t.config.Schedule),
		zap.Bool("run_on_start", t.config.RunOnStart),
		zap.Time("next_run", t.config.Schedule.Next(t.now())),
	)
	return nil
}

// Stop cancels the loop and waits for a running job to return
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Pipeline trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastFired returns when the job last started, zero if never.
func (t *Trigger) LastFired() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFired
}

func (t *Trigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		job := t.job
		if t.config.StartupJob != nil {
			job = t.config.StartupJob
		}
		t.fire(ctx, job)
	}

	for {
		next := t.config.Schedule.Next(t.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			t.fire(ctx, t.job)
		}
	}
}

func (t *Trigger) fire(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	t.lastFired = t.now()
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Scheduled job panicked", zap.Any("panic", r))
		}
	}()
	job(ctx)
}
