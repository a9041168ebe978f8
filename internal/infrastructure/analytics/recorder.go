// Package analytics moves AI usage and step timings off the pipeline path
// into the usage repository through a bounded queue.
package analytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/usage"
	"go.uber.org/zap"
)

// DefaultApp is stamped on function calls recorded without an app name.
const DefaultApp = "pnv-catalog-sync"

// ErrRecorderStopped is returned by Start after Stop.
var ErrRecorderStopped = errors.New("analytics: recorder stopped")

// RecorderConfig holds configuration for the queue recorder
type RecorderConfig struct {
	QueueSize    int
	App          string
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns default configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:    1024,
		App:          DefaultApp,
		WriteTimeout: 5 * time.Second,
	}
}

type event struct {
	aiUsage  *usage.AIUsage
	function *usage.FunctionCall
}

// QueueRecorder buffers events in a bounded channel drained by one worker.
// A full queue drops the event with a warning.
type QueueRecorder struct {
	repo   usage.Repository
	config RecorderConfig
	logger *zap.Logger

	mu      sync.RWMutex
	queue   chan event
	closed  bool
	started bool
	wg      sync.WaitGroup

	dropped atomic.Int64
	written atomic.Int64
}

// NewQueueRecorder creates a recorder; call Start to begin writing.
func NewQueueRecorder(repo usage.Repository, config RecorderConfig, logger *zap.Logger) *QueueRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultRecorderConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.App == "" {
		config.App = defaults.App
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	return &QueueRecorder{
		repo:   repo,
		config: config,
		logger: logger.With(zap.String("component", "analytics")),
		queue:  make(chan event, config.QueueSize),
	}
}

// Start launches the writer. It is a no-op when already started.
func (r *QueueRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderStopped
	}
	if r.started {
		return nil
	}
	r.started = true

	r.wg.Add(1)
	go r.loop()

	r.logger.Info("analytics recorder started", zap.Int("queue_size", r.config.QueueSize))
	return nil
}

// Stop closes the queue and waits for queued events to be written.
func (r *QueueRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("analytics recorder stopped",
			zap.Int64("written", r.written.Load()),
			zap.Int64("dropped", r.dropped.Load()),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordAIUsage enqueues one token usage event.
func (r *QueueRecorder) RecordAIUsage(_ context.Context, u usage.AIUsage) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	r.enqueue(event{aiUsage: &u}, "ai_usage")
}

// RecordFunctionCall enqueues one step timing.
func (r *QueueRecorder) RecordFunctionCall(_ context.Context, f usage.FunctionCall) {
	if f.App == "" {
		f.App = r.config.App
	}
	r.enqueue(event{function: &f}, "function")
}

// Dropped returns how many events were discarded on a full or closed queue.
func (r *QueueRecorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *QueueRecorder) enqueue(ev event, kind string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("analytics queue full, dropping event", zap.String("kind", kind))
	}
}

func (r *QueueRecorder) loop() {
	defer r.wg.Done()
	for ev := range r.queue {
		r.write(ev)
	}
}

func (r *QueueRecorder) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	var err error
	switch {
	case ev.aiUsage != nil:
		err = r.repo.SaveAIUsage(ctx, *ev.aiUsage)
	case ev.function != nil:
		err = r.repo.SaveFunctionCall(ctx, *ev.function)
	}
	if err != nil {
		r.logger.Warn("failed to write analytics event", zap.Error(err))
		return
	}
	r.written.Add(1)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) RecordAIUsage(context.Context, usage.AIUsage)           {}
func (NopRecorder) RecordFunctionCall(context.Context, usage.FunctionCall) {}

var (
	_ usage.Recorder = (*QueueRecorder)(nil)
	_ usage.Recorder = NopRecorder{}
)
