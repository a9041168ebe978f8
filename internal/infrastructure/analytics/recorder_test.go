package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu        sync.Mutex
	aiUsage   []usage.AIUsage
	functions []usage.FunctionCall
	failNext  bool
}

func (m *memoryRepo) SaveAIUsage(_ context.Context, u usage.AIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("db down")
	}
	m.aiUsage = append(m.aiUsage, u)
	return nil
}

func (m *memoryRepo) SaveFunctionCall(_ context.Context, f usage.FunctionCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.functions = append(m.functions, f)
	return nil
}

func TestQueueRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("writes queued events before stop returns", func(t *testing.T) {
		repo := &memoryRepo{}
		rec := NewQueueRecorder(repo, RecorderConfig{QueueSize: 8}, nil)
		require.NoError(t, rec.Start())

		rec.RecordAIUsage(ctx, usage.AIUsage{ExportID: "tris", Model: "gemini-2.5-flash", InputTokens: 10, OutputTokens: 2, TotalTokens: 12})
		rec.RecordFunctionCall(ctx, usage.FunctionCall{Action: "sync", Success: true})

		require.NoError(t, rec.Stop(ctx))

		require.Len(t, repo.aiUsage, 1)
		assert.Equal(t, int64(12), repo.aiUsage[0].TotalTokens)
		assert.False(t, repo.aiUsage[0].Timestamp.IsZero())
		require.Len(t, repo.functions, 1)
		assert.Equal(t, DefaultApp, repo.functions[0].App)
		assert.Zero(t, rec.Dropped())
	})

	t.Run("full queue drops events", func(t *testing.T) {
		repo := &memoryRepo{}
		rec := NewQueueRecorder(repo, RecorderConfig{QueueSize: 1}, nil)

		rec.RecordFunctionCall(ctx, usage.FunctionCall{Action: "a"})
		rec.RecordFunctionCall(ctx, usage.FunctionCall{Action: "b"})
		assert.Equal(t, int64(1), rec.Dropped())

		require.NoError(t, rec.Start())
		require.NoError(t, rec.Stop(ctx))
		require.Len(t, repo.functions, 1)
		assert.Equal(t, "a", repo.functions[0].Action)
	})

	t.Run("events after stop are dropped", func(t *testing.T) {
		rec := NewQueueRecorder(&memoryRepo{}, DefaultRecorderConfig(), nil)
		require.NoError(t, rec.Start())
		require.NoError(t, rec.Stop(ctx))

		assert.NotPanics(t, func() { rec.RecordAIUsage(ctx, usage.AIUsage{}) })
		assert.Equal(t, int64(1), rec.Dropped())
		assert.ErrorIs(t, rec.Start(), ErrRecorderStopped)
	})

	t.Run("write failures do not stop the worker", func(t *testing.T) {
		repo := &memoryRepo{failNext: true}
		rec := NewQueueRecorder(repo, RecorderConfig{QueueSize: 4, WriteTimeout: time.Second}, nil)
		require.NoError(t, rec.Start())

		rec.RecordAIUsage(ctx, usage.AIUsage{ExportID: "first"})
		rec.RecordAIUsage(ctx, usage.AIUsage{ExportID: "second"})
		require.NoError(t, rec.Stop(ctx))

		require.Len(t, repo.aiUsage, 1)
		assert.Equal(t, "second", repo.aiUsage[0].ExportID)
	})
}

type captureRecorder struct {
	NopRecorder
	calls []usage.FunctionCall
}

func (c *captureRecorder) RecordFunctionCall(_ context.Context, f usage.FunctionCall) {
	c.calls = append(c.calls, f)
}

func TestMonitor(t *testing.T) {
	ctx := context.Background()

	t.Run("records success with metadata", func(t *testing.T) {
		rec := &captureRecorder{}
		n, err := Monitor(ctx, rec, "getProductStockAmount", map[string]any{"code": "A1"}, func(context.Context) (int64, error) {
			return 5, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		require.Len(t, rec.calls, 1)
		call := rec.calls[0]
		assert.Equal(t, FunctionType, call.Type)
		assert.Equal(t, "getProductStockAmount", call.Action)
		assert.True(t, call.Success)
		assert.Empty(t, call.Error)
		assert.Equal(t, "A1", call.Metadata["code"])
		assert.GreaterOrEqual(t, call.DurationNs, int64(0))
	})

	t.Run("records failure and returns the error", func(t *testing.T) {
		rec := &captureRecorder{}
		boom := errors.New("erp down")
		_, err := Monitor(ctx, rec, "sync", nil, func(context.Context) (struct{}, error) {
			return struct{}{}, boom
		})
		assert.ErrorIs(t, err, boom)
		require.Len(t, rec.calls, 1)
		assert.False(t, rec.calls[0].Success)
		assert.Equal(t, "erp down", rec.calls[0].Error)
	})

	t.Run("nil recorder only runs the function", func(t *testing.T) {
		v, err := Monitor(ctx, nil, "noop", nil, func(context.Context) (string, error) { return "ok", nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}
