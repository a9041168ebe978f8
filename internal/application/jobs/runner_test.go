package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pnv/catalog-sync/internal/application/categorization"
	"github.com/pnv/catalog-sync/internal/application/productsync"
	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/pnv/catalog-sync/internal/infrastructure/lock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ----------------------------------------------------------------------------
// fakes
// ----------------------------------------------------------------------------

type fakeSyncer struct {
	mu     sync.Mutex
	result productsync.RunResult
	err    error
	calls  int
	block  chan struct{}
}

func (f *fakeSyncer) Run(context.Context) (productsync.RunResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, exportID string) (categorization.ClassifyResult, error) {
	args := m.Called(ctx, exportID)
	return args.Get(0).(categorization.ClassifyResult), args.Error(1)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) ListAIEnabledConfigs(ctx context.Context) ([]taxonomy.ExportConfiguration, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]taxonomy.ExportConfiguration), args.Error(1)
}

func (m *MockRegistry) GetTaxonomy(ctx context.Context, exportID string) ([]taxonomy.Entry, error) {
	args := m.Called(ctx, exportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]taxonomy.Entry), args.Error(1)
}

type memoryRuns struct {
	mu    sync.Mutex
	saves []pipeline.Run
}

func (m *memoryRuns) Save(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, *run)
	return nil
}

func (m *memoryRuns) ListRecent(context.Context, int) ([]pipeline.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.Run(nil), m.saves...), nil
}

func (m *memoryRuns) last() pipeline.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[len(m.saves)-1]
}

var enabled = []taxonomy.ExportConfiguration{
	{ID: "shop", Name: "Spletna trgovina", AICategorizationEnabled: true},
	{ID: "tris", Name: "Tris", AICategorizationEnabled: true},
}

func okSync() *fakeSyncer {
	return &fakeSyncer{result: productsync.RunResult{
		Rows: 5, Parents: 3, Children: 2, Orphans: 1,
		Sync: product.SyncResult{Created: 2, Updated: 1, Deactivated: 4},
	}}
}

func newTestRunner(s Syncer, c Classifier, reg taxonomy.Registry, runs pipeline.RunRepository, l lock.Locker) *Runner {
	return NewRunner(s, c, reg, runs, l, nil, nil, Config{LockTTL: time.Minute})
}

// ----------------------------------------------------------------------------
// tests
// ----------------------------------------------------------------------------

func TestRunner_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("sync then classify every enabled export", func(t *testing.T) {
		reg := new(MockRegistry)
		reg.On("ListAIEnabledConfigs", mock.Anything).Return(enabled, nil)
		cls := new(MockClassifier)
		var order []string
		cls.On("Classify", mock.Anything, "shop").
			Run(func(args mock.Arguments) { order = append(order, args.String(1)) }).
			Return(categorization.ClassifyResult{ExportID: "shop", Persisted: 3}, nil).Once()
		cls.On("Classify", mock.Anything, "tris").
			Run(func(args mock.Arguments) { order = append(order, args.String(1)) }).
			Return(categorization.ClassifyResult{ExportID: "tris", Persisted: 2}, nil).Once()
		runs := &memoryRuns{}

		run, err := newTestRunner(okSync(), cls, reg, runs, nil).RunOnce(ctx, TriggerManual)
		require.NoError(t, err)

		assert.Equal(t, pipeline.RunStatusSuccess, run.Status)
		assert.Len(t, run.ID, 26)
		assert.Equal(t, TriggerManual, run.Trigger)
		assert.Equal(t, product.SyncResult{Created: 2, Updated: 1, Deactivated: 4}, run.Sync)
		assert.Equal(t, 1, run.Orphans)
		assert.Equal(t, 5, run.Classified)
		assert.NotNil(t, run.FinishedAt)
		assert.Equal(t, []string{"shop", "tris"}, order)

		require.Len(t, runs.saves, 2)
		assert.Equal(t, pipeline.RunStatusRunning, runs.saves[0].Status)
		assert.Equal(t, pipeline.RunStatusSuccess, runs.saves[1].Status)
		cls.AssertExpectations(t)
	})

	t.Run("sync failure fails the run and skips categorization", func(t *testing.T) {
		boom := errors.New("missing export file")
		cls := new(MockClassifier)
		runs := &memoryRuns{}

		run, err := newTestRunner(&fakeSyncer{err: boom}, cls, new(MockRegistry), runs, nil).RunOnce(ctx, TriggerSchedule)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, pipeline.RunStatusFailed, run.Status)
		assert.Contains(t, runs.last().Error, "missing export file")
		cls.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
	})

	t.Run("one failing export does not stop the next", func(t *testing.T) {
		reg := new(MockRegistry)
		reg.On("ListAIEnabledConfigs", mock.Anything).Return(enabled, nil)
		cls := new(MockClassifier)
		cls.On("Classify", mock.Anything, "shop").Return(categorization.ClassifyResult{}, errors.New("taxonomy gone")).Once()
		cls.On("Classify", mock.Anything, "tris").Return(categorization.ClassifyResult{Persisted: 4}, nil).Once()

		run, err := newTestRunner(okSync(), cls, reg, &memoryRuns{}, nil).RunOnce(ctx, TriggerManual)
		assert.Error(t, err)
		assert.Equal(t, pipeline.RunStatusPartial, run.Status)
		assert.Equal(t, 4, run.Classified)
		cls.AssertExpectations(t)
	})

	t.Run("failed batches mark the run partial", func(t *testing.T) {
		reg := new(MockRegistry)
		reg.On("ListAIEnabledConfigs", mock.Anything).Return(enabled[:1], nil)
		cls := new(MockClassifier)
		cls.On("Classify", mock.Anything, "shop").Return(categorization.ClassifyResult{Persisted: 1, FailedBatches: 1}, nil)

		run, err := newTestRunner(okSync(), cls, reg, nil, nil).RunOnce(ctx, TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, pipeline.RunStatusPartial, run.Status)
	})

	t.Run("held lock skips the run", func(t *testing.T) {
		l := lock.NewMemoryLock()
		_, ok, err := l.Acquire(ctx, lock.DefaultKey, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		syncer := okSync()
		_, err = newTestRunner(syncer, new(MockClassifier), new(MockRegistry), nil, l).RunOnce(ctx, TriggerSchedule)
		assert.ErrorIs(t, err, pipeline.ErrRunInProgress)
		assert.Equal(t, 0, syncer.Calls())
	})

	t.Run("lock is released after the run", func(t *testing.T) {
		reg := new(MockRegistry)
		reg.On("ListAIEnabledConfigs", mock.Anything).Return([]taxonomy.ExportConfiguration{}, nil)
		syncer := okSync()
		r := newTestRunner(syncer, new(MockClassifier), reg, nil, lock.NewMemoryLock())

		_, err := r.RunOnce(ctx, TriggerManual)
		require.NoError(t, err)
		_, err = r.RunOnce(ctx, TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, 2, syncer.Calls())
	})
}

func TestRunner_Start(t *testing.T) {
	ctx := context.Background()
	reg := new(MockRegistry)
	reg.On("ListAIEnabledConfigs", mock.Anything).Return([]taxonomy.ExportConfiguration{}, nil)

	syncer := okSync()
	syncer.block = make(chan struct{})
	runs := &memoryRuns{}
	r := newTestRunner(syncer, new(MockClassifier), reg, runs, lock.NewMemoryLock())

	require.NoError(t, r.Start(ctx, TriggerManual))
	assert.ErrorIs(t, r.Start(ctx, TriggerManual), pipeline.ErrRunInProgress)

	close(syncer.block)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(waitCtx))

	assert.Equal(t, 1, syncer.Calls())
	assert.Equal(t, pipeline.RunStatusSuccess, runs.last().Status)
}

func TestRunner_Job(t *testing.T) {
	reg := new(MockRegistry)
	reg.On("ListAIEnabledConfigs", mock.Anything).Return(nil, errors.New("db down"))
	runs := &memoryRuns{}

	job := newTestRunner(okSync(), new(MockClassifier), reg, runs, nil).Job(TriggerSchedule)
	assert.NotPanics(t, func() { job(context.Background()) })
	assert.Equal(t, pipeline.RunStatusPartial, runs.last().Status)
}
