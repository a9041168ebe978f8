package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Schedule
		wantErr bool
	}{
		{"daily cron", "0 3 * * *", Daily{Hour: 3, Minute: 0}, false},
		{"daily cron with minutes", "30 22 * * *", Daily{Hour: 22, Minute: 30}, false},
		{"interval", "6h", Every(6 * time.Hour), false},
		{"weekly cron is rejected", "0 3 * * 1", nil, true},
		{"hour out of range", "0 24 * * *", nil, true},
		{"step syntax is rejected", "*/5 * * * *", nil, true},
		{"negative interval", "-1h", nil, true},
		{"garbage", "sometimes", nil, true},
		{"empty", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaily_Next(t *testing.T) {
	d := Daily{Hour: 3, Minute: 0}

	before := time.Date(2026, 5, 10, 2, 59, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC), d.Next(before))

	exactly := time.Date(2026, 5, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 11, 3, 0, 0, 0, time.UTC), d.Next(exactly))

	after := time.Date(2026, 12, 31, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 3, 0, 0, 0, time.UTC), d.Next(after))
}

func TestTrigger(t *testing.T) {
	t.Run("runs on start and on every tick", func(t *testing.T) {
		var runs atomic.Int32
		var startup atomic.Int32
		trig := NewTrigger(TriggerConfig{
			Schedule:   Every(20 * time.Millisecond),
			RunOnStart: true,
			StartupJob: func(context.Context) { startup.Add(1) },
		}, func(context.Context) { runs.Add(1) }, nil)

		require.NoError(t, trig.Start(context.Background()))
		assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, trig.Stop(ctx))
		assert.Equal(t, int32(1), startup.Load())
		assert.False(t, trig.LastFired().IsZero())
	})

	t.Run("panicking job does not kill the loop", func(t *testing.T) {
		var runs atomic.Int32
		trig := NewTrigger(TriggerConfig{Schedule: Every(10 * time.Millisecond)}, func(context.Context) {
			runs.Add(1)
			panic("boom")
		}, nil)

		require.NoError(t, trig.Start(context.Background()))
		assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, trig.Stop(context.Background()))
	})

	t.Run("stop waits for a running job", func(t *testing.T) {
		started := make(chan struct{})
		var finished atomic.Bool
		trig := NewTrigger(TriggerConfig{Schedule: Every(time.Hour), RunOnStart: true}, func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			finished.Store(true)
		}, nil)

		require.NoError(t, trig.Start(context.Background()))
		<-started
		require.NoError(t, trig.Stop(context.Background()))
		assert.True(t, finished.Load())
	})

	t.Run("no job", func(t *testing.T) {
		assert.ErrorIs(t, NewTrigger(TriggerConfig{Schedule: Every(time.Hour)}, nil, nil).Start(context.Background()), ErrNoJob)
	})
}
