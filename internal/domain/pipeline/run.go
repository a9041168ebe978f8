// Package pipeline models one execution of the catalog sync and
// categorization job.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/product"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("pipeline: a run is already in progress")

// RunStatus is the outcome of a run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusSkipped RunStatus = "SKIPPED"
)

// Run records one pipeline execution.
type Run struct {
	ID         string
	Trigger    string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Sync       product.SyncResult
	Orphans    int
	Classified int
	Error      string
}

// Finish sets the terminal status, time and error message.
func (r *Run) Finish(status RunStatus, at time.Time, err error) {
	r.Status = status
	r.FinishedAt = &at
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the run time, or zero while running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository persists run records.
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]Run, error)
}
