package scheduler

import "errors"

var (
	// ErrInvalidSchedule is returned for a schedule that is neither a daily
	// cron expression nor a positive duration
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

	// ErrNoJob is returned by Start when the trigger has no job
	ErrNoJob = errors.New("scheduler: no job configured")
)
