// Package scheduler triggers the pipeline on a daily time of day or a fixed
// interval.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule computes the next fire time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// Daily fires once a day at Hour:Minute in the location of the given instant.
type Daily struct {
	Hour   int
	Minute int
}

// Next returns the next Hour:Minute after t.
func (d Daily) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d Daily) String() string {
	return fmt.Sprintf("daily at %02d:%02d", d.Hour, d.Minute)
}

// Every fires at a fixed interval.
type Every time.Duration

// Next returns t plus the interval.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return "every " + time.Duration(e).String()
}

// ParseSchedule accepts a daily cron expression "m h * * *" or a Go duration
// such as "6h".
func ParseSchedule(s string) (Schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSchedule)
	}

	fields := strings.Fields(s)
	if len(fields) == 5 {
		for _, f := range fields[2:] {
			if f != "*" {
				return nil, fmt.Errorf("%w: only daily cron expressions are supported: %q", ErrInvalidSchedule, s)
			}
		}
		minute, err := cronField(fields[0], 59)
		if err != nil {
			return nil, fmt.Errorf("%w: minute: %v", ErrInvalidSchedule, err)
		}
		hour, err := cronField(fields[1], 23)
		if err != nil {
			return nil, fmt.Errorf("%w: hour: %v", ErrInvalidSchedule, err)
		}
		return Daily{Hour: hour, Minute: minute}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
	}
	if d <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidSchedule)
	}
	return Every(d), nil
}

func cronField(s string, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%d out of range 0-%d", n, max)
	}
	return n, nil
}
