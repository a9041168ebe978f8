package analytics

import (
	"context"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/usage"
)

// FunctionType is the type stamped on monitored step events.
const FunctionType = "function"

// Monitor runs fn, times it and records the outcome on rec. The result and
// error of fn are returned unchanged. A nil rec only runs fn.
func Monitor[T any](ctx context.Context, rec usage.Recorder, action string, metadata map[string]any, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(ctx)
	if rec == nil {
		return out, err
	}

	call := usage.FunctionCall{
		Type:       FunctionType,
		Action:     action,
		Timestamp:  start.UTC(),
		DurationNs: time.Since(start).Nanoseconds(),
		Metadata:   metadata,
		Success:    err == nil,
	}
	if err != nil {
		call.Error = err.Error()
	}
	rec.RecordFunctionCall(ctx, call)
	return out, err
}
