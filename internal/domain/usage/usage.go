// Package usage models the analytics side channel: AI token usage and timed
// pipeline steps. Nothing in the pipeline depends on these being stored.
package usage

import (
	"context"
	"time"
)

// AIUsage is the token accounting of one model call.
type AIUsage struct {
	ExportID     string    `json:"exportId"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	TotalTokens  int64     `json:"total_tokens"`
	Timestamp    time.Time `json:"ts"`
}

// FunctionCall is the timing of one monitored pipeline step.
type FunctionCall struct {
	App        string         `json:"app"`
	Type       string         `json:"type"`
	Action     string         `json:"action"`
	Timestamp  time.Time      `json:"ts"`
	DurationNs int64          `json:"durationNs"`
	Metadata   map[string]any `json:"metadata"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// Repository persists analytics events.
type Repository interface {
	SaveAIUsage(ctx context.Context, u AIUsage) error
	SaveFunctionCall(ctx context.Context, f FunctionCall) error
}

// Recorder accepts analytics events without blocking the pipeline.
// Implementations may drop events; they never return errors to the caller.
type Recorder interface {
	RecordAIUsage(ctx context.Context, u AIUsage)
	RecordFunctionCall(ctx context.Context, f FunctionCall)
}
