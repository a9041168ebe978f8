package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pnv/catalog-sync/internal/domain/usage"
)

// AIUsageEventModel stores the token usage of one model call.
type AIUsageEventModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ExportID     string    `gorm:"type:varchar(100);index"`
	Model        string    `gorm:"type:varchar(100);not null"`
	InputTokens  int64     `gorm:"not null;default:0"`
	OutputTokens int64     `gorm:"not null;default:0"`
	TotalTokens  int64     `gorm:"not null;default:0"`
	Timestamp    time.Time `gorm:"column:ts;not null;index"`
}

// TableName returns the table name for the model
func (AIUsageEventModel) TableName() string {
	return "ai_usage_events"
}

// AIUsageEventModelFromDomain creates a model with a fresh id
func AIUsageEventModelFromDomain(u usage.AIUsage) *AIUsageEventModel {
	return &AIUsageEventModel{
		ID:           uuid.New(),
		ExportID:     u.ExportID,
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.TotalTokens,
		Timestamp:    u.Timestamp,
	}
}

// FunctionEventModel stores the timing of one monitored pipeline step.
type FunctionEventModel struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	App        string         `gorm:"type:varchar(100);not null"`
	Type       string         `gorm:"type:varchar(50);not null"`
	Action     string         `gorm:"type:varchar(100);not null;index"`
	Timestamp  time.Time      `gorm:"column:ts;not null;index"`
	DurationNs int64          `gorm:"not null"`
	Metadata   map[string]any `gorm:"type:jsonb;serializer:json"`
	Success    bool           `gorm:"not null"`
	Error      string         `gorm:"type:text"`
}

// TableName returns the table name for the model
func (FunctionEventModel) TableName() string {
	return "function_events"
}

// FunctionEventModelFromDomain creates a model with a fresh id
func FunctionEventModelFromDomain(f usage.FunctionCall) *FunctionEventModel {
	return &FunctionEventModel{
		ID:         uuid.New(),
		App:        f.App,
		Type:       f.Type,
		Action:     f.Action,
		Timestamp:  f.Timestamp,
		DurationNs: f.DurationNs,
		Metadata:   f.Metadata,
		Success:    f.Success,
		Error:      f.Error,
	}
}
