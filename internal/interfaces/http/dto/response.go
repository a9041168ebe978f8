// Package dto holds the JSON shapes of the catalog API.
package dto

import (
	"time"

	"github.com/pnv/catalog-sync/internal/domain/pipeline"
	"github.com/pnv/catalog-sync/internal/domain/product"
)

// Response is the envelope of every JSON answer.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error response
func NewErrorResponse(message string) Response {
	return Response{Success: false, Message: message}
}

// ProductCategoryResponse is the category of one product for one export.
type ProductCategoryResponse struct {
	Code         string `json:"code"`
	ExportID     string `json:"exportId"`
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
}

// NewProductCategoryResponse builds the category answer for code.
func NewProductCategoryResponse(code string, cat product.AICategory) ProductCategoryResponse {
	return ProductCategoryResponse{
		Code:         code,
		ExportID:     cat.ExportID,
		CategoryID:   cat.CategoryID,
		CategoryName: cat.CategoryName,
	}
}

// JobAcceptedResponse answers a manual trigger.
type JobAcceptedResponse struct {
	Trigger string `json:"trigger"`
	Status  string `json:"status"`
}

// RunResponse is one pipeline run.
type RunResponse struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	DurationMs  int64      `json:"durationMs"`
	Created     int        `json:"created"`
	Updated     int        `json:"updated"`
	Deactivated int        `json:"deactivated"`
	Orphans     int        `json:"orphans"`
	Classified  int        `json:"classified"`
	Error       string     `json:"error,omitempty"`
}

// NewRunResponse converts a run for the API.
func NewRunResponse(r pipeline.Run) RunResponse {
	return RunResponse{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Status:      string(r.Status),
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMs:  r.Duration().Milliseconds(),
		Created:     r.Sync.Created,
		Updated:     r.Sync.Updated,
		Deactivated: r.Sync.Deactivated,
		Orphans:     r.Orphans,
		Classified:  r.Classified,
		Error:       r.Error,
	}
}

// NewRunResponses converts a list of runs; the result is never nil.
func NewRunResponses(runs []pipeline.Run) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, NewRunResponse(r))
	}
	return out
}
