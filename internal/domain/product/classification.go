package product

import "context"

// Assignment is a validated classification of one product code.
type Assignment struct {
	Code     string
	Category AICategory
}

// ClassificationStore is the persistence port of the categorization engine.
// It is implemented over the catalog database and over a product list file
// with a sidecar checkpoint.
type ClassificationStore interface {
	// AlreadyClassifiedCodes returns the codes that have a category for exportID.
	AlreadyClassifiedCodes(ctx context.Context, exportID string) (map[string]struct{}, error)
	// PendingCandidates returns the parent records that still need a category for exportID.
	PendingCandidates(ctx context.Context, exportID string) ([]Record, error)
	// PersistResults appends the assignments additively and returns how many were stored.
	// An assignment for a code that already has a category for the export is a no-op.
	PersistResults(ctx context.Context, exportID string, assignments []Assignment) (int, error)
}
