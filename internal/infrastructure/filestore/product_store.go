package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"go.uber.org/zap"
)

// Checkpoint maps a product code to its AI categories, one per export.
type Checkpoint map[string][]product.AICategory

func (c Checkpoint) categoryFor(code, exportID string) (product.AICategory, bool) {
	for _, cat := range c[code] {
		if cat.ExportID == exportID {
			return cat, true
		}
	}
	return product.AICategory{}, false
}

// ProductFileStore implements product.ClassificationStore over a products
// JSON file and a sidecar checkpoint. The products file is only read; every
// accepted assignment goes to the checkpoint, which is rewritten atomically.
type ProductFileStore struct {
	productsPath   string
	checkpointPath string
	logger         *zap.Logger

	mu sync.Mutex
}

// NewProductFileStore creates a store. The checkpoint file is created on the
// first successful PersistResults.
func NewProductFileStore(productsPath, checkpointPath string, logger *zap.Logger) *ProductFileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductFileStore{
		productsPath:   productsPath,
		checkpointPath: checkpointPath,
		logger:         logger,
	}
}

// AlreadyClassifiedCodes returns the codes the checkpoint holds for exportID.
func (s *ProductFileStore) AlreadyClassifiedCodes(_ context.Context, exportID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadCheckpoint()
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(cp))
	for code := range cp {
		if _, ok := cp.categoryFor(code, exportID); ok {
			done[code] = struct{}{}
		}
	}
	return done, nil
}

// PendingCandidates returns the products without a checkpointed category for
// exportID, in file order. Inactive products are included.
func (s *ProductFileStore) PendingCandidates(_ context.Context, exportID string) ([]product.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []product.Record
	if err := ReadJSON(s.productsPath, &records); err != nil {
		return nil, fmt.Errorf("read products: %w", err)
	}
	cp, err := s.loadCheckpoint()
	if err != nil {
		return nil, err
	}

	pending := make([]product.Record, 0, len(records))
	for _, r := range records {
		if _, ok := cp.categoryFor(r.Code(), exportID); ok {
			continue
		}
		pending = append(pending, r)
	}
	return pending, nil
}

// PersistResults adds the assignments that are new for exportID and rewrites
// the checkpoint. It returns the number added.
func (s *ProductFileStore) PersistResults(_ context.Context, exportID string, assignments []product.Assignment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.loadCheckpoint()
	if err != nil {
		return 0, err
	}

	added := 0
	for _, a := range assignments {
		if a.Code == "" {
			continue
		}
		if _, ok := cp.categoryFor(a.Code, exportID); ok {
			continue
		}
		cat := a.Category
		cat.ExportID = exportID
		cp[a.Code] = append(cp[a.Code], cat)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := WriteJSONAtomic(s.checkpointPath, cp); err != nil {
		return 0, fmt.Errorf("write checkpoint: %w", err)
	}
	s.logger.Info("Checkpoint updated",
		zap.String("path", s.checkpointPath),
		zap.String("export_id", exportID),
		zap.Int("added", added),
		zap.Int("total", len(cp)),
	)
	return added, nil
}

// Checkpoint returns a copy of the stored assignments.
func (s *ProductFileStore) Checkpoint() (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCheckpoint()
}

func (s *ProductFileStore) loadCheckpoint() (Checkpoint, error) {
	cp := Checkpoint{}
	if err := ReadJSON(s.checkpointPath, &cp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if cp == nil {
		cp = Checkpoint{}
	}
	return cp, nil
}
