// Package categorization assigns each catalog product one category of an
// export configuration's taxonomy, using a generative model in batches.
package categorization

import (
	"context"
	"fmt"
	"time"

	"github.com/pnv/catalog-sync/internal/domain/product"
	"github.com/pnv/catalog-sync/internal/domain/taxonomy"
	"github.com/pnv/catalog-sync/internal/domain/usage"
	"github.com/pnv/catalog-sync/internal/infrastructure/ai"
	"github.com/pnv/catalog-sync/internal/infrastructure/logger"
	"github.com/pnv/catalog-sync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of products sent per model call.
const DefaultBatchSize = 30

// Store is where candidates come from and assignments go to.
type Store = product.ClassificationStore

// Classifier sends one batch to the model.
type Classifier interface {
	CategorizeBatch(ctx context.Context, req ai.BatchRequest) (*ai.Completion, error)
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	BatchSize int
	Metrics   *telemetry.PipelineMetrics
	Now       func() time.Time
}

// ClassifyResult counts what one Classify call did.
type ClassifyResult struct {
	ExportID      string `json:"exportId"`
	TaxonomySize  int    `json:"taxonomySize"`
	Candidates    int    `json:"candidates"`
	Batches       int    `json:"batches"`
	FailedBatches int    `json:"failedBatches"`
	Results       int    `json:"results"`
	Discarded     int    `json:"discarded"`
	Persisted     int    `json:"persisted"`
}

// Engine runs categorization for one export configuration at a time.
type Engine struct {
	registry   taxonomy.Registry
	store      Store
	classifier Classifier
	recorder   usage.Recorder
	batchSize  int
	metrics    *telemetry.PipelineMetrics
	now        func() time.Time
	logger     *zap.Logger
}

// NewEngine creates an engine. A nil recorder discards usage events.
func NewEngine(
	registry taxonomy.Registry,
	store Store,
	classifier Classifier,
	recorder usage.Recorder,
	log *zap.Logger,
	opts Options,
) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		registry:   registry,
		store:      store,
		classifier: classifier,
		recorder:   recorder,
		batchSize:  opts.BatchSize,
		metrics:    opts.Metrics,
		now:        opts.Now,
		logger:     logger.OrNop(log),
	}
}

// Classify categorizes every product lacking a category for exportID.
//
// A failed batch is logged and contributes nothing; the remaining batches
// still run. Results for codes outside the batch, repeated codes and unknown
// category ids are discarded. All accepted assignments are written at the
// end in one call. On cancellation the assignments gathered so far are still
// written and the context error is returned.
func (e *Engine) Classify(ctx context.Context, exportID string) (ClassifyResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "categorization", "classify",
		telemetry.WithAttribute(telemetry.SpanAttrExportID, exportID),
	)
	defer span.End()

	res := ClassifyResult{ExportID: exportID}
	if exportID == "" {
		return res, taxonomy.ErrEmptyExportID
	}
	log := e.logger.With(zap.String("export_id", exportID))
	if runID := logger.GetRunID(ctx); runID != "" {
		log = log.With(zap.String("run_id", runID))
	}

	entries, err := e.registry.GetTaxonomy(ctx, exportID)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, fmt.Errorf("load taxonomy for %s: %w", exportID, err)
	}
	res.TaxonomySize = len(entries)
	if len(entries) == 0 {
		log.Warn("No categories found for export, skipping categorization")
		return res, nil
	}
	index := taxonomy.NewIndex(entries)

	candidates, err := e.pending(ctx, exportID)
	if err != nil {
		telemetry.RecordError(span, err)
		return res, err
	}
	res.Candidates = len(candidates)
	telemetry.SetAttributes(span, telemetry.SpanAttrCandidates, res.Candidates)
	if len(candidates) == 0 {
		log.Info("No new products to categorize")
		return res, nil
	}

	system, err := BuildSystemInstruction(entries)
	if err != nil {
		return res, err
	}

	log.Info("Categorizing products",
		zap.Int("candidates", len(candidates)),
		zap.Int("categories", index.Len()),
		zap.Int("batch_size", e.batchSize),
	)

	assigned := make(map[string]struct{}, len(candidates))
	assignments := make([]product.Assignment, 0, len(candidates))

	for start := 0; start < len(candidates); start += e.batchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+e.batchSize, len(candidates))
		batch := candidates[start:end]
		batchNo := start/e.batchSize + 1
		res.Batches++

		results, err := e.processBatch(ctx, exportID, system, batch)
		if err != nil {
			res.FailedBatches++
			telemetry.AddEvent(span, "batch_failed", telemetry.SpanAttrBatch, batchNo)
			log.Error("Batch failed, continuing with next batch",
				zap.Int("batch", batchNo),
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
			continue
		}
		res.Results += len(results)

		inBatch := make(map[string]struct{}, len(batch))
		for _, r := range batch {
			inBatch[r.Code()] = struct{}{}
		}
		for _, r := range results {
			if _, ok := inBatch[r.Code]; !ok {
				res.Discarded++
				log.Warn("Model returned a code outside the batch", zap.String("product_code", r.Code))
				continue
			}
			if _, dup := assigned[r.Code]; dup {
				res.Discarded++
				continue
			}
			label, ok := index.Label(r.CatID)
			if !ok {
				res.Discarded++
				log.Warn("Category id not found, skipping",
					zap.String("category_id", r.CatID),
					zap.String("product_code", r.Code),
				)
				continue
			}
			assigned[r.Code] = struct{}{}
			assignments = append(assignments, product.Assignment{
				Code: r.Code,
				Category: product.AICategory{
					ExportID:     exportID,
					CategoryID:   r.CatID,
					CategoryName: label,
				},
			})
		}
		log.Debug("Batch done", zap.Int("batch", batchNo), zap.Int("results", len(results)))
	}

	cancelErr := ctx.Err()
	if len(assignments) > 0 {
		persistCtx := ctx
		if cancelErr != nil {
			persistCtx = context.WithoutCancel(ctx)
		}
		persisted, err := e.store.PersistResults(persistCtx, exportID, assignments)
		if err != nil {
			telemetry.RecordError(span, err)
			return res, fmt.Errorf("persist categories for %s: %w", exportID, err)
		}
		res.Persisted = persisted
	}

	e.metrics.RecordClassification(ctx, exportID, res.Persisted, res.Discarded, res.FailedBatches)
	telemetry.SetAttributes(span,
		"batches", res.Batches,
		"failed_batches", res.FailedBatches,
		telemetry.SpanAttrPersisted, res.Persisted,
	)

	if res.Persisted > 0 {
		log.Info("Categorized products",
			zap.Int("persisted", res.Persisted),
			zap.Int("discarded", res.Discarded),
			zap.Int("failed_batches", res.FailedBatches),
		)
	} else {
		log.Info("No valid new categories were identified",
			zap.Int("discarded", res.Discarded),
			zap.Int("failed_batches", res.FailedBatches),
		)
	}

	if cancelErr != nil {
		telemetry.RecordError(span, cancelErr)
		return res, cancelErr
	}
	return res, nil
}

// pending returns the unique candidates that are not classified yet. Store
// results are filtered again so a store that over-reports stays safe.
func (e *Engine) pending(ctx context.Context, exportID string) ([]product.Record, error) {
	done, err := e.store.AlreadyClassifiedCodes(ctx, exportID)
	if err != nil {
		return nil, fmt.Errorf("load classified codes for %s: %w", exportID, err)
	}
	records, err := e.store.PendingCandidates(ctx, exportID)
	if err != nil {
		return nil, fmt.Errorf("load candidates for %s: %w", exportID, err)
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]product.Record, 0, len(records))
	for _, r := range records {
		code := r.Code()
		if code == "" {
			continue
		}
		if _, ok := done[code]; ok {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) processBatch(ctx context.Context, exportID, system string, batch []product.Record) ([]Result, error) {
	prompt, err := BuildPrompt(batch)
	if err != nil {
		return nil, err
	}

	completion, err := e.classifier.CategorizeBatch(ctx, ai.BatchRequest{
		ExportID:          exportID,
		SystemInstruction: system,
		Prompt:            prompt,
	})
	if err != nil {
		return nil, err
	}

	if e.recorder != nil {
		e.recorder.RecordAIUsage(ctx, usage.AIUsage{
			ExportID:     exportID,
			Model:        completion.Model,
			InputTokens:  completion.Usage.InputTokens,
			OutputTokens: completion.Usage.OutputTokens,
			TotalTokens:  completion.Usage.TotalTokens,
			Timestamp:    e.now().UTC(),
		})
	}

	return ParseResults(completion.Text)
}
