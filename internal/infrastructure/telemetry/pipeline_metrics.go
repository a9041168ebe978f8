package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// PipelineMetrics are the counters and histograms emitted by a sync run.
// A nil *PipelineMetrics records nothing, so services can take it optionally.
type PipelineMetrics struct {
	runs             *Counter
	runDuration      *Histogram
	catalogChanges   *Counter
	orphans          *Counter
	classified       *Counter
	discarded        *Counter
	failedBatches    *Counter
	tokens           *Counter
	upstreamDuration *Histogram
}

// NewPipelineMetrics registers the pipeline instruments on meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	pm := &PipelineMetrics{}
	var err error

	if pm.runs, err = NewCounter(meter, "pipeline_runs_total", "Pipeline runs by final status", "{run}"); err != nil {
		return nil, err
	}
	if pm.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "pipeline_run_duration_seconds",
		Description: "Wall time of a pipeline run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.catalogChanges, err = NewCounter(meter, "catalog_changes_total", "Catalog records created, updated or deactivated", "{record}"); err != nil {
		return nil, err
	}
	if pm.orphans, err = NewCounter(meter, "catalog_orphans_total", "Child rows whose parent never appeared", "{row}"); err != nil {
		return nil, err
	}
	if pm.classified, err = NewCounter(meter, "categorization_persisted_total", "AI category assignments written", "{assignment}"); err != nil {
		return nil, err
	}
	if pm.discarded, err = NewCounter(meter, "categorization_discarded_total", "Model results dropped for unknown codes or categories", "{result}"); err != nil {
		return nil, err
	}
	if pm.failedBatches, err = NewCounter(meter, "categorization_failed_batches_total", "Batches that degraded to an empty result", "{batch}"); err != nil {
		return nil, err
	}
	if pm.tokens, err = NewCounter(meter, "ai_tokens_total", "Model tokens consumed", "{token}"); err != nil {
		return nil, err
	}
	if pm.upstreamDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "upstream_request_duration_seconds",
		Description: "Latency of ERP and model calls",
		Unit:        "s",
		Boundaries:  UpstreamDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return pm, nil
}

// RecordRun counts a finished run and its duration.
func (pm *PipelineMetrics) RecordRun(ctx context.Context, status string, d time.Duration) {
	if pm == nil {
		return
	}
	pm.runs.Inc(ctx, AttrStatus.String(status))
	pm.runDuration.RecordDuration(ctx, d, AttrStatus.String(status))
}

// RecordSync counts catalog changes from one synchronization.
func (pm *PipelineMetrics) RecordSync(ctx context.Context, created, updated, deactivated, orphans int) {
	if pm == nil {
		return
	}
	pm.catalogChanges.Add(ctx, int64(created), AttrChange.String("created"))
	pm.catalogChanges.Add(ctx, int64(updated), AttrChange.String("updated"))
	pm.catalogChanges.Add(ctx, int64(deactivated), AttrChange.String("deactivated"))
	pm.orphans.Add(ctx, int64(orphans))
}

// RecordClassification counts the outcome of one export's categorization.
func (pm *PipelineMetrics) RecordClassification(ctx context.Context, exportID string, persisted, discarded, failedBatches int) {
	if pm == nil {
		return
	}
	attr := AttrExportID.String(exportID)
	pm.classified.Add(ctx, int64(persisted), attr)
	pm.discarded.Add(ctx, int64(discarded), attr)
	pm.failedBatches.Add(ctx, int64(failedBatches), attr)
}

// RecordTokens counts model token usage.
func (pm *PipelineMetrics) RecordTokens(ctx context.Context, exportID, model string, input, output int64) {
	if pm == nil {
		return
	}
	base := []attribute.KeyValue{AttrExportID.String(exportID), AttrModel.String(model)}
	pm.tokens.Add(ctx, input, append(base, AttrTokenKind.String("input"))...)
	pm.tokens.Add(ctx, output, append(base, AttrTokenKind.String("output"))...)
}

// RecordUpstream records the latency of one upstream call.
func (pm *PipelineMetrics) RecordUpstream(ctx context.Context, operation string, d time.Duration, err error) {
	if pm == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	pm.upstreamDuration.RecordDuration(ctx, d, AttrOperation.String(operation), AttrStatus.String(status))
}
