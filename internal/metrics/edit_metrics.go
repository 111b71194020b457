package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

const meterName = "chart-studio/edits"

// Edit outcomes as recorded in the "outcome" attribute.
const (
	OutcomeApplied    = "applied"
	OutcomeRejected   = "rejected"
	OutcomeZeroEffect = "zero_effect"
)

// EditMetrics provides metrics collection for AI chart edits
type EditMetrics struct {
	requestedCounter  metric.Int64Counter
	appliedCounter    metric.Int64Counter
	rejectedCounter   metric.Int64Counter
	zeroEffectCounter metric.Int64Counter
	patchesCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
	activeGauge       metric.Int64UpDownCounter
}

// NewEditMetrics creates the edit instruments on provider, or on the global
// provider when provider is nil.
func NewEditMetrics(provider metric.MeterProvider) (*EditMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	requested, err := meter.Int64Counter(
		"chart_studio.ai_edits.requested",
		metric.WithDescription("Total number of AI edit instructions submitted"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	applied, err := meter.Int64Counter(
		"chart_studio.ai_edits.applied",
		metric.WithDescription("Total number of AI edits applied to the chart"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	rejected, err := meter.Int64Counter(
		"chart_studio.ai_edits.rejected",
		metric.WithDescription("Total number of AI edits rejected, by error kind"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	zeroEffect, err := meter.Int64Counter(
		"chart_studio.ai_edits.zero_effect",
		metric.WithDescription("Total number of AI edits that changed nothing"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	patches, err := meter.Int64Counter(
		"chart_studio.patches.applied",
		metric.WithDescription("Total number of patch operations applied"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"chart_studio.ai_edit.duration",
		metric.WithDescription("Duration of AI edits from submission to outcome in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64UpDownCounter(
		"chart_studio.ai_edits.active",
		metric.WithDescription("Number of AI edits currently awaiting a response"),
		metric.WithUnit("{edit}"),
	)
	if err != nil {
		return nil, err
	}

	return &EditMetrics{
		requestedCounter:  requested,
		appliedCounter:    applied,
		rejectedCounter:   rejected,
		zeroEffectCounter: zeroEffect,
		patchesCounter:    patches,
		durationHistogram: duration,
		activeGauge:       active,
	}, nil
}

// RecordRequested records a submitted instruction that reached the AI call.
func (m *EditMetrics) RecordRequested(ctx context.Context, backend string) {
	attrs := metric.WithAttributes(attribute.String("backend", backend))
	m.requestedCounter.Add(ctx, 1, attrs)
	m.activeGauge.Add(ctx, 1, attrs)
}

// RecordApplied records an edit that replaced the live chart.
func (m *EditMetrics) RecordApplied(ctx context.Context, backend string, patchCount int, duration time.Duration) {
	m.appliedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	m.patchesCounter.Add(ctx, int64(patchCount), metric.WithAttributes(attribute.String("source", "ai")))
	m.finish(ctx, backend, OutcomeApplied, duration)
}

// RecordZeroEffect records an edit whose patches left the chart unchanged.
func (m *EditMetrics) RecordZeroEffect(ctx context.Context, backend string, duration time.Duration) {
	m.zeroEffectCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	m.finish(ctx, backend, OutcomeZeroEffect, duration)
}

// RecordRejected records an edit that failed with kind.
func (m *EditMetrics) RecordRejected(ctx context.Context, backend string, kind models.ErrorKind, duration time.Duration) {
	m.rejectedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("error.kind", string(kind)),
		),
	)
	m.finish(ctx, backend, OutcomeRejected, duration)
}

// RecordDirectPatches counts patch operations applied outside the AI flow.
func (m *EditMetrics) RecordDirectPatches(ctx context.Context, patchCount int) {
	m.patchesCounter.Add(ctx, int64(patchCount), metric.WithAttributes(attribute.String("source", "direct")))
}

func (m *EditMetrics) finish(ctx context.Context, backend, outcome string, duration time.Duration) {
	m.durationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("outcome", outcome),
		),
	)
	m.activeGauge.Add(ctx, -1, metric.WithAttributes(attribute.String("backend", backend)))
}
