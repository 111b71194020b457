// Package orchestration turns natural-language instructions into validated
// chart edits through an external AI service.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/guard"
	"github.com/bizmatters/agent-builder/chart-studio/internal/history"
	"github.com/bizmatters/agent-builder/chart-studio/internal/metrics"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/patch"
	"github.com/bizmatters/agent-builder/chart-studio/internal/store"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

// OutcomeStatus summarizes what a submission did.
type OutcomeStatus string

const (
	OutcomeApplied    OutcomeStatus = "applied"
	OutcomeZeroEffect OutcomeStatus = "zero_effect"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeBusy       OutcomeStatus = "busy"
	OutcomeIgnored    OutcomeStatus = "ignored"
)

// Outcome is the result of one submission. Message is the chat message
// appended for the outcome; it is empty for busy and ignored submissions,
// which leave the history untouched.
type Outcome struct {
	Status    OutcomeStatus        `json:"status"`
	ErrorKind models.ErrorKind     `json:"errorKind,omitempty"`
	Message   *models.ChatMessage  `json:"message,omitempty"`
	Spec      *chartspec.ChartSpec `json:"spec,omitempty"`
}

// EditorConfig tunes an Editor.
type EditorConfig struct {
	// Timeout bounds the AI call. Zero means no extra bound.
	Timeout time.Duration
	// ApplyRetries is how many times a patch set is re-applied when a direct
	// edit lands between validation and replacement.
	ApplyRetries int
}

// Editor runs AI edits against the live chart. At most one edit is in
// flight; concurrent submissions are answered with OutcomeBusy.
type Editor struct {
	store   *store.Store
	history *history.Buffer
	client  AIClient
	metrics *metrics.EditMetrics
	tracer  trace.Tracer
	cfg     EditorConfig

	inFlight atomic.Bool

	draftMu sync.Mutex
	draft   string
}

// NewEditor wires an editor. m may be nil.
func NewEditor(st *store.Store, hist *history.Buffer, client AIClient, m *metrics.EditMetrics, cfg EditorConfig) *Editor {
	if cfg.ApplyRetries < 0 {
		cfg.ApplyRetries = 0
	}
	return &Editor{
		store:   st,
		history: hist,
		client:  client,
		metrics: m,
		tracer:  otel.Tracer("ai-editor"),
		cfg:     cfg,
	}
}

// SetDraft replaces the pending instruction text.
func (e *Editor) SetDraft(text string) {
	e.draftMu.Lock()
	e.draft = text
	e.draftMu.Unlock()
}

// Draft returns the pending instruction text.
func (e *Editor) Draft() string {
	e.draftMu.Lock()
	defer e.draftMu.Unlock()
	return e.draft
}

// InFlight reports whether an AI edit is awaiting its response.
func (e *Editor) InFlight() bool {
	return e.inFlight.Load()
}

// SubmitDraft submits the pending draft and clears it. A busy editor keeps
// the draft so the user does not lose it.
func (e *Editor) SubmitDraft(ctx context.Context) Outcome {
	if !e.inFlight.CompareAndSwap(false, true) {
		return busy()
	}

	e.draftMu.Lock()
	text := e.draft
	e.draft = ""
	e.draftMu.Unlock()

	return e.run(ctx, text)
}

// Submit runs one instruction end to end and never panics. Every outcome
// except busy and ignored appends exactly one user message and one reply.
func (e *Editor) Submit(ctx context.Context, instruction string) Outcome {
	if !e.inFlight.CompareAndSwap(false, true) {
		return busy()
	}
	return e.run(ctx, instruction)
}

func busy() Outcome {
	return Outcome{Status: OutcomeBusy, ErrorKind: models.KindEditInProgress}
}

// run owns the in-flight flag and releases it on return.
func (e *Editor) run(ctx context.Context, instruction string) (out Outcome) {
	defer e.inFlight.Store(false)

	text := strings.TrimSpace(instruction)
	if text == "" {
		return Outcome{Status: OutcomeIgnored}
	}

	start := time.Now()
	backend := e.client.Name()

	ctx, span := e.tracer.Start(ctx, "ai_editor.submit")
	defer span.End()

	e.history.Append(ctx, models.ChatMessage{Role: models.RoleUser, Content: text})
	if e.metrics != nil {
		e.metrics.RecordRequested(ctx, backend)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{"panic": fmt.Sprint(r)}).Error("AI edit panicked")
			out = e.fail(ctx, backend, start, models.NewEditError(models.KindUnknown, "panic", fmt.Errorf("%v", r)))
		}
		span.SetAttributes(attribute.String("outcome", string(out.Status)))
		if out.ErrorKind != "" {
			span.SetAttributes(attribute.String("error.kind", string(out.ErrorKind)))
		}
	}()

	var resp *models.AiEditResponse
	latest, err := guard.ReadAfter(ctx, e.store.Latest(), func(ctx context.Context, captured *chartspec.ChartSpec) error {
		req, err := BuildAiEditRequest(captured, text)
		if err != nil {
			return err
		}
		callCtx := ctx
		if e.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
		}
		resp, err = e.client.EditChart(callCtx, req)
		return err
	})
	if err != nil {
		return e.fail(ctx, backend, start, classify(err))
	}

	return e.apply(ctx, backend, start, latest, resp)
}

// apply validates resp against the latest document and installs the result.
// A direct edit may land between validation and replacement; the patches
// are then re-applied to the newer document.
func (e *Editor) apply(ctx context.Context, backend string, start time.Time, latest *chartspec.ChartSpec, resp *models.AiEditResponse) Outcome {
	for attempt := 0; ; attempt++ {
		res := patch.ApplyAndValidate(latest, resp.Patches)
		switch res.Status {
		case patch.StatusRejected:
			return e.fail(ctx, backend, start, res.Err)
		case patch.StatusZeroEffect:
			return e.zeroEffect(ctx, backend, start)
		}

		err := e.store.ReplaceIfVersion(latest.Version, res.Spec, store.SourceAI)
		switch {
		case err == nil:
			return e.applied(ctx, backend, start, res.Spec, resp)
		case errors.Is(err, store.ErrAbsent):
			return e.fail(ctx, backend, start, models.NewEditError(models.KindDocumentAbsent, "chart cleared before apply", err))
		case errors.Is(err, store.ErrVersionConflict) && attempt < e.cfg.ApplyRetries:
			latest = e.store.Latest().Load()
			if latest == nil {
				return e.fail(ctx, backend, start, models.NewEditError(models.KindDocumentAbsent, "chart cleared before apply", nil))
			}
			logger.WithFields(logrus.Fields{"attempt": attempt + 1, "version": latest.Version}).
				Debug("Chart changed during AI edit, re-applying patches")
		default:
			return e.fail(ctx, backend, start, models.NewEditError(models.KindUnknown, "replace chart", err))
		}
	}
}

func (e *Editor) applied(ctx context.Context, backend string, start time.Time, spec *chartspec.ChartSpec, resp *models.AiEditResponse) Outcome {
	count := len(resp.Patches)
	confidence := resp.Confidence
	content := strings.TrimSpace(resp.Explanation)
	if content == "" {
		content = fmt.Sprintf("Applied %d change(s).", count)
	}

	msg := e.history.Append(ctx, models.ChatMessage{
		Role:       models.RoleAssistant,
		Content:    content,
		Confidence: &confidence,
		PatchCount: &count,
	})
	if e.metrics != nil {
		e.metrics.RecordApplied(ctx, backend, count, time.Since(start))
	}

	logger.WithFields(logrus.Fields{
		"version":    spec.Version,
		"patches":    count,
		"confidence": confidence,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Info("AI edit applied")

	return Outcome{Status: OutcomeApplied, Message: &msg, Spec: spec}
}

func (e *Editor) zeroEffect(ctx context.Context, backend string, start time.Time) Outcome {
	msg := e.history.Append(ctx, models.ChatMessage{
		Role:      models.RoleError,
		Content:   models.UserMessage(models.KindZeroEffect),
		ErrorKind: models.KindZeroEffect,
	})
	if e.metrics != nil {
		e.metrics.RecordZeroEffect(ctx, backend, time.Since(start))
	}
	logger.Infof("AI edit had no effect")

	return Outcome{Status: OutcomeZeroEffect, ErrorKind: models.KindZeroEffect, Message: &msg, Spec: e.store.Get()}
}

func (e *Editor) fail(ctx context.Context, backend string, start time.Time, editErr *models.EditError) Outcome {
	msg := e.history.Append(ctx, models.ChatMessage{
		Role:      models.RoleError,
		Content:   models.UserMessage(editErr.Kind),
		ErrorKind: editErr.Kind,
	})
	if e.metrics != nil {
		e.metrics.RecordRejected(ctx, backend, editErr.Kind, time.Since(start))
	}
	logger.WithFields(logrus.Fields{
		"error_kind": editErr.Kind,
		"error":      editErr.Error(),
	}).Warn("AI edit failed")

	return Outcome{Status: OutcomeFailed, ErrorKind: editErr.Kind, Message: &msg, Spec: e.store.Get()}
}

// classify maps errors from the request and AI call to an EditError.
// Untyped errors are transport problems.
func classify(err error) *models.EditError {
	var editErr *models.EditError
	switch {
	case errors.As(err, &editErr):
		return editErr
	case errors.Is(err, guard.ErrAbsent):
		return models.NewEditError(models.KindDocumentAbsent, "chart cleared during AI call", err)
	default:
		return models.NewEditError(models.KindNoResponse, "ai call failed", err)
	}
}
