package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/history"
	"github.com/bizmatters/agent-builder/chart-studio/internal/metrics"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/orchestration"
	"github.com/bizmatters/agent-builder/chart-studio/internal/patch"
	"github.com/bizmatters/agent-builder/chart-studio/internal/store"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

var (
	errBaseVersion = errors.New("base version is stale")
	errNotApplied  = errors.New("patches not applied")
)

// Deps are the collaborators a Handler serves. Users, JWT, AI and Ping may be
// nil.
type Deps struct {
	Store   *store.Store
	Editor  *orchestration.Editor
	History *history.Buffer
	Metrics *metrics.EditMetrics
	AI      orchestration.AIClient
	Users   *auth.UserStore
	JWT     *auth.JWTManager
	// Ping reports whether the database is reachable.
	Ping func(ctx context.Context) error
}

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	deps   Deps
	tracer trace.Tracer
}

// NewHandler creates a new gateway handler
func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:   deps,
		tracer: otel.Tracer("chart-studio-gateway"),
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// PutChartRequest loads or replaces the whole document.
type PutChartRequest struct {
	Spec        json.RawMessage `json:"spec" binding:"required"`
	BaseVersion *int64          `json:"base_version,omitempty"`
}

// PatchChartRequest is a direct property edit.
type PatchChartRequest struct {
	Patches     []models.PatchOp `json:"patches" binding:"required,dive"`
	BaseVersion *int64           `json:"base_version,omitempty"`
}

// PatchChartResponse reports a direct edit.
type PatchChartResponse struct {
	Status string               `json:"status"`
	Spec   *chartspec.ChartSpec `json:"spec"`
}

// AIEditRequest submits an instruction. Without one the saved draft is
// submitted.
type AIEditRequest struct {
	Instruction *string `json:"instruction,omitempty"`
}

// DraftRequest saves the unsent instruction.
type DraftRequest struct {
	Text string `json:"text"`
}

type ReadOnlyPathsResponse struct {
	Paths []string `json:"paths"`
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports whether the database and the AI backend are reachable.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"chart_loaded": h.deps.Store.Get() != nil}
	ready := true

	if h.deps.Ping != nil {
		if err := h.deps.Ping(ctx); err != nil {
			logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Database not ready")
			checks["database"] = "unavailable"
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.deps.AI != nil {
		// the editor degrades to NO_RESPONSE without the AI backend, so it
		// is reported but does not fail readiness
		if h.deps.AI.IsHealthy(ctx) {
			checks["ai"] = "ok"
		} else {
			checks["ai"] = "unavailable"
		}
	}

	status := http.StatusOK
	checks["status"] = "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		checks["status"] = "not_ready"
	}
	c.JSON(status, checks)
}

// Login authenticates a user and returns a JWT.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.login")
	defer span.End()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}

	user, err := h.deps.Users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			logger.WithFields(logrus.Fields{"email": req.Email}).Warn("Login rejected")
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error: "Invalid email or password",
				Code:  models.ErrCodeUnauthorized,
			})
			return
		}
		internalError(c, "Failed to authenticate", err)
		return
	}

	token, err := h.deps.JWT.GenerateToken(ctx, user.ID, user.Email)
	if err != nil {
		internalError(c, "Failed to generate token", err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		UserID:    user.ID,
		ExpiresIn: int64(h.deps.JWT.TTL().Seconds()),
	})
}

// GetChart returns the live document.
func (h *Handler) GetChart(c *gin.Context) {
	spec := h.deps.Store.Get()
	if spec == nil {
		documentAbsent(c)
		return
	}
	c.JSON(http.StatusOK, spec)
}

// PutChart loads a document, or replaces the live one.
func (h *Handler) PutChart(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "gateway.put_chart")
	defer span.End()

	var req PutChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	spec, err := chartspec.Decode(bytes.NewReader(req.Spec))
	if err != nil {
		badRequest(c, "Invalid chart document", err)
		return
	}

	cur := h.deps.Store.Get()
	switch {
	case cur == nil && req.BaseVersion != nil:
		documentAbsent(c)
		return
	case cur == nil:
		err = h.deps.Store.Load(spec)
	case req.BaseVersion != nil:
		spec.Version = *req.BaseVersion + 1
		err = h.deps.Store.ReplaceIfVersion(*req.BaseVersion, spec, store.SourceDirect)
	default:
		spec, err = h.deps.Store.Replace(spec, store.SourceDirect)
	}
	if err != nil {
		span.RecordError(err)
		h.storeError(c, err)
		return
	}

	span.SetAttributes(attribute.Int64("chart.version", spec.Version))
	c.JSON(http.StatusOK, spec)
}

// PatchChart applies a direct property edit through the same validation as
// AI edits.
func (h *Handler) PatchChart(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.patch_chart")
	defer span.End()

	var req PatchChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	span.SetAttributes(attribute.Int("patch.count", len(req.Patches)))

	// The patches run against the live document under the store lock, so
	// no other edit can land between apply and install.
	var (
		res  patch.Result
		live int64
	)
	next, err := h.deps.Store.Edit(func(spec *chartspec.ChartSpec) error {
		live = spec.Version
		if req.BaseVersion != nil && spec.Version != *req.BaseVersion {
			return errBaseVersion
		}
		res = patch.ApplyAndValidate(spec, req.Patches)
		if res.Status != patch.StatusApplied {
			return errNotApplied
		}
		*spec = *res.Spec
		return nil
	}, store.SourceDirect)

	switch {
	case err == nil:
		if h.deps.Metrics != nil {
			h.deps.Metrics.RecordDirectPatches(ctx, len(req.Patches))
		}
		c.JSON(http.StatusOK, PatchChartResponse{Status: patch.StatusApplied.String(), Spec: next})
	case errors.Is(err, errBaseVersion):
		versionConflict(c, *req.BaseVersion, live)
	case errors.Is(err, errNotApplied) && res.Status == patch.StatusZeroEffect:
		c.JSON(http.StatusOK, PatchChartResponse{Status: res.Status.String(), Spec: res.Spec})
	case errors.Is(err, errNotApplied):
		span.RecordError(res.Err)
		editRejected(c, res.Err)
	default:
		span.RecordError(err)
		h.storeError(c, err)
	}
}

// DeleteChart resets the session to no document.
func (h *Handler) DeleteChart(c *gin.Context) {
	if !h.deps.Store.Clear() {
		documentAbsent(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// ReadOnlyPaths lists the pointers no edit may touch.
func (h *Handler) ReadOnlyPaths(c *gin.Context) {
	c.JSON(http.StatusOK, ReadOnlyPathsResponse{Paths: patch.ReadOnlyPaths()})
}

// CreateAIEdit runs one AI edit. A concurrent submission is answered with
// 409 and the chart and history are left alone.
func (h *Handler) CreateAIEdit(c *gin.Context) {
	var req AIEditRequest
	// A bodyless POST submits the draft.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request", err)
		return
	}

	// The edit outlives a disconnecting client so its outcome still reaches
	// the history; the editor's own timeout bounds it.
	ctx := context.WithoutCancel(c.Request.Context())

	var out orchestration.Outcome
	if req.Instruction == nil {
		out = h.deps.Editor.SubmitDraft(ctx)
	} else {
		out = h.deps.Editor.Submit(ctx, *req.Instruction)
	}

	logger.WithFields(logrus.Fields{
		"status":     out.Status,
		"error_kind": out.ErrorKind,
		"user_id":    auth.UserID(c),
	}).Info("AI edit finished")

	if out.Status == orchestration.OutcomeBusy {
		c.JSON(http.StatusConflict, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GetDraft returns the unsent instruction.
func (h *Handler) GetDraft(c *gin.Context) {
	c.JSON(http.StatusOK, DraftRequest{Text: h.deps.Editor.Draft()})
}

// PutDraft saves the unsent instruction.
func (h *Handler) PutDraft(c *gin.Context) {
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request", err)
		return
	}
	h.deps.Editor.SetDraft(req.Text)
	c.Status(http.StatusNoContent)
}

// GetMessages returns the chat history, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"messages": h.deps.History.Messages(),
		"capacity": h.deps.History.Capacity(),
	})
}

// DeleteMessages clears the chat history.
func (h *Handler) DeleteMessages(c *gin.Context) {
	h.deps.History.Clear(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (h *Handler) storeError(c *gin.Context, err error) {
	var schemaErr *chartspec.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		details := make(map[string]string, len(schemaErr.Violations))
		for _, v := range schemaErr.Violations {
			details[v.Path] = v.Message
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "Chart document is invalid",
			Code:    models.ErrCodeValidationFailed,
			Details: details,
		})
	case errors.Is(err, store.ErrVersionConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error: err.Error(),
			Code:  models.ErrCodeVersionConflict,
		})
	case errors.Is(err, store.ErrAbsent):
		documentAbsent(c)
	default:
		internalError(c, "Failed to update chart", err)
	}
}

func editRejected(c *gin.Context, editErr *models.EditError) {
	status := http.StatusUnprocessableEntity
	switch editErr.Kind {
	case models.KindDocumentAbsent:
		status = http.StatusNotFound
	case models.KindReadOnlyPath:
		status = http.StatusForbidden
	}
	c.JSON(status, models.ErrorResponse{
		Error:   models.UserMessage(editErr.Kind),
		Code:    string(editErr.Kind),
		Details: map[string]string{"reason": editErr.Error()},
	})
}

func documentAbsent(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error: "No chart is loaded",
		Code:  string(models.KindDocumentAbsent),
	})
}

func versionConflict(c *gin.Context, base, live int64) {
	c.JSON(http.StatusConflict, models.ErrorResponse{
		Error: "Chart changed since base_version",
		Code:  models.ErrCodeVersionConflict,
		Details: map[string]string{
			"base_version": strconv.FormatInt(base, 10),
			"live_version": strconv.FormatInt(live, 10),
		},
	})
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   message,
		Code:    models.ErrCodeInvalidRequest,
		Details: map[string]string{"reason": err.Error()},
	})
}

func internalError(c *gin.Context, message string, err error) {
	logger.WithFields(logrus.Fields{"error": err.Error(), "path": c.Request.URL.Path}).Error(message)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: message,
		Code:  models.ErrCodeInternalError,
	})
}
