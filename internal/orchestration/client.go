package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

// maxResponseBytes bounds how much of an AI response body is read.
const maxResponseBytes = 1 << 20

// AIClient performs one round trip to the AI service. Failures are
// *models.EditError values of kind NO_RESPONSE or PARSE_FAILED.
type AIClient interface {
	EditChart(ctx context.Context, req *models.AiEditRequest) (*models.AiEditResponse, error)
	IsHealthy(ctx context.Context) bool
	Name() string
}

// HTTPClient talks to a chart-edit service over JSON/HTTP
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPClient creates a client for the service at baseURL
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "ai-chart-edits",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a reply we cannot parse still proves the service is up
		IsSuccessful: func(err error) bool {
			return err == nil || models.KindOf(err) == models.KindParseFailed
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer("ai-edit-client"),
		breaker:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Name identifies the backend in logs and metrics.
func (c *HTTPClient) Name() string {
	return "http"
}

// EditChart posts req to /v1/chart-edits
func (c *HTTPClient) EditChart(ctx context.Context, req *models.AiEditRequest) (*models.AiEditResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ai_service.edit_chart")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("chart.version", req.SpecMetadata.Version),
		attribute.Int("chart.columns", len(req.SpecMetadata.Data.Columns)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.editChartInternal(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		var editErr *models.EditError
		if errors.As(err, &editErr) {
			return nil, editErr
		}
		// breaker open or too many half-open requests
		return nil, models.NewEditError(models.KindNoResponse, "ai service unavailable", err)
	}

	resp := result.(*models.AiEditResponse)
	span.SetAttributes(
		attribute.Int("patch.count", len(resp.Patches)),
		attribute.Float64("confidence", resp.Confidence),
	)
	return resp, nil
}

func (c *HTTPClient) editChartInternal(ctx context.Context, req *models.AiEditRequest) (*models.AiEditResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, models.NewEditError(models.KindUnknown, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/v1/chart-edits", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, models.NewEditError(models.KindNoResponse, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, models.NewEditError(models.KindNoResponse, "failed to make request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, models.NewEditError(models.KindNoResponse, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewEditError(models.KindNoResponse,
			fmt.Sprintf("ai service returned status %d: %s", resp.StatusCode, truncate(string(body), 200)), nil)
	}

	return ParseAiEditResponse(body)
}

// IsHealthy checks if the AI service is reachable
func (c *HTTPClient) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "ai_service.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		span.RecordError(err)
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))
	return healthy
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
