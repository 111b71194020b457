package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/bizmatters/agent-builder/chart-studio/internal/metrics"
)

func TestInit_PrometheusServesEditMetrics(t *testing.T) {
	providers, err := Init(context.Background(), Config{
		ServiceName:    "chart-studio-test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
	})
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	m, err := metrics.NewEditMetrics(otel.GetMeterProvider())
	require.NoError(t, err)
	m.RecordRequested(context.Background(), "http")

	handler := providers.MetricsHandler()
	require.NotNil(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), "ai_edits")
}

func TestInit_NoExporters(t *testing.T) {
	providers, err := Init(context.Background(), Config{ServiceName: "chart-studio-test"})
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	assert.Nil(t, providers.MetricsHandler())
	assert.NotNil(t, providers.TracerProvider)
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{MetricExporter: "graphite"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{TraceExporter: "jaeger"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
