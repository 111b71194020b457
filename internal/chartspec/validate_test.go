package chartspec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/testutil"
)

func violationPaths(t *testing.T, err error) []string {
	t.Helper()
	var schemaErr *chartspec.SchemaError
	require.True(t, errors.As(err, &schemaErr), "expected *SchemaError, got %T", err)
	paths := make([]string, 0, len(schemaErr.Violations))
	for _, v := range schemaErr.Violations {
		paths = append(paths, v.Path)
	}
	return paths
}

func TestValidate_ValidDocuments(t *testing.T) {
	assert.NoError(t, chartspec.Validate(testutil.SampleChart()))
	assert.NoError(t, chartspec.Validate(testutil.ErrorBarChart()))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(s *chartspec.ChartSpec)
		wantPath string
	}{
		{
			name:     "duplicate_axis_field",
			mutate:   func(s *chartspec.ChartSpec) { s.Encoding.Y.Field = "group"; s.Encoding.Y.Type = chartspec.Nominal },
			wantPath: "/encoding/y/field",
		},
		{
			name:     "unknown_chart_type",
			mutate:   func(s *chartspec.ChartSpec) { s.ChartType = "pie3d" },
			wantPath: "/chartType",
		},
		{
			name:     "unknown_field_type",
			mutate:   func(s *chartspec.ChartSpec) { s.Encoding.X.Type = "categorical" },
			wantPath: "/encoding/x/type",
		},
		{
			name:     "unknown_column_type",
			mutate:   func(s *chartspec.ChartSpec) { s.Data.Columns[1].Type = "text" },
			wantPath: "/data/columns/1/type",
		},
		{
			name:     "dpi_too_low",
			mutate:   func(s *chartspec.ChartSpec) { s.ExportConfig.DPI = 10 },
			wantPath: "/exportConfig/dpi",
		},
		{
			name:     "dpi_too_high",
			mutate:   func(s *chartspec.ChartSpec) { s.ExportConfig.DPI = 5000 },
			wantPath: "/exportConfig/dpi",
		},
		{
			name: "domain_wrong_length",
			mutate: func(s *chartspec.ChartSpec) {
				s.Encoding.Y.Scale = &chartspec.Scale{Domain: []float64{0, 5, 10}}
			},
			wantPath: "/encoding/y/scale/domain",
		},
		{
			name: "domain_inverted",
			mutate: func(s *chartspec.ChartSpec) {
				s.Encoding.Y.Scale = &chartspec.Scale{Domain: []float64{10, 0}}
			},
			wantPath: "/encoding/y/scale/domain",
		},
		{
			name:     "field_not_a_column",
			mutate:   func(s *chartspec.ChartSpec) { s.Encoding.X.Field = "height" },
			wantPath: "/encoding/x/field",
		},
		{
			name:     "missing_y_encoding",
			mutate:   func(s *chartspec.ChartSpec) { s.Encoding.Y = nil },
			wantPath: "/encoding/y",
		},
		{
			name:     "label_angle_out_of_range",
			mutate:   func(s *chartspec.ChartSpec) { s.Encoding.X.LabelAngle = testutil.Float(135) },
			wantPath: "/encoding/x/labelAngle",
		},
		{
			name:     "opacity_out_of_range",
			mutate:   func(s *chartspec.ChartSpec) { s.Style.Opacity = testutil.Float(1.5) },
			wantPath: "/style/opacity",
		},
		{
			name: "duplicate_column",
			mutate: func(s *chartspec.ChartSpec) {
				s.Data.Columns = append(s.Data.Columns, chartspec.Column{Name: "weight", Type: chartspec.Quantitative})
			},
			wantPath: "/data/columns/2/name",
		},
		{
			name:     "error_bar_chart_without_config",
			mutate:   func(s *chartspec.ChartSpec) { s.ChartType = chartspec.ChartErrorBar },
			wantPath: "/errorBar",
		},
		{
			name: "ci_level_not_below_one",
			mutate: func(s *chartspec.ChartSpec) {
				s.ErrorBar = &chartspec.ErrorBar{Type: chartspec.ErrorBarCI, Value: testutil.Float(95)}
			},
			wantPath: "/errorBar/value",
		},
		{
			name:     "negative_version",
			mutate:   func(s *chartspec.ChartSpec) { s.Version = -1 },
			wantPath: "/version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testutil.SampleChart()
			tt.mutate(spec)

			err := chartspec.Validate(spec)
			require.Error(t, err)
			assert.Contains(t, violationPaths(t, err), tt.wantPath)
		})
	}
}

func TestValidate_NilDocument(t *testing.T) {
	err := chartspec.Validate(nil)
	require.Error(t, err)
	assert.Equal(t, []string{""}, violationPaths(t, err))
}

func TestValidate_EmptyDocumentReportsEveryRequiredField(t *testing.T) {
	err := chartspec.Validate(&chartspec.ChartSpec{})
	paths := violationPaths(t, err)

	assert.Contains(t, paths, "/chartType")
	assert.Contains(t, paths, "/data/columns")
	assert.Contains(t, paths, "/encoding/x")
	assert.Contains(t, paths, "/style/preset")
	assert.Contains(t, paths, "/exportConfig/format")
}

func TestSchemaError_Message(t *testing.T) {
	spec := testutil.SampleChart()
	spec.ExportConfig.DPI = 1

	err := chartspec.Validate(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/exportConfig/dpi")
	assert.Contains(t, err.Error(), "at least 72")
}
