// Package testutil provides chart fixtures shared by package tests.
package testutil

import (
	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
)

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// SampleChart returns a valid bar chart over {weight: quantitative,
// group: nominal} carrying row data.
func SampleChart() *chartspec.ChartSpec {
	return &chartspec.ChartSpec{
		ChartType: chartspec.ChartBar,
		Data: chartspec.Data{
			Columns: []chartspec.Column{
				{Name: "weight", Type: chartspec.Quantitative},
				{Name: "group", Type: chartspec.Nominal},
			},
			Values: []map[string]any{
				{"weight": 4.17, "group": "ctrl"},
				{"weight": 5.58, "group": "ctrl"},
				{"weight": 4.81, "group": "trt1"},
				{"weight": 6.31, "group": "trt2"},
			},
		},
		Encoding: chartspec.Encoding{
			X: &chartspec.FieldEncoding{Field: "group", Type: chartspec.Nominal, Title: "Group"},
			Y: &chartspec.FieldEncoding{Field: "weight", Type: chartspec.Quantitative, Aggregate: "mean"},
		},
		Style: chartspec.Style{
			Preset:   "publication",
			Title:    "Plant weight by group",
			FontSize: 12,
		},
		ExportConfig: chartspec.ExportConfig{
			Format: "png",
			DPI:    300,
			Width:  1200,
			Height: 800,
		},
		Version: 1,
	}
}

// ErrorBarChart returns a valid error-bar chart with a 95% CI.
func ErrorBarChart() *chartspec.ChartSpec {
	spec := SampleChart()
	spec.ChartType = chartspec.ChartErrorBar
	spec.ErrorBar = &chartspec.ErrorBar{Type: chartspec.ErrorBarCI, Value: Float(0.95)}
	return spec
}
