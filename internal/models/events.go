package models

import (
	"time"
)

// ChartEventType identifies a change to the live chart document.
type ChartEventType string

const (
	ChartEventLoaded   ChartEventType = "chart.loaded"
	ChartEventReplaced ChartEventType = "chart.replaced"
	ChartEventCleared  ChartEventType = "chart.cleared"
)

// ChartEvent is pushed to change-stream subscribers.
type ChartEvent struct {
	Type      ChartEventType `json:"type"`
	Version   int64          `json:"version"`
	Source    string         `json:"source,omitempty"`
	Spec      interface{}    `json:"spec,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
