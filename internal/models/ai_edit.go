package models

import (
	"encoding/json"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
)

// PatchOpType is one of the three supported patch operations.
type PatchOpType string

const (
	OpAdd     PatchOpType = "add"
	OpReplace PatchOpType = "replace"
	OpRemove  PatchOpType = "remove"
)

// PatchOp is a single RFC 6902 style operation addressed by JSON pointer.
// Value is kept raw so that an absent value can be told apart from null.
type PatchOp struct {
	Op    PatchOpType     `json:"op" validate:"required,oneof=add replace remove"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// SpecMetadataData carries column metadata only. It has no place for rows.
type SpecMetadataData struct {
	Columns []chartspec.Column `json:"columns"`
}

// SpecMetadata mirrors the ChartSpec layout, minus row data, so that patch
// paths written against it address the same members of the live document.
type SpecMetadata struct {
	ChartType    chartspec.ChartType    `json:"chartType"`
	Data         SpecMetadataData       `json:"data"`
	Encoding     chartspec.Encoding     `json:"encoding"`
	ErrorBar     *chartspec.ErrorBar    `json:"errorBar,omitempty"`
	Style        chartspec.Style        `json:"style"`
	ExportConfig chartspec.ExportConfig `json:"exportConfig"`
	Version      int64                  `json:"version"`
}

// AiEditRequest is the complete payload sent to the AI service.
type AiEditRequest struct {
	SpecMetadata SpecMetadata `json:"specMetadata"`
	Instruction  string       `json:"instruction"`
}

// AiEditResponse is the structured answer expected from the AI service.
type AiEditResponse struct {
	Patches     []PatchOp `json:"patches" validate:"dive"`
	Explanation string    `json:"explanation"`
	Confidence  float64   `json:"confidence" validate:"min=0,max=1"`
}
