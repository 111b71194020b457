package orchestration

import (
	"fmt"

	"github.com/tiendc/go-deepcopy"

	"github.com/bizmatters/agent-builder/chart-studio/internal/chartspec"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

// BuildAiEditRequest builds the payload sent to the AI service. It is the
// only code that reads spec.Data, and it copies nothing from it but the
// name and type of each column. Row values never leave the process.
func BuildAiEditRequest(spec *chartspec.ChartSpec, instruction string) (*models.AiEditRequest, error) {
	if spec == nil {
		return nil, models.NewEditError(models.KindDocumentAbsent, "no chart loaded", nil)
	}

	columns := make([]chartspec.Column, len(spec.Data.Columns))
	for i, c := range spec.Data.Columns {
		columns[i] = chartspec.Column{Name: c.Name, Type: c.Type}
	}

	meta := models.SpecMetadata{
		ChartType: spec.ChartType,
		Data:      models.SpecMetadataData{Columns: columns},
		Version:   spec.Version,
	}
	if err := copyInto(&meta.Encoding, spec.Encoding); err != nil {
		return nil, err
	}
	if err := copyInto(&meta.Style, spec.Style); err != nil {
		return nil, err
	}
	if err := copyInto(&meta.ExportConfig, spec.ExportConfig); err != nil {
		return nil, err
	}
	if spec.ErrorBar != nil {
		meta.ErrorBar = &chartspec.ErrorBar{}
		if err := copyInto(meta.ErrorBar, *spec.ErrorBar); err != nil {
			return nil, err
		}
	}

	return &models.AiEditRequest{
		SpecMetadata: meta,
		Instruction:  instruction,
	}, nil
}

func copyInto[T any](dst *T, src T) error {
	if err := deepcopy.Copy(dst, src); err != nil {
		return models.NewEditError(models.KindUnknown, fmt.Sprintf("copy %T", src), err)
	}
	return nil
}
