package orchestration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

var responseValidate = validator.New()

// wireResponse uses pointers so that missing members can be told apart
// from zero values.
type wireResponse struct {
	Patches     *[]models.PatchOp `json:"patches"`
	Explanation *string           `json:"explanation"`
	Confidence  *float64          `json:"confidence"`
}

// ParseAiEditResponse decodes and checks the AI service payload. Any
// problem is reported as a PARSE_FAILED EditError. Whether the patches
// produce a valid chart is decided later, against the live document.
func ParseAiEditResponse(raw []byte) (*models.AiEditResponse, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, models.NewEditError(models.KindNoResponse, "empty response body", nil)
	}

	var wire wireResponse
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, parseFailed("malformed JSON", err)
	}

	var missing []string
	if wire.Patches == nil {
		missing = append(missing, "patches")
	}
	if wire.Explanation == nil {
		missing = append(missing, "explanation")
	}
	if wire.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if len(missing) > 0 {
		return nil, parseFailed("missing "+strings.Join(missing, ", "), nil)
	}

	resp := &models.AiEditResponse{
		Patches:     *wire.Patches,
		Explanation: *wire.Explanation,
		Confidence:  *wire.Confidence,
	}
	if resp.Patches == nil {
		resp.Patches = []models.PatchOp{}
	}

	if err := responseValidate.Struct(resp); err != nil {
		return nil, parseFailed(describeResponseError(err), err)
	}
	return resp, nil
}

func parseFailed(detail string, err error) error {
	return models.NewEditError(models.KindParseFailed, detail, err)
}

func describeResponseError(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid response"
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Confidence":
		return fmt.Sprintf("confidence %v outside [0, 1]", fe.Value())
	case "Op":
		return fmt.Sprintf("unknown patch op %q", fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
}
