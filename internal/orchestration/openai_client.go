package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/patch"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
}

// OpenAIClient asks an OpenAI-compatible chat model for chart patches.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	tracer      trace.Tracer
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(conf),
		model:       model,
		temperature: cfg.Temperature,
		tracer:      otel.Tracer("ai-edit-client"),
	}
}

func (o *OpenAIClient) Name() string {
	return "openai"
}

// systemPrompt describes the patch contract to the model.
func systemPrompt() string {
	return fmt.Sprintf(`You edit chart specifications. You receive a JSON object with
"specMetadata" (the current chart, without row data) and "instruction" (the
user's request). Reply with one JSON object and nothing else:

{"patches": [{"op": "add"|"replace"|"remove", "path": "<JSON pointer>", "value": <any>}],
 "explanation": "<one sentence for the user>",
 "confidence": <number between 0 and 1>}

Paths are RFC 6901 JSON pointers into specMetadata, for example
/encoding/x/labelAngle. Never touch these paths or their parents: %s.
If the instruction cannot be expressed as a change, return an empty patches list.`,
		strings.Join(patch.ReadOnlyPaths(), ", "))
}

func (o *OpenAIClient) EditChart(ctx context.Context, req *models.AiEditRequest) (*models.AiEditResponse, error) {
	ctx, span := o.tracer.Start(ctx, "openai.edit_chart")
	defer span.End()
	span.SetAttributes(attribute.String("model", o.model))

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, models.NewEditError(models.KindUnknown, "failed to marshal request", err)
	}

	completion, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, models.NewEditError(models.KindNoResponse, "chat completion failed", err)
	}
	if len(completion.Choices) == 0 {
		return nil, models.NewEditError(models.KindNoResponse, "no choices returned", nil)
	}

	resp, err := ParseAiEditResponse([]byte(completion.Choices[0].Message.Content))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("patch.count", len(resp.Patches)))
	return resp, nil
}

// IsHealthy reports whether the model list endpoint answers.
func (o *OpenAIClient) IsHealthy(ctx context.Context) bool {
	_, err := o.client.ListModels(ctx)
	return err == nil
}
