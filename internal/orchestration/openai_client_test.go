package orchestration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
)

func completionServer(t *testing.T, content string, choices bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[0].Content, "/data/columns")
			assert.NotContains(t, req.Messages[1].Content, `"values"`)
		}

		resp := openai.ChatCompletionResponse{ID: "cmpl-1", Object: "chat.completion", Model: req.Model}
		if choices {
			resp.Choices = []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIClient_EditChart(t *testing.T) {
	server := completionServer(t, `{"patches":[{"op":"replace","path":"/style/title","value":"Weights"}],"explanation":"Renamed.","confidence":0.7}`, true)
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
	resp, err := client.EditChart(context.Background(), sampleRequest(t))

	require.NoError(t, err)
	require.Len(t, resp.Patches, 1)
	assert.Equal(t, "/style/title", resp.Patches[0].Path)
	assert.Equal(t, "openai", client.Name())
}

func TestOpenAIClient_Failures(t *testing.T) {
	t.Run("prose instead of json", func(t *testing.T) {
		server := completionServer(t, "I rotated the labels for you!", true)
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
		_, err := client.EditChart(context.Background(), sampleRequest(t))
		assert.Equal(t, models.KindParseFailed, models.KindOf(err))
	})

	t.Run("no choices", func(t *testing.T) {
		server := completionServer(t, "", false)
		defer server.Close()

		client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1"})
		_, err := client.EditChart(context.Background(), sampleRequest(t))
		assert.Equal(t, models.KindNoResponse, models.KindOf(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: "http://127.0.0.1:1/v1"})
		_, err := client.EditChart(context.Background(), sampleRequest(t))
		assert.Equal(t, models.KindNoResponse, models.KindOf(err))
	})
}
