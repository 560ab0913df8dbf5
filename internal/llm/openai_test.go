package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAIServer serves handler and returns a provider pointed at it. The
// base URL is passed without /v1 to exercise normalization.
func openAIServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAIProvider("test-api-key", ts.URL)
}

func writeCompletion(w http.ResponseWriter, resp openai.ChatCompletionResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func frameRequest() *Request {
	return &Request{
		Model: "mistral-7b-instruct-v0.2",
		Messages: []Message{
			{Role: "system", Content: "JSON only."},
			{Role: "user", Content: "Frame ID: F1"},
		},
		Temperature: 0.3,
		MaxTokens:   256,
	}
}

func TestOpenAIGenerate_Success(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mistral-7b-instruct-v0.2", body.Model)
		assert.Equal(t, 256, body.MaxTokens)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		writeCompletion(w, openai.ChatCompletionResponse{
			ID: "chatcmpl-test123",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: `{"escalate": false}`},
				FinishReason: openai.FinishReasonStop,
			}},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 8},
		})
	})

	resp, err := p.Generate(context.Background(), frameRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"escalate": false}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
	assert.Equal(t, "mistral-7b-instruct-v0.2", resp.Model, "falls back to the requested model")
}

func TestOpenAIGenerate_APIErrorCarriesStatus(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model is loading","type":"server_error"}}`))
	})

	_, err := p.Generate(context.Background(), frameRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api error 503")
	assert.Contains(t, err.Error(), "model is loading")
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, openai.ChatCompletionResponse{ID: "chatcmpl-empty"})
	})
	_, err := p.Generate(context.Background(), frameRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

// Blank content is a reply, not a transport failure; callers decide
// whether it parses.
func TestOpenAIGenerate_BlankContentIsReturned(t *testing.T) {
	p := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: "  "},
		}}})
	})
	resp, err := p.Generate(context.Background(), frameRequest())
	require.NoError(t, err)
	assert.Equal(t, "  ", resp.Content)
}

func TestOpenAIGenerate_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewOpenAIProvider("", url).Generate(context.Background(), frameRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api call")
}

func TestNormalizeOpenAIBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://api.openai.com":   "https://api.openai.com/v1",
		"http://192.168.0.14:1234": "http://192.168.0.14:1234/v1",
		"https://my-proxy.com/v1":  "https://my-proxy.com/v1",
		"https://my-proxy.com/v1/": "https://my-proxy.com/v1",
		"https://proxy.com/":       "https://proxy.com/v1",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeOpenAIBaseURL(in), in)
	}
}
