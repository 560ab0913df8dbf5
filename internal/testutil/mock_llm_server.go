package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ChatServer is an OpenAI-compatible /v1/chat/completions stub. The first
// FailFirst requests answer FailStatus; later ones answer Content.
type ChatServer struct {
	*httptest.Server
	calls atomic.Int64
}

// Calls returns how many chat completion requests the server received.
func (s *ChatServer) Calls() int { return int(s.calls.Load()) }

// NewChatServer starts a ChatServer. Caller must Close it (or register
// t.Cleanup(srv.Close)). A zero failStatus defaults to 503.
func NewChatServer(content string, failFirst int, failStatus int) *ChatServer {
	if failStatus == 0 {
		failStatus = http.StatusServiceUnavailable
	}
	s := &ChatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" && r.URL.Path != "/v1/chat/completions/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := s.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if int(n) <= failFirst {
			w.WriteHeader(failStatus)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "model is loading", "type": "server_error"},
			})
			return
		}

		resp := chatCompletion{ID: "chatcmpl-test", Object: "chat.completion", Model: "mistral-7b-instruct-v0.2"}
		choice := chatChoice{FinishReason: "stop"}
		choice.Message.Role = "assistant"
		choice.Message.Content = content
		resp.Choices = []chatChoice{choice}
		resp.Usage.PromptTokens = 10
		resp.Usage.CompletionTokens = 20
		resp.Usage.TotalTokens = 30
		_ = json.NewEncoder(w).Encode(resp)
	}))
	return s
}
