package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/shared"
)

func completionBody(content string) string {
	payload := map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-test",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewOpenAIClient(shared.LLMConfig{
		BaseURL:        server.URL + "/v1",
		APIKey:         "sk-test",
		Model:          "gpt-test",
		Temperature:    0.5,
		TimeoutSeconds: 5,
	}, server.Client(), nil)
	if err != nil {
		t.Fatalf("NewOpenAIClient failed: %v", err)
	}
	client.SetRetry(shared.RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond})
	return client
}

func TestNewOpenAIClient(t *testing.T) {
	if _, err := NewOpenAIClient(shared.LLMConfig{}, nil, nil); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig without a model, got %v", err)
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	t.Run("sends messages and JSON format", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("unexpected Authorization %q", got)
			}

			var body map[string]any
			data, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("bad request body: %v", err)
			}
			messages := body["messages"].([]any)
			if len(messages) != 2 {
				t.Errorf("expected system + user messages, got %d", len(messages))
			}
			format, _ := body["response_format"].(map[string]any)
			if format["type"] != "json_object" {
				t.Errorf("expected json_object response format, got %v", body["response_format"])
			}

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, completionBody(`{"steps": []}`))
		})

		resp, err := client.Complete(context.Background(), Request{System: "plan", Prompt: "reggaeton party", JSON: true})
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if resp.Content != `{"steps": []}` || resp.Usage.TotalTokens != 15 || resp.FinishReason != "stop" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
				return
			}
			fmt.Fprint(w, completionBody("ok"))
		})

		resp, err := client.Complete(context.Background(), Request{Prompt: "hi"})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if resp.Content != "ok" || calls.Load() != 3 {
			t.Errorf("content=%q calls=%d", resp.Content, calls.Load())
		}
	})

	t.Run("does not retry auth failures", func(t *testing.T) {
		var calls atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		})

		_, err := client.Complete(context.Background(), Request{Prompt: "hi"})
		if !IsFatal(err) {
			t.Errorf("expected fatal error, got %v", err)
		}
		var statusErr *shared.HTTPStatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected wrapped 401, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})

	t.Run("no choices", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"x","object":"chat.completion","model":"gpt-test","choices":[]}`)
		})

		if _, err := client.Complete(context.Background(), Request{Prompt: "hi"}); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestClassifyError(t *testing.T) {
	if !IsTransient(classifyError(errors.New("connection reset"))) {
		t.Error("transport errors should be transient")
	}
	if !IsFatal(classifyError(context.Canceled)) {
		t.Error("cancellation should be fatal")
	}
	if classifyError(nil) != nil {
		t.Error("nil should stay nil")
	}
}
