package forecast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGroqCompleteSuccess(t *testing.T) {
	var received chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("authorization header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"direction":"UP"}`}},
			},
			"usage": map[string]any{"total_tokens": 321},
		})
	}))
	defer srv.Close()

	client := NewGroq(GroqOptions{APIKey: "key", Model: "test-model", BaseURL: srv.URL}, testLogger())
	completion, err := client.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if completion.Content != `{"direction":"UP"}` {
		t.Fatalf("content = %q", completion.Content)
	}
	if completion.TokensUsed != 321 {
		t.Fatalf("tokens = %d", completion.TokensUsed)
	}
	if received.Model != "test-model" {
		t.Fatalf("model = %q", received.Model)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", received.Messages)
	}
	if received.ResponseFormat == nil || received.ResponseFormat.Type != "json_object" {
		t.Fatal("response_format json_object must be requested")
	}
}

func TestGroqCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "tokens"},
		})
	}))
	defer srv.Close()

	client := NewGroq(GroqOptions{APIKey: "key", BaseURL: srv.URL}, testLogger())
	_, err := client.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("429 should be an error")
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("error should carry the API message, got %v", err)
	}
}

func TestGroqCompleteMissingKey(t *testing.T) {
	client := NewGroq(GroqOptions{}, testLogger())
	if _, err := client.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("missing API key should be an error")
	}
}

func TestGroqCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewGroq(GroqOptions{APIKey: "key", BaseURL: srv.URL}, testLogger())
	if _, err := client.Complete(context.Background(), "sys", "user"); err == nil {
		t.Fatal("empty choices should be an error")
	}
}
