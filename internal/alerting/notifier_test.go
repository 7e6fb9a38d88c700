package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/signal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testSignals() []signal.Signal {
	return []signal.Signal{
		{
			ID:         "EURUSD_otc_20260110120000",
			Asset:      "EURUSD_otc",
			Direction:  signal.DirectionUp,
			Confidence: 0.82,
			EntryTime:  "12:02",
			Duration:   3,
			Reason:     "momentum",
		},
		{
			ID:         "GBPJPY_otc_20260110120000",
			Asset:      "GBPJPY_otc",
			Direction:  signal.DirectionDown,
			Confidence: 0.75,
			EntryTime:  "12:02",
			Duration:   2,
			Fallback:   true,
		},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "bottoken/sendMessage") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testSignals()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id = %q", received["chat_id"])
	}
	text := received["text"]
	if !strings.Contains(text, "EURUSD_otc UP") || !strings.Contains(text, "82%") {
		t.Fatalf("text missing signal line: %s", text)
	}
	if !strings.Contains(text, "fallback") {
		t.Fatalf("fallback marker missing: %s", text)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testSignals()); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testSignals()); err == nil {
		t.Fatal("403 should be an error")
	}
}

func TestTelegramNotifierEmptyBatch(t *testing.T) {
	notifier := NewTelegramNotifier("token", "chat", "http://127.0.0.1:1", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}
}
