package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestConvertBatchSortsAscending(t *testing.T) {
	wire := []wireCandle{
		{Time: 300, Open: 1.2, High: 1.3, Low: 1.1, Close: 1.25},
		{Time: 100, Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05},
		{Time: 200, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15},
	}

	candles, err := convertBatch("EURUSD_otc", wire)
	if err != nil {
		t.Fatalf("convertBatch: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("got %d candles", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i-1].Timestamp.Before(candles[i].Timestamp) {
			t.Fatalf("candles not ascending at %d", i)
		}
	}
}

func TestConvertBatchRejectsEmpty(t *testing.T) {
	if _, err := convertBatch("EURUSD_otc", nil); err == nil {
		t.Fatal("empty batch should be an error")
	}
}

func TestConvertBatchRejectsCorruptNewest(t *testing.T) {
	wire := []wireCandle{
		{Time: 100, Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05},
		{Time: 200, Open: 0, High: 0, Low: 0, Close: 0},
	}
	_, err := convertBatch("EURUSD_otc", wire)
	if !errors.Is(err, ErrCorruptBatch) {
		t.Fatalf("want ErrCorruptBatch, got %v", err)
	}

	// A zero candle that is not the newest is tolerated.
	wire = []wireCandle{
		{Time: 100, Open: 0, High: 0, Low: 0, Close: 0},
		{Time: 200, Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05},
	}
	if _, err := convertBatch("EURUSD_otc", wire); err != nil {
		t.Fatalf("older zero candle should pass: %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	name, payload, ok := parseEvent(`42["loadHistoryPeriod",{"asset":"EURUSD_otc"}]`)
	if !ok || name != "loadHistoryPeriod" {
		t.Fatalf("parseEvent failed: %q %v", name, ok)
	}
	if !strings.Contains(string(payload), "EURUSD_otc") {
		t.Fatalf("payload = %s", payload)
	}

	if _, _, ok := parseEvent("2"); ok {
		t.Fatal("ping frame is not an event")
	}
	if _, _, ok := parseEvent("42not-json"); ok {
		t.Fatal("malformed event should not parse")
	}
	if name, _, ok := parseEvent(`42["successauth"]`); !ok || name != "successauth" {
		t.Fatalf("payload-less event should parse: %q %v", name, ok)
	}
}

// gatewayScript drives a scripted socket.io handshake for client tests.
type gatewayScript struct {
	authReply string
	history   string
}

func (g gatewayScript) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		write := func(frame string) bool {
			return conn.WriteMessage(websocket.TextMessage, []byte(frame)) == nil
		}
		read := func() (string, bool) {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return "", false
			}
			return string(data), true
		}

		if !write(`0{"sid":"abc","pingInterval":25000}`) {
			return
		}
		if frame, ok := read(); !ok || frame != "40" {
			return
		}
		if !write(`40{"sid":"def"}`) {
			return
		}
		if frame, ok := read(); !ok || !strings.HasPrefix(frame, `42["auth"`) {
			return
		}
		if !write(g.authReply) {
			return
		}

		for {
			frame, ok := read()
			if !ok {
				return
			}
			if strings.Contains(frame, "loadHistoryPeriod") && g.history != "" {
				if !write(g.history) {
					return
				}
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPocketConnectAndGetCandles(t *testing.T) {
	script := gatewayScript{
		authReply: `42["successauth"]`,
		history:   `42["loadHistoryPeriod",{"asset":"EURUSD_otc","period":60,"data":[{"time":100,"open":1.0,"high":1.1,"low":0.9,"close":1.05},{"time":160,"open":1.05,"high":1.15,"low":1.0,"close":1.1}]}]`,
	}
	srv := httptest.NewServer(script.handler(t))
	defer srv.Close()

	client := NewPocket(PocketOptions{SSID: "token", Demo: true, URL: wsURL(srv), Timeout: 2 * time.Second}, testLogger())
	defer client.Disconnect()

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// Idempotent.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	candles, err := client.GetCandles(context.Background(), "EURUSD_otc", 60, 10)
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles", len(candles))
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Fatal("candles should be ascending")
	}
}

func TestPocketConnectAuthRejected(t *testing.T) {
	script := gatewayScript{authReply: `42["autherror",{"reason":"expired"}]`}
	srv := httptest.NewServer(script.handler(t))
	defer srv.Close()

	client := NewPocket(PocketOptions{SSID: "stale", Demo: true, URL: wsURL(srv), Timeout: 2 * time.Second}, testLogger())
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("want ErrAuthExpired, got %v", err)
	}
}

func TestPocketConnectEmptySSID(t *testing.T) {
	client := NewPocket(PocketOptions{URL: "ws://127.0.0.1:1"}, testLogger())
	err := client.Connect(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("empty ssid should map to ErrAuthExpired, got %v", err)
	}
}

func TestPocketDisconnectIdempotent(t *testing.T) {
	client := NewPocket(PocketOptions{SSID: "token", URL: "ws://127.0.0.1:1"}, testLogger())
	if err := client.Disconnect(); err != nil {
		t.Fatalf("Disconnect on closed client: %v", err)
	}
	if err := client.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}
