package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// engine.io packet prefixes used by the broker gateway.
const (
	frameOpen       = "0"
	framePing       = "2"
	framePong       = "3"
	frameNamespace  = "40"
	frameDisconnect = "41"
	frameEvent      = "42"
)

// PocketOptions parameterise the Pocket Option websocket client.
type PocketOptions struct {
	SSID    string
	Demo    bool
	URL     string
	Origin  string
	Timeout time.Duration
}

// Pocket is a websocket candle source for the Pocket Option gateway.
type Pocket struct {
	opts   PocketOptions
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	reqIndex  int
}

// NewPocket constructs a Pocket Option client.
func NewPocket(opts PocketOptions, logger zerolog.Logger) *Pocket {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Origin == "" {
		opts.Origin = "https://pocketoption.com"
	}

	return &Pocket{
		opts:   opts,
		logger: logger.With().Str("component", "pocket_client").Logger(),
		dialer: &websocket.Dialer{HandshakeTimeout: opts.Timeout},
	}
}

// Connect dials the gateway and authenticates the session. Repeated calls
// while connected are no-ops.
func (p *Pocket) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return nil
	}

	ssid := FormatSSID(p.opts.SSID, p.opts.Demo)
	if err := ValidateSSID(ssid); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	header := http.Header{}
	header.Set("Origin", p.opts.Origin)

	conn, _, err := p.dialer.DialContext(ctx, p.opts.URL, header)
	if err != nil {
		return fmt.Errorf("dial broker gateway: %w", err)
	}

	if err := p.handshake(ctx, conn, ssid); err != nil {
		conn.Close()
		return err
	}

	p.conn = conn
	p.connected = true
	p.logger.Info().Bool("demo", p.opts.Demo).Msg("broker session established")
	return nil
}

func (p *Pocket) handshake(ctx context.Context, conn *websocket.Conn, ssid string) error {
	deadline := time.Now().Add(p.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	// Engine.io open packet arrives first.
	if _, err := readUntilPrefix(conn, deadline, frameOpen); err != nil {
		return fmt.Errorf("await open packet: %w", err)
	}
	if err := writeFrame(conn, deadline, frameNamespace); err != nil {
		return fmt.Errorf("join namespace: %w", err)
	}
	if _, err := readUntilPrefix(conn, deadline, frameNamespace); err != nil {
		return fmt.Errorf("await namespace ack: %w", err)
	}
	if err := writeFrame(conn, deadline, ssid); err != nil {
		return fmt.Errorf("send auth frame: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := readFrame(conn, deadline)
		if err != nil {
			// Gateways drop the socket instead of answering a stale token.
			return fmt.Errorf("%w: %v", ErrAuthExpired, err)
		}
		if frame == framePing {
			if err := writeFrame(conn, deadline, framePong); err != nil {
				return err
			}
			continue
		}
		event, _, ok := parseEvent(frame)
		if !ok {
			continue
		}
		switch event {
		case "successauth":
			return nil
		case "autherror", "authFailed":
			return ErrAuthExpired
		}
	}
}

// GetCandles fetches the most recent candles for an asset, reconnecting once
// if the session is down.
func (p *Pocket) GetCandles(ctx context.Context, asset string, timeframeSeconds, count int) ([]Candle, error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		p.mu.Lock()
	}
	defer p.mu.Unlock()

	if !p.connected || p.conn == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(p.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	p.reqIndex++
	request := fmt.Sprintf(`42["loadHistoryPeriod",{"asset":%q,"period":%d,"time":%d,"index":%d,"offset":%d}]`,
		asset, timeframeSeconds, time.Now().Unix(), p.reqIndex, count*timeframeSeconds)
	if err := writeFrame(p.conn, deadline, request); err != nil {
		p.dropLocked()
		return nil, fmt.Errorf("request candles for %s: %w", asset, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := readFrame(p.conn, deadline)
		if err != nil {
			p.dropLocked()
			return nil, fmt.Errorf("read candles for %s: %w", asset, err)
		}
		if frame == framePing {
			if err := writeFrame(p.conn, deadline, framePong); err != nil {
				p.dropLocked()
				return nil, err
			}
			continue
		}
		event, payload, ok := parseEvent(frame)
		if !ok || event != "loadHistoryPeriod" {
			continue
		}

		var history historyPayload
		if err := json.Unmarshal(payload, &history); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", asset, err)
		}
		if history.Asset != "" && history.Asset != asset {
			continue
		}
		return convertBatch(asset, history.Data)
	}
}

// Disconnect closes the session. Safe to call when already closed.
func (p *Pocket) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected || p.conn == nil {
		return nil
	}

	deadline := time.Now().Add(2 * time.Second)
	_ = writeFrame(p.conn, deadline, frameDisconnect)
	err := p.conn.Close()
	p.conn = nil
	p.connected = false
	p.logger.Info().Msg("broker session closed")
	return err
}

func (p *Pocket) dropLocked() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.connected = false
}

type historyPayload struct {
	Asset  string       `json:"asset"`
	Period int          `json:"period"`
	Data   []wireCandle `json:"data"`
}

type wireCandle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

func convertBatch(asset string, wire []wireCandle) ([]Candle, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("market: no candles returned for %s", asset)
	}

	candles := make([]Candle, 0, len(wire))
	for _, w := range wire {
		candles = append(candles, Candle{
			Timestamp: time.Unix(w.Time, 0).UTC(),
			Open:      decimal.NewFromFloat(w.Open),
			High:      decimal.NewFromFloat(w.High),
			Low:       decimal.NewFromFloat(w.Low),
			Close:     decimal.NewFromFloat(w.Close),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })

	newest := candles[len(candles)-1]
	if newest.Open.IsZero() || newest.Close.IsZero() {
		return nil, fmt.Errorf("%w: %s newest candle has zero open/close", ErrCorruptBatch, asset)
	}
	return candles, nil
}

func parseEvent(frame string) (string, json.RawMessage, bool) {
	if !strings.HasPrefix(frame, frameEvent) {
		return "", nil, false
	}
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(frame[len(frameEvent):]), &parts); err != nil || len(parts) == 0 {
		return "", nil, false
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, false
	}
	var payload json.RawMessage
	if len(parts) > 1 {
		payload = parts[1]
	}
	return name, payload, true
}

func readFrame(conn *websocket.Conn, deadline time.Time) (string, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readUntilPrefix(conn *websocket.Conn, deadline time.Time, prefix string) (string, error) {
	for {
		frame, err := readFrame(conn, deadline)
		if err != nil {
			return "", err
		}
		if frame == framePing {
			if err := writeFrame(conn, deadline, framePong); err != nil {
				return "", err
			}
			continue
		}
		if strings.HasPrefix(frame, prefix) {
			return frame, nil
		}
	}
}

func writeFrame(conn *websocket.Conn, deadline time.Time, frame string) error {
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

var _ CandleSource = (*Pocket)(nil)
