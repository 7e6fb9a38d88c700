package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pocket-trading-bot/internal/market"
	"pocket-trading-bot/internal/signal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeCompleter struct {
	content string
	tokens  int
	err     error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (Completion, error) {
	if f.err != nil {
		return Completion{TokensUsed: f.tokens}, f.err
	}
	return Completion{Content: f.content, TokensUsed: f.tokens}, nil
}

func candlesFromCloses(closes ...float64) []market.Candle {
	base := time.Date(2026, 1, 10, 11, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 0, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		candles = append(candles, market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
		})
	}
	return candles
}

func testEngine(llm Completer) *Engine {
	fixed := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	return NewEngine(llm, Options{
		MinConfidence: 0.7,
		MaxDuration:   5,
		EntryDelay:    2 * time.Minute,
		Location:      time.UTC,
		Now:           func() time.Time { return fixed },
	}, testLogger())
}

func TestAnalyzeEmptyCandles(t *testing.T) {
	engine := testEngine(nil)
	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal != nil {
		t.Fatal("no candles should yield no signal")
	}
}

func TestAnalyzeModelSignal(t *testing.T) {
	llm := &fakeCompleter{
		content: `{"asset":"EURUSD_otc","direction":"UP","confidence":0.82,"entry_time":"12:02","duration":3,"reason":"momentum"}`,
		tokens:  420,
	}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil {
		t.Fatal("expected a signal")
	}
	if analysis.Fallback {
		t.Fatal("model signal must not be marked fallback")
	}
	if analysis.TokensUsed != 420 {
		t.Fatalf("tokens = %d", analysis.TokensUsed)
	}
	sig := analysis.Signal
	if sig.Direction != signal.DirectionUp || sig.Confidence != 0.82 || sig.Duration != 3 {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if sig.ID != "EURUSD_otc_20260110120000" {
		t.Fatalf("id = %q", sig.ID)
	}
}

func TestAnalyzeModelSignalWithCodeFences(t *testing.T) {
	llm := &fakeCompleter{
		content: "```json\n{\"direction\":\"DOWN\",\"confidence\":0.9,\"entry_time\":\"12:02\",\"duration\":2,\"reason\":\"r\"}\n```",
	}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.5, 1.4, 1.3, 1.2, 1.1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil || analysis.Signal.Direction != signal.DirectionDown {
		t.Fatalf("fenced JSON should parse: %+v", analysis.Signal)
	}
	if analysis.Fallback {
		t.Fatal("parsed model signal must not be fallback")
	}
}

func TestAnalyzeLowConfidenceRejectedNotFallback(t *testing.T) {
	llm := &fakeCompleter{
		content: `{"direction":"UP","confidence":0.4,"entry_time":"12:02","duration":3,"reason":"weak"}`,
	}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// A parsed but unconfident verdict is final; the heuristic must not be
	// consulted.
	if analysis.Signal != nil {
		t.Fatalf("low-confidence verdict should yield no signal, got %+v", analysis.Signal)
	}
	if analysis.Fallback {
		t.Fatal("rejection is not a fallback")
	}
}

func TestAnalyzeSidewaysFallsBack(t *testing.T) {
	llm := &fakeCompleter{
		content: `{"direction":"SIDEWAYS","confidence":0.9,"entry_time":"12:02","duration":3,"reason":"flat"}`,
	}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.0000, 1.0001, 1.0002, 1.0003, 1.0004))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil {
		t.Fatal("expected a fallback signal")
	}
	if !analysis.Fallback {
		t.Fatal("signal should be marked fallback")
	}
	if analysis.Signal.Direction != signal.DirectionUp {
		t.Fatalf("rising closes should yield UP, got %s", analysis.Signal.Direction)
	}
	if analysis.Signal.Confidence != 0.75 {
		t.Fatalf("fallback confidence = %v", analysis.Signal.Confidence)
	}
	if analysis.Signal.Duration != 5 {
		t.Fatalf("quiet market should get duration 5, got %d", analysis.Signal.Duration)
	}
}

func TestAnalyzeGarbageFallsBack(t *testing.T) {
	llm := &fakeCompleter{content: "I think the market will rise, probably."}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.5, 1.4, 1.3, 1.2, 1.1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil || !analysis.Fallback {
		t.Fatalf("garbage response should trigger the heuristic: %+v", analysis)
	}
	if analysis.Signal.Direction != signal.DirectionDown {
		t.Fatalf("falling closes should yield DOWN, got %s", analysis.Signal.Direction)
	}
}

func TestAnalyzeAPIErrorFallsBack(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("rate limited"), tokens: 0}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil || !analysis.Fallback {
		t.Fatalf("API error should trigger the heuristic: %+v", analysis)
	}
}

func TestAnalyzeContextCancellationPropagates(t *testing.T) {
	llm := &fakeCompleter{err: context.Canceled}
	engine := testEngine(llm)

	_, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must propagate, got %v", err)
	}
}

func TestAnalyzeFlatMarketNoSignal(t *testing.T) {
	engine := testEngine(nil)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.1, 1.1, 1.1, 1.1))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal != nil {
		t.Fatal("flat market should produce no heuristic signal")
	}
}

func TestAnalyzeDurationClamped(t *testing.T) {
	llm := &fakeCompleter{
		content: `{"direction":"UP","confidence":0.9,"entry_time":"12:02","duration":30,"reason":"r"}`,
	}
	engine := testEngine(llm)

	analysis, err := engine.Analyze(context.Background(), "EURUSD_otc", candlesFromCloses(1.1, 1.2, 1.3, 1.4, 1.5))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Signal == nil || analysis.Signal.Duration != 5 {
		t.Fatalf("over-long duration should clamp to 5: %+v", analysis.Signal)
	}
}

func TestParseModelSignalMissingFields(t *testing.T) {
	engine := testEngine(nil)
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	cases := []string{
		`{"confidence":0.9,"entry_time":"12:02","duration":3}`,
		`{"direction":"UP","entry_time":"12:02","duration":3}`,
		`{"direction":"UP","confidence":0.9,"duration":3}`,
		`{"direction":"UP","confidence":0.9,"entry_time":"12:02"}`,
		`{"direction":"UP","confidence":0.9,"entry_time":"noon","duration":3}`,
		`{"direction":"UP","confidence":0.9,"entry_time":"12:02","duration":0}`,
	}
	for _, content := range cases {
		if _, err := engine.parseModelSignal("EURUSD_otc", content, now); err == nil {
			t.Fatalf("content %s should fail to parse", content)
		}
	}
}
