package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pocket-trading-bot/internal/market"
	"pocket-trading-bot/internal/signal"
)

// Options tune the forecast engine.
type Options struct {
	MinConfidence    float64
	MaxDuration      int
	PromptCandles    int
	EntryDelay       time.Duration
	TimeframeSeconds int
	Language         string
	Location         *time.Location
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Analysis is the outcome of one engine invocation. A nil Signal is the
// valid "no signal" verdict (flat market, low confidence); it is not an
// error. Failures that could not be recovered by the fallback are reported
// through the error return instead.
type Analysis struct {
	Signal     *signal.Signal
	Fallback   bool
	TokensUsed int
}

// Engine produces signals by delegating directional reasoning to a
// completion API and falling back to a local trend heuristic.
type Engine struct {
	llm    Completer
	opts   Options
	logger zerolog.Logger
}

// NewEngine constructs a forecast engine. llm may be nil, in which case every
// invocation uses the heuristic.
func NewEngine(llm Completer, opts Options, logger zerolog.Logger) *Engine {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 5
	}
	if opts.PromptCandles <= 0 {
		opts.PromptCandles = 15
	}
	if opts.EntryDelay <= 0 {
		opts.EntryDelay = 2 * time.Minute
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		llm:    llm,
		opts:   opts,
		logger: logger.With().Str("component", "forecast").Logger(),
	}
}

// Analyze produces at most one signal for the asset. No retries happen here;
// the caller decides whether to try the asset again on the next cycle.
func (e *Engine) Analyze(ctx context.Context, asset string, candles []market.Candle) (Analysis, error) {
	if len(candles) == 0 {
		return Analysis{}, nil
	}

	now := e.opts.Now().In(e.opts.Location)
	entryTime := now.Add(e.opts.EntryDelay).Format("15:04")
	volPct := Volatility(candles, 10)

	analysis := Analysis{}

	if e.llm != nil {
		user := buildUserPrompt(asset, e.opts.TimeframeSeconds, candles, volPct, now, entryTime, e.opts.PromptCandles, e.opts.Language)
		completion, err := e.llm.Complete(ctx, systemPrompt, user)
		analysis.TokensUsed = completion.TokensUsed

		switch {
		case err == nil:
			sig, parseErr := e.parseModelSignal(asset, completion.Content, now)
			if parseErr == nil {
				if sig != nil && sig.Confidence < e.opts.MinConfidence {
					e.logger.Warn().Str("asset", asset).Float64("confidence", sig.Confidence).Msg("model signal below confidence floor")
					return analysis, nil
				}
				analysis.Signal = sig
				return analysis, nil
			}
			e.logger.Warn().Err(parseErr).Str("asset", asset).Msg("model response unusable, using fallback heuristic")
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return analysis, err
		default:
			e.logger.Warn().Err(err).Str("asset", asset).Msg("completion call failed, using fallback heuristic")
		}
	}

	sig := e.heuristicSignal(asset, candles, volPct, now, entryTime)
	if sig == nil {
		return analysis, nil
	}
	if sig.Confidence < e.opts.MinConfidence {
		e.logger.Warn().Str("asset", asset).Float64("confidence", sig.Confidence).Msg("fallback signal below confidence floor")
		return analysis, nil
	}
	analysis.Signal = sig
	analysis.Fallback = true
	return analysis, nil
}

// modelSignal mirrors the JSON object contract the prompt demands. Pointer
// fields distinguish absent from zero.
type modelSignal struct {
	Asset      string   `json:"asset"`
	Direction  *string  `json:"direction"`
	Confidence *float64 `json:"confidence"`
	EntryTime  *string  `json:"entry_time"`
	Duration   *int     `json:"duration"`
	Reason     string   `json:"reason"`
	Timestamp  string   `json:"timestamp"`
}

func (e *Engine) parseModelSignal(asset, content string, now time.Time) (*signal.Signal, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw modelSignal
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}
	if raw.Direction == nil || raw.Confidence == nil || raw.EntryTime == nil || raw.Duration == nil {
		return nil, errors.New("model response missing required fields")
	}

	direction, err := signal.ParseDirection(*raw.Direction)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse("15:04", *raw.EntryTime); err != nil {
		return nil, err
	}
	if *raw.Duration < 1 {
		return nil, errors.New("model response duration below one minute")
	}

	sig := e.newSignal(asset, direction, *raw.Confidence, *raw.EntryTime, *raw.Duration, raw.Reason, now)
	sig.Fallback = false
	return sig, nil
}

func (e *Engine) newSignal(asset string, direction signal.Direction, confidence float64, entryTime string, duration int, reason string, now time.Time) *signal.Signal {
	if duration > e.opts.MaxDuration {
		// Over-long predictions are clamped, not rejected.
		duration = e.opts.MaxDuration
	}
	return &signal.Signal{
		ID:             signal.NewID(asset, now, e.opts.Location),
		Asset:          asset,
		Direction:      direction,
		Confidence:     confidence,
		EntryTime:      entryTime,
		Duration:       duration,
		Reason:         reason,
		GeneratedAt:    now,
		GeneratedAtUTC: now.UTC(),
	}
}
