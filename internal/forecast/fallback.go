package forecast

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pocket-trading-bot/internal/market"
	"pocket-trading-bot/internal/signal"
)

// fallbackConfidence is the fixed confidence of heuristic signals.
const fallbackConfidence = 0.75

// heuristicSignal compares the first and second half of the newest five
// closes. A rising mean yields UP, a falling mean DOWN, a flat market no
// signal at all.
func (e *Engine) heuristicSignal(asset string, candles []market.Candle, volPct decimal.Decimal, now time.Time, entryTime string) *signal.Signal {
	closes := market.Closes(candles)
	if len(closes) < 5 {
		e.logger.Warn().Str("asset", asset).Int("closes", len(closes)).Msg("not enough data for fallback heuristic")
		return nil
	}
	closes = closes[len(closes)-5:]

	half := len(closes) / 2
	avgFirst := mean(closes[:half])
	avgSecond := mean(closes[half:])

	var direction signal.Direction
	switch avgSecond.Cmp(avgFirst) {
	case 1:
		direction = signal.DirectionUp
	case -1:
		direction = signal.DirectionDown
	default:
		e.logger.Info().Str("asset", asset).Msg("flat market, no fallback signal")
		return nil
	}

	duration := DurationFor(volPct, e.opts.MaxDuration)
	reason := fmt.Sprintf("%s trend across the last %d closes (fallback heuristic)", trendWord(direction), len(closes))

	sig := e.newSignal(asset, direction, fallbackConfidence, entryTime, duration, reason, now)
	sig.Fallback = true
	return sig
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func trendWord(d signal.Direction) string {
	if d == signal.DirectionUp {
		return "Rising"
	}
	return "Falling"
}
