package forecast

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocket-trading-bot/internal/market"
)

const systemPrompt = "You are an expert binary-options trader. You give only clear, justified signals. Respond ONLY with a JSON object."

// buildUserPrompt renders the analysis request. The candle summary is bounded
// to the newest promptCandles entries to keep prompt size predictable.
func buildUserPrompt(asset string, timeframeSeconds int, candles []market.Candle, volPct decimal.Decimal, now time.Time, entryTime string, promptCandles int, language string) string {
	b := strings.Builder{}

	b.WriteString("You are a professional binary-options trader with 10 years of experience.\n\n")
	b.WriteString("TASK: analyse the data below and produce a trading signal.\n\n")
	fmt.Fprintf(&b, "ASSET: %s\n", asset)
	fmt.Fprintf(&b, "TIMEFRAME: %d seconds\n", timeframeSeconds)
	fmt.Fprintf(&b, "CURRENT TIME: %s\n", now.Format("15:04"))
	fmt.Fprintf(&b, "VOLATILITY (last 10 closes): %s%%\n\n", volPct.StringFixed(3))

	fmt.Fprintf(&b, "RECENT CANDLES (Time | Open | High | Low | Close):\n%s\n\n", formatCandles(candles, promptCandles))

	sma5 := SMA(candles, 5)
	sma10 := SMA(candles, 10)
	if !sma5.IsZero() && !sma10.IsZero() {
		fmt.Fprintf(&b, "SMA5: %s  SMA10: %s\n\n", sma5.StringFixed(5), sma10.StringFixed(5))
	}

	b.WriteString("ANALYSE: trend, key support/resistance levels, candle patterns, volatility.\n\n")
	b.WriteString("GIVE A SIGNAL:\n")
	b.WriteString("- direction: ONLY \"UP\" or \"DOWN\"\n")
	b.WriteString("- confidence: decimal fraction between 0.70 and 0.95\n")
	fmt.Fprintf(&b, "- entry_time: %q (format HH:MM)\n", entryTime)
	b.WriteString("- duration: whole minutes the prediction covers\n")
	fmt.Fprintf(&b, "- reason: short rationale, at most two sentences, in language %q\n\n", language)
	b.WriteString("If the trend is unclear or the market is flat, do not force a signal.\n\n")

	b.WriteString("RESPONSE FORMAT (JSON object):\n")
	fmt.Fprintf(&b, `{"asset": %q, "direction": "UP or DOWN", "confidence": 0.85, "entry_time": %q, "duration": 2, "reason": "...", "timestamp": %q}`,
		asset, entryTime, now.Format("2006-01-02 15:04:05"))
	b.WriteString("\n")

	return b.String()
}

func formatCandles(candles []market.Candle, limit int) string {
	if len(candles) == 0 {
		return "no data"
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	lines := make([]string, 0, len(candles))
	for i, c := range candles {
		lines = append(lines, fmt.Sprintf("%2d. %s | O:%s H:%s L:%s C:%s",
			i+1,
			c.Timestamp.Format("15:04"),
			c.Open.StringFixed(5),
			c.High.StringFixed(5),
			c.Low.StringFixed(5),
			c.Close.StringFixed(5),
		))
	}
	return strings.Join(lines, "\n")
}
