package forecast

import (
	"github.com/shopspring/decimal"

	"pocket-trading-bot/internal/market"
)

var dec100 = decimal.NewFromInt(100)

// Volatility measures (max(close)-min(close))/mean(close) over the newest n
// closes, expressed as a percentage. Returns zero when no closes exist or the
// mean is zero.
func Volatility(candles []market.Candle, n int) decimal.Decimal {
	closes := market.Closes(candles)
	if len(closes) == 0 {
		return decimal.Zero
	}
	if n > 0 && len(closes) > n {
		closes = closes[len(closes)-n:]
	}

	minClose, maxClose, sum := closes[0], closes[0], decimal.Zero
	for _, c := range closes {
		if c.LessThan(minClose) {
			minClose = c
		}
		if c.GreaterThan(maxClose) {
			maxClose = c
		}
		sum = sum.Add(c)
	}

	mean := sum.Div(decimal.NewFromInt(int64(len(closes))))
	if mean.IsZero() {
		return decimal.Zero
	}
	return maxClose.Sub(minClose).Div(mean).Mul(dec100)
}

var (
	volHighPct   = decimal.NewFromFloat(0.5)
	volMediumPct = decimal.NewFromFloat(0.2)
)

// DurationFor maps volatility to a prediction duration in minutes: volatile
// markets get short windows, quiet markets long ones. The result is clamped
// to maxDuration.
func DurationFor(volPct decimal.Decimal, maxDuration int) int {
	duration := 5
	switch {
	case volPct.GreaterThan(volHighPct):
		duration = 2
	case volPct.GreaterThanOrEqual(volMediumPct):
		duration = 3
	}
	if maxDuration > 0 && duration > maxDuration {
		duration = maxDuration
	}
	return duration
}

// SMA returns the simple moving average of the newest n closes.
func SMA(candles []market.Candle, n int) decimal.Decimal {
	closes := market.Closes(candles)
	if n <= 0 || len(closes) < n {
		return decimal.Zero
	}
	closes = closes[len(closes)-n:]
	sum := decimal.Zero
	for _, c := range closes {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
