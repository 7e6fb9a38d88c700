package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLC price bar for a fixed interval. It is the only candle
// representation in the codebase; the broker adapter converts wire payloads
// into this type at the boundary.
type Candle struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
}

// Closes extracts the close series in chronological order.
func Closes(candles []Candle) []decimal.Decimal {
	closes := make([]decimal.Decimal, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	return closes
}
