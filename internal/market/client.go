package market

import (
	"context"
	"errors"
)

// CandleSource retrieves OHLC series from a brokerage session.
type CandleSource interface {
	// Connect establishes and authenticates the session. Calling it while
	// already connected is a no-op.
	Connect(ctx context.Context) error
	// GetCandles fetches the most recent candles for an asset. It never
	// returns an empty batch together with a nil error.
	GetCandles(ctx context.Context, asset string, timeframeSeconds, count int) ([]Candle, error)
	Disconnect() error
}

var (
	// ErrAuthExpired marks a rejected session token. Operators rotate the
	// SSID when they see this reason; no refresh is attempted.
	ErrAuthExpired = errors.New("market: authentication expired")
	// ErrCorruptBatch marks a candle batch whose newest entry carries a
	// zero open or close.
	ErrCorruptBatch = errors.New("market: corrupt candle batch")
	// ErrNotConnected indicates an operation on a closed session.
	ErrNotConnected = errors.New("market: not connected")
)
