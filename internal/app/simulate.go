package app

import (
	"context"
	"fmt"
	"time"

	"pocket-trading-bot/internal/signal"
)

// SimulateOptions describe the synthetic signal to push through the pipeline.
type SimulateOptions struct {
	Asset      string
	Direction  string
	Confidence float64
	Duration   int
	Reason     string
	Notify     bool
}

// Simulate persists a hand-built signal as if the forecast engine produced
// it, optionally pushing it through the notifier. Useful for verifying the
// storage layout and Telegram wiring without touching the broker or the LLM.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	asset := opts.Asset
	if asset == "" && len(a.Config.Signals.Assets) > 0 {
		asset = a.Config.Signals.Assets[0]
	}
	if asset == "" {
		return fmt.Errorf("no asset given and none configured")
	}

	direction, err := signal.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}

	loc := a.Config.Location()
	now := time.Now().In(loc)
	entry := now.Add(a.Config.Signals.EntryDelay)

	sig := signal.Signal{
		Asset:       asset,
		Direction:   direction,
		Confidence:  opts.Confidence,
		EntryTime:   entry.Format("15:04"),
		Duration:    opts.Duration,
		Reason:      opts.Reason,
		GeneratedAt: now,
	}
	if sig.Reason == "" {
		sig.Reason = "Simulated signal"
	}

	st, err := a.newStore()
	if err != nil {
		return err
	}
	persisted, err := st.Save([]signal.Signal{sig})
	if err != nil {
		return err
	}
	if !persisted {
		a.Logger.Warn().
			Str("asset", asset).
			Float64("confidence", opts.Confidence).
			Msg("simulated signal rejected by the store, check the confidence floor")
		return nil
	}
	a.Logger.Info().
		Str("asset", asset).
		Str("direction", string(direction)).
		Str("entry", sig.EntryTime).
		Msg("simulated signal persisted")

	if !opts.Notify {
		return nil
	}
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting disabled, skipping notification")
		return nil
	}
	if err := notifier.Notify(ctx, []signal.Signal{sig}); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	a.Logger.Info().Msg("simulated signal notification sent")
	return nil
}
