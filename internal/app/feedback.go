package app

import (
	"errors"
	"fmt"
	"strings"

	"pocket-trading-bot/internal/signal"
)

// FeedbackOptions describe a single manual trade outcome report.
type FeedbackOptions struct {
	SignalID string
	Result   string
	Comment  string
}

// Feedback records a trade outcome and folds it into the per-asset lessons.
func (a *App) Feedback(opts FeedbackOptions) error {
	if opts.SignalID == "" {
		return errors.New("signal id is required")
	}

	var success bool
	switch strings.ToLower(strings.TrimSpace(opts.Result)) {
	case "win":
		success = true
	case "loss":
		success = false
	default:
		return fmt.Errorf(`result must be "win" or "loss", got %q`, opts.Result)
	}

	st, err := a.newStore()
	if err != nil {
		return err
	}
	if err := st.SaveFeedback(opts.SignalID, success, opts.Comment); err != nil {
		return err
	}

	lessons, err := st.Lessons()
	if err != nil {
		return err
	}
	asset := signal.AssetFromID(opts.SignalID)
	for _, lesson := range lessons {
		if lesson.Asset != asset {
			continue
		}
		a.Logger.Info().
			Str("asset", lesson.Asset).
			Int("feedback", lesson.FeedbackCount).
			Int("successes", lesson.SuccessCount).
			Str("accuracy", fmt.Sprintf("%.0f%%", lesson.Accuracy*100)).
			Msg("feedback recorded")
		return nil
	}
	a.Logger.Info().Str("signal_id", opts.SignalID).Msg("feedback recorded")
	return nil
}
