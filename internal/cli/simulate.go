package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pocket-trading-bot/internal/app"
)

var (
	simulateAsset      string
	simulateDirection  string
	simulateConfidence float64
	simulateDuration   int
	simulateReason     string
	simulateNotify     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-signal",
	Short: "Persist a hand-built signal to verify storage and alerting",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateConfidence <= 0 || simulateConfidence > 1 {
			return errors.New("--confidence must be in (0, 1]")
		}

		opts := app.SimulateOptions{
			Asset:      simulateAsset,
			Direction:  simulateDirection,
			Confidence: simulateConfidence,
			Duration:   simulateDuration,
			Reason:     simulateReason,
			Notify:     simulateNotify,
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "", "Asset identifier (defaults to first configured asset)")
	simulateCmd.Flags().StringVar(&simulateDirection, "direction", "UP", "Forecast direction: UP or DOWN")
	simulateCmd.Flags().Float64Var(&simulateConfidence, "confidence", 0.9, "Confidence in (0, 1]")
	simulateCmd.Flags().IntVar(&simulateDuration, "duration", 3, "Trade duration in minutes")
	simulateCmd.Flags().StringVar(&simulateReason, "reason", "", "Optional reason text")
	simulateCmd.Flags().BoolVar(&simulateNotify, "notify", false, "Also send the signal through the notifier")
}
