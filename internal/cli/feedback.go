package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pocket-trading-bot/internal/app"
)

var (
	feedbackResult  string
	feedbackComment string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <signal-id>",
	Short: "Record the outcome of a signal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedbackResult == "" {
			return errors.New("--result is required (win or loss)")
		}

		opts := app.FeedbackOptions{
			SignalID: args[0],
			Result:   feedbackResult,
			Comment:  feedbackComment,
		}

		return getApp().Feedback(opts)
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&feedbackResult, "result", "", "Trade outcome: win or loss")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "Optional free-form note")
}
