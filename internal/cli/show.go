package cli

import (
	"github.com/spf13/cobra"

	"pocket-trading-bot/internal/app"
)

var showLessons bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display active signals and store state",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{
			Lessons: showLessons,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showLessons, "lessons", false, "Also display per-asset accuracy learned from feedback")
}
