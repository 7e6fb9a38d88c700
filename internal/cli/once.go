package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single generation cycle and exit",
	Long: `Run one fetch-analyze-persist cycle and exit. The exit code reports the
outcome: 0 when at least one signal was persisted, 1 otherwise, which makes
the command usable from cron or shell pipelines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		persisted, err := getApp().RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		if persisted == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no signals generated")
			os.Exit(1)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "persisted %d signal(s)\n", persisted)
		return nil
	},
}
