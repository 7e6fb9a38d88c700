package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pocket-trading-bot/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &ts, nil
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export signal history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportPNGPath == "" && exportCSVPath == "" {
			return errors.New("provide --csv and/or --png")
		}

		from, err := parseTimeFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseTimeFlag("to", exportTo)
		if err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), app.ExportOptions{
			From:      from,
			To:        to,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Only include history saved at or after this RFC3339 timestamp")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Only include history saved at or before this RFC3339 timestamp")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Write history rows to this CSV file")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Write a per-asset confidence chart to this PNG file")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Downsample to at most this many points (0 uses the config default)")
}
