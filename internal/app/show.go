package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// ShowOptions hold parameters for displaying current signals.
type ShowOptions struct {
	Lessons bool
}

// Show prints the active signals and, optionally, the learned accuracy
// aggregates.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	st, err := a.newStore()
	if err != nil {
		return err
	}

	state, err := st.Load()
	if err != nil {
		return err
	}
	active, err := st.Active()
	if err != nil {
		return err
	}

	if state.LastUpdate != nil {
		fmt.Fprintf(os.Stdout, "last update: %s (%s)\n", state.LastUpdate.Format(time.RFC3339), state.Timezone)
	} else {
		fmt.Fprintln(os.Stdout, "no signals generated yet")
	}
	fmt.Fprintf(os.Stdout, "stored: %d  active: %d\n\n", state.TotalSignals, len(active))

	if len(state.Signals) > 0 {
		writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tAsset\tDir\tConf%\tEntry\tDur\tFallback\tActive")

		activeIDs := make(map[string]bool, len(active))
		for _, sig := range active {
			activeIDs[sig.ID] = true
		}

		for _, sig := range state.Signals {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%.0f\t%s\t%dm\t%t\t%t\n",
				sig.ID, sig.Asset, sig.Direction, sig.Confidence*100, sig.EntryTime, sig.Duration, sig.Fallback, activeIDs[sig.ID])
		}
		writer.Flush()
	}

	if opts.Lessons {
		lessons, err := st.Lessons()
		if err != nil {
			return err
		}
		if len(lessons) > 0 {
			fmt.Fprintln(os.Stdout)
			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "Asset\tFeedback\tSuccess\tAccuracy%")
			for _, lesson := range lessons {
				fmt.Fprintf(writer, "%s\t%d\t%d\t%.1f\n", lesson.Asset, lesson.FeedbackCount, lesson.SuccessCount, lesson.Accuracy*100)
			}
			writer.Flush()
		}
	}

	if a.Config.Storage.ArchiveDSN != "" {
		arch, closeArchive, err := a.openArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		count, err := arch.CountSignals(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "\narchived signals: %d\n", count)
	}

	return nil
}

func sanitizeInline(v string) string {
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\t", " ")
	return strings.TrimSpace(v)
}
