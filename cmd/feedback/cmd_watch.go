package main

import (
	"encoding/json"
	"fmt"
	"time"

	"agentfeedback/internal/logging"
	"agentfeedback/internal/watch"

	"github.com/spf13/cobra"
)

var (
	watchDebounce time.Duration
	watchCount    int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print feedback changes as they happen",
	Long: `Watches every type directory of the store and prints one line per
created, updated or removed record until interrupted. With --json each
line is a JSON object.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func registerWatchCommand() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a change is reported")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Exit after this many events (0 = run until interrupted)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	w, err := watch.New(fbStore,
		watch.WithLogger(logs.Get(logging.CategoryWatch)),
		watch.WithDebounce(watchDebounce),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if !jsonOutput {
		printf(cmd, "Watching %s (Ctrl+C to stop)\n", fbStore.Root())
	}

	seen := 0
	for ev := range w.Events() {
		if jsonOutput {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			printf(cmd, "%s\n", data)
		} else {
			printf(cmd, "%s  %-8s %-12s %s\n", ev.At.Local().Format("15:04:05"), ev.Kind, ev.Type, ev.ID)
		}

		seen++
		if watchCount > 0 && seen >= watchCount {
			break
		}
	}
	return nil
}
