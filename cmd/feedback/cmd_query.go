package main

import (
	"fmt"

	"agentfeedback/cmd/feedback/ui"
	"agentfeedback/internal/feedback"

	"github.com/spf13/cobra"
)

var (
	listType     string
	listStatus   string
	listPriority string
	listTags     []string
	listLimit    int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback, newest first",
	Long: `Lists feedback records newest first. Filters combine with AND;
--tags matches records carrying every listed tag.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts by type, status and priority",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func registerQueryCommands() {
	listCmd.Flags().StringVar(&listType, "type", "", "Only this type")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only this status")
	listCmd.Flags().StringVar(&listPriority, "priority", "", "Only this priority")
	listCmd.Flags().StringSliceVar(&listTags, "tags", nil, "Only records with all of these tags")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of results (default from config)")

	rootCmd.AddCommand(listCmd, statsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	typ, err := parseType(listType)
	if err != nil {
		return err
	}
	status, err := parseStatus(listStatus)
	if err != nil {
		return err
	}
	priority, err := parsePriority(listPriority)
	if err != nil {
		return err
	}
	limit := listLimit
	if limit <= 0 {
		limit = cfg.Defaults.ListLimit
	}

	records, err := fbStore.List(cmd.Context(), feedback.Filter{
		Type:     typ,
		Status:   status,
		Priority: priority,
		Tags:     listTags,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("error listing feedback: %w", err)
	}

	if jsonOutput {
		if records == nil {
			records = []*feedback.Record{}
		}
		return printJSON(cmd, records)
	}
	printf(cmd, "%s", ui.RenderList(styles(), records))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := fbStore.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("error computing stats: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, stats)
	}
	printf(cmd, "%s", ui.RenderStats(styles(), stats))
	return nil
}
