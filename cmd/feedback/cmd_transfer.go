package main

import (
	"errors"
	"fmt"

	"agentfeedback/internal/store"

	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportType   string
	exportStatus string
	exportLimit  int

	importInput string

	cleanupDays   int
	cleanupStatus string
	cleanupDryRun bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export feedback to a JSON or YAML file",
	Long: `Writes a snapshot document {exported_at, total, feedback} of the newest
matching records. Paths ending in .yaml or .yml are written as YAML.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import feedback from an export document",
	Long: `Adds the records of an export document. Entries without id or type,
with an unknown type, or whose id already exists are skipped. Fails when
nothing was imported.`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove feedback older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

func registerTransferCommands() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output path (required)")
	exportCmd.Flags().StringVar(&exportType, "type", "", "Only this type")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "Only this status")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of records (default from config)")
	_ = exportCmd.MarkFlagRequired("output")

	importCmd.Flags().StringVarP(&importInput, "input", "i", "", "Export document to read (required)")
	_ = importCmd.MarkFlagRequired("input")

	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Remove feedback older than this many days (default from config)")
	cleanupCmd.Flags().StringVar(&cleanupStatus, "status", "", "Only remove feedback in this status")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be removed without removing it")

	rootCmd.AddCommand(exportCmd, importCmd, cleanupCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	typ, err := parseType(exportType)
	if err != nil {
		return err
	}
	status, err := parseStatus(exportStatus)
	if err != nil {
		return err
	}
	limit := exportLimit
	if limit <= 0 {
		limit = cfg.Defaults.ExportLimit
	}

	n, err := fbStore.Export(cmd.Context(), exportOutput, store.ExportFilter{Type: typ, Status: status, Limit: limit})
	if err != nil {
		return fmt.Errorf("error exporting feedback: %w", err)
	}
	if jsonOutput {
		return printJSON(cmd, map[string]any{"output": exportOutput, "total": n})
	}
	printf(cmd, "Exported %d feedback items to %s\n", n, exportOutput)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	n, err := fbStore.Import(cmd.Context(), importInput)
	if err != nil {
		return fmt.Errorf("error importing feedback: %w", err)
	}
	if jsonOutput {
		if err := printJSON(cmd, map[string]int{"imported": n}); err != nil {
			return err
		}
	} else if n > 0 {
		printf(cmd, "Imported %d feedback items\n", n)
	}
	if n == 0 {
		return errors.New("no feedback items imported")
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	days := cfg.Defaults.CleanupDays
	if cmd.Flags().Changed("days") {
		if cleanupDays < 0 {
			return errors.New("--days must not be negative")
		}
		days = cleanupDays
	}
	status, err := parseStatus(cleanupStatus)
	if err != nil {
		return err
	}

	n, err := fbStore.Cleanup(cmd.Context(), store.CleanupOptions{
		OlderThanDays: days,
		Status:        status,
		DryRun:        cleanupDryRun,
	})
	if err != nil {
		return fmt.Errorf("error cleaning up feedback: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, map[string]any{"removed": n, "dry_run": cleanupDryRun, "older_than_days": days})
	}
	switch {
	case cleanupDryRun:
		printf(cmd, "Would remove %d feedback items older than %d days\n", n, days)
	case n > 0:
		printf(cmd, "Removed %d old feedback items\n", n)
	default:
		printf(cmd, "No feedback items removed\n")
	}
	return nil
}
