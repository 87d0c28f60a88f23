package main

import (
	"errors"
	"fmt"

	"agentfeedback/cmd/feedback/ui"
	"agentfeedback/internal/feedback"
	"agentfeedback/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	submitType        string
	submitTitle       string
	submitDescription string
	submitPriority    string
	submitTags        []string
	submitContext     string

	updateTitle       string
	updateDescription string
	updateStatus      string
	updatePriority    string
	updateTags        []string
	updateContext     string
	updateSet         []string
	updateRevision    int64

	commentText   string
	commentAuthor string
)

// submitCmd creates a record
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit new feedback",
	Long: `Creates a feedback record and prints its id.

Example:
  feedback submit --type issue --title "Crash on start" \
    --description "nil map in loader" --priority high --tags boot,crash \
    --context '{"file": "loader.go", "line": 42}'`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one feedback record",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

// updateCmd changes fields of a record
var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update feedback fields",
	Long: `Updates a record in place. Status and priority are checked against
the known values.

--set key=value writes any top-level field through without validation
(values are parsed as JSON when possible). id, created_at and revision are
never changed.

--expect-revision makes the update fail if the record changed since it was read.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var commentCmd = &cobra.Command{
	Use:   "comment <id>",
	Short: "Add a comment to feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runComment,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Permanently remove a feedback record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func registerRecordCommands() {
	submitCmd.Flags().StringVar(&submitType, "type", "", "Feedback type: issue, improvement, question, compliance, other (required)")
	submitCmd.Flags().StringVar(&submitTitle, "title", "", "Short title (required)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "Detailed description")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "medium", "Priority: low, medium, high, critical")
	submitCmd.Flags().StringSliceVar(&submitTags, "tags", nil, "Tags (comma separated or repeated)")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "Additional context as a JSON object")
	_ = submitCmd.MarkFlagRequired("type")
	_ = submitCmd.MarkFlagRequired("title")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "New description")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "New status")
	updateCmd.Flags().StringVar(&updatePriority, "priority", "", "New priority")
	updateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "Replace tags")
	updateCmd.Flags().StringVar(&updateContext, "context", "", "Replace context with a JSON object")
	updateCmd.Flags().StringArrayVar(&updateSet, "set", nil, "Write key=value through without validation (repeatable)")
	updateCmd.Flags().Int64Var(&updateRevision, "expect-revision", 0, "Fail unless the stored revision matches")

	commentCmd.Flags().StringVar(&commentText, "comment", "", "Comment text (required)")
	commentCmd.Flags().StringVar(&commentAuthor, "author", "", "Comment author (default from config)")
	_ = commentCmd.MarkFlagRequired("comment")

	rootCmd.AddCommand(submitCmd, getCmd, updateCmd, commentCmd, deleteCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	typ, err := parseType(submitType)
	if err != nil {
		return err
	}
	priority, err := parsePriority(submitPriority)
	if err != nil {
		return err
	}
	ctxData, err := parseContext(submitContext)
	if err != nil {
		return err
	}

	id, err := fbStore.Submit(cmd.Context(), store.Submission{
		Type:        typ,
		Title:       submitTitle,
		Description: submitDescription,
		Priority:    priority,
		Tags:        submitTags,
		Context:     ctxData,
	})
	if err != nil {
		return fmt.Errorf("error submitting feedback: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, map[string]string{"id": id})
	}
	printf(cmd, "Feedback submitted with ID: %s\n", id)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	rec, err := fbStore.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, rec)
	}
	printf(cmd, "%s", ui.RenderRecord(styles(), rec))
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	flags := cmd.Flags()

	var patch store.Patch
	if flags.Changed("title") {
		patch.Title = &updateTitle
	}
	if flags.Changed("description") {
		patch.Description = &updateDescription
	}
	if flags.Changed("status") {
		status, err := parseStatus(updateStatus)
		if err != nil {
			return err
		}
		patch.Status = &status
	}
	if flags.Changed("priority") {
		priority, err := parsePriority(updatePriority)
		if err != nil {
			return err
		}
		patch.Priority = &priority
	}
	if flags.Changed("tags") {
		patch.Tags = append([]string{}, updateTags...)
	}
	if flags.Changed("context") {
		ctx, err := parseContext(updateContext)
		if err != nil {
			return err
		}
		if ctx == nil {
			ctx = map[string]any{}
		}
		patch.Context = ctx
	}
	if flags.Changed("expect-revision") {
		rev := updateRevision
		patch.ExpectRevision = &rev
	}

	if len(updateSet) > 0 {
		if patch.ExpectRevision != nil {
			return errors.New("--expect-revision cannot be combined with --set")
		}
		return runTrustedUpdate(cmd, id, patch)
	}

	if patch.Empty() {
		return errors.New("no updates specified")
	}
	rec, err := fbStore.Update(cmd.Context(), id, patch)
	if err != nil {
		return fmt.Errorf("error updating feedback %s: %w", id, err)
	}
	return reportUpdate(cmd, rec.ID, rec)
}

// runTrustedUpdate folds the typed flags and --set pairs into one
// write-through update.
func runTrustedUpdate(cmd *cobra.Command, id string, patch store.Patch) error {
	updates := make(map[string]any)
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Priority != nil {
		updates["priority"] = *patch.Priority
	}
	if patch.Tags != nil {
		updates["tags"] = patch.Tags
	}
	if patch.Context != nil {
		updates["context"] = patch.Context
	}
	for _, kv := range updateSet {
		key, value, err := parseAssignment(kv)
		if err != nil {
			return err
		}
		updates[key] = value
	}

	logger.Warn("trusted update bypasses validation", zap.String("id", id), zap.Int("fields", len(updates)))
	rec, err := fbStore.UpdateTrusted(cmd.Context(), id, updates)
	if err != nil {
		return fmt.Errorf("error updating feedback %s: %w", id, err)
	}
	return reportUpdate(cmd, id, rec)
}

func reportUpdate(cmd *cobra.Command, id string, rec *feedback.Record) error {
	if jsonOutput {
		return printJSON(cmd, rec)
	}
	printf(cmd, "Feedback %s updated successfully\n", id)
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	author := commentAuthor
	if author == "" {
		author = cfg.Defaults.Author
	}
	c, err := fbStore.AddComment(cmd.Context(), args[0], commentText, author)
	if err != nil {
		return fmt.Errorf("error adding comment to feedback %s: %w", args[0], err)
	}
	if jsonOutput {
		return printJSON(cmd, c)
	}
	printf(cmd, "Comment added to feedback %s\n", args[0])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := fbStore.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, map[string]string{"deleted": args[0]})
	}
	printf(cmd, "Feedback %s deleted\n", args[0])
	return nil
}
