package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentfeedback/internal/feedback"

	"github.com/spf13/cobra"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func parseType(v string) (feedback.Type, error) {
	if v == "" {
		return "", nil
	}
	t := feedback.Type(v)
	if !t.Valid() {
		return "", fmt.Errorf("invalid type %q (valid: %s)", v, strings.Join(feedback.TypeNames(), ", "))
	}
	return t, nil
}

func parseStatus(v string) (feedback.Status, error) {
	if v == "" {
		return "", nil
	}
	s := feedback.Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q (valid: %s)", v, strings.Join(feedback.StatusNames(), ", "))
	}
	return s, nil
}

func parsePriority(v string) (feedback.Priority, error) {
	if v == "" {
		return "", nil
	}
	p := feedback.Priority(v)
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q (valid: %s)", v, strings.Join(feedback.PriorityNames(), ", "))
	}
	return p, nil
}

// parseContext decodes a --context flag, which must be a JSON object.
func parseContext(v string) (map[string]any, error) {
	if v == "" {
		return nil, nil
	}
	var ctx map[string]any
	if err := json.Unmarshal([]byte(v), &ctx); err != nil {
		return nil, fmt.Errorf("invalid JSON for --context: %w", err)
	}
	return ctx, nil
}

// parseAssignment splits a --set key=value pair. Values that parse as JSON
// keep their JSON type; anything else is a string.
func parseAssignment(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return key, raw, nil
	}
	return key, v, nil
}
