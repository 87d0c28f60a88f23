package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"agentfeedback/internal/feedback"
)

const displayTimeLayout = "2006-01-02 15:04"

// FormatTimestamp renders ts in local time, or verbatim if it does not parse.
func FormatTimestamp(ts feedback.Timestamp) string {
	t, err := ts.Time()
	if err != nil {
		return string(ts)
	}
	return t.Local().Format(displayTimeLayout)
}

func displayTitle(r *feedback.Record) string {
	if strings.TrimSpace(r.Title) == "" {
		return "(untitled)"
	}
	return r.Title
}

// RenderRecord renders one record with its context and comments.
func RenderRecord(s Styles, r *feedback.Record) string {
	var sb strings.Builder

	sb.WriteString(s.Title.Render(displayTitle(r)))
	sb.WriteString("\n")
	sb.WriteString(s.RenderDivider(48))
	sb.WriteString("\n")

	field := func(label, value string) {
		sb.WriteString(s.Label.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}
	field("ID", r.ID)
	field("Type", string(r.Type))
	field("Status", s.Status(r.Status))
	field("Priority", s.Priority(r.Priority))
	if len(r.Tags) > 0 {
		field("Tags", strings.Join(r.Tags, ", "))
	}
	field("Created", FormatTimestamp(r.CreatedAt))
	field("Updated", FormatTimestamp(r.UpdatedAt))
	if r.Revision > 0 {
		field("Revision", fmt.Sprintf("%d", r.Revision))
	}

	if r.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(s.Body.Render(r.Description))
		sb.WriteString("\n")
	}

	if len(r.Context) > 0 {
		sb.WriteString("\n")
		sb.WriteString(s.Bold.Render("Context"))
		sb.WriteString("\n")
		keys := make([]string, 0, len(r.Context))
		for k := range r.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("  ")
			sb.WriteString(s.Muted.Render(k + ":"))
			sb.WriteString(" ")
			sb.WriteString(contextValue(r.Context[k]))
			sb.WriteString("\n")
		}
	}

	if len(r.Comments) > 0 {
		sb.WriteString("\n")
		sb.WriteString(s.Bold.Render(fmt.Sprintf("Comments (%d)", len(r.Comments))))
		sb.WriteString("\n")
		for _, c := range r.Comments {
			head := s.Muted.Render(fmt.Sprintf("%s · %s", c.Author, FormatTimestamp(c.CreatedAt)))
			sb.WriteString(s.Comment.Render(head + "\n" + c.Content))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func contextValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// RenderList renders records as a table, newest first as given.
func RenderList(s Styles, records []*feedback.Record) string {
	if len(records) == 0 {
		return s.Muted.Render("No feedback found.") + "\n"
	}

	table := NewSimpleTable(fmt.Sprintf("Feedback (%d)", len(records)),
		[]string{"ID", "Type", "Priority", "Status", "Created", "Title"})
	for _, r := range records {
		table.AddRow(
			r.ID,
			string(r.Type),
			s.Priority(r.Priority),
			s.Status(r.Status),
			FormatTimestamp(r.CreatedAt),
			truncate(displayTitle(r), 60),
		)
	}
	return table.View(s)
}

// RenderStats renders counts per type, status and priority.
func RenderStats(s Styles, st *feedback.Stats) string {
	var sb strings.Builder
	sb.WriteString(s.Title.Render(fmt.Sprintf("Feedback statistics: %d total", st.Total)))
	sb.WriteString("\n\n")

	byType := NewSimpleTable("By type", []string{"Type", "Count"})
	for _, t := range feedback.Types() {
		byType.AddRow(string(t), fmt.Sprintf("%d", st.ByType[t]))
	}
	sb.WriteString(byType.View(s))
	sb.WriteString("\n")

	byStatus := NewSimpleTable("By status", []string{"Status", "Count"})
	for _, status := range feedback.Statuses() {
		byStatus.AddRow(s.Status(status), fmt.Sprintf("%d", st.ByStatus[status]))
	}
	sb.WriteString(byStatus.View(s))
	sb.WriteString("\n")

	byPriority := NewSimpleTable("By priority", []string{"Priority", "Count"})
	for _, p := range feedback.Priorities() {
		byPriority.AddRow(s.Priority(p), fmt.Sprintf("%d", st.ByPriority[p]))
	}
	sb.WriteString(byPriority.View(s))

	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
