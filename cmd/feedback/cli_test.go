package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentfeedback/internal/config"
	"agentfeedback/internal/feedback"
	"agentfeedback/internal/security"
	"agentfeedback/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitJSON(t *testing.T, env *cliEnv, args ...string) string {
	t.Helper()
	out, _, err := env.run(t, append([]string{"--json", "submit"}, args...)...)
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func getJSON(t *testing.T, env *cliEnv, id string) *feedback.Record {
	t.Helper()
	out, _, err := env.run(t, "--json", "get", id)
	require.NoError(t, err)
	var rec feedback.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	return &rec
}

func TestSubmitAndGet(t *testing.T) {
	env := newCLIEnv(t)

	id := submitJSON(t, env,
		"--type", "issue",
		"--title", "Crash on start",
		"--description", "nil map in loader",
		"--priority", "high",
		"--tags", "boot,crash",
		"--context", `{"file": "loader.go", "line": 42}`,
	)

	rec := getJSON(t, env, id)
	assert.Equal(t, feedback.TypeIssue, rec.Type)
	assert.Equal(t, "Crash on start", rec.Title)
	assert.Equal(t, feedback.PriorityHigh, rec.Priority)
	assert.Equal(t, feedback.StatusNew, rec.Status)
	assert.Equal(t, []string{"boot", "crash"}, rec.Tags)
	assert.Equal(t, float64(42), rec.Context["line"])

	_, err := os.Stat(filepath.Join(env.storeDir, "issue", id+".json"))
	assert.NoError(t, err)

	out, _, err := env.run(t, "get", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Crash on start")
	assert.Contains(t, out, "loader.go")

	out, _, err = env.run(t, "submit", "--type", "question", "--title", "Why?")
	require.NoError(t, err)
	assert.Contains(t, out, "Feedback submitted with ID: ")
}

func TestSubmit_Rejects(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "submit", "--type", "rant", "--title", "x")
	assert.ErrorContains(t, err, "invalid type")

	_, _, err = env.run(t, "submit", "--type", "issue", "--title", "x", "--priority", "urgent")
	assert.ErrorContains(t, err, "invalid priority")

	_, _, err = env.run(t, "submit", "--type", "issue", "--title", "x", "--context", "{not json")
	assert.ErrorContains(t, err, "--context")

	_, _, err = env.run(t, "submit", "--type", "issue")
	assert.ErrorContains(t, err, "title")
}

func TestGet_NotFound(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "get", "missing-id")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = env.run(t, "get", "../../etc/passwd")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestList(t *testing.T) {
	env := newCLIEnv(t)
	first := submitJSON(t, env, "--type", "issue", "--title", "first", "--tags", "a,b")
	time.Sleep(5 * time.Millisecond)
	second := submitJSON(t, env, "--type", "improvement", "--title", "second", "--tags", "a")

	out, _, err := env.run(t, "--json", "list")
	require.NoError(t, err)
	var all []*feedback.Record
	require.NoError(t, json.Unmarshal([]byte(out), &all))
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, first, all[1].ID)

	out, _, err = env.run(t, "--json", "list", "--tags", "a", "--tags", "b")
	require.NoError(t, err)
	var tagged []*feedback.Record
	require.NoError(t, json.Unmarshal([]byte(out), &tagged))
	require.Len(t, tagged, 1)
	assert.Equal(t, first, tagged[0].ID)

	out, _, err = env.run(t, "--json", "list", "--limit", "1")
	require.NoError(t, err)
	var limited []*feedback.Record
	require.NoError(t, json.Unmarshal([]byte(out), &limited))
	assert.Len(t, limited, 1)

	out, _, err = env.run(t, "--json", "list", "--type", "question")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	out, _, err = env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Feedback (2)")
	assert.Contains(t, out, "second")

	out, _, err = env.run(t, "list", "--status", "resolved")
	require.NoError(t, err)
	assert.Contains(t, out, "No feedback found.")

	_, _, err = env.run(t, "list", "--status", "done")
	assert.ErrorContains(t, err, "invalid status")
}

func TestUpdate(t *testing.T) {
	env := newCLIEnv(t)
	id := submitJSON(t, env, "--type", "issue", "--title", "before")

	out, _, err := env.run(t, "update", id, "--status", "in_progress", "--title", "after")
	require.NoError(t, err)
	assert.Contains(t, out, "updated successfully")

	rec := getJSON(t, env, id)
	assert.Equal(t, feedback.StatusInProgress, rec.Status)
	assert.Equal(t, "after", rec.Title)
	assert.Equal(t, int64(2), rec.Revision)

	_, _, err = env.run(t, "update", id, "--status", "done")
	assert.ErrorContains(t, err, "invalid status")

	_, _, err = env.run(t, "update", id)
	assert.ErrorContains(t, err, "no updates specified")

	_, _, err = env.run(t, "update", id, "--priority", "low", "--expect-revision", "1")
	assert.ErrorIs(t, err, store.ErrConflict)

	_, _, err = env.run(t, "update", id, "--priority", "low", "--expect-revision", "2")
	require.NoError(t, err)

	_, _, err = env.run(t, "update", "missing-id", "--status", "closed")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdate_Trusted(t *testing.T) {
	env := newCLIEnv(t)
	id := submitJSON(t, env, "--type", "issue", "--title", "t")

	out, _, err := env.run(t, "--json", "update", id,
		"--set", "owner=platform-team",
		"--set", `tags=["x","y"]`,
		"--set", "status=triaged",
		"--set", "id=hijack",
	)
	require.NoError(t, err)
	var rec feedback.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, feedback.Status("triaged"), rec.Status)
	assert.Equal(t, []string{"x", "y"}, rec.Tags)
	assert.JSONEq(t, `"platform-team"`, string(rec.Extra["owner"]))

	_, _, err = env.run(t, "update", id, "--set", "tags=7")
	assert.ErrorIs(t, err, store.ErrInvalidValue)

	_, _, err = env.run(t, "update", id, "--set", "=x")
	assert.ErrorContains(t, err, "key=value")

	_, _, err = env.run(t, "update", id, "--set", "a=b", "--expect-revision", "1")
	assert.ErrorContains(t, err, "--expect-revision")
}

func TestComment(t *testing.T) {
	env := newCLIEnv(t)
	id := submitJSON(t, env, "--type", "question", "--title", "q")

	out, _, err := env.run(t, "comment", id, "--comment", "first note")
	require.NoError(t, err)
	assert.Contains(t, out, "Comment added to feedback "+id)

	_, _, err = env.run(t, "comment", id, "--comment", "second", "--author", "alice")
	require.NoError(t, err)

	rec := getJSON(t, env, id)
	require.Len(t, rec.Comments, 2)
	assert.Equal(t, "test-author", rec.Comments[0].Author)
	assert.Equal(t, "first note", rec.Comments[0].Content)
	assert.Equal(t, "alice", rec.Comments[1].Author)

	_, _, err = env.run(t, "comment", "missing-id", "--comment", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStats(t *testing.T) {
	env := newCLIEnv(t)
	submitJSON(t, env, "--type", "issue", "--title", "a", "--priority", "critical")
	submitJSON(t, env, "--type", "issue", "--title", "b")
	submitJSON(t, env, "--type", "compliance", "--title", "c", "--priority", "low")

	out, _, err := env.run(t, "--json", "stats")
	require.NoError(t, err)
	var stats feedback.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByType[feedback.TypeIssue])
	assert.Equal(t, 0, stats.ByType[feedback.TypeOther])
	assert.Equal(t, 3, stats.ByStatus[feedback.StatusNew])
	assert.Equal(t, 1, stats.ByPriority[feedback.PriorityMedium])

	out, _, err = env.run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "3 total")
}

func TestExportImport(t *testing.T) {
	src := newCLIEnv(t)
	submitJSON(t, src, "--type", "issue", "--title", "exported one")
	submitJSON(t, src, "--type", "other", "--title", "exported two")

	exportPath := filepath.Join(src.root, "exports", "feedback.yaml")
	out, _, err := src.run(t, "export", "--output", exportPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 2 feedback items")

	_, _, err = src.run(t, "import", "--input", exportPath)
	assert.ErrorContains(t, err, "no feedback items imported")

	dst := newCLIEnv(t)
	shared := filepath.Join(dst.root, "feedback.yaml")
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(shared, data, 0644))

	out, _, err = dst.run(t, "import", "--input", shared)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 feedback items")

	out, _, err = dst.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "exported one")

	_, _, err = src.run(t, "export", "--output", filepath.Join(t.TempDir(), "outside.json"))
	assert.ErrorIs(t, err, security.ErrPathNotAllowed)
}

func TestCleanup(t *testing.T) {
	env := newCLIEnv(t)
	submitJSON(t, env, "--type", "issue", "--title", "fresh")

	old, err := store.New(env.storeDir, store.WithClock(func() time.Time {
		return time.Now().AddDate(0, 0, -120)
	}))
	require.NoError(t, err)
	oldID, err := old.Submit(context.Background(), store.Submission{Type: feedback.TypeOther, Title: "stale"})
	require.NoError(t, err)

	out, _, err := env.run(t, "cleanup", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would remove 1")
	getJSON(t, env, oldID)

	out, _, err = env.run(t, "cleanup", "--days", "90", "--status", "resolved")
	require.NoError(t, err)
	assert.Contains(t, out, "No feedback items removed")

	out, _, err = env.run(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 old feedback items")

	_, _, err = env.run(t, "get", oldID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	out, _, err = env.run(t, "cleanup")
	require.NoError(t, err, "removing nothing is still success")
	assert.Contains(t, out, "No feedback items removed")

	_, _, err = env.run(t, "cleanup", "--days", "-1")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	env := newCLIEnv(t)
	id := submitJSON(t, env, "--type", "improvement", "--title", "gone soon")

	out, _, err := env.run(t, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, _, err = env.run(t, "get", id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = env.run(t, "delete", id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDirFlagOverridesConfig(t *testing.T) {
	env := newCLIEnv(t)
	other := filepath.Join(env.root, "elsewhere")

	out, _, err := env.run(t, "--json", "--dir", other, "submit", "--type", "other", "--title", "moved")
	require.NoError(t, err)
	var resp map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	_, err = os.Stat(filepath.Join(other, "other", resp["id"]+".json"))
	assert.NoError(t, err)
}

func TestStoreOutsideAllowedAreas(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "--dir", t.TempDir(), "stats")
	assert.ErrorIs(t, err, security.ErrPathNotAllowed)
}

func TestInvalidConfig(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte("defaults:\n  list_limit: 0\n"), 0644))

	_, _, err := env.run(t, "stats")
	assert.ErrorContains(t, err, "list_limit")
}

func TestVerboseLogsToStderr(t *testing.T) {
	env := newCLIEnv(t)
	_, stderr, err := env.run(t, "--verbose", "stats")
	require.NoError(t, err)
	assert.Contains(t, stderr, "store opened")
}

func TestLogFileClosedAfterFailedCommand(t *testing.T) {
	env := newCLIEnv(t)
	c, err := config.Load(env.cfgPath)
	require.NoError(t, err)
	c.Logging.Level = "warn"
	c.Logging.File = filepath.Join(env.root, "logs", "feedback.log")
	require.NoError(t, c.Save(env.cfgPath))

	_, _, err = env.run(t, "get", "missing-id")
	require.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, logs, "log sinks should be closed after a failed command")

	data, err := os.ReadFile(c.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "feedback not found")
}

func TestWatch(t *testing.T) {
	env := newCLIEnv(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := env.run(t, "--json", "watch", "--count", "1", "--debounce", "30ms")
		done <- result{out, err}
	}()

	writer, err := store.New(env.storeDir)
	require.NoError(t, err)

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case res := <-done:
			require.NoError(t, res.err)
			line := strings.TrimSpace(res.out)
			var ev map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &ev))
			assert.Equal(t, "created", ev["kind"])
			assert.Equal(t, "issue", ev["type"])
			return
		case <-tick.C:
			_, err := writer.Submit(context.Background(), store.Submission{Type: feedback.TypeIssue, Title: "ping"})
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("watch did not report a change")
		}
	}
}
