package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentfeedback/internal/feedback"
	"agentfeedback/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T) (*store.Store, *Watcher) {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	w, err := New(s, WithDebounce(40*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return s, w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Event{}
	}
}

func TestWatcher_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s, w := startWatcher(t)
	assert.True(t, w.IsWatching())
	assert.Len(t, w.WatchedDirs(), len(feedback.Types()))

	id, err := s.Submit(ctx, store.Submission{Type: feedback.TypeQuestion, Title: "why?"})
	require.NoError(t, err)

	ev := nextEvent(t, w)
	assert.Equal(t, KindCreated, ev.Kind)
	assert.Equal(t, feedback.TypeQuestion, ev.Type)
	assert.Equal(t, id, ev.ID)
	assert.Equal(t, filepath.Join(s.PartitionDir(feedback.TypeQuestion), id+".json"), ev.Path)

	_, err = s.AddComment(ctx, id, "because", "bob")
	require.NoError(t, err)
	ev = nextEvent(t, w)
	assert.Equal(t, KindUpdated, ev.Kind)
	assert.Equal(t, id, ev.ID)

	require.NoError(t, s.Delete(ctx, id))
	ev = nextEvent(t, w)
	assert.Equal(t, KindRemoved, ev.Kind)
	assert.Equal(t, id, ev.ID)

	stats := w.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, KindRemoved, stats.LastEventKind)
}

func TestWatcher_ExistingRecordIsUpdate(t *testing.T) {
	ctx := context.Background()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	id, err := s.Submit(ctx, store.Submission{Type: feedback.TypeIssue, Title: "before watch"})
	require.NoError(t, err)

	w, err := New(s, WithDebounce(40*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	status := feedback.StatusResolved
	_, err = s.Update(ctx, id, store.Patch{Status: &status})
	require.NoError(t, err)

	ev := nextEvent(t, w)
	assert.Equal(t, KindUpdated, ev.Kind)
	assert.Equal(t, feedback.TypeIssue, ev.Type)
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	s, w := startWatcher(t)
	dir := s.PartitionDir(feedback.TypeOther)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc.lock"), []byte("1"), 0644))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
	assert.Zero(t, w.Stats().Created)
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	_, w := startWatcher(t)
	w.Stop()
	w.Stop()

	_, ok := <-w.Events()
	assert.False(t, ok)
	assert.False(t, w.IsWatching())
}

func TestWatcher_ContextCancel(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	w, err := New(s)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("event loop did not exit on cancel")
	}
	w.Stop()
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	w, err := New(s)
	require.NoError(t, err)

	w.Stop()
	_, ok := <-w.Events()
	assert.False(t, ok)
}
