package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentfeedback/internal/feedback"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup_Age(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	day := 24 * time.Hour

	old := submit(t, s, Submission{Type: feedback.TypeIssue, Title: "31 days"})
	clock.Advance(2 * day)
	recent := submit(t, s, Submission{Type: feedback.TypeQuestion, Title: "29 days"})
	undated := submit(t, s, Submission{Type: feedback.TypeOther, Title: "garbled"})

	// created_at cannot be changed through the store, so garble it on disk.
	path := filepath.Join(s.PartitionDir(feedback.TypeOther), undated+".json")
	rec, err := s.readRecord(path)
	require.NoError(t, err)
	rec.CreatedAt = "sometime last year"
	require.NoError(t, s.writeRecord(path, rec))

	clock.Advance(29 * day)

	removed, err := s.Cleanup(ctx, CleanupOptions{OlderThanDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, old)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, recent)
	assert.NoError(t, err)
	_, err = s.Get(ctx, undated)
	assert.NoError(t, err)

	// An unparsable created_at survives any window.
	removed, err = s.Cleanup(ctx, CleanupOptions{OlderThanDays: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = s.Get(ctx, undated)
	assert.NoError(t, err)
}

func TestCleanup_StatusAndDryRun(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	closedID := submit(t, s, Submission{Type: feedback.TypeIssue})
	openID := submit(t, s, Submission{Type: feedback.TypeIssue})
	closed := feedback.StatusClosed
	_, err := s.Update(ctx, closedID, Patch{Status: &closed})
	require.NoError(t, err)

	clock.Advance(100 * 24 * time.Hour)

	wouldRemove, err := s.Cleanup(ctx, CleanupOptions{OlderThanDays: 90, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, wouldRemove)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)

	removed, err := s.Cleanup(ctx, CleanupOptions{OlderThanDays: 90, Status: feedback.StatusClosed})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, closedID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, openID)
	assert.NoError(t, err)
}

func TestCleanup_SkipsLockedRecord(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, WithLockTimeout(30*time.Millisecond))
	id := submit(t, s, Submission{Type: feedback.TypeIssue})
	clock.Advance(10 * 24 * time.Hour)

	lock := filepath.Join(s.PartitionDir(feedback.TypeIssue), id+".lock")
	require.NoError(t, os.WriteFile(lock, []byte("held"), 0644))

	removed, err := s.Cleanup(ctx, CleanupOptions{OlderThanDays: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	_, err = s.Get(ctx, id)
	assert.NoError(t, err)
}
