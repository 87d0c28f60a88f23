package store

import (
	"context"
	"errors"
	"time"

	"agentfeedback/internal/feedback"

	"go.uber.org/zap"
)

// DefaultRetentionDays is the cleanup age used when none is configured.
const DefaultRetentionDays = 90

// CleanupOptions selects records for retention cleanup.
type CleanupOptions struct {
	// OlderThanDays removes records created strictly before now minus this many days.
	OlderThanDays int
	// Status, when set, restricts removal to records in that status.
	Status feedback.Status
	// DryRun counts eligible records without removing them.
	DryRun bool
}

// Cleanup removes records older than the retention window and returns how
// many were removed (or would be, for a dry run). Records whose created_at
// is missing or unparsable are never removed. Removal is permanent.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (int, error) {
	cutoff := s.now().Add(-time.Duration(opts.OlderThanDays) * 24 * time.Hour)

	entries, err := s.scan(ctx, feedback.Types())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		created, err := e.record.CreatedAt.Time()
		if err != nil {
			s.logger.Debug("keeping feedback with unparsable created_at",
				zap.String("id", e.record.ID), zap.String("created_at", string(e.record.CreatedAt)))
			continue
		}
		if !created.Before(cutoff) {
			continue
		}
		if opts.Status != "" && e.record.Status != opts.Status {
			continue
		}

		if opts.DryRun {
			removed++
			continue
		}
		if err := s.removeLocked(ctx, e.path); err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Error("failed to clean up feedback", zap.String("path", e.path), zap.Error(err))
			}
			continue
		}
		s.locations.Delete(e.record.ID)
		removed++
	}

	s.logger.Info("old feedback removed",
		zap.Int("count", removed),
		zap.Int("older_than_days", opts.OlderThanDays),
		zap.Bool("dry_run", opts.DryRun))
	return removed, nil
}

func (s *Store) removeLocked(ctx context.Context, path string) error {
	release, err := s.lockRecord(ctx, path)
	if err != nil {
		return err
	}
	defer release()
	return s.removeRecord(path)
}
