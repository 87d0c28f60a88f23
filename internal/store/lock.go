package store

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	lockRetryInterval = 20 * time.Millisecond
	// A lock file older than staleLockFactor×timeout belongs to a dead writer.
	staleLockFactor = 10
)

// lockRecord takes the advisory lock guarding the record at recordPath. The
// lock is a sibling file created with O_EXCL, which works across processes.
// The returned func releases it.
func (s *Store) lockRecord(ctx context.Context, recordPath string) (func(), error) {
	lockPath := strings.TrimSuffix(recordPath, recordExt) + lockExt
	deadline := time.Now().Add(s.lockTimeout)
	staleAfter := time.Duration(staleLockFactor) * s.lockTimeout

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339Nano))
			f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					s.logger.Warn("failed to release record lock", zap.String("path", lockPath), zap.Error(err))
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("%w: lock %s: %v", ErrPersistence, lockPath, err)
		}

		if s.breakStaleLock(lockPath, staleAfter) {
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

// breakStaleLock removes the lock at lockPath if it is older than staleAfter
// and reports whether it did. The lock is first renamed to a private name and
// its age checked again there, so a waiter that lost the race to another
// breaker cannot delete the fresh lock that breaker then took; such a lock
// is linked back into place.
func (s *Store) breakStaleLock(lockPath string, staleAfter time.Duration) bool {
	info, err := os.Stat(lockPath)
	if err != nil || time.Since(info.ModTime()) <= staleAfter {
		return false
	}

	claimed := lockPath + ".stale-" + uuid.NewString()
	if err := os.Rename(lockPath, claimed); err != nil {
		return false
	}

	info, err = os.Stat(claimed)
	if err == nil && time.Since(info.ModTime()) <= staleAfter {
		if err := os.Link(claimed, lockPath); err != nil {
			s.logger.Warn("failed to restore record lock", zap.String("path", lockPath), zap.Error(err))
		}
		os.Remove(claimed)
		return false
	}

	s.logger.Warn("breaking stale record lock", zap.String("path", lockPath))
	os.Remove(claimed)
	return true
}
