package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"agentfeedback/internal/feedback"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// entry is a record found during a partition scan.
type entry struct {
	partition feedback.Type
	path      string
	record    *feedback.Record
}

// scan reads every record in the given partitions. Partitions are read
// concurrently and the results are concatenated in the order of types.
// Unreadable partitions and malformed documents are logged and skipped.
func (s *Store) scan(ctx context.Context, types []feedback.Type) ([]entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.locations.DeleteExpired()
	results := make([][]entry, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			found, err := s.scanPartition(gctx, t)
			results[i] = found
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []entry
	for _, found := range results {
		all = append(all, found...)
	}
	return all, nil
}

func (s *Store) scanPartition(ctx context.Context, t feedback.Type) ([]entry, error) {
	dir := s.partitionDir(t)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read partition", zap.String("path", dir), zap.Error(err))
		}
		return nil, nil
	}

	found := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() || IDFromFilename(de.Name()) == "" {
			continue
		}

		path := filepath.Join(dir, de.Name())
		rec, err := s.readRecord(path)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Error("skipping unreadable feedback", zap.String("path", path), zap.Error(err))
			}
			continue
		}
		found = append(found, entry{partition: t, path: path, record: rec})
	}
	return found, nil
}

// partitionsFor resolves the partitions a type filter selects. An unknown
// type falls back to every partition.
func (s *Store) partitionsFor(t feedback.Type) []feedback.Type {
	if t == "" {
		return feedback.Types()
	}
	if !t.Valid() {
		s.logger.Warn("invalid feedback type, searching all types", zap.String("type", string(t)))
		return feedback.Types()
	}
	return []feedback.Type{t}
}

// List returns matching records, newest first, truncated to the filter limit.
// Every selected partition is scanned in full before sorting, so the result
// is the globally newest set of matches.
func (s *Store) List(ctx context.Context, f feedback.Filter) ([]*feedback.Record, error) {
	entries, err := s.scan(ctx, s.partitionsFor(f.Type))
	if err != nil {
		return nil, err
	}

	out := make([]*feedback.Record, 0, len(entries))
	for _, e := range entries {
		if f.Matches(e.record) {
			out = append(out, e.record)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[j].CreatedAt.Before(out[i].CreatedAt)
	})

	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats counts every record once by partition, status and priority.
func (s *Store) Stats(ctx context.Context) (*feedback.Stats, error) {
	entries, err := s.scan(ctx, feedback.Types())
	if err != nil {
		return nil, err
	}

	stats := feedback.NewStats()
	for _, e := range entries {
		stats.Count(e.partition, e.record)
	}
	return stats, nil
}
