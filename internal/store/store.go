// Package store persists feedback records as one JSON document per record,
// partitioned into a subdirectory per feedback type:
//
//	<root>/issue/<id>.json
//	<root>/improvement/<id>.json
//	...
//
// Every operation runs to completion before returning. Read-modify-write
// operations take a per-record lock file so that concurrent writers, in this
// process or another, never silently overwrite each other.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentfeedback/internal/feedback"
	"agentfeedback/internal/security"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means no partition holds a readable record with the id.
	ErrNotFound = errors.New("feedback not found")
	// ErrPersistence wraps an underlying filesystem failure.
	ErrPersistence = errors.New("feedback persistence failure")
	// ErrMalformedRecord means a stored document could not be decoded.
	ErrMalformedRecord = errors.New("malformed feedback record")
	// ErrInvalidValue means an update carried a value the record cannot hold.
	ErrInvalidValue = errors.New("invalid feedback value")
	// ErrConflict means the record changed since the caller read it.
	ErrConflict = errors.New("feedback revision conflict")
	// ErrLocked means another writer held the record lock past the timeout.
	ErrLocked = errors.New("feedback record locked")
)

const (
	recordExt = ".json"
	lockExt   = ".lock"

	// DefaultLockTimeout bounds how long a mutation waits for a record lock.
	DefaultLockTimeout = 5 * time.Second
	// DefaultLocationCacheTTL is how long an id→partition hint is trusted.
	DefaultLocationCacheTTL = 10 * time.Minute
)

// Store is a directory-backed feedback record store.
type Store struct {
	root        string
	logger      *zap.Logger
	guard       security.Guard
	now         func() time.Time
	newID       func() string
	lockTimeout time.Duration
	cacheTTL    time.Duration
	locations   *cache.Cache
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPathGuard sets the guard consulted before the root, export outputs and
// import inputs are touched.
func WithPathGuard(g security.Guard) Option {
	return func(s *Store) {
		if g != nil {
			s.guard = g
		}
	}
}

// WithClock overrides the time source used for record timestamps and cleanup cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockTimeout sets how long mutations wait for a record lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLocationCacheTTL sets how long an id→partition hint is kept.
func WithLocationCacheTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// New opens the store at root, creating a subdirectory for every feedback type.
func New(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("feedback directory required")
	}

	s := &Store{
		logger:      zap.NewNop(),
		guard:       security.AllowAll{},
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		lockTimeout: DefaultLockTimeout,
		cacheTTL:    DefaultLocationCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feedback directory: %w", err)
	}
	if err := s.guard.Check(abs, security.OpWrite); err != nil {
		return nil, err
	}
	s.root = abs
	// No janitor goroutine; expired hints are dropped during scans.
	s.locations = cache.New(s.cacheTTL, 0)

	for _, t := range feedback.Types() {
		if err := os.MkdirAll(s.partitionDir(t), 0755); err != nil {
			s.logger.Error("failed to create partition", zap.String("path", s.partitionDir(t)), zap.Error(err))
			return nil, fmt.Errorf("%w: create partition %s: %v", ErrPersistence, t, err)
		}
	}

	s.logger.Debug("feedback store opened", zap.String("root", s.root))
	return s, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string {
	return s.root
}

// PartitionDir returns the directory holding records of type t.
func (s *Store) PartitionDir(t feedback.Type) string {
	return s.partitionDir(t)
}

func (s *Store) partitionDir(t feedback.Type) string {
	return filepath.Join(s.root, string(t))
}

func (s *Store) recordPath(t feedback.Type, id string) string {
	return filepath.Join(s.partitionDir(t), id+recordExt)
}

// validID rejects ids that cannot name a single file inside a partition.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

// IDFromFilename returns the record id named by a partition entry, or "" if
// the entry is not a record document.
func IDFromFilename(name string) string {
	if !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
		return ""
	}
	return strings.TrimSuffix(name, recordExt)
}

func (s *Store) timestamp() feedback.Timestamp {
	return feedback.NewTimestamp(s.now())
}

// readRecord loads the document at path.
func (s *Store) readRecord(path string) (*feedback.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, path, err)
	}

	var rec feedback.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, path, err)
	}
	return &rec, nil
}

// writeRecord replaces the document at path with rec.
func (s *Store) writeRecord(path string, rec *feedback.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrInvalidValue, rec.ID, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a hidden temp file in the target directory
// and renames it over path, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp in %s: %v", ErrPersistence, dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %v", ErrPersistence, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ErrPersistence, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, path, err)
	}
	return nil
}

// locate finds the partition holding id. A cached hint is verified before use.
func (s *Store) locate(id string) (feedback.Type, string, error) {
	if !validID(id) {
		return "", "", ErrNotFound
	}

	if v, ok := s.locations.Get(id); ok {
		t := v.(feedback.Type)
		path := s.recordPath(t, id)
		if _, err := os.Stat(path); err == nil {
			return t, path, nil
		}
		s.locations.Delete(id)
	}

	for _, t := range feedback.Types() {
		path := s.recordPath(t, id)
		_, err := os.Stat(path)
		if err == nil {
			s.locations.Set(id, t, cache.DefaultExpiration)
			return t, path, nil
		}
		if !os.IsNotExist(err) {
			s.logger.Error("failed to stat feedback", zap.String("path", path), zap.Error(err))
		}
	}
	return "", "", ErrNotFound
}
