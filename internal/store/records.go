package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"agentfeedback/internal/feedback"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Submission is the input to Submit.
type Submission struct {
	Type        feedback.Type
	Title       string
	Description string
	// Priority defaults to medium when empty or unknown.
	Priority feedback.Priority
	Tags     []string
	Context  map[string]any
}

// Submit creates a record and returns its id. An unknown type is stored as
// "other" and an unknown priority as "medium"; neither fails the call.
// On a persistence failure the returned id is "".
func (s *Store) Submit(ctx context.Context, sub Submission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t, substituted := feedback.TypeOrDefault(sub.Type)
	if substituted {
		s.logger.Warn("invalid feedback type, using other", zap.String("type", string(sub.Type)))
	}

	priority := sub.Priority
	if priority == "" {
		priority = feedback.PriorityMedium
	} else if p, substituted := feedback.PriorityOrDefault(priority); substituted {
		s.logger.Warn("invalid priority, using medium", zap.String("priority", string(sub.Priority)))
		priority = p
	}

	tags := sub.Tags
	if tags == nil {
		tags = []string{}
	}
	fields := sub.Context
	if fields == nil {
		fields = map[string]any{}
	}

	now := s.timestamp()
	rec := &feedback.Record{
		ID:          s.newID(),
		Type:        t,
		Title:       sub.Title,
		Description: sub.Description,
		Priority:    priority,
		Tags:        tags,
		Context:     fields,
		Status:      feedback.StatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
		Revision:    1,
		Comments:    []feedback.Comment{},
	}

	path := s.recordPath(t, rec.ID)
	if err := s.writeRecord(path, rec); err != nil {
		s.logger.Error("failed to submit feedback", zap.String("path", path), zap.Error(err))
		return "", err
	}

	s.locations.Set(rec.ID, t, cache.DefaultExpiration)
	s.logger.Info("feedback submitted", zap.String("id", rec.ID), zap.String("type", string(t)))
	return rec.ID, nil
}

// Get returns the record with the given id from whichever partition holds it.
// Unreadable or corrupt documents are logged and reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*feedback.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, path, err := s.locate(id)
	if err != nil {
		s.logger.Warn("feedback not found", zap.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec, err := s.readRecord(path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to read feedback", zap.String("id", id), zap.String("path", path), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// Patch is a validated partial update. Nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Status      *feedback.Status
	Priority    *feedback.Priority
	// Tags and Context replace the stored values when non-nil.
	Tags    []string
	Context map[string]any
	// ExpectRevision makes the update fail with ErrConflict unless the stored
	// revision matches.
	ExpectRevision *int64
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Tags == nil && p.Context == nil
}

// Validate checks status and priority against the closed sets.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidValue, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidValue, *p.Priority)
	}
	return nil
}

func (p Patch) apply(rec *feedback.Record) error {
	if p.ExpectRevision != nil && rec.Revision != *p.ExpectRevision {
		return fmt.Errorf("%w: have revision %d, expected %d", ErrConflict, rec.Revision, *p.ExpectRevision)
	}
	if p.Title != nil {
		rec.Title = *p.Title
		rec.ClearMismatch("title")
	}
	if p.Description != nil {
		rec.Description = *p.Description
		rec.ClearMismatch("description")
	}
	if p.Status != nil {
		rec.Status = *p.Status
		rec.ClearMismatch("status")
	}
	if p.Priority != nil {
		rec.Priority = *p.Priority
		rec.ClearMismatch("priority")
	}
	if p.Tags != nil {
		rec.Tags = append([]string(nil), p.Tags...)
		rec.ClearMismatch("tags")
	}
	if p.Context != nil {
		rec.Context = p.Context
		rec.ClearMismatch("context")
	}
	return nil
}

// Update applies a validated patch. Status and priority outside the closed
// sets are rejected with ErrInvalidValue before anything is read or written.
func (s *Store) Update(ctx context.Context, id string, p Patch) (*feedback.Record, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rec, err := s.mutate(ctx, id, p.apply)
	if err != nil {
		return nil, err
	}
	s.logger.Info("feedback updated", zap.String("id", id), zap.Int64("revision", rec.Revision))
	return rec, nil
}

// fieldsManagedByStore are never taken from an update payload.
var fieldsManagedByStore = map[string]bool{
	"id":         true,
	"created_at": true,
	"revision":   true,
}

// UpdateTrusted is the administrative override: every key in updates is
// written through as-is, except id, created_at and revision which are
// ignored. Keys the record does not model are kept as extra fields, and a
// value of the wrong shape for its field (for example a number for
// priority) is stored verbatim. Only a value that cannot be encoded as JSON
// fails with ErrInvalidValue, and then nothing is written.
//
// The record stays in the partition it was found in even if "type" changes.
func (s *Store) UpdateTrusted(ctx context.Context, id string, updates map[string]any) (*feedback.Record, error) {
	rec, err := s.mutate(ctx, id, func(rec *feedback.Record) error {
		current, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", ErrInvalidValue, id, err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(current, &doc); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrInvalidValue, id, err)
		}

		for key, value := range updates {
			if fieldsManagedByStore[key] {
				continue
			}
			raw, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
			}
			doc[key] = raw
		}

		merged, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		var next feedback.Record
		if err := json.Unmarshal(merged, &next); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		*rec = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("feedback updated (trusted)", zap.String("id", id), zap.Int("fields", len(updates)))
	return rec, nil
}

// AddComment appends a comment. An empty author becomes feedback.DefaultAuthor.
func (s *Store) AddComment(ctx context.Context, id, content, author string) (*feedback.Comment, error) {
	if author == "" {
		author = feedback.DefaultAuthor
	}
	comment := feedback.Comment{
		ID:        s.newID(),
		Author:    author,
		Content:   content,
		CreatedAt: s.timestamp(),
	}

	_, err := s.mutate(ctx, id, func(rec *feedback.Record) error {
		if rec.HasMismatch("comments") {
			return fmt.Errorf("%w: comments of %s are not a list", ErrInvalidValue, id)
		}
		rec.Comments = append(rec.Comments, comment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("comment added", zap.String("id", id), zap.String("comment_id", comment.ID))
	return &comment, nil
}

// Delete physically removes a record.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, path, err := s.locate(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	release, err := s.lockRecord(ctx, path)
	if err != nil {
		s.logger.Warn("cannot delete feedback", zap.String("id", id), zap.Error(err))
		return err
	}
	defer release()

	if err := s.removeRecord(path); err != nil {
		return err
	}
	s.locations.Delete(id)
	s.logger.Info("feedback deleted", zap.String("id", id))
	return nil
}

func (s *Store) removeRecord(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		s.logger.Error("failed to remove feedback", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: remove %s: %v", ErrPersistence, path, err)
	}
	return nil
}

// mutate runs a locked read-modify-write cycle on the record. fn may not
// change id or created_at; both are restored after it returns.
func (s *Store) mutate(ctx context.Context, id string, fn func(*feedback.Record) error) (*feedback.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, path, err := s.locate(id)
	if err != nil {
		s.logger.Warn("cannot update feedback: not found", zap.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	release, err := s.lockRecord(ctx, path)
	if err != nil {
		s.logger.Warn("cannot update feedback", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	defer release()

	rec, err := s.readRecord(path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("failed to read feedback", zap.String("path", path), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	origID, origCreated := rec.ID, rec.CreatedAt
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.ID, rec.CreatedAt = origID, origCreated
	rec.UpdatedAt = s.timestamp()
	rec.Revision++
	rec.ClearMismatch("updated_at")
	rec.ClearMismatch("revision")

	if err := s.writeRecord(path, rec); err != nil {
		s.logger.Error("failed to write feedback", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return rec, nil
}
