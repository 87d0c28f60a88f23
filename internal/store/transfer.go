package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentfeedback/internal/feedback"
	"agentfeedback/internal/security"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ExportLimit caps the number of records written by Export.
const ExportLimit = 1000

// ExportDocument is the on-disk shape shared by Export and Import.
type ExportDocument struct {
	ExportedAt feedback.Timestamp `json:"exported_at"`
	Total      int                `json:"total"`
	Feedback   []*feedback.Record `json:"feedback"`
}

// ExportFilter narrows an export. A non-positive Limit means ExportLimit.
type ExportFilter struct {
	Type   feedback.Type
	Status feedback.Status
	Limit  int
}

// importDocument defers record decoding so one bad entry does not reject the file.
type importDocument struct {
	Feedback []json.RawMessage `json:"feedback"`
}

// isYAML selects the YAML codec for .yaml and .yml paths.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// encodeDocument renders v as indented JSON, or as YAML for YAML paths. The
// YAML form is produced from the JSON form so both carry the same keys.
func encodeDocument(path string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil || !isYAML(path) {
		return data, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

// decodeDocument parses JSON, or YAML for YAML paths, into v.
func decodeDocument(path string, data []byte, v any) error {
	if !isYAML(path) {
		return json.Unmarshal(data, v)
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	converted, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	return json.Unmarshal(converted, v)
}

// Export writes a point-in-time snapshot of up to f.Limit matching records,
// newest first, to output and returns how many were written.
func (s *Store) Export(ctx context.Context, output string, f ExportFilter) (int, error) {
	if err := s.guard.Check(output, security.OpWrite); err != nil {
		s.logger.Error("export path rejected", zap.String("path", output), zap.Error(err))
		return 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = ExportLimit
	}
	records, err := s.List(ctx, feedback.Filter{Type: f.Type, Status: f.Status, Limit: limit})
	if err != nil {
		return 0, err
	}

	doc := ExportDocument{
		ExportedAt: s.timestamp(),
		Total:      len(records),
		Feedback:   records,
	}
	data, err := encodeDocument(output, doc)
	if err != nil {
		s.logger.Error("failed to encode export", zap.Error(err))
		return 0, fmt.Errorf("%w: encode export: %v", ErrPersistence, err)
	}

	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			s.logger.Error("failed to create export directory", zap.String("path", dir), zap.Error(err))
			return 0, fmt.Errorf("%w: create %s: %v", ErrPersistence, dir, err)
		}
	}
	if err := writeFileAtomic(output, data); err != nil {
		s.logger.Error("failed to export feedback", zap.String("path", output), zap.Error(err))
		return 0, err
	}

	s.logger.Info("feedback exported", zap.String("path", output), zap.Int("count", len(records)))
	return len(records), nil
}

// Import adds the records of an export document, each persisted verbatim.
// Entries without a string id and type, with an unknown type, or whose id
// already exists anywhere in the store are skipped; existing records are
// never modified.
func (s *Store) Import(ctx context.Context, input string) (int, error) {
	if err := s.guard.Check(input, security.OpRead); err != nil {
		s.logger.Error("import path rejected", zap.String("path", input), zap.Error(err))
		return 0, err
	}

	data, err := os.ReadFile(input)
	if err != nil {
		s.logger.Error("failed to read import", zap.String("path", input), zap.Error(err))
		return 0, fmt.Errorf("%w: read %s: %v", ErrPersistence, input, err)
	}

	var doc importDocument
	if err := decodeDocument(input, data, &doc); err != nil {
		s.logger.Error("failed to parse import", zap.String("path", input), zap.Error(err))
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, input, err)
	}

	imported := 0
	for i, raw := range doc.Feedback {
		if err := ctx.Err(); err != nil {
			return imported, err
		}

		id, typ, ok := importKey(raw)
		if !ok {
			s.logger.Warn("skipping feedback without id or type", zap.Int("index", i))
			continue
		}
		if !validID(id) || !typ.Valid() {
			s.logger.Warn("skipping feedback with unusable id or type",
				zap.String("id", id), zap.String("type", string(typ)))
			continue
		}
		if _, _, err := s.locate(id); err == nil {
			s.logger.Warn("skipping existing feedback", zap.String("id", id))
			continue
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			s.logger.Warn("skipping malformed feedback", zap.Int("index", i), zap.Error(err))
			continue
		}
		path := s.recordPath(typ, id)
		if err := writeFileAtomic(path, pretty.Bytes()); err != nil {
			s.logger.Error("failed to import feedback", zap.String("id", id), zap.Error(err))
			continue
		}
		s.locations.Set(id, typ, cache.DefaultExpiration)
		imported++
	}

	s.logger.Info("feedback imported", zap.String("path", input), zap.Int("count", imported))
	return imported, nil
}

// importKey reads the id and type of an import entry without decoding the
// rest of it. ok is false unless both are non-empty strings.
func importKey(raw json.RawMessage) (string, feedback.Type, bool) {
	var key struct {
		ID   json.RawMessage `json:"id"`
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return "", "", false
	}
	var id, typ string
	if json.Unmarshal(key.ID, &id) != nil || json.Unmarshal(key.Type, &typ) != nil {
		return "", "", false
	}
	if id == "" || typ == "" {
		return "", "", false
	}
	return id, feedback.Type(typ), true
}
