package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// TimestampLayout is fixed width so that timestamps written by this package
// sort lexically in chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Layouts accepted when reading timestamps. Offset-less forms are produced by
// older tooling and are interpreted in local time.
var timestampParseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is an ISO-8601 instant kept in its serialized form, so a record
// whose timestamp cannot be parsed still round-trips unchanged.
type Timestamp string

// NewTimestamp renders t in UTC using TimestampLayout.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(TimestampLayout))
}

// Time parses the timestamp.
func (ts Timestamp) Time() (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampParseLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, string(ts)); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, string(ts), time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", string(ts))
}

// Before orders timestamps chronologically. A timestamp that does not parse
// sorts before every one that does; two unparsable timestamps compare lexically.
func (ts Timestamp) Before(other Timestamp) bool {
	a, errA := ts.Time()
	b, errB := other.Time()
	switch {
	case errA == nil && errB == nil:
		return a.Before(b)
	case errA != nil && errB != nil:
		return ts < other
	default:
		return errA != nil
	}
}

// Comment is an append-only note attached to a record.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// Record is a single feedback item as persisted on disk.
type Record struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    Priority       `json:"priority"`
	Tags        []string       `json:"tags"`
	Context     map[string]any `json:"context"`
	Status      Status         `json:"status"`
	CreatedAt   Timestamp      `json:"created_at"`
	UpdatedAt   Timestamp      `json:"updated_at"`
	// Revision counts persisted mutations. Records written by older tooling have none.
	Revision int64     `json:"revision,omitempty"`
	Comments []Comment `json:"comments"`

	// Extra holds top-level fields this package does not model. They are
	// written back verbatim.
	Extra map[string]json.RawMessage `json:"-"`

	// Mismatched holds modeled fields whose stored value has the wrong JSON
	// shape, for example a number for priority. The typed field stays zero
	// and the raw value is written back in its place.
	Mismatched map[string]json.RawMessage `json:"-"`
}

// recordField binds a JSON key to the Record field that holds it.
type recordField struct {
	key       string
	ref       func(*Record) any
	omitEmpty func(*Record) bool
}

// recordFields lists the modeled keys in the order they are written.
var recordFields = []recordField{
	{key: "id", ref: func(r *Record) any { return &r.ID }},
	{key: "type", ref: func(r *Record) any { return &r.Type }},
	{key: "title", ref: func(r *Record) any { return &r.Title }},
	{key: "description", ref: func(r *Record) any { return &r.Description }},
	{key: "priority", ref: func(r *Record) any { return &r.Priority }},
	{key: "tags", ref: func(r *Record) any { return &r.Tags }},
	{key: "context", ref: func(r *Record) any { return &r.Context }},
	{key: "status", ref: func(r *Record) any { return &r.Status }},
	{key: "created_at", ref: func(r *Record) any { return &r.CreatedAt }},
	{key: "updated_at", ref: func(r *Record) any { return &r.UpdatedAt }},
	{key: "revision", ref: func(r *Record) any { return &r.Revision },
		omitEmpty: func(r *Record) bool { return r.Revision == 0 }},
	{key: "comments", ref: func(r *Record) any { return &r.Comments }},
}

var knownFields = func() map[string]*recordField {
	m := make(map[string]*recordField, len(recordFields))
	for i := range recordFields {
		m[recordFields[i].key] = &recordFields[i]
	}
	return m
}()

// IsKnownField reports whether key is bound to a Record field.
func IsKnownField(key string) bool {
	return knownFields[key] != nil
}

// HasMismatch reports whether the stored value of key had the wrong shape.
func (r *Record) HasMismatch(key string) bool {
	_, ok := r.Mismatched[key]
	return ok
}

// ClearMismatch drops the raw value of key so the typed field is written.
func (r *Record) ClearMismatch(key string) {
	delete(r.Mismatched, key)
}

// MarshalJSON writes the modeled fields in declaration order followed by
// any extra fields sorted by key.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value []byte) error {
		name, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
		return nil
	}

	for _, f := range recordFields {
		if raw, ok := r.Mismatched[f.key]; ok {
			if err := write(f.key, raw); err != nil {
				return nil, err
			}
			continue
		}
		if f.omitEmpty != nil && f.omitEmpty(&r) {
			continue
		}
		value, err := json.Marshal(f.ref(&r))
		if err != nil {
			return nil, err
		}
		if err := write(f.key, value); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if !IsKnownField(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := write(k, r.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes each modeled field on its own. A value of the wrong
// shape goes to Mismatched instead of failing the record; every other key is
// kept in Extra. Only a document that is not a JSON object is an error.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("feedback record must be a JSON object")
	}

	var out Record
	for k, v := range raw {
		f := knownFields[k]
		if f == nil {
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[k] = v
			continue
		}
		// Decode into scratch first so a partial decode never reaches out.
		var scratch Record
		if err := json.Unmarshal(v, f.ref(&scratch)); err != nil {
			if out.Mismatched == nil {
				out.Mismatched = make(map[string]json.RawMessage)
			}
			out.Mismatched[k] = v
			continue
		}
		_ = json.Unmarshal(v, f.ref(&out))
	}

	*r = out
	return nil
}

// HasTags reports whether every tag in want is present on the record.
func (r *Record) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(r.Tags))
	for _, t := range r.Tags {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
