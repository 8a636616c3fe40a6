// Package storage defines the collection storage contract shared by every
// backend, along with the Document representation they exchange.
//
// A Document is a flat map of snake_case field names to raw JSON values.
// Backends never interpret fields other than "id"; typed translation is the
// job of the repository layer.
package storage

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// IDField is the document key holding the canonical int64 identifier.
const IDField = "id"

// ErrInvalidCollection is returned for collection names outside [a-z0-9_].
var ErrInvalidCollection = errors.New("invalid collection name")

// Adapter is a uniform storage contract over named collections of documents.
type Adapter interface {
	// Read returns every document in the collection. A collection that does
	// not exist yields an empty slice and no error.
	Read(ctx context.Context, collection string) ([]Document, error)
	// Get returns the document with the given id. The bool is false when no
	// such document exists.
	Get(ctx context.Context, collection string, id int64) (Document, bool, error)
	// Upsert stores doc. A missing or zero id is assigned as max(id)+1; an
	// existing id is shallow-merged with doc's fields winning; an unknown id
	// is appended. It returns the stored document.
	Upsert(ctx context.Context, collection string, doc Document) (Document, error)
	// Modify calls fn with the current document under the id and merges the
	// patch it returns, with no other write to that document in between. The
	// bool is false, and fn is not called, when no such document exists. An
	// error from fn leaves the document unchanged.
	Modify(ctx context.Context, collection string, id int64, fn ModifyFunc) (Document, bool, error)
	// Write replaces the whole collection with docs.
	Write(ctx context.Context, collection string, docs []Document) error
	// Delete removes the document with the given id, reporting whether one
	// was removed.
	Delete(ctx context.Context, collection string, id int64) (bool, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ModifyFunc computes a patch from the current document. It must not retain
// current.
type ModifyFunc func(current Document) (patch Document, err error)

var collectionRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateCollection checks that name is usable as a collection name.
func ValidateCollection(name string) error {
	if !collectionRe.MatchString(name) {
		return errors.Wrapf(ErrInvalidCollection, "%q", name)
	}
	return nil
}

// Document is a stored record: snake_case keys to raw JSON values.
type Document map[string]json.RawMessage

// ID returns the document identifier, or 0 when the id is absent or null.
func (d Document) ID() (int64, error) {
	raw, ok := d[IDField]
	if !ok || len(raw) == 0 {
		return 0, nil
	}
	dec := jx.DecodeBytes(raw)
	switch dec.Next() {
	case jx.Null:
		return 0, nil
	case jx.Number:
		id, err := dec.Int64()
		if err != nil {
			return 0, errors.Wrap(err, "decode id")
		}
		return id, nil
	default:
		return 0, errors.Errorf("id must be an integer, got %s", raw)
	}
}

// SetID stores id in the document.
func (d Document) SetID(id int64) {
	d[IDField] = json.RawMessage(strconv.AppendInt(nil, id, 10))
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns base with every field of patch applied on top.
func Merge(base, patch Document) Document {
	out := base.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Keys returns the document keys with "id" first and the rest sorted, the
// order backends use when encoding.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		if k != IDField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := d[IDField]; ok {
		keys = append([]string{IDField}, keys...)
	}
	return keys
}

// Normalize returns a copy of d with every key converted to snake_case.
// Backends apply it on both read and write so that storage never mixes
// casing conventions.
func Normalize(d Document) Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[SnakeCase(k)] = v
	}
	return out
}

// SnakeCase converts camelCase or PascalCase keys to snake_case. Keys that
// are already snake_case are returned unchanged.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NextID returns max(id)+1 over docs, or 1 when docs is empty.
func NextID(docs []Document) (int64, error) {
	var maxID int64
	for _, d := range docs {
		id, err := d.ID()
		if err != nil {
			return 0, err
		}
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1, nil
}

// AssignIDs returns docs with every missing or zero id replaced by the next
// free id, continuing from the highest id present.
func AssignIDs(docs []Document) ([]Document, error) {
	next, err := NextID(docs)
	if err != nil {
		return nil, err
	}
	out := make([]Document, len(docs))
	for i, d := range docs {
		id, err := d.ID()
		if err != nil {
			return nil, err
		}
		if id == 0 {
			d = d.Clone()
			d.SetID(next)
			next++
		}
		out[i] = d
	}
	return out, nil
}
