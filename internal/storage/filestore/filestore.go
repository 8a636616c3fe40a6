// Package filestore implements storage.Adapter on top of one JSON file per
// collection.
//
// Writes to the same collection are serialized by a per-collection mutex and
// land through a temp file + rename, so a concurrent reader observes either
// the previous or the next complete file. The locks are process-local:
// separate processes sharing a directory do not coordinate.
package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/storage"
)

var _ storage.Adapter = (*Store)(nil)

// Store is a directory of JSON collection files.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data dir %s", dir)
	}
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Read returns every document in collection. A missing file is an empty
// collection; malformed content is an error.
func (s *Store) Read(ctx context.Context, collection string) ([]storage.Document, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load(collection)
}

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, collection string, id int64) (storage.Document, bool, error) {
	docs, err := s.Read(ctx, collection)
	if err != nil {
		return nil, false, err
	}
	idx, err := indexOf(docs, id)
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s/%d", collection, id)
	}
	if idx < 0 {
		return nil, false, nil
	}
	return docs[idx], true, nil
}

// Upsert inserts or merges doc under the collection write lock.
func (s *Store) Upsert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	doc = storage.Normalize(doc)

	var stored storage.Document
	err := s.withLock(collection, func() error {
		docs, err := s.load(collection)
		if err != nil {
			return err
		}

		id, err := doc.ID()
		if err != nil {
			return err
		}
		if id == 0 {
			next, err := storage.NextID(docs)
			if err != nil {
				return err
			}
			stored = doc.Clone()
			stored.SetID(next)
			docs = append(docs, stored)
		} else {
			idx, err := indexOf(docs, id)
			if err != nil {
				return err
			}
			if idx < 0 {
				stored = doc
				docs = append(docs, stored)
			} else {
				stored = storage.Merge(docs[idx], doc)
				docs[idx] = stored
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		return s.store(collection, docs)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upsert %s", collection)
	}
	return stored, nil
}

// Modify runs fn and merges its patch while holding the collection write
// lock, so concurrent read-modify-write cycles on one collection serialize.
func (s *Store) Modify(ctx context.Context, collection string, id int64, fn storage.ModifyFunc) (storage.Document, bool, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, false, err
	}

	var (
		stored storage.Document
		found  bool
	)
	err := s.withLock(collection, func() error {
		docs, err := s.load(collection)
		if err != nil {
			return err
		}
		idx, err := indexOf(docs, id)
		if err != nil {
			return err
		}
		if idx < 0 {
			return nil
		}
		found = true

		patch, err := fn(docs[idx].Clone())
		if err != nil {
			return err
		}
		patch = storage.Normalize(patch)
		patch.SetID(id)
		stored = storage.Merge(docs[idx], patch)
		docs[idx] = stored

		if err := ctx.Err(); err != nil {
			return err
		}
		return s.store(collection, docs)
	})
	if err != nil {
		return nil, found, errors.Wrapf(err, "modify %s/%d", collection, id)
	}
	return stored, found, nil
}

// Write replaces the collection with docs, assigning ids where missing.
func (s *Store) Write(ctx context.Context, collection string, docs []storage.Document) error {
	if err := storage.ValidateCollection(collection); err != nil {
		return err
	}
	normalized := make([]storage.Document, len(docs))
	for i, d := range docs {
		normalized[i] = storage.Normalize(d)
	}
	normalized, err := storage.AssignIDs(normalized)
	if err != nil {
		return errors.Wrapf(err, "write %s", collection)
	}
	return s.withLock(collection, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.store(collection, normalized)
	})
}

// Delete removes the document with the given id.
func (s *Store) Delete(ctx context.Context, collection string, id int64) (bool, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return false, err
	}

	var removed bool
	err := s.withLock(collection, func() error {
		docs, err := s.load(collection)
		if err != nil {
			return err
		}
		idx, err := indexOf(docs, id)
		if err != nil {
			return err
		}
		if idx < 0 {
			return nil
		}
		docs = append(docs[:idx], docs[idx+1:]...)
		if err := ctx.Err(); err != nil {
			return err
		}
		removed = true
		return s.store(collection, docs)
	})
	if err != nil {
		return false, errors.Wrapf(err, "delete %s/%d", collection, id)
	}
	return removed, nil
}

// Ping checks that the data directory is accessible.
func (s *Store) Ping(_ context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return errors.Wrap(err, "stat data dir")
	}
	if !fi.IsDir() {
		return errors.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// lock returns the write mutex for collection, creating it on first use.
func (s *Store) lock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

func (s *Store) withLock(collection string, fn func() error) error {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (s *Store) load(collection string) ([]storage.Document, error) {
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []storage.Document{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", collection)
	}
	docs, err := decodeCollection(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", collection)
	}
	return docs, nil
}

// store writes docs to a temp file in the data dir and renames it over the
// collection file. Callers must hold the collection lock.
func (s *Store) store(collection string, docs []storage.Document) error {
	data, err := encodeCollection(docs)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, s.path(collection)); err != nil {
		return errors.Wrapf(err, "replace %s", collection)
	}
	return nil
}

func indexOf(docs []storage.Document, id int64) (int, error) {
	for i, d := range docs {
		got, err := d.ID()
		if err != nil {
			return -1, err
		}
		if got == id {
			return i, nil
		}
	}
	return -1, nil
}
