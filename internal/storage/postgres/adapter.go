// Package postgres implements storage.Adapter on a PostgreSQL document table.
//
// Every collection lives in the shared documents table as JSONB bodies.
// Shallow merges are delegated to the jsonb || operator and id allocation to
// the collection_ids counter row, so concurrent writers rely on PostgreSQL's
// own row locking rather than any in-process coordination.
package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/storage"
)

const (
	readSQL = `SELECT body FROM documents WHERE collection = $1 ORDER BY id`

	getSQL = `SELECT body FROM documents WHERE collection = $1 AND id = $2`

	nextIDSQL = `INSERT INTO collection_ids (collection, last_id) VALUES ($1, 1)
		ON CONFLICT (collection) DO UPDATE SET last_id = collection_ids.last_id + 1
		RETURNING last_id`

	bumpIDSQL = `INSERT INTO collection_ids (collection, last_id) VALUES ($1, $2)
		ON CONFLICT (collection) DO UPDATE SET last_id = GREATEST(collection_ids.last_id, EXCLUDED.last_id)`

	upsertSQL = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET body = documents.body || EXCLUDED.body
		RETURNING body`

	lockSQL = `SELECT body FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`

	mergeSQL = `UPDATE documents SET body = body || $3::jsonb WHERE collection = $1 AND id = $2
		RETURNING body`

	insertSQL = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`

	clearSQL = `DELETE FROM documents WHERE collection = $1`

	deleteSQL = `DELETE FROM documents WHERE collection = $1 AND id = $2`
)

var _ storage.Adapter = (*Adapter)(nil)

// Adapter is a storage.Adapter backed by a pgx connection pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// NewAdapter returns an Adapter that uses the given pool.
func NewAdapter(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Read returns all documents of collection ordered by id.
func (a *Adapter) Read(ctx context.Context, collection string) ([]storage.Document, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx, readSQL, collection)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", collection)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", collection)
	}

	docs := make([]storage.Document, 0, len(bodies))
	for _, body := range bodies {
		d, err := decodeBody(body)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", collection)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Get returns the document with the given id.
func (a *Adapter) Get(ctx context.Context, collection string, id int64) (storage.Document, bool, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, false, err
	}

	var body []byte
	if err := a.pool.QueryRow(ctx, getSQL, collection, id).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "get %s/%d", collection, id)
	}

	d, err := decodeBody(body)
	if err != nil {
		return nil, false, errors.Wrapf(err, "parse %s/%d", collection, id)
	}
	return d, true, nil
}

// Upsert allocates an id when doc has none, then inserts or merges it.
func (a *Adapter) Upsert(ctx context.Context, collection string, doc storage.Document) (storage.Document, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	doc = storage.Normalize(doc)

	var stored storage.Document
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		id, err := doc.ID()
		if err != nil {
			return err
		}
		if id == 0 {
			if err := tx.QueryRow(ctx, nextIDSQL, collection).Scan(&id); err != nil {
				return errors.Wrap(err, "allocate id")
			}
			doc = doc.Clone()
			doc.SetID(id)
		} else if _, err := tx.Exec(ctx, bumpIDSQL, collection, id); err != nil {
			return errors.Wrap(err, "bump id counter")
		}

		body, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "encode document")
		}

		var out []byte
		if err := tx.QueryRow(ctx, upsertSQL, collection, id, body).Scan(&out); err != nil {
			return errors.Wrap(err, "upsert document")
		}
		stored, err = decodeBody(out)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "upsert %s", collection)
	}
	return stored, nil
}

// Modify locks the row with SELECT ... FOR UPDATE, runs fn on its body and
// merges the patch in the same transaction.
func (a *Adapter) Modify(ctx context.Context, collection string, id int64, fn storage.ModifyFunc) (storage.Document, bool, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, false, err
	}

	var (
		stored storage.Document
		found  bool
	)
	err := pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		var body []byte
		if err := tx.QueryRow(ctx, lockSQL, collection, id).Scan(&body); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return errors.Wrap(err, "lock document")
		}
		found = true

		current, err := decodeBody(body)
		if err != nil {
			return err
		}
		patch, err := fn(current)
		if err != nil {
			return err
		}
		patch = storage.Normalize(patch)
		patch.SetID(id)
		encoded, err := json.Marshal(patch)
		if err != nil {
			return errors.Wrap(err, "encode patch")
		}

		var out []byte
		if err := tx.QueryRow(ctx, mergeSQL, collection, id, encoded).Scan(&out); err != nil {
			return errors.Wrap(err, "merge document")
		}
		stored, err = decodeBody(out)
		return err
	})
	if err != nil {
		return nil, found, errors.Wrapf(err, "modify %s/%d", collection, id)
	}
	return stored, found, nil
}

// Write replaces collection with docs in a single transaction.
func (a *Adapter) Write(ctx context.Context, collection string, docs []storage.Document) error {
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

	err = pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, clearSQL, collection); err != nil {
			return errors.Wrap(err, "clear collection")
		}

		var maxID int64
		batch := &pgx.Batch{}
		for _, d := range normalized {
			id, err := d.ID()
			if err != nil {
				return err
			}
			body, err := json.Marshal(d)
			if err != nil {
				return errors.Wrapf(err, "encode document %d", id)
			}
			batch.Queue(insertSQL, collection, id, body)
			maxID = max(maxID, id)
		}
		if maxID > 0 {
			batch.Queue(bumpIDSQL, collection, maxID)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "insert documents")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "write %s", collection)
	}
	return nil
}

// Delete removes the document with the given id.
func (a *Adapter) Delete(ctx context.Context, collection string, id int64) (bool, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return false, err
	}

	tag, err := a.pool.Exec(ctx, deleteSQL, collection, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s/%d", collection, id)
	}
	return tag.RowsAffected() > 0, nil
}

// Ping checks database connectivity.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func decodeBody(body []byte) (storage.Document, error) {
	var d storage.Document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	return storage.Normalize(d), nil
}
