// Package repository implements the domain repositories over a
// storage.Adapter. Repositories translate between domain types and stored
// rows and carry no business rules.
package repository

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/storage"
)

// Collection names.
const (
	productsCollection = "products"
	reviewsCollection  = "reviews"
	ordersCollection   = "orders"
	couponsCollection  = "coupons"
)

// Collections lists every collection the repositories use.
func Collections() []string {
	return []string{productsCollection, reviewsCollection, ordersCollection, couponsCollection}
}

// ErrIDRequired is returned by Update when called with a zero id.
var ErrIDRequired = apperr.Validation("id required for update")

// collection is a typed view of one adapter collection. R is the row type
// stored in it.
type collection[R any] struct {
	adapter  storage.Adapter
	name     string
	notFound error
}

func (c collection[R]) list(ctx context.Context) ([]R, error) {
	docs, err := c.adapter.Read(ctx, c.name)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", c.name)
	}
	rows := make([]R, 0, len(docs))
	for _, d := range docs {
		var r R
		if err := decodeDocument(d, &r); err != nil {
			return nil, errors.Wrapf(err, "decode %s", c.name)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func (c collection[R]) get(ctx context.Context, id int64) (*R, error) {
	doc, ok, err := c.adapter.Get(ctx, c.name, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s %d", c.name, id)
	}
	if !ok {
		return nil, c.notFound
	}
	return c.decode(doc)
}

// create stores row as a new document. row must encode without an id.
func (c collection[R]) create(ctx context.Context, row any) (*R, error) {
	doc, err := encodeDocument(row)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", c.name)
	}
	delete(doc, storage.IDField)

	stored, err := c.adapter.Upsert(ctx, c.name, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", c.name)
	}
	return c.decode(stored)
}

// update merges patch onto the existing document with the given id. patch
// must encode only the fields it changes.
func (c collection[R]) update(ctx context.Context, id int64, patch any) (*R, error) {
	if id == 0 {
		return nil, ErrIDRequired
	}
	if _, ok, err := c.adapter.Get(ctx, c.name, id); err != nil {
		return nil, errors.Wrapf(err, "get %s %d", c.name, id)
	} else if !ok {
		return nil, c.notFound
	}

	doc, err := encodeDocument(patch)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s patch", c.name)
	}
	doc.SetID(id)

	stored, err := c.adapter.Upsert(ctx, c.name, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "update %s %d", c.name, id)
	}
	return c.decode(stored)
}

// modify decodes the stored row, asks fn for a patch and merges it, all under
// the adapter's per-document serialization. An error from fn is returned
// unwrapped.
func (c collection[R]) modify(ctx context.Context, id int64, fn func(current *R) (patch any, err error)) (*R, error) {
	if id == 0 {
		return nil, ErrIDRequired
	}

	var fnErr error
	stored, ok, err := c.adapter.Modify(ctx, c.name, id, func(doc storage.Document) (storage.Document, error) {
		current, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		patch, err := fn(current)
		if err != nil {
			fnErr = err
			return nil, err
		}
		encoded, err := encodeDocument(patch)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s patch", c.name)
		}
		return encoded, nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "modify %s %d", c.name, id)
	}
	if !ok {
		return nil, c.notFound
	}
	return c.decode(stored)
}

func (c collection[R]) delete(ctx context.Context, id int64) (bool, error) {
	removed, err := c.adapter.Delete(ctx, c.name, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s %d", c.name, id)
	}
	return removed, nil
}

func (c collection[R]) decode(doc storage.Document) (*R, error) {
	var r R
	if err := decodeDocument(doc, &r); err != nil {
		return nil, errors.Wrapf(err, "decode %s", c.name)
	}
	return &r, nil
}

func encodeDocument(v any) (storage.Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc storage.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeDocument(doc storage.Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
