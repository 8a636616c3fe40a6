package filestore

import (
	"bytes"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/storage"
)

// decodeCollection parses a JSON array of objects. Blank input is an empty
// collection.
func decodeCollection(data []byte) ([]storage.Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []storage.Document{}, nil
	}

	docs := make([]storage.Document, 0)
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Array {
		return nil, errors.New("collection must be a JSON array")
	}
	err := d.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			return errors.Errorf("collection element %d is not an object", len(docs))
		}
		doc := make(storage.Document)
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrapf(err, "field %q", key)
			}
			doc[storage.SnakeCase(string(key))] = json.RawMessage(bytes.Clone(raw))
			return nil
		}); err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode collection")
	}
	return docs, nil
}

// encodeCollection serializes docs as a JSON array, one object per document
// with "id" first and the remaining keys sorted.
func encodeCollection(docs []storage.Document) ([]byte, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ArrStart()
	for i, doc := range docs {
		e.ObjStart()
		for _, k := range doc.Keys() {
			v := doc[k]
			if !json.Valid(v) {
				return nil, errors.Errorf("document %d: field %q holds invalid JSON", i, k)
			}
			e.FieldStart(storage.SnakeCase(k))
			e.Raw(v)
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	return bytes.Clone(e.Bytes()), nil
}
