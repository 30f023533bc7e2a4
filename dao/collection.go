package dao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/store"
)

// RawRecord is a Record whose document is left as JSON.
type RawRecord struct {
	ID      string          `json:"id"`
	Version store.Version   `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// Collection is the type-erased view of a DAO used by tooling that only
// knows entity types by name.
type Collection interface {
	Type() string
	UniqueField() string
	InsertJSON(ctx context.Context, doc []byte, opts ...InsertOption) (RawRecord, error)
	GetJSON(ctx context.Context, id string) (RawRecord, error)
	UpdateJSON(ctx context.Context, id string, patch []byte, opts ...UpdateOption) (store.Version, error)
	Remove(ctx context.Context, id string) error
	FindJSON(ctx context.Context, value string) (RawRecord, error)
}

var _ Collection = (*DAO[struct{}])(nil)

// InsertJSON decodes doc strictly into T and inserts it.
func (d *DAO[T]) InsertJSON(ctx context.Context, doc []byte, opts ...InsertOption) (RawRecord, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return RawRecord{}, fmt.Errorf("decode %s: %w", d.schema.Type, err)
	}
	rec, err := d.Insert(ctx, v, opts...)
	if err != nil {
		return RawRecord{}, err
	}
	return d.raw(rec)
}

// GetJSON is Get returning the stored JSON.
func (d *DAO[T]) GetJSON(ctx context.Context, id string) (RawRecord, error) {
	rec, err := d.Get(ctx, id)
	if err != nil {
		return RawRecord{}, err
	}
	return d.raw(rec)
}

// UpdateJSON decodes patch with the schema's DecodePatch and updates.
func (d *DAO[T]) UpdateJSON(ctx context.Context, id string, patch []byte, opts ...UpdateOption) (store.Version, error) {
	p, err := d.schema.DecodePatch(patch)
	if err != nil {
		return 0, fmt.Errorf("decode %s patch: %w", d.schema.Type, err)
	}
	return d.Update(ctx, id, p, opts...)
}

// FindJSON is FindByUnique returning the stored JSON.
func (d *DAO[T]) FindJSON(ctx context.Context, value string) (RawRecord, error) {
	rec, err := d.FindByUnique(ctx, value)
	if err != nil {
		return RawRecord{}, err
	}
	return d.raw(rec)
}

func (d *DAO[T]) raw(rec Record[T]) (RawRecord, error) {
	body, err := d.encode(rec.ID, rec.Doc)
	if err != nil {
		return RawRecord{}, dberr.Translate("get", d.Key(rec.ID), err)
	}
	return RawRecord{ID: rec.ID, Version: rec.Version, Doc: body}, nil
}
