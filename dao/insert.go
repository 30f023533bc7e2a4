package dao

import (
	"context"

	"github.com/jacentio/refguard/dberr"
)

// Insert stores doc under a new id.
//
// The unique value is reserved first; dberr.ErrDuplicateUnique means another
// entity holds it and nothing was written. If the entity write fails after
// the reservation, the reservation is released and the entity write error is
// returned.
func (d *DAO[T]) Insert(ctx context.Context, doc T, opts ...InsertOption) (Record[T], error) {
	var o insertOptions
	for _, opt := range opts {
		opt(&o)
	}
	id := o.id
	if id == "" {
		id = d.newID()
	}

	s := d.begin("insert", id)
	if err := d.checkID("insert", id); err != nil {
		return Record[T]{}, s.abort(err)
	}
	key := d.Key(id)

	body, err := d.encode(id, doc)
	if err != nil {
		return Record[T]{}, s.abort(dberr.Translate("insert", key, err))
	}

	// Phase 1: reserve the unique value.
	refKey := d.RefKey(doc)
	if refKey != "" {
		if err := d.index.CreateKey(ctx, refKey, d.refType(), id); err != nil {
			return Record[T]{}, s.abort(err)
		}
		s.advance(StateRefReserved)
		ctx = context.WithoutCancel(ctx)
	}

	// Phase 2: write the entity.
	version, err := d.adapter.Insert(ctx, key, body)
	if err != nil {
		err = dberr.Translate("insert", key, err)
		if refKey == "" {
			return Record[T]{}, s.abort(err)
		}
		s.compensate(ctx, err, compensation{
			name:             "release_ref",
			key:              refKey,
			run:              func(ctx context.Context) error { return d.index.DeleteKey(ctx, refKey) },
			tolerateNotFound: true,
		})
		return Record[T]{}, err
	}
	s.advance(StatePrimaryWritten)

	s.commit()
	return Record[T]{ID: id, Version: version, Doc: doc}, nil
}
