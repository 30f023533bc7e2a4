package dao

import (
	"context"

	"github.com/jacentio/refguard/dberr"
)

// Remove deletes the entity with id and releases its unique value.
//
// The reservation is released first. If the entity delete then fails the
// reservation is recreated and the delete error is returned. A reservation
// that is already missing is tolerated (logged at warn level) and the entity
// is still removed.
func (d *DAO[T]) Remove(ctx context.Context, id string) error {
	s := d.begin("remove", id)
	if err := d.checkID("remove", id); err != nil {
		return s.abort(err)
	}
	key := d.Key(id)

	loaded, err := d.adapter.Get(ctx, key)
	if err != nil {
		return s.abort(dberr.Translate("get", key, err))
	}
	doc, err := d.decode(key, loaded.Value)
	if err != nil {
		return s.abort(err)
	}

	// Phase 1: release the unique value.
	refKey := d.RefKey(doc)
	released := false
	if refKey != "" {
		err := d.index.DeleteKey(ctx, refKey)
		switch {
		case err == nil:
			released = true
		case dberr.Is(err, dberr.NotFound):
			d.logger.Warn("reference already gone",
				"entityType", d.schema.Type,
				"id", id,
				"key", refKey,
			)
		default:
			return s.abort(err)
		}
		s.advance(StateRefReserved)
		ctx = context.WithoutCancel(ctx)
	}

	// Phase 2: delete the entity.
	if err := d.adapter.Remove(ctx, key); err != nil {
		err = dberr.Translate("remove", key, err)
		// A concurrent remove already deleted the entity, so the released
		// reservation must stay released.
		if !released || dberr.Is(err, dberr.NotFound) {
			return s.abort(err)
		}
		s.compensate(ctx, err, compensation{
			name: "recreate_ref",
			key:  refKey,
			run:  func(ctx context.Context) error { return d.index.CreateKey(ctx, refKey, d.refType(), id) },
		})
		return err
	}
	s.advance(StatePrimaryWritten)

	s.commit()
	return nil
}
