package dao

import (
	"context"

	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/store"
)

// Update loads the entity with id, applies patch and writes it back under the
// version it was loaded with. It returns the new version.
//
// When the patch leaves the unique value's reference key unchanged the
// update is a single conditional replace. Otherwise the new value is
// reserved, the entity is replaced and the old reservation is released.
// An old reservation that is already missing is not an error.
// If releasing the old reservation fails, the update is undone by deleting
// the new reservation and restoring the previous document. If that undo
// itself fails the entity is left at its new value with both reservations in
// place, and the update is reported as successful.
func (d *DAO[T]) Update(ctx context.Context, id string, patch Patcher[T], opts ...UpdateOption) (store.Version, error) {
	var o updateOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := d.begin("update", id)
	if err := d.checkID("update", id); err != nil {
		return 0, s.abort(err)
	}
	key := d.Key(id)

	loaded, err := d.adapter.Get(ctx, key)
	if err != nil {
		return 0, s.abort(dberr.Translate("get", key, err))
	}
	if o.checkVersion && loaded.Version != o.expected {
		return 0, s.abort(dberr.New(dberr.VersionConflict, "replace", key))
	}

	prev, err := d.decode(key, loaded.Value)
	if err != nil {
		return 0, s.abort(err)
	}
	next, err := d.decode(key, loaded.Value)
	if err != nil {
		return 0, s.abort(err)
	}
	if err := patch.Apply(&next); err != nil {
		return 0, s.abort(dberr.Translate("replace", key, err))
	}

	body, err := d.encode(id, next)
	if err != nil {
		return 0, s.abort(dberr.Translate("replace", key, err))
	}

	oldRef, newRef := d.RefKey(prev), d.RefKey(next)

	if oldRef == newRef {
		version, err := d.adapter.Replace(ctx, key, body, loaded.Version)
		if err != nil {
			return 0, s.abort(dberr.Translate("replace", key, err))
		}
		s.advance(StatePrimaryWritten)
		s.commit()
		return version, nil
	}

	// Phase 1: reserve the new value. A value cleared to null reserves nothing.
	if newRef != "" {
		if err := d.index.CreateKey(ctx, newRef, d.refType(), id); err != nil {
			return 0, s.abort(err)
		}
		s.advance(StateRefReserved)
		ctx = context.WithoutCancel(ctx)
	}

	releaseNew := compensation{
		name:             "release_new_ref",
		key:              newRef,
		run:              func(ctx context.Context) error { return d.index.DeleteKey(ctx, newRef) },
		tolerateNotFound: true,
	}

	// Phase 2: replace the entity.
	version, err := d.adapter.Replace(ctx, key, body, loaded.Version)
	if err != nil {
		err = dberr.Translate("replace", key, err)
		if newRef == "" {
			return 0, s.abort(err)
		}
		s.compensate(ctx, err, releaseNew)
		return 0, err
	}
	s.advance(StatePrimaryWritten)
	ctx = context.WithoutCancel(ctx)

	// Phase 3: release the old value. A value set from null has nothing to release.
	if oldRef == "" {
		s.commit()
		return version, nil
	}
	err = d.index.DeleteKey(ctx, oldRef)
	switch {
	case err == nil:
		s.commit()
		return version, nil
	case dberr.Is(err, dberr.NotFound):
		d.logger.Warn("old reference already gone",
			"entityType", d.schema.Type,
			"id", id,
			"key", oldRef,
		)
		s.commit()
		return version, nil
	}

	prevBody, encErr := d.encode(id, prev)
	restore := compensation{
		name: "restore_entity",
		key:  key,
		run: func(ctx context.Context) error {
			if encErr != nil {
				return dberr.Translate("replace", key, encErr)
			}
			_, err := d.adapter.Replace(ctx, key, prevBody, version)
			return dberr.Translate("replace", key, err)
		},
	}

	steps := []compensation{restore}
	if newRef != "" {
		steps = []compensation{releaseNew, restore}
	}
	if s.compensate(ctx, err, steps...) {
		return 0, err
	}
	return version, nil
}
