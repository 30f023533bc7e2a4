// Package refindex maintains reference documents, the emulated unique index.
// A reference document is stored under a key derived from the normalized
// unique value and points back at the entity that holds it. Because Insert is
// first-writer-wins, at most one entity can hold a given normalized value.
package refindex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/internal/refkey"
	"github.com/jacentio/refguard/store"
)

// Config holds configuration for an Index.
type Config struct {
	// HashKeys replaces the normalized value in reference keys with a
	// 128-bit digest. Use it when values may exceed backend key limits.
	// Changing it on a populated store orphans every existing reference.
	HashKeys bool
}

// Ref is the stored reference document.
type Ref struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Pointer string `json:"pointer"`
}

// Index creates, deletes and resolves reference documents.
type Index struct {
	adapter store.Adapter
	config  Config
}

// New creates a new Index on adapter.
func New(adapter store.Adapter, config Config) *Index {
	return &Index{adapter: adapter, config: config}
}

// DeriveKey returns the reference key for value, or "" when value is null
// (empty or whitespace only).
func (x *Index) DeriveKey(entityType, field, value string) string {
	if x.config.HashKeys {
		return refkey.HashedReference(entityType, field, value)
	}
	return refkey.Reference(entityType, field, value)
}

// Create reserves value for entityID. Returns dberr.ErrDuplicateUnique when
// another writer holds the key. A null value reserves nothing.
func (x *Index) Create(ctx context.Context, entityType, field, value, entityID string) error {
	key := x.DeriveKey(entityType, field, value)
	if key == "" {
		return nil
	}
	return x.CreateKey(ctx, key, refkey.RefType(entityType, field), entityID)
}

// CreateKey reserves an already derived key.
func (x *Index) CreateKey(ctx context.Context, key, refType, entityID string) error {
	body, err := json.Marshal(Ref{ID: key, Type: refType, Pointer: entityID})
	if err != nil {
		return dberr.Translate("insert", key, fmt.Errorf("encode reference: %w", err))
	}
	_, err = x.adapter.Insert(ctx, key, body)
	return dberr.Translate("insert", key, err)
}

// Delete releases the reservation of value. A missing reference is returned as
// dberr.ErrNotFound so that callers decide whether to tolerate it.
func (x *Index) Delete(ctx context.Context, entityType, field, value string) error {
	key := x.DeriveKey(entityType, field, value)
	if key == "" {
		return nil
	}
	return x.DeleteKey(ctx, key)
}

// DeleteKey releases an already derived key.
func (x *Index) DeleteKey(ctx context.Context, key string) error {
	return dberr.Translate("remove", key, x.adapter.Remove(ctx, key))
}

// Lookup reads the reference for value. A null value is never reserved and
// reports dberr.ErrNotFound.
func (x *Index) Lookup(ctx context.Context, entityType, field, value string) (Ref, error) {
	key := x.DeriveKey(entityType, field, value)
	if key == "" {
		return Ref{}, dberr.New(dberr.NotFound, "get", refkey.RefType(entityType, field))
	}

	doc, err := x.adapter.Get(ctx, key)
	if err != nil {
		return Ref{}, dberr.Translate("get", key, err)
	}

	var ref Ref
	if err := json.Unmarshal(doc.Value, &ref); err != nil {
		return Ref{}, dberr.Translate("get", key, fmt.Errorf("decode reference: %w", err))
	}
	return ref, nil
}
