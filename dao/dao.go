package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/internal/refkey"
	"github.com/jacentio/refguard/refindex"
	"github.com/jacentio/refguard/store"
)

// Record is an entity together with its id and version.
type Record[T any] struct {
	ID      string
	Version store.Version
	Doc     T
}

// DAO performs uniqueness-checked operations on one entity type.
// It is safe for concurrent use.
type DAO[T any] struct {
	schema  Schema[T]
	adapter store.Adapter
	index   *refindex.Index
	logger  *slog.Logger
	metrics *Metrics
	newID   func() string
}

// New creates a DAO for schema on adapter. It panics if schema is incomplete.
func New[T any](adapter store.Adapter, schema Schema[T], opts Options) *DAO[T] {
	schema.validate()
	opts.validate()
	if schema.DecodePatch == nil {
		schema.DecodePatch = func(raw []byte) (Patcher[T], error) {
			return MergeJSON[T](raw), nil
		}
	}
	return &DAO[T]{
		schema:  schema,
		adapter: adapter,
		index:   refindex.New(adapter, opts.Index),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		newID:   opts.IDs,
	}
}

// Type returns the entity type.
func (d *DAO[T]) Type() string {
	return d.schema.Type
}

// UniqueField returns the unique field name, or "" if the type has none.
func (d *DAO[T]) UniqueField() string {
	return d.schema.UniqueField
}

// Key returns the store key of the entity with id.
func (d *DAO[T]) Key(id string) string {
	return refkey.Entity(d.schema.Type, id)
}

// RefKey returns the reference key reserved by doc, or "" if doc reserves
// nothing.
func (d *DAO[T]) RefKey(doc T) string {
	if !d.schema.hasUnique() {
		return ""
	}
	return d.index.DeriveKey(d.schema.Type, d.schema.UniqueField, d.schema.UniqueValue(doc))
}

// checkID rejects ids that cannot name an entity. For lookups by id the error
// is NotFound since no entity can exist under such an id.
func (d *DAO[T]) checkID(op, id string) error {
	if refkey.ValidID(id) {
		return nil
	}
	kind := dberr.NotFound
	if op == "insert" {
		kind = dberr.Internal
	}
	return &dberr.Error{Kind: kind, Op: op, Key: d.Key(id), Err: fmt.Errorf("%w %q", ErrInvalidID, id)}
}

func (d *DAO[T]) refType() string {
	return refkey.RefType(d.schema.Type, d.schema.UniqueField)
}

func (d *DAO[T]) begin(op, id string) *saga {
	return &saga{
		logger:     d.logger,
		metrics:    d.metrics,
		entityType: d.schema.Type,
		op:         op,
		id:         id,
		state:      StateStart,
		started:    time.Now(),
	}
}

// Get returns the entity with id.
func (d *DAO[T]) Get(ctx context.Context, id string) (Record[T], error) {
	if err := d.checkID("get", id); err != nil {
		return Record[T]{}, err
	}
	key := d.Key(id)
	stored, err := d.adapter.Get(ctx, key)
	if err != nil {
		return Record[T]{}, dberr.Translate("get", key, err)
	}
	doc, err := d.decode(key, stored.Value)
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{ID: id, Version: stored.Version, Doc: doc}, nil
}

// FindByUnique resolves value through its reference document and returns
// the entity it points at. A reference whose entity is gone reports
// dberr.ErrNotFound.
func (d *DAO[T]) FindByUnique(ctx context.Context, value string) (Record[T], error) {
	if !d.schema.hasUnique() {
		return Record[T]{}, fmt.Errorf("%s: %w", d.schema.Type, ErrNoUniqueField)
	}
	ref, err := d.index.Lookup(ctx, d.schema.Type, d.schema.UniqueField, value)
	if err != nil {
		return Record[T]{}, err
	}
	return d.Get(ctx, ref.Pointer)
}

// encode stores doc's fields next to the id and type discriminators.
func (d *DAO[T]) encode(id string, doc T) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.schema.Type, err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: document is not an object: %w", d.schema.Type, err)
	}

	idJSON, _ := json.Marshal(id)
	typeJSON, _ := json.Marshal(d.schema.Type)
	fields["id"] = idJSON
	fields["type"] = typeJSON

	return json.Marshal(fields)
}

func (d *DAO[T]) decode(key string, value []byte) (T, error) {
	var doc T
	if err := json.Unmarshal(value, &doc); err != nil {
		return doc, dberr.Translate("get", key, fmt.Errorf("decode %s: %w", d.schema.Type, err))
	}
	return doc, nil
}
