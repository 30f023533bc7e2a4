package dao

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jacentio/refguard/refindex"
	"github.com/jacentio/refguard/store"
)

// ErrNoUniqueField is returned by FindByUnique on entity types without a
// unique field.
var ErrNoUniqueField = errors.New("refguard: entity type has no unique field")

// ErrInvalidID is wrapped by errors for ids that are empty or contain the key
// separator "::".
var ErrInvalidID = errors.New("refguard: invalid entity id")

// Schema describes one entity type.
type Schema[T any] struct {
	// Type is the discriminator stored in documents and the key prefix.
	Type string

	// UniqueField names the field whose normalized value must be unique
	// among entities of Type. Empty for types without a unique field.
	UniqueField string

	// UniqueValue extracts the unique field from a document. Required when
	// UniqueField is set. An empty or whitespace-only result is null and
	// reserves nothing.
	UniqueValue func(T) string

	// DecodePatch turns a JSON patch into a Patcher. Defaults to MergeJSON.
	DecodePatch func(raw []byte) (Patcher[T], error)
}

func (s Schema[T]) validate() {
	if s.Type == "" {
		panic("dao: schema has no type")
	}
	if s.UniqueField != "" && s.UniqueValue == nil {
		panic("dao: schema " + s.Type + " names unique field " + s.UniqueField + " without UniqueValue")
	}
}

func (s Schema[T]) hasUnique() bool {
	return s.UniqueField != ""
}

// Options configures a DAO. The zero value is usable.
type Options struct {
	// Logger receives phase transitions at debug level and compensation
	// failures at error level. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics counts operation outcomes and compensations. Nil disables it.
	Metrics *Metrics

	// IDs generates entity ids. Defaults to uuid.NewString.
	IDs func() string

	// Index configures reference key derivation. It must be the same for
	// every process sharing a store.
	Index refindex.Config
}

func (o *Options) validate() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.IDs == nil {
		o.IDs = uuid.NewString
	}
}

// InsertOption configures a single Insert.
type InsertOption func(*insertOptions)

type insertOptions struct {
	id string
}

// WithID inserts the entity under id instead of a generated one. Ids must be
// non-empty and must not contain "::".
func WithID(id string) InsertOption {
	return func(o *insertOptions) {
		o.id = id
	}
}

// UpdateOption configures a single Update.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	expected     store.Version
	checkVersion bool
}

// IfVersion makes Update fail with dberr.ErrVersionConflict unless the stored
// entity is at version v when it is loaded.
func IfVersion(v store.Version) UpdateOption {
	return func(o *updateOptions) {
		o.expected = v
		o.checkVersion = true
	}
}
