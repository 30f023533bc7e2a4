// Package natskv implements store.Adapter on a NATS JetStream key-value
// bucket. Versions are stream revisions, so they keep growing across a
// remove and a later insert of the same key.
package natskv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jacentio/refguard/store"
)

// Bucket is the subset of jetstream.KeyValue used by Store.
type Bucket interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// Config holds configuration for the KV adapter.
type Config struct {
	// Bucket is the key-value bucket name.
	// Default: "refguard"
	Bucket string

	// Timeout bounds every single bucket call.
	// Default: 5s
	Timeout time.Duration

	// MaxRemoveAttempts bounds how often Remove re-reads a key whose
	// revision moved between the read and the delete.
	// Default: 5
	MaxRemoveAttempts int
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Bucket:            "refguard",
		Timeout:           5 * time.Second,
		MaxRemoveAttempts: 5,
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if c.Bucket == "" {
		c.Bucket = d.Bucket
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRemoveAttempts <= 0 {
		c.MaxRemoveAttempts = d.MaxRemoveAttempts
	}
}

// Store provides store.Adapter operations on a KV bucket.
type Store struct {
	bucket Bucket
	config Config
}

// New wraps an existing bucket.
func New(bucket Bucket, config Config) *Store {
	config.validate()
	return &Store{bucket: bucket, config: config}
}

// Open creates the bucket if needed and returns a Store on it.
func Open(ctx context.Context, js jetstream.JetStream, config Config) (*Store, error) {
	config.validate()
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      config.Bucket,
		Description: "refguard documents",
		History:     1,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", config.Bucket, err)
	}
	return New(kv, config), nil
}

func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.bucket.Get(ctx, encodeKey(key))
	if err != nil {
		if isNotFound(err) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, classify("get", key, err)
	}

	return store.Document{
		Key:     key,
		Value:   append([]byte(nil), entry.Value()...),
		Version: store.Version(entry.Revision()),
	}, nil
}

// Insert implements store.Adapter.
func (s *Store) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	rev, err := s.bucket.Create(ctx, encodeKey(key), append([]byte(nil), value...))
	if err != nil {
		if isConflict(err) {
			return 0, store.ErrAlreadyExists
		}
		return 0, classify("create", key, err)
	}
	return store.Version(rev), nil
}

// Replace implements store.Adapter.
func (s *Store) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	rev, err := s.bucket.Update(ctx, encodeKey(key), append([]byte(nil), value...), uint64(expected))
	if err == nil {
		return store.Version(rev), nil
	}
	if !isConflict(err) {
		return 0, classify("update", key, err)
	}

	// A wrong last sequence is reported the same way for a missing key and a
	// stale revision.
	if _, getErr := s.bucket.Get(ctx, encodeKey(key)); isNotFound(getErr) {
		return 0, store.ErrNotFound
	}
	return 0, store.ErrVersionConflict
}

// Remove implements store.Adapter. The delete is pinned to the revision just
// read so a missing key is reported as store.ErrNotFound instead of writing a
// delete marker for it.
func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	k := encodeKey(key)
	for attempt := 0; attempt < s.config.MaxRemoveAttempts; attempt++ {
		entry, err := s.bucket.Get(ctx, k)
		if err != nil {
			if isNotFound(err) {
				return store.ErrNotFound
			}
			return classify("get", key, err)
		}

		err = s.bucket.Delete(ctx, k, jetstream.LastRevision(entry.Revision()))
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return classify("delete", key, err)
		}
	}
	return store.Transient(fmt.Errorf("kv delete %s: revision kept moving after %d attempts", key, s.config.MaxRemoveAttempts))
}

// encodeKey maps an arbitrary document key onto the KV key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func decodeKey(k string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(k)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "key not found") || strings.Contains(msg, "10037")
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "wrong last sequence") ||
		strings.Contains(msg, "10071") ||
		strings.Contains(msg, "key exists") ||
		strings.Contains(msg, "10058")
}

func classify(op, key string, err error) error {
	err = fmt.Errorf("kv %s %s: %w", op, key, err)
	switch {
	case errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, context.Canceled),
		store.IsTimeout(err):
		return store.Transient(err)
	}
	return err
}

var _ store.Adapter = (*Store)(nil)
