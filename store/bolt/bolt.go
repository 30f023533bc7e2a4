// Package bolt implements store.Adapter on an embedded bbolt file. Every
// document lives in one bucket; its value is prefixed with the 8-byte
// big-endian version. Versions come from the bucket sequence.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/jacentio/refguard/store"
)

var bucketDocuments = []byte("documents")

const versionLen = 8

// Store provides store.Adapter operations on bbolt.
type Store struct {
	db      *bbolt.DB
	logger  *slog.Logger
	noSync  bool
	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithNoSync disables fsync per transaction. Use only for tests.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

// WithOpenTimeout bounds how long Open waits for the file lock.
func WithOpenTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		logger:  slog.Default(),
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: s.timeout,
		NoSync:  s.noSync,
	})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, store.Transient(fmt.Errorf("opening database: %w", err))
		}
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating bucket %s: %w", bucketDocuments, err)
	}

	s.logger.Debug("opened bolt store", "path", path, "noSync", s.noSync)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing bolt store")
	return s.db.Close()
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, store.Transient(err)
	}

	var doc store.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketDocuments).Get([]byte(key))
		if raw == nil {
			return store.ErrNotFound
		}
		var err error
		doc, err = decode(key, raw)
		return err
	})
	if err != nil {
		return store.Document{}, s.classify(err)
	}
	return doc, nil
}

// Insert implements store.Adapter.
func (s *Store) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Transient(err)
	}

	var version store.Version
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get([]byte(key)) != nil {
			return store.ErrAlreadyExists
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		version = store.Version(seq)
		return b.Put([]byte(key), encode(version, value))
	})
	if err != nil {
		return 0, s.classify(err)
	}
	return version, nil
}

// Replace implements store.Adapter.
func (s *Store) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, store.Transient(err)
	}

	var version store.Version
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		raw := b.Get([]byte(key))
		if raw == nil {
			return store.ErrNotFound
		}
		current, err := decode(key, raw)
		if err != nil {
			return err
		}
		if current.Version != expected {
			return store.ErrVersionConflict
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		version = store.Version(seq)
		return b.Put([]byte(key), encode(version, value))
	})
	if err != nil {
		return 0, s.classify(err)
	}
	return version, nil
}

// Remove implements store.Adapter.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return store.Transient(err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get([]byte(key)) == nil {
			return store.ErrNotFound
		}
		return b.Delete([]byte(key))
	})
	return s.classify(err)
}

// Keys returns every stored key in byte order.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func encode(version store.Version, value []byte) []byte {
	buf := make([]byte, versionLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(version))
	copy(buf[versionLen:], value)
	return buf
}

// decode copies out of raw, which is only valid inside the transaction.
func decode(key string, raw []byte) (store.Document, error) {
	if len(raw) < versionLen {
		return store.Document{}, fmt.Errorf("document %s: value too short (%d bytes)", key, len(raw))
	}
	value := make([]byte, len(raw)-versionLen)
	copy(value, raw[versionLen:])
	return store.Document{
		Key:     key,
		Value:   value,
		Version: store.Version(binary.BigEndian.Uint64(raw)),
	}, nil
}

func (s *Store) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrVersionConflict):
		return err
	case errors.Is(err, bbolt.ErrDatabaseNotOpen):
		return fmt.Errorf("%w: %w", store.ErrClosed, err)
	}
	s.logger.Error("bolt transaction failed", "error", err)
	return fmt.Errorf("bolt: %w", err)
}

var _ store.Adapter = (*Store)(nil)
