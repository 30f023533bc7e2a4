// Package sqlite implements store.Adapter on a single SQLite file.
// Versions come from a one-row sequence table so they keep growing across
// a remove and a later insert of the same key.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jacentio/refguard/store"
)

//go:embed schema.sql
var schemaSQL string

// Store provides store.Adapter operations on SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// SQLite only supports one writer, so the pool holds a single connection and
// every conditional write runs in its own transaction.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	doc := store.Document{Key: key}
	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM documents WHERE key = ?`, key,
	).Scan(&doc.Value, &doc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, classify("get", key, err)
	}
	return doc, nil
}

// Insert implements store.Adapter.
func (s *Store) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	var version store.Version
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (key, value, version, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (key) DO NOTHING`,
			key, value, v, now(),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrAlreadyExists
		}
		version = v
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return 0, err
		}
		return 0, classify("insert", key, err)
	}
	return version, nil
}

// Replace implements store.Adapter.
func (s *Store) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	var version store.Version
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		v, err := nextVersion(ctx, tx)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET value = ?, version = ?, updated_at = ? WHERE key = ? AND version = ?`,
			value, v, now(), key, expected,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			version = v
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE key = ?`, key).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrVersionConflict) {
			return 0, err
		}
		return 0, classify("replace", key, err)
	}
	return version, nil
}

// Remove implements store.Adapter.
func (s *Store) Remove(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key)
	if err != nil {
		return classify("remove", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// withTx runs fn in a transaction, committing only when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nextVersion(ctx context.Context, tx *sql.Tx) (store.Version, error) {
	var v store.Version
	err := tx.QueryRowContext(ctx, `UPDATE version_seq SET n = n + 1 WHERE id = 1 RETURNING n`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("next version: %w", err)
	}
	return v, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func classify(op, key string, err error) error {
	wrapped := fmt.Errorf("sqlite %s %s: %w", op, key, err)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return store.Transient(wrapped)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.Canceled) || store.IsTimeout(err) {
		return store.Transient(wrapped)
	}
	return wrapped
}

var _ store.Adapter = (*Store)(nil)
