// Package redis implements store.Adapter on Redis. Each document is a hash
// with the value under "v" and the version under "ver". Conditional writes run
// as Lua scripts so the check and the write are one atomic step.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"github.com/jacentio/refguard/store"
)

// Config holds configuration for the Redis adapter.
type Config struct {
	// Addrs lists server addresses. More than one selects a cluster client.
	// Default: ["localhost:6379"]
	Addrs    []string
	Username string
	Password string
	DB       int

	// Prefix namespaces every key. The braces keep all keys in one cluster
	// slot, which the scripts require.
	// Default: "{refguard}:"
	Prefix string

	// Timeout bounds every single command.
	// Default: 5s
	Timeout time.Duration

	// Instrument enables OpenTelemetry tracing and metrics on the client.
	Instrument bool
}

// DefaultConfig returns the defaults used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		Addrs:   []string{"localhost:6379"},
		Prefix:  "{refguard}:",
		Timeout: 5 * time.Second,
	}
}

func (c *Config) validate() {
	d := DefaultConfig()
	if len(c.Addrs) == 0 {
		c.Addrs = d.Addrs
	}
	if c.Prefix == "" {
		c.Prefix = d.Prefix
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
}

const (
	fieldValue   = "v"
	fieldVersion = "ver"
	seqKey       = "__seq"

	codeExists   = -1
	codeMissing  = -1
	codeConflict = -2
)

// KEYS[1] document, KEYS[2] sequence. ARGV[1] value.
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
local v = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'ver', v)
return v
`)

// KEYS[1] document, KEYS[2] sequence. ARGV[1] value, ARGV[2] expected version.
var replaceScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'ver')
if not cur then
	return -1
end
if cur ~= ARGV[2] then
	return -2
end
local v = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'ver', v)
return v
`)

// Store provides store.Adapter operations on Redis.
type Store struct {
	client redis.UniversalClient
	config Config
}

// New wraps an existing client.
func New(client redis.UniversalClient, config Config) *Store {
	config.validate()
	return &Store{client: client, config: config}
}

// Open builds a client from config and checks it with a ping.
func Open(ctx context.Context, config Config) (*Store, error) {
	config.validate()

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    config.Addrs,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	})

	if config.Instrument {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to instrument redis: %w", err)
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to instrument redis metrics: %w", err)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	return New(client, config), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k string) string {
	return s.config.Prefix + k
}

func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	vals, err := s.client.HMGet(ctx, s.key(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return store.Document{}, classify("hmget", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return store.Document{}, store.ErrNotFound
	}

	value, _ := vals[0].(string)
	verStr, _ := vals[1].(string)
	ver, err := strconv.ParseUint(verStr, 10, 64)
	if err != nil {
		return store.Document{}, fmt.Errorf("parse version of %s: %w", key, err)
	}

	return store.Document{
		Key:     key,
		Value:   []byte(value),
		Version: store.Version(ver),
	}, nil
}

// Insert implements store.Adapter.
func (s *Store) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	n, err := insertScript.Run(ctx, s.client, []string{s.key(key), s.key(seqKey)}, value).Int64()
	if err != nil {
		return 0, classify("insert", key, err)
	}
	if n == codeExists {
		return 0, store.ErrAlreadyExists
	}
	return store.Version(n), nil
}

// Replace implements store.Adapter.
func (s *Store) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	n, err := replaceScript.Run(ctx, s.client,
		[]string{s.key(key), s.key(seqKey)},
		value, strconv.FormatUint(uint64(expected), 10),
	).Int64()
	if err != nil {
		return 0, classify("replace", key, err)
	}
	switch n {
	case codeMissing:
		return 0, store.ErrNotFound
	case codeConflict:
		return 0, store.ErrVersionConflict
	}
	return store.Version(n), nil
}

// Remove implements store.Adapter.
func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return classify("del", key, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// transientReplies are server error prefixes that go away on their own.
var transientReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN"}

func classify(op, key string, err error) error {
	wrapped := fmt.Errorf("redis %s %s: %w", op, key, err)

	var opErr *net.OpError
	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.As(err, &opErr),
		errors.Is(err, context.Canceled),
		store.IsTimeout(err):
		return store.Transient(wrapped)
	}
	for _, prefix := range transientReplies {
		if strings.HasPrefix(err.Error(), prefix) {
			return store.Transient(wrapped)
		}
	}
	return wrapped
}

var _ store.Adapter = (*Store)(nil)
