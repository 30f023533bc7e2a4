// Package config loads refguard settings from a YAML file, an optional .env
// file and REFGUARD_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
	DriverNATS     = "nats"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
)

// Config is the root configuration.
type Config struct {
	Log     Log     `yaml:"log"`
	Storage Storage `yaml:"storage"`

	Index struct {
		// HashKeys stores digests instead of normalized values in reference keys.
		HashKeys bool `yaml:"hash_keys"`
	} `yaml:"index"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Storage selects and configures the document store.
type Storage struct {
	Driver string `yaml:"driver"`

	// Timeout bounds every single store call.
	Timeout time.Duration `yaml:"timeout"`

	DynamoDB struct {
		Table    string `yaml:"table"`
		Region   string `yaml:"region"`
		Profile  string `yaml:"profile"`  // shared config profile
		Endpoint string `yaml:"endpoint"` // DynamoDB Local or other compatible endpoint
	} `yaml:"dynamodb"`

	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`

	Redis struct {
		Addrs      []string `yaml:"addrs"`
		Username   string   `yaml:"username"`
		Password   string   `yaml:"password"`
		DB         int      `yaml:"db"`
		Prefix     string   `yaml:"prefix"`
		Instrument bool     `yaml:"instrument"`
	} `yaml:"redis"`

	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	Bolt struct {
		Path string `yaml:"path"`
	} `yaml:"bolt"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	c.applyDefaults()
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadEnvFile loads variables from a .env file without overriding variables
// that are already set. A missing file is only an error when required.
func LoadEnvFile(path string, required bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = 5 * time.Second
	}
	if c.Storage.DynamoDB.Table == "" {
		c.Storage.DynamoDB.Table = "refguard_documents"
	}
	if c.Storage.NATS.URL == "" {
		c.Storage.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.Storage.NATS.Bucket == "" {
		c.Storage.NATS.Bucket = "refguard"
	}
	if len(c.Storage.Redis.Addrs) == 0 {
		c.Storage.Redis.Addrs = []string{"localhost:6379"}
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "{refguard}:"
	}
	if c.Storage.SQLite.Path == "" {
		c.Storage.SQLite.Path = "refguard.db"
	}
	if c.Storage.Bolt.Path == "" {
		c.Storage.Bolt.Path = "refguard.bolt"
	}
}

func (c *Config) applyEnvOverrides() error {
	if v, ok := getEnvStr("REFGUARD_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("REFGUARD_LOG_FORMAT"); ok {
		c.Log.Format = v
	}
	if v, ok := getEnvStr("REFGUARD_STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("REFGUARD_STORAGE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REFGUARD_STORAGE_TIMEOUT: %w", err)
		}
		c.Storage.Timeout = d
	}
	if v, ok := getEnvBool("REFGUARD_INDEX_HASH_KEYS"); ok {
		c.Index.HashKeys = v
	}

	if v, ok := getEnvStr("REFGUARD_DYNAMO_TABLE"); ok {
		c.Storage.DynamoDB.Table = v
	}
	if v, ok := getEnvStr("REFGUARD_DYNAMO_REGION"); ok {
		c.Storage.DynamoDB.Region = v
	}
	if v, ok := getEnvStr("REFGUARD_DYNAMO_PROFILE"); ok {
		c.Storage.DynamoDB.Profile = v
	}
	if v, ok := getEnvStr("REFGUARD_DYNAMO_ENDPOINT"); ok {
		c.Storage.DynamoDB.Endpoint = v
	}

	if v, ok := getEnvStr("REFGUARD_NATS_URL"); ok {
		c.Storage.NATS.URL = v
	}
	if v, ok := getEnvStr("REFGUARD_NATS_BUCKET"); ok {
		c.Storage.NATS.Bucket = v
	}

	if v, ok := getEnvStr("REFGUARD_REDIS_ADDRS"); ok {
		c.Storage.Redis.Addrs = splitList(v)
	}
	if v, ok := getEnvStr("REFGUARD_REDIS_USERNAME"); ok {
		c.Storage.Redis.Username = v
	}
	if v, ok := getEnvStr("REFGUARD_REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}
	if v, ok := getEnvInt("REFGUARD_REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("REFGUARD_REDIS_PREFIX"); ok {
		c.Storage.Redis.Prefix = v
	}

	if v, ok := getEnvStr("REFGUARD_SQLITE_PATH"); ok {
		c.Storage.SQLite.Path = v
	}
	if v, ok := getEnvStr("REFGUARD_BOLT_PATH"); ok {
		c.Storage.Bolt.Path = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverDynamoDB, DriverNATS, DriverRedis, DriverSQLite, DriverBolt:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if c.Storage.Timeout <= 0 {
		return fmt.Errorf("storage.timeout must be positive, got %s", c.Storage.Timeout)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: expected text or json, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
