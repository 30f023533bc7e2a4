// Package backend opens the store.Adapter selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/jacentio/refguard/config"
	"github.com/jacentio/refguard/store"
	"github.com/jacentio/refguard/store/bolt"
	"github.com/jacentio/refguard/store/dynamo"
	"github.com/jacentio/refguard/store/natskv"
	"github.com/jacentio/refguard/store/redis"
	"github.com/jacentio/refguard/store/sqlite"
)

// Backend is an opened adapter together with whatever owns its connections.
type Backend struct {
	Adapter store.Adapter
	Driver  string

	closers []func() error
}

// Close releases the backend's connections in reverse order of acquisition.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

func (b *Backend) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// Open connects to the configured driver.
func Open(ctx context.Context, cfg config.Storage, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{Driver: strings.ToLower(cfg.Driver)}

	var err error
	switch b.Driver {
	case config.DriverMemory:
		b.Adapter = store.NewMemory()
	case config.DriverDynamoDB:
		b.Adapter, err = openDynamo(ctx, cfg)
	case config.DriverNATS:
		err = b.openNATS(ctx, cfg)
	case config.DriverRedis:
		err = b.openRedis(ctx, cfg)
	case config.DriverSQLite:
		err = b.openSQLite(cfg)
	case config.DriverBolt:
		err = b.openBolt(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open %s backend: %w", b.Driver, err)
	}

	logger.Debug("storage backend opened", "driver", b.Driver)
	return b, nil
}

func openDynamo(ctx context.Context, cfg config.Storage) (*dynamo.Store, error) {
	client, err := DynamoClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dynamo.New(client, dynamo.Config{
		Table:          cfg.DynamoDB.Table,
		Timeout:        cfg.Timeout,
		ConsistentRead: true,
	}), nil
}

// DynamoClient builds a DynamoDB client from the default AWS credential chain,
// honoring the configured profile, region and endpoint.
func DynamoClient(ctx context.Context, cfg config.Storage) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.DynamoDB.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.DynamoDB.Profile))
	}
	if cfg.DynamoDB.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.DynamoDB.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	}), nil
}

func (b *Backend) openNATS(ctx context.Context, cfg config.Storage) error {
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("refguard"),
		nats.Timeout(cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", cfg.NATS.URL, err)
	}
	b.onClose(func() error {
		nc.Close()
		return nil
	})

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	s, err := natskv.Open(ctx, js, natskv.Config{
		Bucket:  cfg.NATS.Bucket,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return err
	}
	b.Adapter = s
	return nil
}

func (b *Backend) openRedis(ctx context.Context, cfg config.Storage) error {
	s, err := redis.Open(ctx, redis.Config{
		Addrs:      cfg.Redis.Addrs,
		Username:   cfg.Redis.Username,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		Prefix:     cfg.Redis.Prefix,
		Timeout:    cfg.Timeout,
		Instrument: cfg.Redis.Instrument,
	})
	if err != nil {
		return err
	}
	b.Adapter = s
	b.onClose(s.Close)
	return nil
}

func (b *Backend) openSQLite(cfg config.Storage) error {
	s, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	b.Adapter = s
	b.onClose(s.Close)
	return nil
}

func (b *Backend) openBolt(cfg config.Storage, logger *slog.Logger) error {
	s, err := bolt.Open(cfg.Bolt.Path,
		bolt.WithLogger(logger),
		bolt.WithOpenTimeout(cfg.Timeout),
	)
	if err != nil {
		return err
	}
	b.Adapter = s
	b.onClose(s.Close)
	return nil
}
