// Package dynamo implements store.Adapter on a single DynamoDB table.
//
// Each document is one item:
//
//	pk         S  document key
//	version    N  optimistic lock version, clock seeded on insert, +1 per replace
//	doc        M  JSON object value, marshalled through attributevalue
//	raw        B  value bytes when the value is not a JSON object
//	updated_at S  RFC 3339 timestamp of the last write
//
// Insert relies on attribute_not_exists(pk) and Replace on a version
// condition, so every write is a single conditional PutItem or DeleteItem.
package dynamo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/refguard/store"
)

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store provides store.Adapter operations on DynamoDB.
type Store struct {
	client API
	config Config
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// Table returns the table the store writes to.
func (s *Store) Table() string {
	return s.config.Table
}

func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeout)
}

// Get implements store.Adapter.
func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(s.config.ConsistentRead),
	})
	if err != nil {
		return store.Document{}, classify(err)
	}
	if result.Item == nil {
		return store.Document{}, store.ErrNotFound
	}

	return unmarshalItem(result.Item)
}

// Insert implements store.Adapter. The first version of a document is seeded
// from the clock so a key that is removed and inserted again never repeats a
// version an old reader may still hold.
func (s *Store) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	version := store.Version(time.Now().UnixNano())
	item, err := marshalItem(key, value, version)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return 0, store.ErrAlreadyExists
		}
		return 0, classify(err)
	}
	return version, nil
}

// Replace implements store.Adapter.
func (s *Store) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	next := expected + 1
	item, err := marshalItem(key, value, next)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(pk) AND #version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(expected), 10)},
		},
		// The old item tells a missing key apart from a version mismatch.
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			if len(condErr.Item) == 0 {
				return 0, store.ErrNotFound
			}
			return 0, store.ErrVersionConflict
		}
		return 0, classify(err)
	}
	return next, nil
}

// Remove implements store.Adapter.
func (s *Store) Remove(ctx context.Context, key string) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.config.Table),
		Key:                 keyOf(key),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return store.ErrNotFound
		}
		return classify(err)
	}
	return nil
}

// classify wraps throttling, server-side and timeout failures as transient.
// Everything else is returned with context and treated as internal upstream.
func classify(err error) error {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	switch {
	case errors.As(err, &throughput), errors.As(err, &limit), errors.As(err, &internal):
		return store.Transient(err)
	case store.IsTimeout(err), errors.Is(err, context.Canceled):
		return store.Transient(err)
	}
	return fmt.Errorf("dynamodb: %w", err)
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key},
	}
}

// marshalItem builds the item for key. JSON objects are stored as a native map
// so they stay readable in the console and usable in filter expressions.
func marshalItem(key string, value []byte, version store.Version) (map[string]types.AttributeValue, error) {
	item := map[string]types.AttributeValue{
		"pk":         &types.AttributeValueMemberS{Value: key},
		"version":    &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(version), 10)},
		"updated_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
	}

	if obj, ok := decodeObject(value); ok {
		doc, err := attributevalue.MarshalMap(convertNumbers(obj, toAttributeNumber))
		if err != nil {
			return nil, fmt.Errorf("marshal document %s: %w", key, err)
		}
		item["doc"] = &types.AttributeValueMemberM{Value: doc}
		return item, nil
	}

	raw := make([]byte, len(value))
	copy(raw, value)
	item["raw"] = &types.AttributeValueMemberB{Value: raw}
	return item, nil
}

// unmarshalItem converts a DynamoDB item back into a store.Document.
func unmarshalItem(raw map[string]types.AttributeValue) (store.Document, error) {
	var doc store.Document

	if v, ok := raw["pk"].(*types.AttributeValueMemberS); ok {
		doc.Key = v.Value
	}
	if v, ok := raw["version"].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseUint(v.Value, 10, 64)
		if err != nil {
			return store.Document{}, fmt.Errorf("parse version of %s: %w", doc.Key, err)
		}
		doc.Version = store.Version(n)
	}

	switch {
	case raw["doc"] != nil:
		m, ok := raw["doc"].(*types.AttributeValueMemberM)
		if !ok {
			return store.Document{}, fmt.Errorf("document %s: doc attribute is not a map", doc.Key)
		}
		var obj map[string]any
		err := attributevalue.UnmarshalMapWithOptions(m.Value, &obj, func(o *attributevalue.DecoderOptions) {
			o.UseNumber = true
		})
		if err != nil {
			return store.Document{}, fmt.Errorf("unmarshal document %s: %w", doc.Key, err)
		}
		b, err := json.Marshal(convertNumbers(obj, toJSONNumber))
		if err != nil {
			return store.Document{}, fmt.Errorf("encode document %s: %w", doc.Key, err)
		}
		doc.Value = b
	case raw["raw"] != nil:
		if b, ok := raw["raw"].(*types.AttributeValueMemberB); ok {
			doc.Value = append([]byte(nil), b.Value...)
		}
	}

	return doc, nil
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 1 && b[0] == '{'
}

// decodeObject parses a single JSON object, keeping numbers as json.Number.
func decodeObject(value []byte) (map[string]any, bool) {
	if !isJSONObject(value) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return obj, true
}

func toAttributeNumber(s string) any { return attributevalue.Number(s) }

func toJSONNumber(s string) any { return json.Number(s) }

// convertNumbers rewrites every number in a decoded document with conv, so
// numbers move between JSON and N attributes as their exact decimal text.
func convertNumbers(v any, conv func(string) any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = convertNumbers(e, conv)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = convertNumbers(e, conv)
		}
		return t
	case json.Number:
		return conv(string(t))
	case attributevalue.Number:
		return conv(string(t))
	}
	return v
}

var _ store.Adapter = (*Store)(nil)
