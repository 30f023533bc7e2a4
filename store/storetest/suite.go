// Package storetest provides the contract suite every store.Adapter must pass
// and a fault-injecting wrapper for exercising failure paths.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/refguard/store"
)

// Factory returns a fresh, empty adapter for one subtest.
type Factory func(t *testing.T) store.Adapter

// Run executes the adapter contract against adapters built by newAdapter.
func Run(t *testing.T, newAdapter Factory) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.Get(context.Background(), "partner::missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("InsertThenGet", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		v, err := a.Insert(ctx, "partner::p1", []byte(`{"name":"Acme"}`))
		require.NoError(t, err)
		assert.NotZero(t, v)

		doc, err := a.Get(ctx, "partner::p1")
		require.NoError(t, err)
		assert.Equal(t, "partner::p1", doc.Key)
		assert.JSONEq(t, `{"name":"Acme"}`, string(doc.Value))
		assert.Equal(t, v, doc.Version)
	})

	t.Run("InsertExisting", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		_, err := a.Insert(ctx, "partner::name::acme", []byte(`{"pointer":"p1"}`))
		require.NoError(t, err)

		_, err = a.Insert(ctx, "partner::name::acme", []byte(`{"pointer":"p2"}`))
		assert.ErrorIs(t, err, store.ErrAlreadyExists)

		doc, err := a.Get(ctx, "partner::name::acme")
		require.NoError(t, err)
		assert.JSONEq(t, `{"pointer":"p1"}`, string(doc.Value), "losing insert must not overwrite")
	})

	t.Run("ReplaceMatchingVersion", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		v1, err := a.Insert(ctx, "k", []byte(`{"n":1}`))
		require.NoError(t, err)

		v2, err := a.Replace(ctx, "k", []byte(`{"n":2}`), v1)
		require.NoError(t, err)
		assert.Greater(t, uint64(v2), uint64(v1))

		doc, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(doc.Value))
		assert.Equal(t, v2, doc.Version)
	})

	t.Run("ReplaceStaleVersion", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		v1, err := a.Insert(ctx, "k", []byte(`{"n":1}`))
		require.NoError(t, err)
		_, err = a.Replace(ctx, "k", []byte(`{"n":2}`), v1)
		require.NoError(t, err)

		_, err = a.Replace(ctx, "k", []byte(`{"n":3}`), v1)
		assert.ErrorIs(t, err, store.ErrVersionConflict)

		doc, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":2}`, string(doc.Value))
	})

	t.Run("ReplaceMissing", func(t *testing.T) {
		a := newAdapter(t)
		_, err := a.Replace(context.Background(), "missing", []byte(`{}`), 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("RemoveTwice", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		_, err := a.Insert(ctx, "k", []byte(`{}`))
		require.NoError(t, err)

		require.NoError(t, a.Remove(ctx, "k"))
		assert.ErrorIs(t, a.Remove(ctx, "k"), store.ErrNotFound)

		_, err = a.Get(ctx, "k")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("InsertAfterRemove", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		_, err := a.Insert(ctx, "k", []byte(`{"n":1}`))
		require.NoError(t, err)
		require.NoError(t, a.Remove(ctx, "k"))

		_, err = a.Insert(ctx, "k", []byte(`{"n":2}`))
		require.NoError(t, err)
	})

	t.Run("KeysWithSeparatorsAndUnicode", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		keys := []string{"partner::name::café", "employee::email::jane.doe@example.com", "location::name::münchen"}
		for _, k := range keys {
			_, err := a.Insert(ctx, k, []byte(`{}`))
			require.NoError(t, err, k)
		}
		for _, k := range keys {
			doc, err := a.Get(ctx, k)
			require.NoError(t, err, k)
			assert.Equal(t, k, doc.Key)
		}
	})

	t.Run("ValueNotRetained", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		value := []byte(`{"n":1}`)
		_, err := a.Insert(ctx, "k", value)
		require.NoError(t, err)
		value[5] = '9'

		doc, err := a.Get(ctx, "k")
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":1}`, string(doc.Value))
	})

	t.Run("ConcurrentInsertSingleWinner", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		const writers = 8
		var wg sync.WaitGroup
		results := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = a.Insert(ctx, "partner::name::acmecorp", []byte(fmt.Sprintf(`{"pointer":"p%d"}`, i)))
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrAlreadyExists):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("ConcurrentReplaceSingleWinner", func(t *testing.T) {
		a := newAdapter(t)
		ctx := context.Background()

		v, err := a.Insert(ctx, "k", []byte(`{"n":0}`))
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		results := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = a.Replace(ctx, "k", []byte(fmt.Sprintf(`{"n":%d}`, i+1)), v)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrVersionConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, wins)
	})
}
