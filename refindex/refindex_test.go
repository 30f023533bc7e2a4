package refindex_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/refindex"
	"github.com/jacentio/refguard/store"
	"github.com/jacentio/refguard/store/storetest"
)

func TestDeriveKey(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{})

	assert.Equal(t, "partner::name::acmecorp", x.DeriveKey("partner", "name", "Acme Corp"))
	assert.Equal(t, x.DeriveKey("partner", "name", "Acme Corp"), x.DeriveKey("partner", "name", "Acme  Corp"))
	assert.Equal(t, x.DeriveKey("partner", "name", "Acme Corp"), x.DeriveKey("partner", "name", " ACME CORP "))
	assert.Empty(t, x.DeriveKey("employee", "email", ""))
	assert.Empty(t, x.DeriveKey("employee", "email", " \t "))
}

func TestDeriveKey_Hashed(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{HashKeys: true})

	key := x.DeriveKey("partner", "name", "Acme Corp")
	assert.Regexp(t, `^partner::name::[0-9a-f]{32}$`, key)
	assert.Equal(t, key, x.DeriveKey("partner", "name", "acme  corp"))
}

func TestCreate_StoresPointer(t *testing.T) {
	mem := store.NewMemory()
	x := refindex.New(mem, refindex.Config{})
	ctx := context.Background()

	require.NoError(t, x.Create(ctx, "partner", "name", "Acme Corp", "p1"))

	doc, err := mem.Get(ctx, "partner::name::acmecorp")
	require.NoError(t, err)

	var ref refindex.Ref
	require.NoError(t, json.Unmarshal(doc.Value, &ref))
	assert.Equal(t, refindex.Ref{ID: "partner::name::acmecorp", Type: "partner::name", Pointer: "p1"}, ref)
}

func TestCreate_Duplicate(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{})
	ctx := context.Background()

	require.NoError(t, x.Create(ctx, "partner", "name", "Acme Corp", "p1"))

	err := x.Create(ctx, "partner", "name", "Acme  Corp", "p2")
	assert.ErrorIs(t, err, dberr.ErrDuplicateUnique)

	ref, err := x.Lookup(ctx, "partner", "name", "acme corp")
	require.NoError(t, err)
	assert.Equal(t, "p1", ref.Pointer, "losing writer must not overwrite the reservation")
}

func TestCreate_SameValueDifferentTypes(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{})
	ctx := context.Background()

	require.NoError(t, x.Create(ctx, "partner", "name", "Berlin", "p1"))
	require.NoError(t, x.Create(ctx, "location", "name", "Berlin", "l1"))
}

func TestCreate_NullReservesNothing(t *testing.T) {
	mem := store.NewMemory()
	x := refindex.New(mem, refindex.Config{})
	ctx := context.Background()

	require.NoError(t, x.Create(ctx, "employee", "email", "", "e1"))
	require.NoError(t, x.Create(ctx, "employee", "email", "  ", "e2"))
	assert.Zero(t, mem.Len())

	_, err := x.Lookup(ctx, "employee", "email", "")
	assert.ErrorIs(t, err, dberr.ErrNotFound)
}

func TestCreate_ConcurrentSingleWinner(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{})
	ctx := context.Background()

	values := []string{"Acme Corp", "Acme  Corp", "ACME CORP", "acmecorp", " Acme Corp ", "acme\tcorp"}
	errs := make([]error, len(values))

	var wg sync.WaitGroup
	for i, v := range values {
		wg.Add(1)
		go func(i int, v string) {
			defer wg.Done()
			errs[i] = x.Create(ctx, "partner", "name", v, v)
		}(i, v)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, dberr.ErrDuplicateUnique)
	}
	assert.Equal(t, 1, wins)
}

func TestDelete(t *testing.T) {
	x := refindex.New(store.NewMemory(), refindex.Config{})
	ctx := context.Background()

	require.NoError(t, x.Create(ctx, "partner", "name", "Acme Corp", "p1"))
	require.NoError(t, x.Delete(ctx, "partner", "name", "ACME CORP"))

	_, err := x.Lookup(ctx, "partner", "name", "Acme Corp")
	assert.ErrorIs(t, err, dberr.ErrNotFound)

	err = x.Delete(ctx, "partner", "name", "Acme Corp")
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransientFailuresAreClassified(t *testing.T) {
	faulty := storetest.NewFaulty(store.NewMemory())
	x := refindex.New(faulty, refindex.Config{})
	ctx := context.Background()

	faulty.Fail(storetest.OpInsert, storetest.AnyKey, nil)
	err := x.Create(ctx, "partner", "name", "Acme", "p1")
	assert.True(t, dberr.Is(err, dberr.Transient))

	faulty.Heal()
	require.NoError(t, x.Create(ctx, "partner", "name", "Acme", "p1"))

	faulty.Fail(storetest.OpRemove, storetest.Prefix("partner::name::"), nil)
	err = x.Delete(ctx, "partner", "name", "Acme")
	assert.True(t, dberr.Is(err, dberr.Transient))
}

func TestLookup_CorruptReference(t *testing.T) {
	mem := store.NewMemory()
	x := refindex.New(mem, refindex.Config{})
	ctx := context.Background()

	_, err := mem.Insert(ctx, "partner::name::acme", []byte("not json"))
	require.NoError(t, err)

	_, err = x.Lookup(ctx, "partner", "name", "Acme")
	assert.True(t, dberr.Is(err, dberr.Internal))
}
