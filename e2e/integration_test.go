//go:build e2e

// Package e2e contains end-to-end integration tests against a real DynamoDB
// table (AWS or DynamoDB Local).
// Run with: REFGUARD_DYNAMO_ENDPOINT=http://localhost:8000 go test -tags=e2e -v ./e2e/...
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/jacentio/refguard/config"
	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/dberr"
	"github.com/jacentio/refguard/entities"
	"github.com/jacentio/refguard/internal/backend"
	"github.com/jacentio/refguard/store"
	"github.com/jacentio/refguard/store/dynamo"
	"github.com/jacentio/refguard/store/storetest"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "refguard-e2e-test"

var (
	testID    string
	table     string
	ddbClient *dynamodb.Client
	testStore *dynamo.Store
)

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	table = fmt.Sprintf("%s-%s", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table: %s\n", table)

	ctx := context.Background()

	// Profile, region and endpoint come from REFGUARD_DYNAMO_* variables.
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ddbClient, err = backend.DynamoClient(ctx, cfg.Storage)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	if err := dynamo.CreateTable(ctx, ddbClient, table); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	testStore = dynamo.New(ddbClient, dynamo.Config{Table: table, ConsistentRead: true})

	code := m.Run()

	if err := dynamo.DeleteTable(ctx, ddbClient, table); err != nil {
		fmt.Printf("Warning: failed to delete table %s: %v\n", table, err)
	}

	os.Exit(code)
}

// namespaced gives each test its own key space inside the shared table.
type namespaced struct {
	next   store.Adapter
	prefix string
}

func newNamespaced() *namespaced {
	return &namespaced{next: testStore, prefix: uuid.NewString() + "/"}
}

func (n *namespaced) Get(ctx context.Context, key string) (store.Document, error) {
	doc, err := n.next.Get(ctx, n.prefix+key)
	doc.Key = key
	return doc, err
}

func (n *namespaced) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	return n.next.Insert(ctx, n.prefix+key, value)
}

func (n *namespaced) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	return n.next.Replace(ctx, n.prefix+key, value, expected)
}

func (n *namespaced) Remove(ctx context.Context, key string) error {
	return n.next.Remove(ctx, n.prefix+key)
}

func newSet(adapter store.Adapter) *entities.Set {
	return entities.New(adapter, dao.Options{})
}

// --- Adapter contract ---

func TestDynamoContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter {
		return newNamespaced()
	})
}

// --- Uniqueness ---

func TestInsert_ReservesName(t *testing.T) {
	ctx := context.Background()
	adapter := newNamespaced()
	set := newSet(adapter)

	rec, err := set.Partners.Insert(ctx, entities.Partner{Name: "Acme Corp"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	doc, err := adapter.Get(ctx, "partner::name::acmecorp")
	if err != nil {
		t.Fatalf("reference not stored: %v", err)
	}
	if doc.Version == 0 {
		t.Error("expected non-zero reference version")
	}

	found, err := set.Partners.FindByUnique(ctx, "ACME  corp")
	if err != nil {
		t.Fatalf("FindByUnique failed: %v", err)
	}
	if found.ID != rec.ID {
		t.Errorf("expected id %q, got %q", rec.ID, found.ID)
	}
}

func TestInsert_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	set := newSet(newNamespaced())

	if _, err := set.Partners.Insert(ctx, entities.Partner{Name: "Globex"}); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}

	_, err := set.Partners.Insert(ctx, entities.Partner{Name: " globex "})
	if !errors.Is(err, dberr.ErrDuplicateUnique) {
		t.Fatalf("expected ErrDuplicateUnique, got %v", err)
	}
}

func TestInsert_ConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	set := newSet(newNamespaced())

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := set.Partners.Insert(ctx, entities.Partner{Name: "Initech"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, dberr.ErrDuplicateUnique):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("expected exactly 1 winner, got %d", succeeded)
	}
	if dupes != writers-1 {
		t.Errorf("expected %d duplicates, got %d", writers-1, dupes)
	}
}

func TestUpdate_RenameMovesReservation(t *testing.T) {
	ctx := context.Background()
	adapter := newNamespaced()
	set := newSet(adapter)

	rec, err := set.Partners.Insert(ctx, entities.Partner{Name: "Umbrella"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	newName := "Umbrella Holdings"
	v, err := set.Partners.Update(ctx, rec.ID, entities.PartnerPatch{Name: &newName})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if v <= rec.Version {
		t.Errorf("expected version to grow past %d, got %d", rec.Version, v)
	}

	if _, err := adapter.Get(ctx, "partner::name::umbrella"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected old reference to be released, got %v", err)
	}
	if _, err := adapter.Get(ctx, "partner::name::umbrellaholdings"); err != nil {
		t.Errorf("expected new reference, got %v", err)
	}

	// The old name is free for someone else.
	if _, err := set.Partners.Insert(ctx, entities.Partner{Name: "Umbrella"}); err != nil {
		t.Errorf("expected old name to be reusable, got %v", err)
	}
}

func TestUpdate_StaleVersion(t *testing.T) {
	ctx := context.Background()
	set := newSet(newNamespaced())

	rec, err := set.Partners.Insert(ctx, entities.Partner{Name: "Hooli"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	note := "renewed"
	_, err = set.Partners.Update(ctx, rec.ID, entities.PartnerPatch{Note: &note}, dao.IfVersion(rec.Version+1))
	if !errors.Is(err, dberr.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestRemove_ReleasesName(t *testing.T) {
	ctx := context.Background()
	adapter := newNamespaced()
	set := newSet(adapter)

	rec, err := set.Partners.Insert(ctx, entities.Partner{Name: "Vandelay"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := set.Partners.Remove(ctx, rec.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := set.Partners.Get(ctx, rec.ID); !errors.Is(err, dberr.ErrNotFound) {
		t.Errorf("expected entity gone, got %v", err)
	}
	if _, err := adapter.Get(ctx, "partner::name::vandelay"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected reference gone, got %v", err)
	}
}

// --- Compensation ---

func TestInsert_EntityWriteFails_ReleasesReservation(t *testing.T) {
	ctx := context.Background()
	adapter := newNamespaced()
	faulty := storetest.NewFaulty(adapter)
	// The reference write goes first; let it through.
	faulty.FailAfter(storetest.OpInsert, storetest.Prefix("partner::"), 1, nil)
	set := newSet(faulty)

	_, err := set.Partners.Insert(ctx, entities.Partner{Name: "Soylent"})
	if err == nil {
		t.Fatal("expected Insert to fail")
	}

	if _, err := adapter.Get(ctx, "partner::name::soylent"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected reservation to be compensated, got %v", err)
	}

	faulty.Heal()
	if _, err := set.Partners.Insert(ctx, entities.Partner{Name: "Soylent"}); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestRemove_EntityDeleteFails_RestoresReservation(t *testing.T) {
	ctx := context.Background()
	adapter := newNamespaced()
	faulty := storetest.NewFaulty(adapter)
	set := newSet(faulty)

	rec, err := set.Partners.Insert(ctx, entities.Partner{Name: "Tyrell"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	faulty.Fail(storetest.OpRemove, storetest.Key("partner::"+rec.ID), nil)
	if err := set.Partners.Remove(ctx, rec.ID); err == nil {
		t.Fatal("expected Remove to fail")
	}
	faulty.Heal()

	// The entity survived, so its name must still be reserved.
	_, err = set.Partners.Insert(ctx, entities.Partner{Name: "tyrell"})
	if !errors.Is(err, dberr.ErrDuplicateUnique) {
		t.Errorf("expected ErrDuplicateUnique, got %v", err)
	}
}
