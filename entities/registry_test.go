package entities_test

import (
	"testing"

	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/entities"
	"github.com/jacentio/refguard/store"
)

func TestNewRegistry(t *testing.T) {
	r := entities.NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil Registry")
	}
	if len(r.All()) != 0 {
		t.Errorf("expected empty registry, got %d collections", len(r.All()))
	}
}

func TestRegistry_Register(t *testing.T) {
	r := entities.NewRegistry()
	r.Register(dao.New(store.NewMemory(), entities.PartnerSchema, dao.Options{}))

	c, ok := r.Collection("partner")
	if !ok {
		t.Fatal("expected partner collection")
	}
	if c.UniqueField() != "name" {
		t.Errorf("expected unique field 'name', got %q", c.UniqueField())
	}

	if _, ok := r.Collection("studio"); ok {
		t.Error("expected no collection for unknown type")
	}
}

func TestRegistry_RegisterTwicePanics(t *testing.T) {
	r := entities.NewRegistry()
	mem := store.NewMemory()
	r.Register(dao.New(mem, entities.PartnerSchema, dao.Options{}))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate type")
		}
	}()
	r.Register(dao.New(mem, entities.PartnerSchema, dao.Options{}))
}

func TestNew_RegistersAllTypes(t *testing.T) {
	set := entities.New(store.NewMemory(), dao.Options{})

	want := []string{"partner", "employee", "location", "position", "currency", "language", "setting"}
	got := set.Registry.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d types, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("type %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	unique := map[string]string{}
	for _, c := range set.Registry.All() {
		unique[c.Type()] = c.UniqueField()
	}
	expected := map[string]string{
		"partner":  "name",
		"employee": "email",
		"location": "name",
		"position": "name",
		"currency": "",
		"language": "",
		"setting":  "",
	}
	for typ, field := range expected {
		if unique[typ] != field {
			t.Errorf("%s: expected unique field %q, got %q", typ, field, unique[typ])
		}
	}
}
