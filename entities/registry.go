package entities

import (
	"fmt"

	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/store"
)

// Registry holds every known entity collection by type name.
type Registry struct {
	collections []dao.Collection
	byType      map[string]dao.Collection
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: []dao.Collection{},
		byType:      make(map[string]dao.Collection),
	}
}

// Register adds a collection. Registering the same type twice panics.
func (r *Registry) Register(c dao.Collection) {
	if _, ok := r.byType[c.Type()]; ok {
		panic(fmt.Sprintf("entities: type %q registered twice", c.Type()))
	}
	r.collections = append(r.collections, c)
	r.byType[c.Type()] = c
}

// Collection returns the collection for entityType.
func (r *Registry) Collection(entityType string) (dao.Collection, bool) {
	c, ok := r.byType[entityType]
	return c, ok
}

// All returns all collections in registration order.
func (r *Registry) All() []dao.Collection {
	return r.collections
}

// Types returns the registered type names in registration order.
func (r *Registry) Types() []string {
	types := make([]string, len(r.collections))
	for i, c := range r.collections {
		types[i] = c.Type()
	}
	return types
}

// Set is the typed DAO for every entity type, all sharing one adapter.
type Set struct {
	Partners   *dao.DAO[Partner]
	Employees  *dao.DAO[Employee]
	Locations  *dao.DAO[Location]
	Positions  *dao.DAO[Position]
	Currencies *dao.DAO[Currency]
	Languages  *dao.DAO[Language]
	Settings   *dao.DAO[Setting]

	Registry *Registry
}

// New builds the DAOs for all entity types on adapter.
func New(adapter store.Adapter, opts dao.Options) *Set {
	s := &Set{
		Partners:   dao.New(adapter, PartnerSchema, opts),
		Employees:  dao.New(adapter, EmployeeSchema, opts),
		Locations:  dao.New(adapter, LocationSchema, opts),
		Positions:  dao.New(adapter, PositionSchema, opts),
		Currencies: dao.New(adapter, CurrencySchema, opts),
		Languages:  dao.New(adapter, LanguageSchema, opts),
		Settings:   dao.New(adapter, SettingSchema, opts),
		Registry:   NewRegistry(),
	}

	s.Registry.Register(s.Partners)
	s.Registry.Register(s.Employees)
	s.Registry.Register(s.Locations)
	s.Registry.Register(s.Positions)
	s.Registry.Register(s.Currencies)
	s.Registry.Register(s.Languages)
	s.Registry.Register(s.Settings)

	return s
}
