package entities

import "github.com/jacentio/refguard/dao"

// TypeLocation is the location discriminator.
const TypeLocation = "location"

// LocationStatus is whether a location is in use.
type LocationStatus string

const (
	LocationActive   LocationStatus = "active"
	LocationInactive LocationStatus = "inactive"
)

// Location is a workplace. Names are unique.
type Location struct {
	Name    string         `json:"name" yaml:"name"`
	Status  LocationStatus `json:"status" yaml:"status"`
	Default bool           `json:"default" yaml:"default"`
}

// LocationPatch is a partial Location update.
type LocationPatch struct {
	Name    *string         `json:"name,omitempty"`
	Status  *LocationStatus `json:"status,omitempty"`
	Default *bool           `json:"default,omitempty"`
}

// Apply implements dao.Patcher.
func (p LocationPatch) Apply(doc *Location) error {
	set(&doc.Name, p.Name)
	set(&doc.Status, p.Status)
	set(&doc.Default, p.Default)
	return nil
}

// LocationSchema describes locations.
var LocationSchema = dao.Schema[Location]{
	Type:        TypeLocation,
	UniqueField: "name",
	UniqueValue: func(l Location) string { return l.Name },
	DecodePatch: decodePatch[Location, LocationPatch],
}
