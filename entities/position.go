package entities

import "github.com/jacentio/refguard/dao"

// TypePosition is the position discriminator.
const TypePosition = "position"

// Position is a job position. Names are unique.
type Position struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color"`
}

// PositionPatch is a partial Position update.
type PositionPatch struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Apply implements dao.Patcher.
func (p PositionPatch) Apply(doc *Position) error {
	set(&doc.Name, p.Name)
	set(&doc.Color, p.Color)
	return nil
}

// PositionSchema describes positions.
var PositionSchema = dao.Schema[Position]{
	Type:        TypePosition,
	UniqueField: "name",
	UniqueValue: func(p Position) string { return p.Name },
	DecodePatch: decodePatch[Position, PositionPatch],
}
