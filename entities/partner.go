package entities

import "github.com/jacentio/refguard/dao"

// TypePartner is the partner discriminator.
const TypePartner = "partner"

// Partner is a business partner. Names are unique.
type Partner struct {
	Name          string `json:"name" yaml:"name"`
	ContactPerson string `json:"contactPerson,omitempty" yaml:"contactPerson"`
	Email         string `json:"email,omitempty" yaml:"email"`
	PhoneNumber   string `json:"phoneNumber,omitempty" yaml:"phoneNumber"`
	Color         string `json:"color,omitempty" yaml:"color"`
	Note          string `json:"note,omitempty" yaml:"note"`
}

// PartnerPatch is a partial Partner update.
type PartnerPatch struct {
	Name          *string `json:"name,omitempty"`
	ContactPerson *string `json:"contactPerson,omitempty"`
	Email         *string `json:"email,omitempty"`
	PhoneNumber   *string `json:"phoneNumber,omitempty"`
	Color         *string `json:"color,omitempty"`
	Note          *string `json:"note,omitempty"`
}

// Apply implements dao.Patcher.
func (p PartnerPatch) Apply(doc *Partner) error {
	set(&doc.Name, p.Name)
	set(&doc.ContactPerson, p.ContactPerson)
	set(&doc.Email, p.Email)
	set(&doc.PhoneNumber, p.PhoneNumber)
	set(&doc.Color, p.Color)
	set(&doc.Note, p.Note)
	return nil
}

// PartnerSchema describes partners.
var PartnerSchema = dao.Schema[Partner]{
	Type:        TypePartner,
	UniqueField: "name",
	UniqueValue: func(p Partner) string { return p.Name },
	DecodePatch: decodePatch[Partner, PartnerPatch],
}
