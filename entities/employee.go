package entities

import "github.com/jacentio/refguard/dao"

// TypeEmployee is the employee discriminator.
const TypeEmployee = "employee"

// EmployeeStatus is the lifecycle state of an employee account.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
	EmployeePending  EmployeeStatus = "pending"
)

// Employee is a staff member. A non-empty email is unique; employees without
// an email reserve nothing.
type Employee struct {
	FirstName  string         `json:"firstName" yaml:"firstName"`
	LastName   string         `json:"lastName,omitempty" yaml:"lastName"`
	Email      string         `json:"email,omitempty" yaml:"email"`
	Status     EmployeeStatus `json:"status" yaml:"status"`
	Role       string         `json:"role,omitempty" yaml:"role"`
	PositionID string         `json:"positionId,omitempty" yaml:"positionId"`
	LocationID string         `json:"locationId,omitempty" yaml:"locationId"`
}

// EmployeePatch is a partial Employee update. Setting Email to "" clears it
// and releases the reservation.
type EmployeePatch struct {
	FirstName  *string         `json:"firstName,omitempty"`
	LastName   *string         `json:"lastName,omitempty"`
	Email      *string         `json:"email,omitempty"`
	Status     *EmployeeStatus `json:"status,omitempty"`
	Role       *string         `json:"role,omitempty"`
	PositionID *string         `json:"positionId,omitempty"`
	LocationID *string         `json:"locationId,omitempty"`
}

// Apply implements dao.Patcher.
func (p EmployeePatch) Apply(doc *Employee) error {
	set(&doc.FirstName, p.FirstName)
	set(&doc.LastName, p.LastName)
	set(&doc.Email, p.Email)
	set(&doc.Status, p.Status)
	set(&doc.Role, p.Role)
	set(&doc.PositionID, p.PositionID)
	set(&doc.LocationID, p.LocationID)
	return nil
}

// EmployeeSchema describes employees.
var EmployeeSchema = dao.Schema[Employee]{
	Type:        TypeEmployee,
	UniqueField: "email",
	UniqueValue: func(e Employee) string { return e.Email },
	DecodePatch: decodePatch[Employee, EmployeePatch],
}
