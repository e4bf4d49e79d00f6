package staffattendance

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

type Type string

const (
	TypePresent   Type = "PRESENT"
	TypeOtherWork Type = "OTHER_WORK"
	TypeTraining  Type = "TRAINING"
)

func (t Type) IsValid() bool {
	switch t {
	case TypePresent, TypeOtherWork, TypeTraining:
		return true
	}
	return false
}

// Owner identifies whose attendances a grid row belongs to: either a
// registered employee or an external person known only by name.
type Owner struct {
	EmployeeID   *uuid.UUID
	ExternalName string
}

const (
	employeeKeyPrefix = "employee:"
	externalKeyPrefix = "external:"
)

func EmployeeOwner(id uuid.UUID) Owner {
	return Owner{EmployeeID: &id}
}

func ExternalOwner(name string) Owner {
	return Owner{ExternalName: strings.TrimSpace(name)}
}

func (o Owner) IsExternal() bool {
	return o.EmployeeID == nil
}

// Key is stable for the lifetime of the owner and safe to use in URLs.
func (o Owner) Key() string {
	if o.EmployeeID != nil {
		return employeeKeyPrefix + o.EmployeeID.String()
	}
	return externalKeyPrefix + o.ExternalName
}

func (o Owner) String() string {
	return o.Key()
}

// ParseOwnerKey is the inverse of Owner.Key.
func ParseOwnerKey(key string) (Owner, error) {
	switch {
	case strings.HasPrefix(key, employeeKeyPrefix):
		id, err := uuid.Parse(strings.TrimPrefix(key, employeeKeyPrefix))
		if err != nil {
			return Owner{}, fmt.Errorf("%w: %s", ErrInvalidOwnerKey, key)
		}
		return EmployeeOwner(id), nil
	case strings.HasPrefix(key, externalKeyPrefix):
		name := strings.TrimPrefix(key, externalKeyPrefix)
		if strings.TrimSpace(name) == "" {
			return Owner{}, fmt.Errorf("%w: %s", ErrInvalidOwnerKey, key)
		}
		return ExternalOwner(name), nil
	}
	return Owner{}, fmt.Errorf("%w: %s", ErrInvalidOwnerKey, key)
}

// Attendance is a persisted arrival/departure pair. Departed is nil while
// the person is still present.
type Attendance struct {
	ID           uuid.UUID
	EmployeeID   *uuid.UUID
	ExternalName *string
	GroupID      uuid.UUID
	Type         Type
	Arrived      time.Time
	Departed     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (a Attendance) Owner() Owner {
	if a.EmployeeID != nil {
		return EmployeeOwner(*a.EmployeeID)
	}
	if a.ExternalName != nil {
		return ExternalOwner(*a.ExternalName)
	}
	return Owner{}
}

// StaffMember is an employee of the unit together with the attendances
// fetched for the requested range.
type StaffMember struct {
	EmployeeID  uuid.UUID
	FirstName   string
	LastName    string
	GroupIDs    []uuid.UUID
	Attendances []Attendance
}

func (m StaffMember) Name() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start caltime.Date
	End   caltime.Date
}

func (r DateRange) Contains(d caltime.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) Days() []caltime.Date {
	return caltime.Range(r.Start, r.End)
}

// Bounds returns the half-open instant interval [start 00:00, end+1 00:00) in loc.
func (r DateRange) Bounds(loc *time.Location) (time.Time, time.Time) {
	return caltime.Combine(r.Start, caltime.StartOfDay, loc),
		caltime.Combine(r.End.AddDays(1), caltime.StartOfDay, loc)
}

type FetchResult struct {
	Staff         []StaffMember
	ExternalStaff []Attendance
}

// DeleteResult reports the outcome of one id of a DeleteRequest.
type DeleteResult struct {
	ID       uuid.UUID
	External bool
	Err      error
}
