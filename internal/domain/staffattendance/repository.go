package staffattendance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StaffAttendanceRepository defines data access methods for staff attendances.
// Range queries return every attendance overlapping [from, to).
type StaffAttendanceRepository interface {
	// ListStaff returns the employees with a membership in the unit
	ListStaff(ctx context.Context, unitID uuid.UUID) ([]StaffMember, error)

	// ListByUnit returns employee attendances recorded in the unit's groups
	ListByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]Attendance, error)

	// ListExternalByUnit returns external staff attendances recorded in the unit's groups
	ListExternalByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]Attendance, error)

	// GroupExists reports whether the group exists
	GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error)

	// Upsert and UpsertExternal return ErrAttendanceNotFound when the id
	// belongs to another owner
	Upsert(ctx context.Context, attendance Attendance) (Attendance, error)
	UpsertExternal(ctx context.Context, attendance Attendance) (Attendance, error)

	// Delete and DeleteExternal return ErrAttendanceNotFound for unknown ids
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExternal(ctx context.Context, id uuid.UUID) error
}
