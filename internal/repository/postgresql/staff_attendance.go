package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type staffAttendanceRepository struct {
	db *database.DB
}

// NewStaffAttendanceRepository returns a repository backed by db.
func NewStaffAttendanceRepository(db *database.DB) staffattendance.StaffAttendanceRepository {
	return &staffAttendanceRepository{db: db}
}

// ListStaff implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) ListStaff(ctx context.Context, unitID uuid.UUID) ([]staffattendance.StaffMember, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT e.id, e.first_name, e.last_name, array_agg(m.group_id ORDER BY m.group_id)
		FROM employees e
		JOIN unit_staff_memberships m ON m.employee_id = e.id
		JOIN unit_groups g ON g.id = m.group_id
		WHERE g.unit_id = $1
		GROUP BY e.id, e.first_name, e.last_name
		ORDER BY e.last_name, e.first_name, e.id
	`

	rows, err := q.Query(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var staff []staffattendance.StaffMember
	for rows.Next() {
		var m staffattendance.StaffMember
		if err := rows.Scan(&m.EmployeeID, &m.FirstName, &m.LastName, &m.GroupIDs); err != nil {
			return nil, fmt.Errorf("failed to scan staff member: %w", err)
		}
		staff = append(staff, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff: %w", err)
	}

	return staff, nil
}

// ListByUnit implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) ListByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]staffattendance.Attendance, error) {
	query := `
		SELECT a.id, a.employee_id, NULL::text, a.group_id, a.type, a.arrived, a.departed, a.created_at, a.updated_at
		FROM staff_attendances a
		JOIN unit_groups g ON g.id = a.group_id
		WHERE g.unit_id = $1
		  AND a.arrived < $3
		  AND (a.departed IS NULL OR a.departed >= $2)
		ORDER BY a.arrived, a.id
	`
	return r.list(ctx, query, unitID, from, to)
}

// ListExternalByUnit implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) ListExternalByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]staffattendance.Attendance, error) {
	query := `
		SELECT a.id, NULL::uuid, a.name, a.group_id, a.type, a.arrived, a.departed, a.created_at, a.updated_at
		FROM staff_attendances_external a
		JOIN unit_groups g ON g.id = a.group_id
		WHERE g.unit_id = $1
		  AND a.arrived < $3
		  AND (a.departed IS NULL OR a.departed >= $2)
		ORDER BY a.name, a.arrived, a.id
	`
	return r.list(ctx, query, unitID, from, to)
}

func (r *staffAttendanceRepository) list(ctx context.Context, query string, args ...any) ([]staffattendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendances: %w", err)
	}
	defer rows.Close()

	var result []staffattendance.Attendance
	for rows.Next() {
		var a staffattendance.Attendance
		if err := rows.Scan(
			&a.ID, &a.EmployeeID, &a.ExternalName, &a.GroupID, &a.Type,
			&a.Arrived, &a.Departed, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendances: %w", err)
	}

	return result, nil
}

// GroupExists implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM unit_groups WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group: %w", err)
	}
	return exists, nil
}

// Upsert implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) Upsert(ctx context.Context, a staffattendance.Attendance) (staffattendance.Attendance, error) {
	query := `
		INSERT INTO staff_attendances (id, employee_id, group_id, type, arrived, departed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			group_id    = EXCLUDED.group_id,
			type        = EXCLUDED.type,
			arrived     = EXCLUDED.arrived,
			departed    = EXCLUDED.departed,
			updated_at  = now()
		WHERE staff_attendances.employee_id = EXCLUDED.employee_id
		RETURNING created_at, updated_at
	`
	return r.upsert(ctx, query, a, a.EmployeeID)
}

// UpsertExternal implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) UpsertExternal(ctx context.Context, a staffattendance.Attendance) (staffattendance.Attendance, error) {
	query := `
		INSERT INTO staff_attendances_external (id, name, group_id, type, arrived, departed)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			group_id   = EXCLUDED.group_id,
			type       = EXCLUDED.type,
			arrived    = EXCLUDED.arrived,
			departed   = EXCLUDED.departed,
			updated_at = now()
		WHERE staff_attendances_external.name = EXCLUDED.name
		RETURNING created_at, updated_at
	`
	return r.upsert(ctx, query, a, a.ExternalName)
}

func (r *staffAttendanceRepository) upsert(ctx context.Context, query string, a staffattendance.Attendance, owner any) (staffattendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	err := q.QueryRow(ctx, query, a.ID, owner, a.GroupID, a.Type, a.Arrived, a.Departed).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		// the id exists under another owner
		if errors.Is(err, pgx.ErrNoRows) {
			return staffattendance.Attendance{}, fmt.Errorf("%w: %s", staffattendance.ErrAttendanceNotFound, a.ID)
		}
		return staffattendance.Attendance{}, fmt.Errorf("failed to upsert attendance %s: %w", a.ID, err)
	}
	return a, nil
}

// Delete implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, `DELETE FROM staff_attendances WHERE id = $1 RETURNING id`, id)
}

// DeleteExternal implements staffattendance.StaffAttendanceRepository.
func (r *staffAttendanceRepository) DeleteExternal(ctx context.Context, id uuid.UUID) error {
	return r.delete(ctx, `DELETE FROM staff_attendances_external WHERE id = $1 RETURNING id`, id)
}

func (r *staffAttendanceRepository) delete(ctx context.Context, query string, id uuid.UUID) error {
	q := GetQuerier(ctx, r.db)

	var deleted uuid.UUID
	if err := q.QueryRow(ctx, query, id).Scan(&deleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return staffattendance.ErrAttendanceNotFound
		}
		return fmt.Errorf("failed to delete attendance %s: %w", id, err)
	}
	return nil
}
