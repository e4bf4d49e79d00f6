package staffattendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/database"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/validator"
	"github.com/cmlabs-hris/staff-attendance-go/internal/repository/postgresql"
	"github.com/google/uuid"
)

// transactor runs fn inside a transaction carried by the context it passes on.
type transactor func(ctx context.Context, fn func(ctx context.Context) error) error

type StaffAttendanceServiceImpl struct {
	staffattendance.StaffAttendanceRepository
	inTx transactor
	loc  *time.Location
}

// NewStaffAttendanceService returns the attendance service. Upserts run in one
// transaction on db.
func NewStaffAttendanceService(db *database.DB, repo staffattendance.StaffAttendanceRepository, loc *time.Location) staffattendance.StaffAttendanceService {
	return &StaffAttendanceServiceImpl{
		StaffAttendanceRepository: repo,
		inTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return postgresql.WithTransaction(ctx, db, fn)
		},
		loc: loc,
	}
}

// Fetch implements staffattendance.StaffAttendanceService.
func (s *StaffAttendanceServiceImpl) Fetch(ctx context.Context, unitID uuid.UUID, r staffattendance.DateRange) (staffattendance.FetchResult, error) {
	from, to := r.Bounds(s.loc)

	staff, err := s.StaffAttendanceRepository.ListStaff(ctx, unitID)
	if err != nil {
		return staffattendance.FetchResult{}, fmt.Errorf("failed to list staff: %w", err)
	}
	attendances, err := s.StaffAttendanceRepository.ListByUnit(ctx, unitID, from, to)
	if err != nil {
		return staffattendance.FetchResult{}, fmt.Errorf("failed to list attendances: %w", err)
	}
	external, err := s.StaffAttendanceRepository.ListExternalByUnit(ctx, unitID, from, to)
	if err != nil {
		return staffattendance.FetchResult{}, fmt.Errorf("failed to list external attendances: %w", err)
	}

	index := make(map[uuid.UUID]int, len(staff))
	for i, m := range staff {
		index[m.EmployeeID] = i
	}
	for _, a := range attendances {
		if a.EmployeeID == nil {
			continue
		}
		i, ok := index[*a.EmployeeID]
		if !ok {
			slog.Warn("Attendance of employee without membership skipped",
				"attendance_id", a.ID, "employee_id", *a.EmployeeID, "unit_id", unitID)
			continue
		}
		staff[i].Attendances = append(staff[i].Attendances, a)
	}

	return staffattendance.FetchResult{Staff: staff, ExternalStaff: external}, nil
}

// Upsert implements staffattendance.StaffAttendanceService.
func (s *StaffAttendanceServiceImpl) Upsert(ctx context.Context, reqs []staffattendance.UpsertRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	var errs validator.ValidationErrors
	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			var verrs validator.ValidationErrors
			if !errors.As(err, &verrs) {
				return err
			}
			for _, e := range verrs {
				errs.Add(fmt.Sprintf("attendances[%d].%s", i, e.Field), e.Message)
			}
		}
	}
	if err := errs.Err(); err != nil {
		return err
	}

	groups := make([]uuid.UUID, 0, len(reqs))
	for _, r := range reqs {
		if !slices.Contains(groups, r.GroupID) {
			groups = append(groups, r.GroupID)
		}
	}

	return s.inTx(ctx, func(ctx context.Context) error {
		for _, g := range groups {
			ok, err := s.StaffAttendanceRepository.GroupExists(ctx, g)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", staffattendance.ErrGroupNotFound, g)
			}
		}

		for _, r := range reqs {
			a := r.ToAttendance()
			var err error
			if r.Owner().IsExternal() {
				_, err = s.StaffAttendanceRepository.UpsertExternal(ctx, a)
			} else {
				_, err = s.StaffAttendanceRepository.Upsert(ctx, a)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete implements staffattendance.StaffAttendanceService. Ids that no
// longer exist count as deleted.
func (s *StaffAttendanceServiceImpl) Delete(ctx context.Context, req staffattendance.DeleteRequest) []staffattendance.DeleteResult {
	results := make([]staffattendance.DeleteResult, 0, len(req.AttendanceIDs)+len(req.ExternalAttendanceIDs))

	for _, id := range req.AttendanceIDs {
		err := s.StaffAttendanceRepository.Delete(ctx, id)
		results = append(results, deleteResult(id, false, err))
	}
	for _, id := range req.ExternalAttendanceIDs {
		err := s.StaffAttendanceRepository.DeleteExternal(ctx, id)
		results = append(results, deleteResult(id, true, err))
	}

	return results
}

func deleteResult(id uuid.UUID, external bool, err error) staffattendance.DeleteResult {
	if errors.Is(err, staffattendance.ErrAttendanceNotFound) {
		err = nil
	}
	if err != nil {
		slog.Error("Failed to delete attendance", "attendance_id", id, "external", external, "error", err)
	}
	return staffattendance.DeleteResult{ID: id, External: external, Err: err}
}
