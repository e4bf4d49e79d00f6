package staffattendance

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/google/uuid"
)

// fakeRepository keeps attendances in memory. Transactions are emulated by
// snapshotting the maps.
type fakeRepository struct {
	mu       sync.Mutex
	staff    []staffattendance.StaffMember
	groups   map[uuid.UUID]bool
	records  map[uuid.UUID]staffattendance.Attendance
	external map[uuid.UUID]staffattendance.Attendance
	failList error
	failNext error
}

func newFakeRepository(groups ...uuid.UUID) *fakeRepository {
	r := &fakeRepository{
		groups:   map[uuid.UUID]bool{},
		records:  map[uuid.UUID]staffattendance.Attendance{},
		external: map[uuid.UUID]staffattendance.Attendance{},
	}
	for _, g := range groups {
		r.groups[g] = true
	}
	return r
}

func (r *fakeRepository) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	records, external := maps.Clone(r.records), maps.Clone(r.external)
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.records, r.external = records, external
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeRepository) ListStaff(ctx context.Context, unitID uuid.UUID) ([]staffattendance.StaffMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	out := make([]staffattendance.StaffMember, len(r.staff))
	for i, m := range r.staff {
		m.Attendances = nil
		out[i] = m
	}
	return out, nil
}

func overlapping(m map[uuid.UUID]staffattendance.Attendance, from, to time.Time) []staffattendance.Attendance {
	var out []staffattendance.Attendance
	for _, a := range m {
		if a.Arrived.Before(to) && (a.Departed == nil || !a.Departed.Before(from)) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b staffattendance.Attendance) int {
		return a.Arrived.Compare(b.Arrived)
	})
	return out
}

func (r *fakeRepository) ListByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]staffattendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return overlapping(r.records, from, to), nil
}

func (r *fakeRepository) ListExternalByUnit(ctx context.Context, unitID uuid.UUID, from, to time.Time) ([]staffattendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return overlapping(r.external, from, to), nil
}

func (r *fakeRepository) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[groupID], nil
}

func (r *fakeRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *fakeRepository) Upsert(ctx context.Context, a staffattendance.Attendance) (staffattendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return staffattendance.Attendance{}, err
	}
	if prev, ok := r.records[a.ID]; ok && prev.Owner().Key() != a.Owner().Key() {
		return staffattendance.Attendance{}, staffattendance.ErrAttendanceNotFound
	}
	r.records[a.ID] = a
	return a, nil
}

func (r *fakeRepository) UpsertExternal(ctx context.Context, a staffattendance.Attendance) (staffattendance.Attendance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return staffattendance.Attendance{}, err
	}
	if prev, ok := r.external[a.ID]; ok && prev.Owner().Key() != a.Owner().Key() {
		return staffattendance.Attendance{}, staffattendance.ErrAttendanceNotFound
	}
	r.external[a.ID] = a
	return a, nil
}

func (r *fakeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.delete(false, id)
}

func (r *fakeRepository) DeleteExternal(ctx context.Context, id uuid.UUID) error {
	return r.delete(true, id)
}

func (r *fakeRepository) delete(external bool, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	m := r.records
	if external {
		m = r.external
	}
	if _, ok := m[id]; !ok {
		return staffattendance.ErrAttendanceNotFound
	}
	delete(m, id)
	return nil
}

func (r *fakeRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records) + len(r.external)
}

func (r *fakeRepository) record(id uuid.UUID) (staffattendance.Attendance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	return a, ok
}

var errNetwork = errors.New("connection reset")

func newTestService(repo *fakeRepository) *StaffAttendanceServiceImpl {
	return &StaffAttendanceServiceImpl{
		StaffAttendanceRepository: repo,
		inTx:                      repo.inTx,
		loc:                       time.UTC,
	}
}
