package grid

import (
	"maps"
	"slices"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

// State is the whole grid of one editing session.
type State struct {
	Editing         bool
	SelectedGroupID *uuid.UUID
	OperationalDays []caltime.Date
	Location        *time.Location
	Owners          map[string]OwnerState
}

// NewState returns a grid over days with no owners yet.
func NewState(days []caltime.Date, loc *time.Location, selectedGroup *uuid.UUID, editing bool) State {
	if loc == nil {
		loc = time.UTC
	}
	return State{
		Editing:         editing,
		SelectedGroupID: selectedGroup,
		OperationalDays: slices.Clone(days),
		Location:        loc,
		Owners:          map[string]OwnerState{},
	}
}

// OwnerKeys returns the keys of all owners in a stable order.
func (s State) OwnerKeys() []string {
	return slices.Sorted(maps.Keys(s.Owners))
}

// Owner returns the owner with the given key or ErrOwnerNotFound.
func (s State) Owner(key string) (OwnerState, error) {
	o, ok := s.Owners[key]
	if !ok {
		return OwnerState{}, staffattendance.ErrOwnerNotFound
	}
	return o, nil
}

// withOwners returns a copy of s whose owner map can be written to.
func (s State) withOwners() State {
	next := s
	next.Owners = maps.Clone(s.Owners)
	if next.Owners == nil {
		next.Owners = map[string]OwnerState{}
	}
	return next
}

// OwnerState holds the rows of one employee or external person together with
// the bookkeeping needed to save them.
type OwnerState struct {
	Owner      staffattendance.Owner
	Name       string
	Rows       []FormAttendance
	Validation map[string]RowValidation
	Lock       *DepartureLock
	Conflict   *LockConflict
	// Acknowledged lets the user save despite a departure lock error.
	Acknowledged     bool
	PendingDeletions []uuid.UUID
	Deleted          map[uuid.UUID]struct{}
	// LastSaved is the content of each row as the server last confirmed it,
	// keyed by tracking id.
	LastSaved map[string]SavedRow
}

func newOwnerState(owner staffattendance.Owner, name string) OwnerState {
	return OwnerState{
		Owner:      owner,
		Name:       name,
		Validation: map[string]RowValidation{},
		Deleted:    map[uuid.UUID]struct{}{},
		LastSaved:  map[string]SavedRow{},
	}
}

// detach copies everything a reducer step may write to.
func (o OwnerState) detach() OwnerState {
	o.Rows = slices.Clone(o.Rows)
	o.PendingDeletions = slices.Clone(o.PendingDeletions)
	o.Validation = maps.Clone(o.Validation)
	o.Deleted = maps.Clone(o.Deleted)
	o.LastSaved = maps.Clone(o.LastSaved)
	if o.Deleted == nil {
		o.Deleted = map[uuid.UUID]struct{}{}
	}
	if o.LastSaved == nil {
		o.LastSaved = map[string]SavedRow{}
	}
	return o
}

// HasStructuralError reports an unresolved departure lock problem.
func (o OwnerState) HasStructuralError() bool {
	return o.Conflict != nil || (o.Lock != nil && o.Lock.Error)
}

// Blocked reports whether saves are refused until the user fixes the rows or
// acknowledges the warning.
func (o OwnerState) Blocked() bool {
	return o.HasStructuralError() && !o.Acknowledged
}

// Row looks up a row by tracking id.
func (o OwnerState) Row(trackingID string) (FormAttendance, bool) {
	i := indexOf(o.Rows, trackingID)
	if i < 0 {
		return FormAttendance{}, false
	}
	return o.Rows[i], true
}

func (o *OwnerState) queueDeletions(ids []uuid.UUID) {
	for _, id := range ids {
		if _, ok := o.Deleted[id]; ok {
			continue
		}
		o.Deleted[id] = struct{}{}
		o.PendingDeletions = append(o.PendingDeletions, id)
	}
}

// seedLastSaved records rows that are identical to their server record as
// saved, so that partial saves skip them.
func (o *OwnerState) seedLastSaved(server []staffattendance.Attendance, loc *time.Location) {
	byID := make(map[uuid.UUID]SavedRow, len(server))
	for _, a := range server {
		byID[a.ID] = contentOf(FromAttendance(a, loc))
	}
	for _, r := range o.Rows {
		id, ok := r.LiveID()
		if !ok {
			continue
		}
		if content, ok := byID[id]; ok && content == contentOf(r) {
			o.LastSaved[r.TrackingID] = content
		}
	}
}
