package grid

import (
	"slices"

	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

// Run brings one owner's rows back to a consistent state after any change:
// resolve the departure lock, normalize placeholders, validate, and queue
// deletions for persisted rows that were blanked or became invalid.
// o must already be detached from the previous state. selectedGroup is the
// group new rows are saved under when they name none; it may be nil.
func Run(o OwnerState, days []caltime.Date, selectedGroup *uuid.UUID, alloc IDAllocator) OwnerState {
	res := ResolveDepartureLock(o.Rows, alloc)
	rows, blanked := normalize(res.Rows, days, alloc)

	conflict := res.Conflict
	if conflict != nil && indexOf(rows, conflict.TrackingID) < 0 {
		conflict = nil
	}
	lock := FindDepartureLock(rows)
	validation := Validate(rows, lock, conflict, selectedGroup)

	var invalidated []uuid.UUID
	for i, r := range rows {
		if !validation[r.TrackingID].Malformed() {
			continue
		}
		if id, ok := r.LiveID(); ok {
			invalidated = append(invalidated, id)
			rows[i].WasDeleted = true
			delete(o.LastSaved, r.TrackingID)
		}
	}

	o.Rows = rows
	o.Lock = lock
	o.Conflict = conflict
	o.Validation = validation
	o.queueDeletions(res.Deleted)
	o.queueDeletions(blanked)
	o.queueDeletions(invalidated)
	if !o.HasStructuralError() {
		o.Acknowledged = false
	}
	for key := range o.LastSaved {
		if indexOf(rows, key) < 0 {
			delete(o.LastSaved, key)
		}
	}
	return o
}

// normalize drops blank rows that are not needed as placeholders and makes
// sure every operational day is covered. Blank rows still pointing at a
// server record are returned for deletion.
func normalize(rows []FormAttendance, days []caltime.Date, alloc IDAllocator) ([]FormAttendance, []uuid.UUID) {
	var (
		kept    []FormAttendance
		blanks  []FormAttendance
		deleted []uuid.UUID
	)
	for _, r := range rows {
		switch {
		case r.HasText():
			kept = append(kept, r)
		case r.HasLiveID():
			deleted = append(deleted, *r.AttendanceID)
		case r.AttendanceID == nil:
			blanks = append(blanks, r)
		}
	}
	return fillPlaceholders(kept, days, blanks, alloc), deleted
}

// SavableRows returns the rows a closing save would send.
func SavableRows(o OwnerState) []FormAttendance {
	return slices.DeleteFunc(slices.Clone(o.Rows), func(r FormAttendance) bool {
		return !savable(o, r)
	})
}

func savable(o OwnerState, r FormAttendance) bool {
	if r.StartTime == "" {
		return false
	}
	v := o.Validation[r.TrackingID]
	if v.Malformed() || v.MissingGroup() {
		return false
	}
	return !v.Structural() || o.Acknowledged
}
