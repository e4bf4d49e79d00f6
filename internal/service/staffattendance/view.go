package staffattendance

import (
	"cmp"
	"slices"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/service/grid"
)

func (s *SessionServiceImpl) view(sess *session) staffattendance.SessionResponse {
	sess.mu.Lock()
	state := sess.state
	sess.mu.Unlock()

	resp := staffattendance.SessionResponse{
		ID:              sess.id.String(),
		UnitID:          sess.unitID.String(),
		Start:           sess.dates.Start.String(),
		End:             sess.dates.End.String(),
		Editing:         state.Editing,
		OperationalDays: make([]string, 0, len(state.OperationalDays)),
		Owners:          make([]staffattendance.OwnerResponse, 0, len(state.Owners)),
	}
	if state.SelectedGroupID != nil {
		id := state.SelectedGroupID.String()
		resp.GroupID = &id
	}
	for _, d := range state.OperationalDays {
		resp.OperationalDays = append(resp.OperationalDays, d.String())
	}

	for _, o := range sortedOwners(state) {
		resp.Owners = append(resp.Owners, s.ownerResponse(o))
	}
	return resp
}

// sortedOwners lists employees before external persons, each by name.
func sortedOwners(state grid.State) []grid.OwnerState {
	owners := make([]grid.OwnerState, 0, len(state.Owners))
	for _, key := range state.OwnerKeys() {
		owners = append(owners, state.Owners[key])
	}
	slices.SortStableFunc(owners, func(a, b grid.OwnerState) int {
		if a.Owner.IsExternal() != b.Owner.IsExternal() {
			if a.Owner.IsExternal() {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return owners
}

func (s *SessionServiceImpl) ownerResponse(o grid.OwnerState) staffattendance.OwnerResponse {
	key := o.Owner.Key()
	resp := staffattendance.OwnerResponse{
		Key:              key,
		Name:             o.Name,
		QueueStatus:      string(s.queue.Status(key)),
		PendingSaves:     s.queue.Pending(key),
		Lock:             lockResponse(o),
		Acknowledged:     o.Acknowledged,
		PendingDeletions: len(o.PendingDeletions),
		Rows:             make([]staffattendance.RowResponse, 0, len(o.Rows)),
	}
	if o.Owner.EmployeeID != nil {
		id := o.Owner.EmployeeID.String()
		resp.EmployeeID = &id
	} else {
		name := o.Owner.ExternalName
		resp.ExternalName = &name
	}

	for _, row := range o.Rows {
		resp.Rows = append(resp.Rows, rowResponse(row, o.Validation[row.TrackingID]))
	}
	return resp
}

func lockResponse(o grid.OwnerState) *staffattendance.LockResponse {
	if o.Lock == nil && o.Conflict == nil {
		return nil
	}

	var resp staffattendance.LockResponse
	if o.Lock != nil {
		resp = staffattendance.LockResponse{
			TrackingID:  o.Lock.TrackingID,
			ArrivalDate: o.Lock.ArrivalDate.String(),
			LockedFrom:  o.Lock.LockedFrom.String(),
			Error:       o.Lock.Error,
		}
	}
	if o.Conflict != nil {
		reason := string(o.Conflict.Reason)
		resp.Conflict = &reason
		resp.Error = true
		if resp.TrackingID == "" {
			resp.TrackingID = o.Conflict.TrackingID
		}
	}
	return &resp
}

func rowResponse(row grid.FormAttendance, v grid.RowValidation) staffattendance.RowResponse {
	resp := staffattendance.RowResponse{
		TrackingID:  row.TrackingID,
		Type:        row.Type,
		ArrivalDate: row.ArrivalDate.String(),
		StartTime:   row.StartTime,
		EndTime:     row.EndTime,
		WasDeleted:  row.WasDeleted,
		Problems:    make([]string, 0, len(v.Problems)),
		ShowWarning: v.Shown,
	}
	if row.AttendanceID != nil {
		id := row.AttendanceID.String()
		resp.AttendanceID = &id
	}
	if row.GroupID != nil {
		id := row.GroupID.String()
		resp.GroupID = &id
	}
	if row.DepartureDate != nil {
		d := row.DepartureDate.String()
		resp.DepartureDate = &d
	}
	for _, p := range v.Problems {
		resp.Problems = append(resp.Problems, string(p))
	}
	return resp
}
