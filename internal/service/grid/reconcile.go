package grid

import (
	"slices"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

// ReconcileInput is everything Reconcile looks at for one owner.
type ReconcileInput struct {
	Server []staffattendance.Attendance
	Local  []FormAttendance
	// Deleted holds ids queued for deletion in this session. They are never
	// brought back even if the server still returns them.
	Deleted         map[uuid.UUID]struct{}
	LastSaved       map[string]SavedRow
	OperationalDays []caltime.Date
	Editing         bool
	Location        *time.Location
	Alloc           IDAllocator
}

// Reconcile merges a fresh server snapshot into the local rows.
//
// Outside editing mode local edits are discarded. In editing mode the user's
// typed values win over the server's and only blank fields are filled from it.
// The result always has a row on every operational day and is sorted.
func Reconcile(in ReconcileInput) []FormAttendance {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	var rows []FormAttendance
	if !in.Editing {
		for _, a := range in.Server {
			if _, gone := in.Deleted[a.ID]; gone {
				continue
			}
			rows = append(rows, FromAttendance(a, loc))
		}
		return fillPlaceholders(rows, in.OperationalDays, blankRows(in.Local), in.Alloc)
	}

	used := make([]bool, len(in.Local))
	for _, a := range in.Server {
		if _, gone := in.Deleted[a.ID]; gone {
			continue
		}
		projected := FromAttendance(a, loc)

		i := matchByID(in.Local, used, a.ID)
		if i < 0 {
			rows = append(rows, projected)
			continue
		}
		used[i] = true
		rows = append(rows, mergeRow(in.Local[i], projected))
	}

	var candidates []FormAttendance
	for i, r := range in.Local {
		if used[i] {
			continue
		}
		if r.IsBlank() {
			if r.AttendanceID == nil {
				candidates = append(candidates, r)
			}
			continue
		}
		if r.HasLiveID() {
			// the server no longer has it; keep it only if the user changed it
			if saved, ok := in.LastSaved[r.TrackingID]; ok && saved == contentOf(r) {
				continue
			}
			r.WasDeleted = true
		}
		rows = append(rows, r)
	}

	return fillPlaceholders(rows, in.OperationalDays, candidates, in.Alloc)
}

// matchByID finds the local row of a server record: the row still pointing at
// it, or the unsaved row whose save in flight created it. Records matching
// no row are new to this session.
func matchByID(local []FormAttendance, used []bool, id uuid.UUID) int {
	for i, r := range local {
		if used[i] {
			continue
		}
		if liveID, ok := r.LiveID(); ok {
			if liveID == id {
				return i
			}
			continue
		}
		if r.PendingID != nil && *r.PendingID == id {
			return i
		}
	}
	return -1
}

func mergeRow(local, server FormAttendance) FormAttendance {
	out := local
	out.AttendanceID = server.AttendanceID
	out.PendingID = nil
	out.WasDeleted = false
	if out.GroupID == nil {
		out.GroupID = server.GroupID
	}
	if out.Type == "" {
		out.Type = server.Type
	}
	if out.StartTime == "" {
		out.StartTime = server.StartTime
		out.ArrivalDate = server.ArrivalDate
	}
	if out.EndTime == "" {
		out.EndTime = server.EndTime
		out.DepartureDate = server.DepartureDate
	}
	return out
}

func blankRows(rows []FormAttendance) []FormAttendance {
	var out []FormAttendance
	for _, r := range rows {
		if r.IsBlank() && r.AttendanceID == nil {
			out = append(out, r)
		}
	}
	return out
}

func covered(rows []FormAttendance, day caltime.Date) bool {
	return slices.ContainsFunc(rows, func(r FormAttendance) bool {
		return r.Covers(day)
	})
}

// fillPlaceholders adds a blank row on every uncovered day, reusing the
// tracking id of a candidate on that day when there is one.
func fillPlaceholders(rows []FormAttendance, days []caltime.Date, candidates []FormAttendance, alloc IDAllocator) []FormAttendance {
	out := slices.Clone(rows)
	taken := make([]bool, len(candidates))
	for _, day := range days {
		if covered(out, day) {
			continue
		}
		p := FormAttendance{}
		reused := false
		for i, c := range candidates {
			if !taken[i] && c.ArrivalDate == day {
				taken[i] = true
				p = placeholder(c.TrackingID, day)
				p.GroupID = c.GroupID
				if c.Type != "" {
					p.Type = c.Type
				}
				reused = true
				break
			}
		}
		if !reused {
			p = placeholder(alloc.Next(), day)
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, compareRows)
	return out
}
