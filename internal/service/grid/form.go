// Package grid is the attendance editing engine. Everything in it is pure:
// functions take rows and return new rows, and the only source of fresh
// identity is the IDAllocator passed in by the caller.
package grid

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

var ErrRowNotSavable = errors.New("row is not savable")

// FormAttendance is one editable row of the grid.
//
// A single-day row has DepartureDate equal to ArrivalDate. DepartureDate is nil
// only for an attendance that was still open on the server. A placeholder is a
// blank single-day row without an attendance id.
type FormAttendance struct {
	TrackingID    string
	AttendanceID  *uuid.UUID
	GroupID       *uuid.UUID
	Type          staffattendance.Type
	ArrivalDate   caltime.Date
	DepartureDate *caltime.Date
	StartTime     string
	EndTime       string
	// WasDeleted marks a row whose server record has been queued for deletion.
	// Saving it again creates a new record.
	WasDeleted bool
	// PendingID is the id a save in flight creates the row's record under.
	// It becomes the AttendanceID once the server confirms the record.
	PendingID *uuid.UUID
}

// IsBlank reports a row without start and end text.
func (r FormAttendance) IsBlank() bool {
	return r.StartTime == "" && r.EndTime == ""
}

// HasText reports whether either time cell holds any input.
func (r FormAttendance) HasText() bool {
	return !r.IsBlank()
}

// LiveID returns the id of the server record this row still refers to.
func (r FormAttendance) LiveID() (uuid.UUID, bool) {
	if r.AttendanceID == nil || r.WasDeleted {
		return uuid.Nil, false
	}
	return *r.AttendanceID, true
}

// HasLiveID reports whether the row refers to a server record.
func (r FormAttendance) HasLiveID() bool {
	_, ok := r.LiveID()
	return ok
}

// LastDay is the departure day, or the arrival day for open rows.
func (r FormAttendance) LastDay() caltime.Date {
	if r.DepartureDate != nil {
		return *r.DepartureDate
	}
	return r.ArrivalDate
}

// IsMultiDay reports whether the row departs after its arrival day.
func (r FormAttendance) IsMultiDay() bool {
	return r.LastDay().After(r.ArrivalDate)
}

// Covers reports whether d lies between arrival and departure.
func (r FormAttendance) Covers(d caltime.Date) bool {
	return !d.Before(r.ArrivalDate) && !d.After(r.LastDay())
}

func datePtr(d caltime.Date) *caltime.Date {
	return &d
}

func placeholder(trackingID string, day caltime.Date) FormAttendance {
	return FormAttendance{
		TrackingID:    trackingID,
		Type:          staffattendance.TypePresent,
		ArrivalDate:   day,
		DepartureDate: datePtr(day),
	}
}

// FromAttendance projects a persisted attendance into a row. The tracking id
// is the attendance id.
func FromAttendance(a staffattendance.Attendance, loc *time.Location) FormAttendance {
	id := a.ID
	group := a.GroupID
	row := FormAttendance{
		TrackingID:   id.String(),
		AttendanceID: &id,
		GroupID:      &group,
		Type:         a.Type,
		ArrivalDate:  caltime.DateIn(a.Arrived, loc),
		StartTime:    caltime.TimeOfDayOf(a.Arrived, loc).String(),
	}
	if row.Type == "" {
		row.Type = staffattendance.TypePresent
	}
	if a.Departed != nil {
		row.DepartureDate = datePtr(caltime.DateIn(*a.Departed, loc))
		row.EndTime = caltime.TimeOfDayOf(*a.Departed, loc).String()
	}
	return row
}

// ToUpsert builds the save request of a valid row. The row's group wins over
// the selected group; WasDeleted rows are sent without an id.
func ToUpsert(row FormAttendance, owner staffattendance.Owner, selectedGroup *uuid.UUID, loc *time.Location) (staffattendance.UpsertRequest, error) {
	start, res := caltime.ParseTimeOfDay(row.StartTime)
	if res != caltime.Valid {
		return staffattendance.UpsertRequest{}, ErrRowNotSavable
	}
	arrived := caltime.Combine(row.ArrivalDate, start, loc)

	var departed *time.Time
	if row.EndTime != "" {
		end, res := caltime.ParseTimeOfDay(row.EndTime)
		if res != caltime.Valid {
			return staffattendance.UpsertRequest{}, ErrRowNotSavable
		}
		t := caltime.Combine(row.LastDay(), end, loc)
		if !t.After(arrived) {
			return staffattendance.UpsertRequest{}, ErrRowNotSavable
		}
		departed = &t
	}

	group := row.GroupID
	if group == nil {
		group = selectedGroup
	}
	if group == nil {
		return staffattendance.UpsertRequest{}, staffattendance.ErrGroupRequired
	}

	req := staffattendance.UpsertRequest{
		GroupID:  *group,
		Type:     row.Type,
		Arrived:  arrived,
		Departed: departed,
	}
	if req.Type == "" {
		req.Type = staffattendance.TypePresent
	}
	if id, ok := row.LiveID(); ok {
		req.AttendanceID = &id
	}
	if owner.EmployeeID != nil {
		employeeID := *owner.EmployeeID
		req.EmployeeID = &employeeID
	} else {
		name := owner.ExternalName
		req.ExternalName = &name
	}
	return req, nil
}

// startKey orders rows of the same day: blank first, unparsable last.
func startKey(r FormAttendance) int {
	t, res := caltime.ParseTimeOfDay(r.StartTime)
	switch res {
	case caltime.Empty:
		return -1
	case caltime.Invalid:
		return 24 * 60
	}
	return t.Hour*60 + t.Minute
}

func compareRows(a, b FormAttendance) int {
	if c := a.ArrivalDate.Compare(b.ArrivalDate); c != 0 {
		return c
	}
	if c := cmp.Compare(startKey(a), startKey(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.TrackingID, b.TrackingID)
}

// sortedCopy returns the rows in arrival order without touching the input.
func sortedCopy(rows []FormAttendance) []FormAttendance {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, compareRows)
	return out
}

func indexOf(rows []FormAttendance, trackingID string) int {
	return slices.IndexFunc(rows, func(r FormAttendance) bool {
		return r.TrackingID == trackingID
	})
}

// SavedRow is the content of a row as last sent to the server.
type SavedRow struct {
	GroupID       uuid.NullUUID
	Type          staffattendance.Type
	ArrivalDate   caltime.Date
	DepartureDate caltime.Date
	Open          bool
	StartTime     string
	EndTime       string
}

func contentOf(r FormAttendance) SavedRow {
	c := SavedRow{
		Type:        r.Type,
		ArrivalDate: r.ArrivalDate,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
	}
	if r.GroupID != nil {
		c.GroupID = uuid.NullUUID{UUID: *r.GroupID, Valid: true}
	}
	if r.DepartureDate != nil {
		c.DepartureDate = *r.DepartureDate
	} else {
		c.Open = true
	}
	return c
}
