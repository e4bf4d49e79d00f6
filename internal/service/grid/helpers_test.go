package grid

import (
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

var (
	mon  = caltime.NewDate(2024, time.June, 3)
	tue  = mon.AddDays(1)
	wed  = mon.AddDays(2)
	thu  = mon.AddDays(3)
	fri  = mon.AddDays(4)
	week = []caltime.Date{mon, tue, wed, thu, fri}

	groupA = uuid.MustParse("0190a8f1-0000-7000-8000-00000000000a")
	groupB = uuid.MustParse("0190a8f1-0000-7000-8000-00000000000b")

	employee    = uuid.MustParse("0190a8f1-0000-7000-8000-0000000000e1")
	employeeKey = staffattendance.EmployeeOwner(employee).Key()
)

func at(d caltime.Date, hour, minute int) time.Time {
	return caltime.Combine(d, caltime.TimeOfDay{Hour: hour, Minute: minute}, time.UTC)
}

func ptr[T any](v T) *T {
	return &v
}

func attendance(id uuid.UUID, arrived time.Time, departed *time.Time) staffattendance.Attendance {
	return staffattendance.Attendance{
		ID:         id,
		EmployeeID: ptr(employee),
		GroupID:    groupA,
		Type:       staffattendance.TypePresent,
		Arrived:    arrived,
		Departed:   departed,
	}
}

func textRows(rows []FormAttendance) []FormAttendance {
	var out []FormAttendance
	for _, r := range rows {
		if r.HasText() {
			out = append(out, r)
		}
	}
	return out
}

func rowsOn(rows []FormAttendance, day caltime.Date) []FormAttendance {
	var out []FormAttendance
	for _, r := range rows {
		if r.ArrivalDate == day {
			out = append(out, r)
		}
	}
	return out
}

func localRow(trackingID string, day caltime.Date, start, end string) FormAttendance {
	return FormAttendance{
		TrackingID:    trackingID,
		Type:          staffattendance.TypePresent,
		ArrivalDate:   day,
		DepartureDate: ptr(day),
		StartTime:     start,
		EndTime:       end,
	}
}

// openSession returns a state holding the employee's rows after the server
// snapshot arrived.
func openSession(r *Reducer, editing bool, server ...staffattendance.Attendance) State {
	s := NewState(week, time.UTC, ptr(groupA), editing)
	s, err := r.Reduce(s, ServerDataArrived{Owners: []OwnerData{{
		Owner:       staffattendance.EmployeeOwner(employee),
		Name:        "Test Employee",
		Attendances: server,
	}}})
	if err != nil {
		panic(err)
	}
	return s
}
