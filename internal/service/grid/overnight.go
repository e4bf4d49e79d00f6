package grid

import (
	"slices"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

// DepartureLock is the earliest row that has an arrival but no departure yet.
// No new arrival may start on or after LockedFrom until it gets one.
type DepartureLock struct {
	TrackingID  string
	ArrivalDate caltime.Date
	LockedFrom  caltime.Date
	// Error is set when a later row already has an arrival.
	Error bool
}

// ConflictReason explains why a departure lock could not be resolved
// automatically.
type ConflictReason string

const (
	ConflictNoDeparture      ConflictReason = "no_departure"
	ConflictArrivalBetween   ConflictReason = "arrival_between"
	ConflictPersistedArrival ConflictReason = "persisted_arrival"
	ConflictGroupMismatch    ConflictReason = "group_mismatch"
)

// LockConflict is a row that starts inside another row's locked range.
type LockConflict struct {
	TrackingID string
	Reason     ConflictReason
	// With is the departure row the lock could not be merged with, if any.
	With string
}

func isLockRow(r FormAttendance) bool {
	return r.StartTime != "" && r.EndTime == ""
}

func lockIndex(sorted []FormAttendance) int {
	return slices.IndexFunc(sorted, isLockRow)
}

// FindDepartureLock returns nil when every arrival has a departure.
func FindDepartureLock(rows []FormAttendance) *DepartureLock {
	sorted := sortedCopy(rows)
	li := lockIndex(sorted)
	if li < 0 {
		return nil
	}
	lock := sorted[li]
	return &DepartureLock{
		TrackingID:  lock.TrackingID,
		ArrivalDate: lock.ArrivalDate,
		LockedFrom:  LockedFrom(lock),
		Error: slices.ContainsFunc(sorted[li+1:], func(r FormAttendance) bool {
			return r.StartTime != ""
		}),
	}
}

// LockedFrom is the first day on which no arrival may start while row is the
// departure lock.
func LockedFrom(row FormAttendance) caltime.Date {
	return row.ArrivalDate.AddDays(1)
}

// IsLocked reports whether starting an arrival on day is refused by lock.
func (l *DepartureLock) IsLocked(day caltime.Date) bool {
	return l != nil && !day.Before(l.LockedFrom)
}

// Resolution is the outcome of ResolveDepartureLock.
type Resolution struct {
	Rows []FormAttendance
	// Deleted are server ids of rows merged away.
	Deleted  []uuid.UUID
	Conflict *LockConflict
}

// ResolveDepartureLock repairs the departure lock as far as it can without
// losing data: a multi-day row whose end was cleared is split back into an
// arrival row, and an open arrival is merged with the first later departure.
func ResolveDepartureLock(rows []FormAttendance, alloc IDAllocator) Resolution {
	res := Resolution{Rows: sortedCopy(rows)}

	// every pass either removes a lock or stops
	for range len(rows) + 2 {
		li := lockIndex(res.Rows)
		if li < 0 {
			return res
		}
		lock := res.Rows[li]
		if _, parsed := caltime.ParseTimeOfDay(lock.StartTime); parsed != caltime.Valid {
			return res
		}

		if lock.IsMultiDay() {
			res.Rows = splitClearedDeparture(res.Rows, li, alloc)
			continue
		}

		later := res.Rows[li+1:]
		if !slices.ContainsFunc(later, FormAttendance.HasText) {
			return res
		}

		vi := slices.IndexFunc(later, func(r FormAttendance) bool { return r.EndTime != "" })
		if vi < 0 {
			res.Conflict = &LockConflict{TrackingID: lock.TrackingID, Reason: ConflictNoDeparture}
			return res
		}
		if slices.ContainsFunc(later[:vi], func(r FormAttendance) bool { return r.StartTime != "" }) {
			res.Conflict = &LockConflict{TrackingID: lock.TrackingID, Reason: ConflictArrivalBetween}
			return res
		}

		departure := later[vi]
		conflict := mergeConflict(lock, departure)
		if conflict != "" {
			res.Conflict = &LockConflict{TrackingID: lock.TrackingID, Reason: conflict, With: departure.TrackingID}
			return res
		}

		var deleted []uuid.UUID
		res.Rows, deleted = mergeDeparture(res.Rows, li, li+1+vi)
		res.Deleted = append(res.Deleted, deleted...)
	}
	return res
}

func mergeConflict(lock, departure FormAttendance) ConflictReason {
	if departure.StartTime != "" && departure.HasLiveID() {
		return ConflictPersistedArrival
	}
	if lock.GroupID != nil && departure.GroupID != nil && *lock.GroupID != *departure.GroupID {
		return ConflictGroupMismatch
	}
	return ""
}

// mergeDeparture extends rows[li] up to the departure of rows[di] and drops
// every row arriving after the lock up to and including that day.
func mergeDeparture(rows []FormAttendance, li, di int) ([]FormAttendance, []uuid.UUID) {
	lock := rows[li]
	departure := rows[di]

	newDeparture := departure.LastDay()
	lock.DepartureDate = datePtr(newDeparture)
	lock.EndTime = departure.EndTime
	if lock.GroupID == nil {
		lock.GroupID = departure.GroupID
	}

	var deleted []uuid.UUID
	out := make([]FormAttendance, 0, len(rows))
	for i, r := range rows {
		switch {
		case i == li:
			out = append(out, lock)
			continue
		case i == di, r.ArrivalDate.After(lock.ArrivalDate) && !r.ArrivalDate.After(newDeparture):
			if id, ok := r.LiveID(); ok {
				deleted = append(deleted, id)
			}
			continue
		}
		out = append(out, r)
	}
	return out, deleted
}

// splitClearedDeparture turns a multi-day row without an end back into an open
// arrival on its first day. The original row moves to the departure day with
// a blank start and keeps its identity.
func splitClearedDeparture(rows []FormAttendance, li int, alloc IDAllocator) []FormAttendance {
	lock := rows[li]
	arrivalDay := lock.ArrivalDate
	departureDay := lock.LastDay()

	arrival := FormAttendance{
		TrackingID:    alloc.Next(),
		GroupID:       lock.GroupID,
		Type:          lock.Type,
		ArrivalDate:   arrivalDay,
		DepartureDate: datePtr(arrivalDay),
		StartTime:     lock.StartTime,
	}

	lock.ArrivalDate = departureDay
	lock.DepartureDate = datePtr(departureDay)
	lock.StartTime = ""

	out := slices.Clone(rows)
	out[li] = lock
	out = append(out, arrival)
	out = append(out, fillers(arrivalDay, departureDay, alloc)...)
	slices.SortStableFunc(out, compareRows)
	return out
}

// fillers returns blank rows for the days strictly between from and to.
func fillers(from, to caltime.Date, alloc IDAllocator) []FormAttendance {
	var out []FormAttendance
	for d := from.AddDays(1); d.Before(to); d = d.AddDays(1) {
		out = append(out, placeholder(alloc.Next(), d))
	}
	return out
}

// Side names the half of an overnight row that keeps its identity on Unlink.
type Side int

const (
	SideArrival Side = iota
	SideDeparture
)

// ParseSide reads the side name used by the API.
func ParseSide(s string) (Side, bool) {
	switch s {
	case staffattendance.SideArrival:
		return SideArrival, true
	case staffattendance.SideDeparture:
		return SideDeparture, true
	}
	return 0, false
}

// Unlink splits a multi-day row into an arrival row ending 23:59 and a
// departure row starting 00:00, with blank rows for the days in between.
func Unlink(rows []FormAttendance, trackingID string, side Side, alloc IDAllocator) ([]FormAttendance, error) {
	i := indexOf(rows, trackingID)
	if i < 0 {
		return nil, staffattendance.ErrRowNotFound
	}
	row := rows[i]
	if !row.IsMultiDay() {
		return nil, staffattendance.ErrNotOvernight
	}

	arrivalDay := row.ArrivalDate
	departureDay := row.LastDay()

	arrival := row
	arrival.DepartureDate = datePtr(arrivalDay)
	arrival.EndTime = caltime.EndOfDay.String()

	departure := row
	departure.ArrivalDate = departureDay
	departure.DepartureDate = datePtr(departureDay)
	departure.StartTime = caltime.StartOfDay.String()

	fresh := func(r FormAttendance) FormAttendance {
		r.TrackingID = alloc.Next()
		r.AttendanceID = nil
		r.PendingID = nil
		r.WasDeleted = false
		return r
	}
	if side == SideArrival {
		departure = fresh(departure)
	} else {
		arrival = fresh(arrival)
	}

	out := slices.Clone(rows)
	out[i] = arrival
	out = append(out, departure)
	out = append(out, fillers(arrivalDay, departureDay, alloc)...)
	slices.SortStableFunc(out, compareRows)
	return out, nil
}
