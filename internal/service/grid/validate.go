package grid

import (
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/google/uuid"
)

type Problem string

const (
	ProblemMissingStart   Problem = "missing_start"
	ProblemInvalidStart   Problem = "invalid_start"
	ProblemInvalidEnd     Problem = "invalid_end"
	ProblemEndBeforeStart Problem = "end_before_start"
	ProblemDepartureLock  Problem = "departure_lock"
	// ProblemMissingGroup: neither the row nor the session names a group.
	ProblemMissingGroup Problem = "missing_group"
)

// RowValidation is the verdict on one row.
type RowValidation struct {
	Problems []Problem
	// Shown tells the UI to display the problems. Blank rows are never shown
	// as invalid, they are just unsaved.
	Shown bool
}

// Valid reports a row without problems.
func (v RowValidation) Valid() bool {
	return len(v.Problems) == 0
}

// Structural reports whether the row is part of an unresolved departure lock.
func (v RowValidation) Structural() bool {
	for _, p := range v.Problems {
		if p == ProblemDepartureLock {
			return true
		}
	}
	return false
}

// Malformed reports a parse or range problem. Persisted rows in this state
// are deleted on the server.
func (v RowValidation) Malformed() bool {
	for _, p := range v.Problems {
		if p != ProblemDepartureLock && p != ProblemMissingGroup {
			return true
		}
	}
	return false
}

// MissingGroup reports a row that cannot be saved until it gets a group.
func (v RowValidation) MissingGroup() bool {
	for _, p := range v.Problems {
		if p == ProblemMissingGroup {
			return true
		}
	}
	return false
}

// Validate checks every row. conflict and selectedGroup may be nil.
func Validate(rows []FormAttendance, lock *DepartureLock, conflict *LockConflict, selectedGroup *uuid.UUID) map[string]RowValidation {
	out := make(map[string]RowValidation, len(rows))
	for _, r := range rows {
		v := RowValidation{Problems: rowProblems(r)}
		if r.HasText() && r.GroupID == nil && selectedGroup == nil {
			v.Problems = append(v.Problems, ProblemMissingGroup)
		}
		if lock != nil && r.TrackingID == lock.TrackingID && lock.Error {
			v.Problems = append(v.Problems, ProblemDepartureLock)
		} else if conflict != nil && r.TrackingID == conflict.TrackingID {
			v.Problems = append(v.Problems, ProblemDepartureLock)
		}
		v.Shown = !v.Valid() && r.HasText()
		out[r.TrackingID] = v
	}
	return out
}

func rowProblems(r FormAttendance) []Problem {
	if r.IsBlank() {
		return nil
	}

	var problems []Problem
	start, startRes := caltime.ParseTimeOfDay(r.StartTime)
	end, endRes := caltime.ParseTimeOfDay(r.EndTime)

	switch startRes {
	case caltime.Empty:
		problems = append(problems, ProblemMissingStart)
	case caltime.Invalid:
		problems = append(problems, ProblemInvalidStart)
	}
	if endRes == caltime.Invalid {
		problems = append(problems, ProblemInvalidEnd)
	}

	if startRes == caltime.Valid && endRes == caltime.Valid && !r.IsMultiDay() && !end.After(start) {
		problems = append(problems, ProblemEndBeforeStart)
	}
	return problems
}
