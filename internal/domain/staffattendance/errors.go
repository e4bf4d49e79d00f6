package staffattendance

import "errors"

// Staff attendance domain errors
var (
	// Attendance API errors
	ErrAttendanceNotFound = errors.New("staff attendance record not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrInvalidOwnerKey    = errors.New("invalid owner key")

	// Grid session errors
	ErrSessionNotFound = errors.New("grid session not found")
	ErrSessionClosed   = errors.New("grid session is closed")
	ErrOwnerNotFound   = errors.New("owner is not part of the grid session")
	ErrRowNotFound     = errors.New("grid row not found")
	ErrDepartureLocked = errors.New("day is locked until the open attendance gets a departure")
	ErrNotOvernight    = errors.New("row does not span multiple days")
	ErrSaveBlocked     = errors.New("unresolved departure conflict blocks saving")
	ErrNotEditing      = errors.New("grid session is not in editing mode")
	ErrInvalidField    = errors.New("invalid field value")
	ErrGroupRequired   = errors.New("no group for the attendance")
)
