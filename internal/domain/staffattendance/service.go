package staffattendance

import (
	"context"

	"github.com/google/uuid"
)

// StaffAttendanceService is the persistence-backed attendance API the grid
// sessions talk to.
type StaffAttendanceService interface {
	// Fetch returns the unit's staff with their attendances and the external
	// staff attendances overlapping the range
	Fetch(ctx context.Context, unitID uuid.UUID, r DateRange) (FetchResult, error)

	// Upsert creates or updates all attendances in one transaction
	Upsert(ctx context.Context, reqs []UpsertRequest) error

	// Delete deletes each id independently and reports a result per id
	Delete(ctx context.Context, req DeleteRequest) []DeleteResult
}

// GridSessionService drives server-side attendance grid editing sessions.
type GridSessionService interface {
	Open(ctx context.Context, req OpenSessionRequest) (SessionResponse, error)
	Get(ctx context.Context, sessionID uuid.UUID) (SessionResponse, error)

	// SetEditing toggles editing mode. Leaving editing mode performs a
	// closing save first.
	SetEditing(ctx context.Context, sessionID uuid.UUID, editing bool) (SessionResponse, error)

	EditRow(ctx context.Context, req EditRowRequest) (SessionResponse, error)
	StartArrival(ctx context.Context, req StartArrivalRequest) (SessionResponse, error)
	Unlink(ctx context.Context, req UnlinkRequest) (SessionResponse, error)
	Acknowledge(ctx context.Context, sessionID uuid.UUID, ownerKey string) (SessionResponse, error)

	// Refresh re-fetches the session's range and reconciles it
	Refresh(ctx context.Context, sessionID uuid.UUID) (SessionResponse, error)

	// Save enqueues one save per owner and waits for all of them
	Save(ctx context.Context, sessionID uuid.UUID, req SaveRequest) (SessionResponse, error)

	// Close performs a closing save and tears the session down. The session
	// stays open when the save fails.
	Close(ctx context.Context, sessionID uuid.UUID) error

	// Export renders the session's week as a spreadsheet
	Export(ctx context.Context, sessionID uuid.UUID) ([]byte, error)

	// Subscribe streams session events until ctx is done
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan SessionEvent, error)
}

// Session event types.
const (
	EventQueueStatus = "queue_status"
	EventSaved       = "saved"
	EventSaveFailed  = "save_failed"
	EventUpdated     = "updated"
	EventClosed      = "closed"
)

// SessionEvent is pushed to subscribers of a session.
type SessionEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
