package staffattendance

import (
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/caltime"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/validator"
	"github.com/google/uuid"
)

// MaxRangeDays bounds both fetches and grid sessions.
const MaxRangeDays = 42

// ========================================
// ATTENDANCE API DTOs
// ========================================

type FetchRequest struct {
	UnitID uuid.UUID
	Start  string `json:"start" validate:"required"`
	End    string `json:"end" validate:"required"`
}

// Validate checks the request and returns the parsed range.
func (r *FetchRequest) Validate() (DateRange, error) {
	errs := validator.Struct(r)
	if errs.Err() != nil {
		return DateRange{}, errs
	}

	start, err := caltime.ParseDate(r.Start)
	if err != nil {
		errs.Add("start", "start must be in YYYY-MM-DD format")
	}
	end, err := caltime.ParseDate(r.End)
	if err != nil {
		errs.Add("end", "end must be in YYYY-MM-DD format")
	}
	if errs.Err() != nil {
		return DateRange{}, errs
	}

	return validateRange(start, end)
}

func validateRange(start, end caltime.Date) (DateRange, error) {
	var errs validator.ValidationErrors
	if end.Before(start) {
		errs.Add("end", "end must not be before start")
	} else if start.DaysUntil(end) >= MaxRangeDays {
		errs.Add("end", "range must not exceed 42 days")
	}
	if errs.Err() != nil {
		return DateRange{}, errs
	}
	return DateRange{Start: start, End: end}, nil
}

type UpsertRequest struct {
	AttendanceID *uuid.UUID `json:"attendance_id,omitempty"`
	EmployeeID   *uuid.UUID `json:"employee_id,omitempty"`
	ExternalName *string    `json:"external_name,omitempty"`
	GroupID      uuid.UUID  `json:"group_id" validate:"required"`
	Type         Type       `json:"type" validate:"required,oneof=PRESENT OTHER_WORK TRAINING"`
	Arrived      time.Time  `json:"arrived" validate:"required"`
	Departed     *time.Time `json:"departed,omitempty"`
}

func (r *UpsertRequest) Validate() error {
	errs := validator.Struct(r)

	hasEmployee := r.EmployeeID != nil
	hasExternal := r.ExternalName != nil && !validator.IsEmpty(*r.ExternalName)
	if hasEmployee == hasExternal {
		errs.Add("employee_id", "exactly one of employee_id and external_name is required")
	}

	if r.Departed != nil && !r.Departed.After(r.Arrived) {
		errs.Add("departed", "departed must be after arrived")
	}

	return errs.Err()
}

func (r *UpsertRequest) Owner() Owner {
	if r.EmployeeID != nil {
		return EmployeeOwner(*r.EmployeeID)
	}
	if r.ExternalName != nil {
		return ExternalOwner(*r.ExternalName)
	}
	return Owner{}
}

// ToAttendance builds the record to persist. A nil AttendanceID yields a new id.
func (r *UpsertRequest) ToAttendance() Attendance {
	a := Attendance{
		EmployeeID: r.EmployeeID,
		GroupID:    r.GroupID,
		Type:       r.Type,
		Arrived:    r.Arrived,
		Departed:   r.Departed,
	}
	if r.AttendanceID != nil {
		a.ID = *r.AttendanceID
	} else {
		a.ID = uuid.New()
	}
	if r.EmployeeID == nil && r.ExternalName != nil {
		name := ExternalOwner(*r.ExternalName).ExternalName
		a.ExternalName = &name
	}
	return a
}

type UpsertBatchRequest struct {
	Attendances []UpsertRequest `json:"attendances"`
}

type DeleteRequest struct {
	AttendanceIDs         []uuid.UUID `json:"attendance_ids"`
	ExternalAttendanceIDs []uuid.UUID `json:"external_attendance_ids"`
}

func (r *DeleteRequest) IsEmpty() bool {
	return len(r.AttendanceIDs) == 0 && len(r.ExternalAttendanceIDs) == 0
}

type AttendanceResponse struct {
	ID           string  `json:"id"`
	EmployeeID   *string `json:"employee_id,omitempty"`
	ExternalName *string `json:"external_name,omitempty"`
	GroupID      string  `json:"group_id"`
	Type         Type    `json:"type"`
	Arrived      string  `json:"arrived"`
	Departed     *string `json:"departed,omitempty"`
}

type StaffMemberResponse struct {
	EmployeeID  string               `json:"employee_id"`
	FirstName   string               `json:"first_name"`
	LastName    string               `json:"last_name"`
	GroupIDs    []string             `json:"group_ids"`
	Attendances []AttendanceResponse `json:"attendances"`
}

type FetchResponse struct {
	Staff         []StaffMemberResponse `json:"staff"`
	ExternalStaff []AttendanceResponse  `json:"external_staff"`
}

type DeleteResultResponse struct {
	ID       string  `json:"id"`
	External bool    `json:"external"`
	Error    *string `json:"error,omitempty"`
}

func NewAttendanceResponse(a Attendance) AttendanceResponse {
	resp := AttendanceResponse{
		ID:           a.ID.String(),
		ExternalName: a.ExternalName,
		GroupID:      a.GroupID.String(),
		Type:         a.Type,
		Arrived:      a.Arrived.Format(time.RFC3339),
	}
	if a.EmployeeID != nil {
		id := a.EmployeeID.String()
		resp.EmployeeID = &id
	}
	if a.Departed != nil {
		departed := a.Departed.Format(time.RFC3339)
		resp.Departed = &departed
	}
	return resp
}

func NewFetchResponse(res FetchResult) FetchResponse {
	out := FetchResponse{
		Staff:         make([]StaffMemberResponse, 0, len(res.Staff)),
		ExternalStaff: make([]AttendanceResponse, 0, len(res.ExternalStaff)),
	}
	for _, m := range res.Staff {
		member := StaffMemberResponse{
			EmployeeID:  m.EmployeeID.String(),
			FirstName:   m.FirstName,
			LastName:    m.LastName,
			GroupIDs:    make([]string, 0, len(m.GroupIDs)),
			Attendances: make([]AttendanceResponse, 0, len(m.Attendances)),
		}
		for _, g := range m.GroupIDs {
			member.GroupIDs = append(member.GroupIDs, g.String())
		}
		for _, a := range m.Attendances {
			member.Attendances = append(member.Attendances, NewAttendanceResponse(a))
		}
		out.Staff = append(out.Staff, member)
	}
	for _, a := range res.ExternalStaff {
		out.ExternalStaff = append(out.ExternalStaff, NewAttendanceResponse(a))
	}
	return out
}

func NewDeleteResultResponses(results []DeleteResult) []DeleteResultResponse {
	out := make([]DeleteResultResponse, 0, len(results))
	for _, r := range results {
		item := DeleteResultResponse{ID: r.ID.String(), External: r.External}
		if r.Err != nil {
			msg := r.Err.Error()
			item.Error = &msg
		}
		out = append(out, item)
	}
	return out
}

// ========================================
// GRID SESSION DTOs
// ========================================

// Editable row fields.
const (
	FieldStartTime = "start_time"
	FieldEndTime   = "end_time"
	FieldGroupID   = "group_id"
	FieldType      = "type"
)

// Sides of an overnight row.
const (
	SideArrival   = "arrival"
	SideDeparture = "departure"
)

// Save modes.
const (
	SaveModePartial = "partial"
	SaveModeClosing = "closing"
)

type OpenSessionRequest struct {
	UnitID  uuid.UUID    `json:"unit_id" validate:"required"`
	Start   caltime.Date `json:"start"`
	End     caltime.Date `json:"end"`
	GroupID *uuid.UUID   `json:"group_id,omitempty"`
	Editing bool         `json:"editing"`
}

// Validate checks the request and returns the session's range.
func (r *OpenSessionRequest) Validate() (DateRange, error) {
	errs := validator.Struct(r)
	if r.Start.IsZero() {
		errs.Add("start", "start is required")
	}
	if r.End.IsZero() {
		errs.Add("end", "end is required")
	}
	if errs.Err() != nil {
		return DateRange{}, errs
	}
	return validateRange(r.Start, r.End)
}

type EditRowRequest struct {
	SessionID  uuid.UUID
	TrackingID string
	OwnerKey   string `json:"owner_key" validate:"required"`
	Field      string `json:"field" validate:"required,oneof=start_time end_time group_id type"`
	Value      string `json:"value"`
}

func (r *EditRowRequest) Validate() error {
	errs := validator.Struct(r)
	if validator.IsEmpty(r.TrackingID) {
		errs.Add("tracking_id", "tracking_id is required")
	}
	return errs.Err()
}

type StartArrivalRequest struct {
	SessionID uuid.UUID
	OwnerKey  string
	Date      caltime.Date `json:"date"`
	StartTime string       `json:"start_time" validate:"required"`
}

func (r *StartArrivalRequest) Validate() error {
	errs := validator.Struct(r)
	if r.Date.IsZero() {
		errs.Add("date", "date is required")
	}
	return errs.Err()
}

type UnlinkRequest struct {
	SessionID  uuid.UUID
	TrackingID string
	OwnerKey   string `json:"owner_key" validate:"required"`
	Side       string `json:"side" validate:"required,oneof=arrival departure"`
}

func (r *UnlinkRequest) Validate() error {
	return validator.Struct(r).Err()
}

type SetEditingRequest struct {
	Editing bool `json:"editing"`
}

type SaveRequest struct {
	Mode     string `json:"mode" validate:"required,oneof=partial closing"`
	OwnerKey string `json:"owner_key,omitempty"`
}

func (r *SaveRequest) Validate() error {
	return validator.Struct(r).Err()
}

type RowResponse struct {
	TrackingID    string   `json:"tracking_id"`
	AttendanceID  *string  `json:"attendance_id,omitempty"`
	GroupID       *string  `json:"group_id,omitempty"`
	Type          Type     `json:"type"`
	ArrivalDate   string   `json:"arrival_date"`
	DepartureDate *string  `json:"departure_date,omitempty"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	WasDeleted    bool     `json:"was_deleted"`
	Problems      []string `json:"problems"`
	ShowWarning   bool     `json:"show_warning"`
}

type LockResponse struct {
	TrackingID  string  `json:"tracking_id"`
	ArrivalDate string  `json:"arrival_date"`
	LockedFrom  string  `json:"locked_from"`
	Error       bool    `json:"error"`
	Conflict    *string `json:"conflict,omitempty"`
}

type OwnerResponse struct {
	Key              string        `json:"key"`
	EmployeeID       *string       `json:"employee_id,omitempty"`
	ExternalName     *string       `json:"external_name,omitempty"`
	Name             string        `json:"name"`
	QueueStatus      string        `json:"queue_status"`
	PendingSaves     int           `json:"pending_saves"`
	Lock             *LockResponse `json:"lock,omitempty"`
	Acknowledged     bool          `json:"acknowledged"`
	PendingDeletions int           `json:"pending_deletions"`
	Rows             []RowResponse `json:"rows"`
}

type SessionResponse struct {
	ID              string          `json:"id"`
	UnitID          string          `json:"unit_id"`
	Start           string          `json:"start"`
	End             string          `json:"end"`
	Editing         bool            `json:"editing"`
	GroupID         *string         `json:"group_id,omitempty"`
	OperationalDays []string        `json:"operational_days"`
	Owners          []OwnerResponse `json:"owners"`
}
