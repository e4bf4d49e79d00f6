package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type StaffAttendanceHandler interface {
	Fetch(w http.ResponseWriter, r *http.Request)
	Upsert(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

type staffAttendanceHandlerImpl struct {
	staffAttendanceService staffattendance.StaffAttendanceService
}

func NewStaffAttendanceHandler(staffAttendanceService staffattendance.StaffAttendanceService) StaffAttendanceHandler {
	return &staffAttendanceHandlerImpl{
		staffAttendanceService: staffAttendanceService,
	}
}

// uuidParam parses a UUID URL parameter and writes a 400 when it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.BadRequest(w, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("Request decode error", "path", r.URL.Path, "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return false
	}
	return true
}

// Fetch implements StaffAttendanceHandler.
func (h *staffAttendanceHandlerImpl) Fetch(w http.ResponseWriter, r *http.Request) {
	unitID, ok := uuidParam(w, r, "unitID")
	if !ok {
		return
	}

	req := staffattendance.FetchRequest{
		UnitID: unitID,
		Start:  r.URL.Query().Get("start"),
		End:    r.URL.Query().Get("end"),
	}
	dates, err := req.Validate()
	if err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.staffAttendanceService.Fetch(r.Context(), unitID, dates)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, staffattendance.NewFetchResponse(result))
}

// Upsert implements StaffAttendanceHandler.
func (h *staffAttendanceHandlerImpl) Upsert(w http.ResponseWriter, r *http.Request) {
	var req staffattendance.UpsertBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Attendances) == 0 {
		response.BadRequest(w, "attendances must not be empty", nil)
		return
	}

	if err := h.staffAttendanceService.Upsert(r.Context(), req.Attendances); err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Staff attendances saved", nil)
}

// Delete implements StaffAttendanceHandler. Ids are deleted independently;
// a partial failure answers 207 with the result of every id.
func (h *staffAttendanceHandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	var req staffattendance.DeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsEmpty() {
		response.BadRequest(w, "attendance_ids or external_attendance_ids is required", nil)
		return
	}

	results := h.staffAttendanceService.Delete(r.Context(), req)
	body := staffattendance.NewDeleteResultResponses(results)
	for _, res := range results {
		if res.Err != nil {
			response.MultiStatus(w, "Some staff attendances could not be deleted", body)
			return
		}
	}

	response.SuccessWithMessage(w, "Staff attendances deleted", body)
}
