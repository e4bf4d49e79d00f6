package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type GridSessionHandler interface {
	Open(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	SetEditing(w http.ResponseWriter, r *http.Request)
	EditRow(w http.ResponseWriter, r *http.Request)
	Unlink(w http.ResponseWriter, r *http.Request)
	StartArrival(w http.ResponseWriter, r *http.Request)
	Acknowledge(w http.ResponseWriter, r *http.Request)
	Refresh(w http.ResponseWriter, r *http.Request)
	Save(w http.ResponseWriter, r *http.Request)
	Close(w http.ResponseWriter, r *http.Request)
	Export(w http.ResponseWriter, r *http.Request)

	// SSE
	Events(w http.ResponseWriter, r *http.Request)
}

type gridSessionHandlerImpl struct {
	sessionService staffattendance.GridSessionService
	keepalive      time.Duration
}

func NewGridSessionHandler(sessionService staffattendance.GridSessionService, keepalive time.Duration) GridSessionHandler {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &gridSessionHandlerImpl{
		sessionService: sessionService,
		keepalive:      keepalive,
	}
}

// ownerKeyParam returns the unescaped owner key. External keys carry names
// that may contain spaces.
func ownerKeyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "ownerKey"))
	if err != nil || key == "" {
		response.BadRequest(w, "Invalid ownerKey", nil)
		return "", false
	}
	if _, err := staffattendance.ParseOwnerKey(key); err != nil {
		response.HandleError(w, err)
		return "", false
	}
	return key, true
}

func trackingIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "trackingID"))
	if err != nil || id == "" {
		response.BadRequest(w, "Invalid trackingID", nil)
		return "", false
	}
	return id, true
}

// Open implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Open(w http.ResponseWriter, r *http.Request) {
	var req staffattendance.OpenSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessionService.Open(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Grid session opened", session)
}

// Get implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	session, err := h.sessionService.Get(r.Context(), sessionID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// SetEditing implements GridSessionHandler.
func (h *gridSessionHandlerImpl) SetEditing(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	var req staffattendance.SetEditingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessionService.SetEditing(r.Context(), sessionID, req.Editing)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// EditRow implements GridSessionHandler.
func (h *gridSessionHandlerImpl) EditRow(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	trackingID, ok := trackingIDParam(w, r)
	if !ok {
		return
	}
	var req staffattendance.EditRowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = sessionID
	req.TrackingID = trackingID

	session, err := h.sessionService.EditRow(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// Unlink implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Unlink(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	trackingID, ok := trackingIDParam(w, r)
	if !ok {
		return
	}
	var req staffattendance.UnlinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = sessionID
	req.TrackingID = trackingID

	session, err := h.sessionService.Unlink(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// StartArrival implements GridSessionHandler.
func (h *gridSessionHandlerImpl) StartArrival(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	ownerKey, ok := ownerKeyParam(w, r)
	if !ok {
		return
	}
	var req staffattendance.StartArrivalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.SessionID = sessionID
	req.OwnerKey = ownerKey

	session, err := h.sessionService.StartArrival(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// Acknowledge implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Acknowledge(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	ownerKey, ok := ownerKeyParam(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.Acknowledge(r.Context(), sessionID, ownerKey)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// Refresh implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	session, err := h.sessionService.Refresh(r.Context(), sessionID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, session)
}

// Save implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Save(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}
	var req staffattendance.SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.sessionService.Save(r.Context(), sessionID, req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Staff attendances saved", session)
}

// Close implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Close(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	if err := h.sessionService.Close(r.Context(), sessionID); err != nil {
		response.HandleError(w, err)
		return
	}

	response.NoContent(w)
}

// Export implements GridSessionHandler.
func (h *gridSessionHandlerImpl) Export(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	body, err := h.sessionService.Export(r.Context(), sessionID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Attachment(w, xlsxContentType, fmt.Sprintf("staff-attendances-%s.xlsx", sessionID), body)
}

// Events streams the session's events over SSE until the client goes away
// or the session is closed.
func (h *gridSessionHandlerImpl) Events(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := uuidParam(w, r, "sessionID")
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := h.sessionService.Subscribe(r.Context(), sessionID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"session_id\":\"%s\"}\n\n", sessionID)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				slog.Warn("Failed to encode session event", "session_id", sessionID, "event", event.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
			if event.Type == staffattendance.EventClosed {
				return
			}

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
