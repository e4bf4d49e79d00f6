package response

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/staff-attendance-go/internal/domain/staffattendance"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/savequeue"
	"github.com/cmlabs-hris/staff-attendance-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	case errors.Is(err, jwt.ErrInvalidClaims):
		Unauthorized(w, "Invalid token")

	// Attendance API errors
	case errors.Is(err, staffattendance.ErrAttendanceNotFound):
		NotFound(w, "Staff attendance not found")
	case errors.Is(err, staffattendance.ErrGroupNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, staffattendance.ErrInvalidRange),
		errors.Is(err, staffattendance.ErrInvalidOwnerKey),
		errors.Is(err, staffattendance.ErrInvalidField):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, staffattendance.ErrGroupRequired):
		ValidationError(w, map[string]string{"group_id": err.Error()})

	// Grid session errors
	case errors.Is(err, staffattendance.ErrSessionNotFound):
		NotFound(w, "Grid session not found")
	case errors.Is(err, staffattendance.ErrSessionClosed):
		Gone(w, "Grid session is closed")
	case errors.Is(err, staffattendance.ErrOwnerNotFound):
		NotFound(w, "Owner is not part of the grid session")
	case errors.Is(err, staffattendance.ErrRowNotFound):
		NotFound(w, "Grid row not found")
	case errors.Is(err, staffattendance.ErrDepartureLocked),
		errors.Is(err, staffattendance.ErrNotOvernight),
		errors.Is(err, staffattendance.ErrSaveBlocked),
		errors.Is(err, staffattendance.ErrNotEditing):
		Conflict(w, err.Error())

	case errors.Is(err, savequeue.ErrClosed):
		ServiceUnavailable(w, "Service is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		ServiceUnavailable(w, "Request timed out")

	default:
		slog.Error("Unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
