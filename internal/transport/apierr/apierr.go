// Package apierr maps service errors to the stable codes clients see.
// Details of unexpected errors are logged, never returned.
package apierr

import (
	"errors"
	"net/http"

	"github.com/vedran77/consult/internal/service"
)

const (
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeChannelInactive = "CHANNEL_INACTIVE"
	CodeAlreadyRated    = "ALREADY_RATED"
	CodeValidation      = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeInternal        = "INTERNAL"
)

type Error struct {
	Status  int
	Code    string
	Message string
	// Field is set for validation errors.
	Field string
}

// Classify reports how err is presented. Unknown errors come back as
// INTERNAL with ok false so the caller knows to log them.
func Classify(err error) (e Error, ok bool) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return Error{http.StatusBadRequest, CodeValidation, verr.Message, verr.Field}, true
	case errors.Is(err, service.ErrAccessDenied):
		return Error{http.StatusForbidden, CodeForbidden, "You do not have access to this channel", ""}, true
	case errors.Is(err, service.ErrChannelNotFound):
		return Error{http.StatusNotFound, CodeNotFound, "Channel not found", ""}, true
	case errors.Is(err, service.ErrNotFound):
		return Error{http.StatusNotFound, CodeNotFound, "Participant not found", ""}, true
	case errors.Is(err, service.ErrChannelInactive):
		return Error{http.StatusConflict, CodeChannelInactive, "Channel is no longer active", ""}, true
	case errors.Is(err, service.ErrAlreadyRated):
		return Error{http.StatusBadRequest, CodeAlreadyRated, "This consultation has already been rated", ""}, true
	case errors.Is(err, service.ErrHandleTaken):
		return Error{http.StatusConflict, CodeConflict, "Handle already taken", ""}, true
	case errors.Is(err, service.ErrInvalidToken):
		return Error{http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token", ""}, true
	}
	return Error{http.StatusInternalServerError, CodeInternal, "Something went wrong", ""}, false
}
