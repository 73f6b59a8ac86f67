package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/vedran77/consult/internal/codec"
	"github.com/vedran77/consult/internal/repository"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelInactive = errors.New("channel is not active")
	ErrAlreadyRated    = errors.New("channel already rated")
	ErrNotFound        = errors.New("participant not found")
	ErrStorage         = errors.New("storage failure")
)

// ValidationError reports bad caller input for a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// translate maps repository failures onto the service taxonomy. Anything
// unrecognised is an infrastructure fault.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrChannelNotFound
	case errors.Is(err, repository.ErrChannelInactive):
		return ErrChannelInactive
	case errors.Is(err, repository.ErrAlreadyRated):
		return ErrAlreadyRated
	case errors.Is(err, codec.ErrCrypto),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
