package service

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. The API layer maps these to HTTP status codes with
// errors.Is; idempotent duplicates (payment capture replay, release replay,
// redundant auction close) are deliberately NOT errors and return the
// current state instead.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidState  = errors.New("invalid state")
	ErrAuctionClosed = errors.New("auction closed")
	ErrBidTooLow     = errors.New("bid too low")
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

func invalidStatef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
