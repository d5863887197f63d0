package services

import (
	"errors"
	"fmt"

	"microchat/internal/repositories"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrDoesNotExist = errors.New("does not exist")
	ErrValidation   = errors.New("validation failed")
	// ErrTransient means the operation gave up after bounded retries and
	// may be retried as a whole.
	ErrTransient = errors.New("temporarily unavailable")
	// ErrUnresolvedRelation flags a caller that skipped relation
	// resolution. It is an internal fault, not a client error.
	ErrUnresolvedRelation = errors.New("actor has no relation to the conference")
	ErrUnsupportedMIME    = fmt.Errorf("%w: unsupported media type", ErrValidation)
)

// storageErr turns repositories.ErrNotFound into ErrDoesNotExist and keeps
// the rest as is.
func storageErr(op string, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrDoesNotExist, err)
	}
	if errors.Is(err, repositories.ErrAliasTaken) {
		return fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func denied(reason string) error {
	return fmt.Errorf("%w: %s", ErrAccessDenied, reason)
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}
