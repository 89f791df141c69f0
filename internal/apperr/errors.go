// Package apperr defines the error taxonomy shared across notesense layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrUpstream      = errors.New("upstream unavailable")
)

// Validation returns an error reporting missing or malformed caller input.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Upstream marks err as a failure of an external collaborator (encoder,
// scorer, vector index, generator).
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", service, ErrUpstream, err)
}
