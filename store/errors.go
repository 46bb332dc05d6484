package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record doesn't exist or is deleted (has TTL <= now).
	ErrNotFound = errors.New("onetomany: record not found")

	// ErrUnknownType is returned when a record type has no backing table or registration.
	// Errors built by UnknownType also match ErrNotFound.
	ErrUnknownType = errors.New("onetomany: unknown record type")

	// ErrValidation is returned for malformed descriptors, parents or child references.
	ErrValidation = errors.New("onetomany: validation failed")

	// ErrPersistence is returned when a backend write fails.
	ErrPersistence = errors.New("onetomany: persistence failed")
)

// UnknownType returns an error for typ matching both ErrUnknownType and ErrNotFound.
func UnknownType(typ string) error {
	return fmt.Errorf("%w %q (%w)", ErrUnknownType, typ, ErrNotFound)
}

// NotFound returns an error for the record ref matching ErrNotFound.
func NotFound(typ, id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, Ref(typ, id))
}

// Persistence wraps a backend write failure so it matches ErrPersistence.
// Nil errors and errors already in the taxonomy are returned unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
