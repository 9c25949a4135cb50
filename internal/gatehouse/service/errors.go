package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
)

var (
	ErrValidation = errors.New("invalid request")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrIntegrity  = errors.New("integrity failure")

	// ErrBadSecret is returned when a confirmation secret does not match.
	ErrBadSecret = errors.New("confirmation secret rejected")

	ErrDuplicateEntry = fmt.Errorf("%w: person already has a pending entry", ErrConflict)
	ErrNoPendingEntry = fmt.Errorf("%w: person has no pending entry", ErrConflict)
	ErrSuperseded     = fmt.Errorf("%w: record is not the head of its lineage", ErrConflict)
	ErrDuplicateDoc   = fmt.Errorf("%w: document id already registered", ErrConflict)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// classify turns a storage error into one of the service sentinels. Anything
// unrecognized that escapes a write transaction is an integrity failure; the
// transaction has already been rolled back by then.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBadSecret),
		errors.Is(err, ErrIntegrity):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrPendingExists):
		return ErrDuplicateEntry
	case errors.Is(err, store.ErrNoPending):
		return ErrNoPendingEntry
	case errors.Is(err, store.ErrSuperseded):
		return ErrSuperseded
	case errors.Is(err, store.ErrDuplicateDocument):
		return ErrDuplicateDoc
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
}

// readErr maps errors from plain reads, where there is no transaction to
// roll back.
func readErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}
