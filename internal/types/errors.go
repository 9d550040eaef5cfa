package types

import "errors"

// Sentinel errors shared by every service. Wrap them with context using
// fmt.Errorf("...: %w", err) and match with errors.Is.
var (
	// ErrUnauthorized is returned when no valid identity proof was presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is known but lacks the role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned for missing required fields or malformed values.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRoster is returned when a rotation is asked to run over an empty roster.
	ErrInvalidRoster = errors.New("invalid roster: at least one member is required")

	// ErrSoftFailure marks an assignment regeneration that failed after the
	// owning schedule mutation was already committed.
	ErrSoftFailure = errors.New("assignment regeneration incomplete")

	// ErrConflict is returned when a write collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidTransition is returned when an incident patch would move the
	// status backwards under the strict transition policy.
	ErrInvalidTransition = errors.New("invalid status transition")
)
