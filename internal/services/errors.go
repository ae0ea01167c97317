// Package services defines the business logic for service requests: the
// lifecycle engine, idempotent creation, query support, and ratings.
// This file centralizes the service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Every error belongs to exactly one kind (ErrNotFound, ErrConflict,
// ErrForbidden, ErrValidation). Specific errors wrap their kind, so callers
// check the kind with errors.Is and translation into HTTP status codes is
// performed at the handler layer.
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrNotFound: a referenced request, service type, user, or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the request is not in the state the operation requires, or
	// a competing writer changed it first.
	ErrConflict = errors.New("conflict")

	// ErrForbidden: the actor lacks standing or role for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation: malformed input.
	ErrValidation = errors.New("validation failed")
)

// kindError is a specific error that reports its kind through Unwrap.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

// validationf builds an ad-hoc validation error.
func validationf(format string, args ...any) error {
	return newKind(ErrValidation, fmt.Sprintf(format, args...))
}

// Request errors.
var (
	ErrRequestNotFound     = newKind(ErrNotFound, "service request not found")
	ErrServiceTypeNotFound = newKind(ErrNotFound, "service type not found")
	ErrUserNotFound        = newKind(ErrNotFound, "user not found")
	ErrProfileNotFound     = newKind(ErrNotFound, "provider profile not found")

	ErrInvalidTransition = newKind(ErrConflict, "request is not in a state that allows this operation")
	ErrAlreadyClaimed    = newKind(ErrConflict, "request already claimed by another provider")
	ErrConcurrentUpdate  = newKind(ErrConflict, "request was modified concurrently")

	ErrRoleNotAllowed  = newKind(ErrForbidden, "role may not perform this operation")
	ErrNotOwner        = newKind(ErrForbidden, "only the owning client may perform this operation")
	ErrNotAssigned     = newKind(ErrForbidden, "only the assigned provider may perform this operation")
	ErrSelfClaim       = newKind(ErrForbidden, "a client cannot claim their own request")
	ErrNotVisible      = newKind(ErrForbidden, "request is not visible to this user")
	ErrKeyOwnedByOther = newKind(ErrForbidden, "idempotency key belongs to another user")

	ErrTitleRequired = newKind(ErrValidation, "title is required")
	ErrPriceRange    = newKind(ErrValidation, "price must be greater than 0 and at most 1000000")
	ErrNoPrice       = newKind(ErrValidation, "no agreed price given and no offered price to accept")
)

// Rating errors.
var (
	ErrRatingNotAllowed = newKind(ErrConflict, "request is not completed")
	ErrNotParty         = newKind(ErrForbidden, "only the client or provider of a request may rate it")
	ErrInvalidScore     = newKind(ErrValidation, "score must be between 1 and 5")
	ErrDuplicateRating  = newKind(ErrConflict, "rating already exists")
)

// Notification errors.
var (
	ErrNotificationNotFound = newKind(ErrNotFound, "notification not found")
	ErrUnknownKind          = newKind(ErrValidation, "unknown notification kind")
)

// KindOf returns a stable label for err's kind, used for metrics and logs.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
