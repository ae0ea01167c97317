// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them instead
// of on messages. Service errors are translated by writeError according to
// their kind:
//
//	not_found  -> 404
//	conflict   -> 409
//	forbidden  -> 403
//	validation -> 400
//	anything else -> 500, logged with the request-scoped logger
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "conflict",
//	  "message": "request was claimed by another provider"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-marketplace-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeValidation   = "validation_failed"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeAlreadyClaimed    = "already_claimed"
	ErrCodeConcurrentUpdate  = "concurrent_update"
	ErrCodeDuplicateRating   = "duplicate_rating"
	ErrCodeMethodNotAllowed  = "method_not_allowed"
)

// specificCodes refine the generic kind code for errors clients commonly
// branch on.
var specificCodes = []struct {
	err  error
	code string
}{
	{services.ErrInvalidTransition, ErrCodeInvalidTransition},
	{services.ErrAlreadyClaimed, ErrCodeAlreadyClaimed},
	{services.ErrConcurrentUpdate, ErrCodeConcurrentUpdate},
	{services.ErrDuplicateRating, ErrCodeDuplicateRating},
}

// writeError maps a service error onto the error envelope.
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// The cause goes to the access log, not to the client.
		_ = c.Error(err)
		msg = "internal server error"
	}
	fail(c, status, code, msg)
}

func statusFor(err error) (int, string) {
	var status int
	var code string
	switch {
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrConflict):
		status, code = http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, ErrCodeValidation
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			return status, sc.code
		}
	}
	return status, code
}
