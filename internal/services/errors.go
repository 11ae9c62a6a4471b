package services

import "errors"

// Error taxonomy for the engagement engine. The first three are reported
// synchronously to the submitting connection and never retried; the last
// two stay internal (logs, stats) and never reach the end user.
var (
	// ErrUnauthorized: an anonymous identity attempted a registration-gated action
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited: the identity exceeded its fixed-window budget
	ErrRateLimited = errors.New("rate limited")

	// ErrValidationFailed: malformed event payload
	ErrValidationFailed = errors.New("validation failed")

	// ErrPersistenceUnavailable: the collaborator store is unreachable
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrDispatchFailed: the notification sender rejected a delivery
	ErrDispatchFailed = errors.New("dispatch failed")
)

// ErrorCode maps a taxonomy error to its wire-level code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrPersistenceUnavailable):
		return "persistence_unavailable"
	case errors.Is(err, ErrDispatchFailed):
		return "dispatch_failed"
	default:
		return "internal_error"
	}
}
