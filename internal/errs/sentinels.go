// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested project, user, table or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a rejected identifier, type expression or missing field.
	ErrValidation = errors.New("validation")

	// ErrUnauthorized indicates a missing credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a credential or origin that was presented but rejected.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a duplicate table, column, database or unique value.
	ErrConflict = errors.New("conflict")

	// ErrQuotaExceeded indicates an upload that would push a project over its storage quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrTokenInvalid indicates a session token with a bad signature or shape.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired indicates a well-formed session token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)
