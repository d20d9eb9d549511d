package token

import "errors"

var (
	// ErrTokenInvalid indicates a malformed token or a signature mismatch.
	ErrTokenInvalid = errors.New("token.invalid")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token.expired")
	// ErrMissingSubject indicates no subject id could be derived from the identity descriptor.
	ErrMissingSubject = errors.New("token.identity.missing_subject")

	errMissingAccessSecret  = errors.New("token.config.missing_access_secret")
	errMissingRefreshSecret = errors.New("token.config.missing_refresh_secret")
	errInvalidAccessTTL     = errors.New("token.config.invalid_access_ttl")
	errInvalidRefreshTTL    = errors.New("token.config.invalid_refresh_ttl")
)
