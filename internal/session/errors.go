package session

import "errors"

var (
	// ErrAuthFailed covers both unknown identities and wrong passwords; the
	// caller can never tell which check failed.
	ErrAuthFailed = errors.New("session.auth_failed")
	// ErrConflict indicates the email or username is already taken.
	ErrConflict = errors.New("session.conflict")
	// ErrReuseDetected indicates an already-rotated refresh token was
	// presented again; the user's whole session sequence has been revoked
	// as a side effect.
	ErrReuseDetected = errors.New("session.reuse_detected")
	// ErrInvalidInput indicates the request carried unusable fields.
	ErrInvalidInput = errors.New("session.invalid_input")
)
