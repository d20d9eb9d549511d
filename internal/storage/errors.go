package storage

import "errors"

var (
	// ErrNotFound indicates no record matched the lookup.
	ErrNotFound = errors.New("storage.not_found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("storage.duplicate")

	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("storage.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("storage.empty_database_url")
	errSQLiteEmptyPath     = errors.New("storage.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("storage.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("storage.unsupported_no_scheme")
)
