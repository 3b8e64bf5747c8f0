package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrInvalidConfig is returned by Open for unusable configuration.
	ErrInvalidConfig = errors.New("database: invalid configuration")

	// ErrMigrationFailed wraps the failure of a single migration.
	ErrMigrationFailed = errors.New("database: migration failed")

	// ErrUnhealthy is returned when the health check query fails.
	ErrUnhealthy = errors.New("database: health check failed")
)
