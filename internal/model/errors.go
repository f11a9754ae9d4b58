package model

import "errors"

var (
	// ErrNotFound is returned by store lookups when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrStale is returned by conditional updates whose guard no longer
	// holds, e.g. the row changed status since it was read.
	ErrStale = errors.New("row changed concurrently")

	// ErrConflict is returned when a write would duplicate a unique value
	// such as a username or department name.
	ErrConflict = errors.New("already exists")

	// ErrStorage marks a failure of the database itself rather than of the
	// data asked for.
	ErrStorage = errors.New("storage failure")
)
