package dao

import "errors"

// Store errors; callers match them with errors.Is.
var (
	// ErrNotFound reports a missing task record or executor session.
	ErrNotFound = errors.New("dao: not found")
	// ErrInvalidID reports an entity whose key function returned "".
	ErrInvalidID = errors.New("dao: invalid id")
	ErrNilEntity = errors.New("dao: nil entity")
)
