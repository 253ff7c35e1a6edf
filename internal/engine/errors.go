package engine

import "errors"

var (
	// ErrNotFound means a referenced request or task id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation breaks a lifecycle rule.
	ErrInvalidState = errors.New("invalid state")
)
