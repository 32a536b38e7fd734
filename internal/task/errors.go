package task

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed input. The store is left unmodified.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks an operation on an unknown or deleted task id.
	ErrNotFound = errors.New("not found")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the offending id.
func NotFound(id string) error {
	return fmt.Errorf("task %q: %w", id, ErrNotFound)
}

// ValidateLimit rejects non-positive selection limits.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return invalidf("limit must be > 0 (got %d)", limit)
	}
	return nil
}
