package metadata

import (
	"errors"
	"fmt"
)

// ErrInvalidFilter is returned for structurally malformed filter expressions.
var ErrInvalidFilter = errors.New("invalid filter")

// InvalidFilterError describes why a filter expression was rejected.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return "invalid filter: " + e.Reason
}

// Unwrap allows errors.Is(err, ErrInvalidFilter).
func (e *InvalidFilterError) Unwrap() error { return ErrInvalidFilter }

func invalidf(format string, args ...any) error {
	return &InvalidFilterError{Reason: fmt.Sprintf(format, args...)}
}
