package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/metadata"
)

var (
	// ErrNotFound is returned when a collection or segment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a collection already has descriptors.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConstruction is returned when a segment implementation cannot be built.
	ErrConstruction = errors.New("segment construction failed")

	// ErrInvalidFilter is returned for malformed Where/WhereDocument expressions.
	ErrInvalidFilter = metadata.ErrInvalidFilter

	// ErrDimensionMismatch is returned when a vector's length disagrees with
	// the collection's dimensionality.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidArgument is returned for out of range arguments (k <= 0, negative offset).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned by a segment instance after it was closed.
	ErrClosed = errors.New("segment closed")

	// ErrCorrupt is returned when persisted segment state fails validation.
	ErrCorrupt = errors.New("data corruption detected")

	// ErrResetDisabled is returned by Reset unless it was explicitly allowed.
	ErrResetDisabled = errors.New("reset is disabled")

	// ErrUnknownSegmentType is returned when no factory is registered for a type.
	ErrUnknownSegmentType = errors.New("unknown segment type")
)

// DimensionMismatchError carries the expected and actual vector length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Unwrap allows errors.Is(err, ErrDimensionMismatch).
func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// ConstructionError reports a failed segment instantiation.
//
// The original underlying error can be accessed via errors.Unwrap.
type ConstructionError struct {
	SegmentID uuid.UUID
	Type      SegmentType
	cause     error
}

// NewConstructionError wraps cause for the given segment.
func NewConstructionError(seg Segment, cause error) *ConstructionError {
	return &ConstructionError{SegmentID: seg.ID, Type: seg.Type, cause: cause}
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct segment %s (%s): %v", e.SegmentID, e.Type, e.cause)
}

// Unwrap returns the underlying cause.
func (e *ConstructionError) Unwrap() []error { return []error{ErrConstruction, e.cause} }

// CheckDimension returns a *DimensionMismatchError if len(vec) != dim.
func CheckDimension(dim int, vec []float32) error {
	if len(vec) != dim {
		return &DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}
	return nil
}

// InvalidDescriptorError reports a segment descriptor that cannot be
// recorded for its collection.
type InvalidDescriptorError struct {
	Segment Segment
	Reason  string
}

func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid descriptor %s: %s", e.Segment, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidArgument).
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidArgument }
