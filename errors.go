package vecseg

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecseg/metadata"
	"github.com/hupe1980/vecseg/model"
)

// Error taxonomy. All errors returned by the Manager and the segments it
// serves wrap one of these; use errors.Is to classify them.
var (
	ErrNotFound           = model.ErrNotFound
	ErrAlreadyExists      = model.ErrAlreadyExists
	ErrConstruction       = model.ErrConstruction
	ErrInvalidFilter      = model.ErrInvalidFilter
	ErrDimensionMismatch  = model.ErrDimensionMismatch
	ErrInvalidArgument    = model.ErrInvalidArgument
	ErrClosed             = model.ErrClosed
	ErrCorrupt            = model.ErrCorrupt
	ErrResetDisabled      = model.ErrResetDisabled
	ErrUnknownSegmentType = model.ErrUnknownSegmentType
)

// Typed errors, for use with errors.As.
type (
	// ConstructionError reports a failed segment instantiation.
	ConstructionError = model.ConstructionError
	// DimensionMismatchError carries the expected and actual vector length.
	DimensionMismatchError = model.DimensionMismatchError
	// InvalidFilterError describes a malformed Where or WhereDocument.
	InvalidFilterError = metadata.InvalidFilterError
)

// errSegmentGone is the cause instances of deleted collections are
// discarded with, so in-flight callers observe ErrNotFound.
var errSegmentGone = fmt.Errorf("%w: segment no longer exists", model.ErrNotFound)

// translateError maps a factory failure for seg to a *ConstructionError.
func translateError(seg model.Segment, err error) error {
	if err == nil {
		return nil
	}

	var ce *model.ConstructionError
	if errors.As(err, &ce) {
		return err
	}
	return model.NewConstructionError(seg, err)
}
