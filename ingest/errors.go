package ingest

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/vecseg/model"
)

// ErrDiverged is returned by View while the segments of a collection are at
// different stream positions, e.g. after Apply failed on the metadata
// segment. Redelivering the stream from ResumePosition clears it.
var ErrDiverged = errors.New("segments diverged")

// DivergedError reports the positions of both segments.
type DivergedError struct {
	Collection uuid.UUID
	Vector     model.SeqID
	Metadata   model.SeqID
}

func (e *DivergedError) Error() string {
	return fmt.Sprintf("collection %s: vector segment at %d, metadata segment at %d: %v",
		e.Collection, uint64(e.Vector), uint64(e.Metadata), ErrDiverged)
}

// Unwrap returns ErrDiverged.
func (e *DivergedError) Unwrap() error {
	return ErrDiverged
}
