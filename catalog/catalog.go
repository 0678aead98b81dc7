// Package catalog persists collection and segment descriptors.
//
// Descriptors are stored separately from segment state so that a manager
// can discover every segment of a collection after a restart without
// touching any index data.
package catalog

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/model"
)

// Catalog is the durable registry of collections and their segment
// descriptors. Implementations must be safe for concurrent use.
type Catalog interface {
	// CreateCollection records col and its segments. It returns
	// model.ErrAlreadyExists if col.ID is already recorded.
	CreateCollection(ctx context.Context, col model.Collection, segments []model.Segment) error

	// GetCollection returns the collection record or model.ErrNotFound.
	GetCollection(ctx context.Context, id uuid.UUID) (model.Collection, error)

	// ListCollections returns all recorded collections ordered by ID.
	ListCollections(ctx context.Context) ([]model.Collection, error)

	// GetSegments returns the segments of a collection ordered by scope
	// (METADATA before VECTOR), or model.ErrNotFound.
	GetSegments(ctx context.Context, collectionID uuid.UUID) ([]model.Segment, error)

	// GetSegment returns a single descriptor or model.ErrNotFound.
	GetSegment(ctx context.Context, collectionID, segmentID uuid.UUID) (model.Segment, error)

	// DeleteCollection removes the collection and returns the segments it
	// owned, or model.ErrNotFound.
	DeleteCollection(ctx context.Context, id uuid.UUID) ([]model.Segment, error)

	// Reset removes every record.
	Reset(ctx context.Context) error
}

// ValidateSegments checks that segments belong to col and carry a known
// scope matching their type.
func ValidateSegments(col model.Collection, segments []model.Segment) error {
	seen := make(map[uuid.UUID]struct{}, len(segments))
	for _, s := range segments {
		if s.Collection != col.ID {
			return &model.InvalidDescriptorError{Segment: s, Reason: "segment belongs to collection " + s.Collection.String()}
		}
		if !s.Scope.Valid() {
			return &model.InvalidDescriptorError{Segment: s, Reason: "unknown scope " + string(s.Scope)}
		}
		if t := s.Type.Scope(); t != "" && t != s.Scope {
			return &model.InvalidDescriptorError{Segment: s, Reason: "type " + string(s.Type) + " does not serve scope " + string(s.Scope)}
		}
		if _, dup := seen[s.ID]; dup {
			return &model.InvalidDescriptorError{Segment: s, Reason: "duplicate segment id"}
		}
		if _, err := model.NormalizeConfig(s.Config); err != nil {
			return &model.InvalidDescriptorError{Segment: s, Reason: err.Error()}
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// SortSegments orders segments by scope (METADATA before VECTOR), then ID.
func SortSegments(segments []model.Segment) {
	slices.SortFunc(segments, func(a, b model.Segment) int {
		if c := cmp.Compare(a.Scope, b.Scope); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}
