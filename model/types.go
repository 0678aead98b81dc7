package model

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/metadata"
)

// Collection is a logical namespace of embeddings with a fixed dimensionality.
type Collection struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Metadata  metadata.Document `json:"metadata,omitempty"`
	Dimension int               `json:"dimension"`
}

// Scope identifies which part of a collection a segment backs.
type Scope string

const (
	// ScopeVector marks a segment holding vector data.
	ScopeVector Scope = "VECTOR"
	// ScopeMetadata marks a segment holding metadata and documents.
	ScopeMetadata Scope = "METADATA"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeVector || s == ScopeMetadata
}

// SegmentType is the implementation kind of a segment.
type SegmentType string

const (
	// SegmentTypeFlat is an exact brute-force vector segment.
	SegmentTypeFlat SegmentType = "vector/flat"
	// SegmentTypeHNSW is a graph-based approximate vector segment.
	SegmentTypeHNSW SegmentType = "vector/hnsw"
	// SegmentTypeMetadata is the inverted-index metadata segment.
	SegmentTypeMetadata SegmentType = "metadata/inverted"
)

// Scope returns the scope served by the segment type.
func (t SegmentType) Scope() Scope {
	switch t {
	case SegmentTypeFlat, SegmentTypeHNSW:
		return ScopeVector
	case SegmentTypeMetadata:
		return ScopeMetadata
	default:
		return ""
	}
}

// Segment is the persisted descriptor of a segment. It is not the live object.
//
// Config holds nil, bool, string, int64, float64 and []any values. Other
// integer and float types are accepted and normalized by NormalizeConfig;
// descriptors read back from a catalog always carry the normalized form.
type Segment struct {
	ID         uuid.UUID      `json:"id"`
	Type       SegmentType    `json:"type"`
	Scope      Scope          `json:"scope"`
	Collection uuid.UUID      `json:"collection"`
	Config     map[string]any `json:"config,omitempty"`
}

// String returns a short human readable form of the descriptor.
func (s Segment) String() string {
	return fmt.Sprintf("Segment(%s %s %s)", s.ID, s.Type, s.Scope)
}

// segmentJSON is the persisted form of a Segment. Config values are stored
// as typed metadata values so integers keep their kind and precision.
type segmentJSON struct {
	ID         uuid.UUID         `json:"id"`
	Type       SegmentType       `json:"type"`
	Scope      Scope             `json:"scope"`
	Collection uuid.UUID         `json:"collection"`
	Config     metadata.Document `json:"config,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s Segment) MarshalJSON() ([]byte, error) {
	cfg, err := configDocument(s.Config)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", s.ID, err)
	}
	return json.Marshal(segmentJSON{
		ID:         s.ID,
		Type:       s.Type,
		Scope:      s.Scope,
		Collection: s.Collection,
		Config:     cfg,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var aux segmentJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := aux.Config.Validate(); err != nil {
		return fmt.Errorf("segment %s config: %w", aux.ID, err)
	}
	*s = Segment{
		ID:         aux.ID,
		Type:       aux.Type,
		Scope:      aux.Scope,
		Collection: aux.Collection,
	}
	if len(aux.Config) > 0 {
		s.Config = aux.Config.ToMap()
	}
	return nil
}

// NormalizeConfig returns cfg in the form a descriptor has after a catalog
// round trip: integers become int64, floats float64 and slices []any.
// Unsupported types and non-finite floats are rejected. An empty config
// normalizes to nil.
func NormalizeConfig(cfg map[string]any) (map[string]any, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	doc, err := configDocument(cfg)
	if err != nil {
		return nil, err
	}
	return doc.ToMap(), nil
}

func configDocument(cfg map[string]any) (metadata.Document, error) {
	doc, err := metadata.DocumentFromAny(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrInvalidArgument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: config: %v", ErrInvalidArgument, err)
	}
	return doc, nil
}

// ConfigInt reads an integer config value, falling back to def when the key
// is absent. Integral floats and numeric strings are accepted.
func (s Segment) ConfigInt(key string, def int) (int, error) {
	v, ok, err := s.configValue(key)
	if err != nil || !ok {
		return def, err
	}
	if n, ok := v.AsInt64(); ok {
		return int(n), nil
	}
	if f, ok := v.AsFloat64(); ok {
		if f != float64(int(f)) {
			return 0, fmt.Errorf("%w: config %q: %v is not an integer", ErrInvalidArgument, key, f)
		}
		return int(f), nil
	}
	if str, ok := v.AsString(); ok {
		n, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("%w: config %q: %v", ErrInvalidArgument, key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: config %q: unsupported type %T", ErrInvalidArgument, key, s.Config[key])
}

// ConfigString reads a string config value, falling back to def.
func (s Segment) ConfigString(key, def string) (string, error) {
	v, ok, err := s.configValue(key)
	if err != nil || !ok {
		return def, err
	}
	str, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: config %q: unsupported type %T", ErrInvalidArgument, key, s.Config[key])
	}
	return str, nil
}

func (s Segment) configValue(key string) (metadata.Value, bool, error) {
	raw, ok := s.Config[key]
	if !ok || raw == nil {
		return metadata.Value{}, false, nil
	}
	v, err := metadata.FromAny(raw)
	if err != nil {
		return metadata.Value{}, false, fmt.Errorf("%w: config %q: %v", ErrInvalidArgument, key, err)
	}
	return v, true, nil
}

// SeqID is a totally ordered position in a collection's write stream.
//
// Callers must treat it as opaque apart from ordering: producers may pack
// epoch and offset into it.
type SeqID uint64

// MinSeqID is the position before any write has been applied.
const MinSeqID SeqID = 0

// Compare returns -1, 0 or +1 depending on the order of s and o.
func (s SeqID) Compare(o SeqID) int {
	switch {
	case s < o:
		return -1
	case s > o:
		return 1
	default:
		return 0
	}
}

// String returns the zero-padded decimal form, which sorts lexicographically
// in the same order as the numeric value.
func (s SeqID) String() string {
	return fmt.Sprintf("%020d", uint64(s))
}

// ParseSeqID parses the String form of a SeqID.
func ParseSeqID(s string) (SeqID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse seqid %q: %w", s, err)
	}
	return SeqID(n), nil
}
