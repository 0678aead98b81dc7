package model

import (
	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/metadata"
)

// VectorEmbeddingRecord is the vector half of an embedding.
type VectorEmbeddingRecord struct {
	ID     string    `json:"id"`
	SeqID  SeqID     `json:"seq_id"`
	Vector []float32 `json:"vector"`
}

// MetadataEmbeddingRecord is the metadata half of an embedding.
// Document is nil when no document text was stored for the id.
type MetadataEmbeddingRecord struct {
	ID       string            `json:"id"`
	SeqID    SeqID             `json:"seq_id"`
	Metadata metadata.Document `json:"metadata,omitempty"`
	Document *string           `json:"document,omitempty"`
}

// Operation is the kind of change carried by a LogRecord.
type Operation uint8

const (
	// OpAdd inserts a new id. Adding an existing id is ignored.
	OpAdd Operation = iota + 1
	// OpUpdate changes an existing id. Updating a missing id is ignored.
	OpUpdate
	// OpUpsert inserts or updates.
	OpUpsert
	// OpDelete removes an id.
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	return o >= OpAdd && o <= OpDelete
}

// LogRecord is one entry of a collection's write stream.
//
// Metadata is a delta: keys with a Null value are removed from the stored
// document, all other keys are set. Vector and Document are optional.
type LogRecord struct {
	SeqID     SeqID             `json:"seq_id"`
	ID        string            `json:"id"`
	Operation Operation         `json:"op"`
	Vector    []float32         `json:"vector,omitempty"`
	Metadata  metadata.Document `json:"metadata,omitempty"`
	Document  *string           `json:"document,omitempty"`
}

// VectorQuery is a batch of top-k similarity searches.
type VectorQuery struct {
	// Vectors are the query targets; one result list is returned per vector.
	Vectors [][]float32
	// K is the number of neighbors requested per vector.
	K int
	// AllowedIDs restricts the candidate set. Nil means all records.
	AllowedIDs []string
	// Metric overrides the segment's configured distance function.
	Metric *distance.Metric
	// IncludeEmbeddings copies the stored vector into each result.
	IncludeEmbeddings bool
}

// VectorQueryResult is one neighbor of a query vector.
type VectorQueryResult struct {
	ID        string
	SeqID     SeqID
	Distance  float32
	Embedding []float32
}

// MetadataQuery selects metadata records.
//
// Nil Where/WhereDocument match everything. Nil IDs apply no id restriction,
// a non-nil empty IDs slice matches nothing. Nil Limit means unlimited.
type MetadataQuery struct {
	Where         metadata.Where
	WhereDocument metadata.WhereDocument
	IDs           []string
	Limit         *int
	Offset        int
}

// Limit returns a pointer to n for use in MetadataQuery.
func Limit(n int) *int {
	return &n
}
