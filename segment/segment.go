package segment

import (
	"context"

	"github.com/hupe1980/vecseg/model"
)

// Implementation is the live object behind a segment descriptor.
type Implementation interface {
	// Descriptor returns the descriptor the instance was built from.
	Descriptor() model.Segment

	// Count returns the number of visible records.
	Count(ctx context.Context) (int, error)

	// MaxSeqID returns the highest write-stream position applied. It never
	// decreases and survives re-instantiation.
	MaxSeqID(ctx context.Context) (model.SeqID, error)

	// Close flushes and releases the instance. It waits for in-flight reads;
	// later calls return model.ErrClosed.
	Close(ctx context.Context) error
}

// VectorReader is the vector read capability.
type VectorReader interface {
	Implementation

	// GetVectors returns all records when ids is nil, otherwise the records
	// present among ids. Missing ids are omitted. Results are ordered by id.
	GetVectors(ctx context.Context, ids []string) ([]model.VectorEmbeddingRecord, error)

	// QueryVectors returns, per query vector, up to K nearest records by
	// ascending distance with ties broken by id.
	QueryVectors(ctx context.Context, q model.VectorQuery) ([][]model.VectorQueryResult, error)
}

// MetadataReader is the metadata read capability.
type MetadataReader interface {
	Implementation

	// GetMetadata returns the records matching q ordered by id, with
	// q.Offset and q.Limit applied after filtering.
	GetMetadata(ctx context.Context, q model.MetadataQuery) ([]model.MetadataEmbeddingRecord, error)
}

// Writer is the ingest capability.
type Writer interface {
	Implementation

	// Validate checks batch without applying it.
	Validate(batch []model.LogRecord) error

	// Apply journals and applies batch atomically. Records at or below
	// MaxSeqID are skipped.
	Apply(ctx context.Context, batch []model.LogRecord) error

	// Flush writes a snapshot and truncates the journal.
	Flush(ctx context.Context) error
}

// Discarder is implemented by segments that can be closed without a final
// flush. The manager discards instances whose state is corrupt or about to
// be purged; later calls on the instance fail with cause.
type Discarder interface {
	Discard(cause error)
}
