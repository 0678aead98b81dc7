package segment

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/internal/compress"
	"github.com/hupe1980/vecseg/internal/resource"
	"github.com/hupe1980/vecseg/model"
)

// Env carries the shared services a segment is constructed with.
type Env struct {
	// Store holds snapshots and journals.
	Store blobstore.BlobStore
	// Codec encodes journal batches and snapshots.
	Codec codec.Codec
	// Compression is applied to snapshots.
	Compression compress.Type
	// Logger is scoped to the segment by the manager.
	Logger *slog.Logger
	// Resources bounds memory and snapshot IO. Nil means unlimited.
	Resources *resource.Controller
	// Metrics receives operation timings.
	Metrics Metrics
	// Invalidate reports fatal corruption of a live instance. The manager
	// evicts the instance so the next access reconstructs it. It is called
	// while the instance holds its read lock and must not wait on it.
	Invalidate func(segmentID uuid.UUID, err error)
	// CheckpointEvery triggers an automatic Flush after that many journaled
	// batches. Zero disables automatic checkpoints.
	CheckpointEvery int
}

// WithDefaults fills unset fields.
func (e Env) WithDefaults() Env {
	if e.Store == nil {
		e.Store = blobstore.NewMemoryStore()
	}
	if e.Codec == nil {
		e.Codec = codec.Default
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Metrics == nil {
		e.Metrics = NoopMetrics{}
	}
	if e.Invalidate == nil {
		e.Invalidate = func(uuid.UUID, error) {}
	}
	return e
}

// Metrics receives per-segment operation timings.
type Metrics interface {
	// RecordQuery is called after each read. op is "get_vectors",
	// "query_vectors" or "get_metadata"; results is the number of records
	// returned.
	RecordQuery(t model.SegmentType, op string, results int, duration time.Duration, err error)

	// RecordApply is called after each applied batch.
	RecordApply(t model.SegmentType, records int, duration time.Duration, err error)

	// RecordFlush is called after each snapshot; bytes is the compressed size.
	RecordFlush(t model.SegmentType, bytes int, duration time.Duration, err error)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordQuery(model.SegmentType, string, int, time.Duration, error) {}
func (NoopMetrics) RecordApply(model.SegmentType, int, time.Duration, error)        {}
func (NoopMetrics) RecordFlush(model.SegmentType, int, time.Duration, error)        {}
