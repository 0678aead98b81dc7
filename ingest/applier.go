// Package ingest applies the write stream of a collection to its segments.
//
// A collection is backed by one vector and one metadata segment. Each
// segment applies a batch atomically on its own; the Applier adds a
// per-collection gate so readers going through View observe both segments
// at the same stream position.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// Resolver returns the live instance backing a scope of a collection.
// *vecseg.Manager implements it.
type Resolver interface {
	SegmentFor(ctx context.Context, collectionID uuid.UUID, scope model.Scope) (segment.Implementation, error)
}

// Option configures an Applier.
type Option func(*Applier)

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Applier) {
		if l != nil {
			a.logger = l
		}
	}
}

// Applier applies LogRecord batches to both segments of a collection.
// It is safe for concurrent use.
type Applier struct {
	segments Resolver
	logger   *slog.Logger

	mu    sync.Mutex
	gates map[uuid.UUID]*sync.RWMutex
}

// New creates an Applier resolving segments through r.
func New(r Resolver, opts ...Option) *Applier {
	a := &Applier{
		segments: r,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		gates:    make(map[uuid.UUID]*sync.RWMutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Applier) gate(collectionID uuid.UUID) *sync.RWMutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.gates[collectionID]
	if !ok {
		g = &sync.RWMutex{}
		a.gates[collectionID] = g
	}
	return g
}

// Forget drops the gate of a deleted collection.
func (a *Applier) Forget(collectionID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.gates, collectionID)
}

// Apply validates batch against both segments and then applies it to the
// vector segment followed by the metadata segment.
//
// Nothing is applied when validation fails. If the metadata segment fails
// after the vector segment succeeded, View reports ErrDiverged until the
// batch is redelivered. ResumePosition still reports the position before
// the batch and redelivering it is safe: records at or below a segment's
// MaxSeqID are skipped.
func (a *Applier) Apply(ctx context.Context, collectionID uuid.UUID, batch []model.LogRecord) error {
	if len(batch) == 0 {
		return nil
	}

	g := a.gate(collectionID)
	g.Lock()
	defer g.Unlock()

	vec, meta, err := a.writers(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := vec.Validate(batch); err != nil {
		return err
	}
	if err := meta.Validate(batch); err != nil {
		return err
	}

	start := time.Now()
	if err := vec.Apply(ctx, batch); err != nil {
		return fmt.Errorf("apply to vector segment: %w", err)
	}
	if err := meta.Apply(ctx, batch); err != nil {
		a.logger.WarnContext(ctx, "metadata segment behind vector segment",
			"collection", collectionID,
			"last_seq_id", batch[len(batch)-1].SeqID,
			"error", err,
		)
		return fmt.Errorf("apply to metadata segment: %w", err)
	}

	a.logger.DebugContext(ctx, "batch applied",
		"collection", collectionID,
		"records", len(batch),
		"last_seq_id", batch[len(batch)-1].SeqID,
		"duration", time.Since(start),
	)
	return nil
}

// View runs fn with the readers of a collection. No batch is applied while
// fn runs.
//
// View fails with a *DivergedError, without running fn, while the two
// segments are at different stream positions.
func (a *Applier) View(ctx context.Context, collectionID uuid.UUID, fn func(segment.VectorReader, segment.MetadataReader) error) error {
	g := a.gate(collectionID)
	g.RLock()
	defer g.RUnlock()

	vec, err := a.segments.SegmentFor(ctx, collectionID, model.ScopeVector)
	if err != nil {
		return err
	}
	meta, err := a.segments.SegmentFor(ctx, collectionID, model.ScopeMetadata)
	if err != nil {
		return err
	}

	vr, ok := vec.(segment.VectorReader)
	if !ok {
		return fmt.Errorf("%w: %s cannot read vectors", model.ErrInvalidArgument, vec.Descriptor())
	}
	mr, ok := meta.(segment.MetadataReader)
	if !ok {
		return fmt.Errorf("%w: %s cannot read metadata", model.ErrInvalidArgument, meta.Descriptor())
	}

	vseq, err := vec.MaxSeqID(ctx)
	if err != nil {
		return err
	}
	mseq, err := meta.MaxSeqID(ctx)
	if err != nil {
		return err
	}
	if vseq != mseq {
		return &DivergedError{Collection: collectionID, Vector: vseq, Metadata: mseq}
	}
	return fn(vr, mr)
}

// ResumePosition returns the lowest MaxSeqID of the collection's segments.
// Redelivering the stream after that position brings every segment up to
// date.
func (a *Applier) ResumePosition(ctx context.Context, collectionID uuid.UUID) (model.SeqID, error) {
	g := a.gate(collectionID)
	g.RLock()
	defer g.RUnlock()

	var pos model.SeqID
	for i, scope := range []model.Scope{model.ScopeVector, model.ScopeMetadata} {
		impl, err := a.segments.SegmentFor(ctx, collectionID, scope)
		if err != nil {
			return 0, err
		}
		seq, err := impl.MaxSeqID(ctx)
		if err != nil {
			return 0, err
		}
		if i == 0 || seq < pos {
			pos = seq
		}
	}
	return pos, nil
}

func (a *Applier) writers(ctx context.Context, collectionID uuid.UUID) (segment.Writer, segment.Writer, error) {
	var out [2]segment.Writer
	for i, scope := range []model.Scope{model.ScopeVector, model.ScopeMetadata} {
		impl, err := a.segments.SegmentFor(ctx, collectionID, scope)
		if err != nil {
			return nil, nil, err
		}
		w, ok := impl.(segment.Writer)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s does not accept writes", model.ErrInvalidArgument, impl.Descriptor())
		}
		out[i] = w
	}
	return out[0], out[1], nil
}
