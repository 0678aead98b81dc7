package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/queue"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

// compactMinSlots is the slot count below which tombstones are never
// compacted.
const compactMinSlots = 64

// Compile time checks.
var (
	_ segment.VectorReader = (*Segment)(nil)
	_ segment.Writer       = (*Segment)(nil)
	_ segment.Discarder    = (*Segment)(nil)
)

// Segment is a live vector segment.
type Segment struct {
	*segment.Base

	cfg   Config
	dim   int
	state *state
}

// state is the mutable part of a Segment, guarded by the Base lock.
type state struct {
	metric  distance.Metric
	st      *storage
	backend Backend
	seq     model.SeqID

	// fault is set when indexing failed during apply; reads report it as
	// corruption.
	fault string
}

// Register adds the flat and hnsw factories to reg.
func Register(reg *segment.Registry) {
	reg.Register(model.SegmentTypeFlat, Open)
	reg.Register(model.SegmentTypeHNSW, Open)
}

// Open is the segment.Factory of both vector segment types.
func Open(ctx context.Context, seg model.Segment, col model.Collection, env segment.Env) (segment.Implementation, error) {
	return New(ctx, seg, col, env)
}

// New constructs a vector segment and restores its persisted state.
func New(ctx context.Context, seg model.Segment, col model.Collection, env segment.Env) (*Segment, error) {
	if seg.Scope != model.ScopeVector || seg.Type.Scope() != model.ScopeVector {
		return nil, fmt.Errorf("%w: %s is not a vector segment", model.ErrInvalidArgument, seg)
	}
	if col.Dimension <= 0 {
		return nil, fmt.Errorf("%w: collection %s has dimension %d", model.ErrInvalidArgument, col.ID, col.Dimension)
	}

	cfg, err := ParseConfig(seg)
	if err != nil {
		return nil, err
	}
	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	st := newStorage(col.Dimension)
	var backend Backend
	switch seg.Type {
	case model.SegmentTypeFlat:
		backend = newFlat(st, dist)
	case model.SegmentTypeHNSW:
		backend = newHNSW(st, dist, cfg, seedFor(seg.ID))
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownSegmentType, seg.Type)
	}

	s := &Segment{
		cfg: cfg,
		dim: col.Dimension,
		state: &state{
			metric:  cfg.Metric,
			st:      st,
			backend: backend,
		},
	}
	s.Base = segment.NewBase(seg, env.WithDefaults(), s.state)

	var snap snapshot
	if err := s.Load(ctx, &snap, func() (model.SeqID, error) { return s.state.restore(&snap) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the parsed descriptor config.
func (s *Segment) Config() Config { return s.cfg }

// Dimension returns the vector length accepted by the segment.
func (s *Segment) Dimension() int { return s.dim }

// Backend returns the search backend.
func (s *Segment) Backend() Backend {
	var b Backend
	_ = s.Read(context.Background(), func() error {
		b = s.state.backend
		return nil
	})
	return b
}

// Count implements segment.Implementation.
func (s *Segment) Count(ctx context.Context) (int, error) {
	var n int
	err := s.Read(ctx, func() error {
		n = s.state.st.Count()
		return nil
	})
	return n, err
}

// GetVectors implements segment.VectorReader.
func (s *Segment) GetVectors(ctx context.Context, ids []string) ([]model.VectorEmbeddingRecord, error) {
	start := time.Now()

	var out []model.VectorEmbeddingRecord
	err := s.Read(ctx, func() error {
		if err := s.checkFault(); err != nil {
			return err
		}

		st := s.state.st
		if ids == nil {
			out = make([]model.VectorEmbeddingRecord, 0, st.Count())
			it := st.live.Iterator()
			for it.HasNext() {
				out = append(out, st.Record(it.Next(), true))
			}
		} else {
			out = make([]model.VectorEmbeddingRecord, 0, len(ids))
			seen := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				if ord, ok := st.Lookup(id); ok {
					out = append(out, st.Record(ord, true))
				}
			}
		}

		slices.SortFunc(out, func(a, b model.VectorEmbeddingRecord) int {
			return strings.Compare(a.ID, b.ID)
		})
		return nil
	})

	s.Observe("get_vectors", start, len(out), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryVectors implements segment.VectorReader.
func (s *Segment) QueryVectors(ctx context.Context, q model.VectorQuery) ([][]model.VectorQueryResult, error) {
	start := time.Now()
	results, err := s.queryVectors(ctx, q)

	n := 0
	for _, r := range results {
		n += len(r)
	}
	s.Observe("query_vectors", start, n, err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Segment) queryVectors(ctx context.Context, q model.VectorQuery) ([][]model.VectorQueryResult, error) {
	if q.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", model.ErrInvalidArgument, q.K)
	}
	for _, v := range q.Vectors {
		if err := model.CheckDimension(s.dim, v); err != nil {
			return nil, err
		}
	}

	search := func(ctx context.Context, v []float32, allowed *roaring.Bitmap) ([]queue.Item, error) {
		return s.state.backend.search(ctx, v, q.K, allowed)
	}
	if q.Metric != nil && *q.Metric != s.cfg.Metric {
		dist, err := distance.Provider(*q.Metric)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
		}
		// Graph links are only meaningful for the metric they were built with.
		search = func(ctx context.Context, v []float32, allowed *roaring.Bitmap) ([]queue.Item, error) {
			return exactSearch(ctx, s.state.st, dist, v, q.K, allowed)
		}
	}

	results := make([][]model.VectorQueryResult, len(q.Vectors))
	err := s.Read(ctx, func() error {
		if err := s.checkFault(); err != nil {
			return err
		}

		st := s.state.st
		allowed := st.live
		if q.AllowedIDs != nil {
			allowed = roaring.New()
			for _, id := range q.AllowedIDs {
				if ord, ok := st.Lookup(id); ok {
					allowed.Add(ord)
				}
			}
		}

		for i, v := range q.Vectors {
			items, err := search(ctx, v, allowed)
			if err != nil {
				var c corruption
				if errors.As(err, &c) {
					return s.Corrupt(string(c))
				}
				return err
			}

			res := make([]model.VectorQueryResult, len(items))
			for j, item := range items {
				res[j] = model.VectorQueryResult{
					ID:       st.ids[item.Node],
					SeqID:    st.seqs[item.Node],
					Distance: item.Distance,
				}
				if q.IncludeEmbeddings {
					res[j].Embedding = append([]float32(nil), st.Vector(item.Node)...)
				}
			}
			results[i] = res
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Validate implements segment.Writer.
func (s *Segment) Validate(batch []model.LogRecord) error {
	if err := segment.ValidateOrder(batch); err != nil {
		return err
	}
	for _, r := range batch {
		if r.Vector == nil {
			if r.Operation == model.OpAdd {
				return fmt.Errorf("%w: add of %q carries no vector", model.ErrInvalidArgument, r.ID)
			}
			continue
		}
		if r.Operation == model.OpDelete {
			continue
		}
		if err := model.CheckDimension(s.dim, r.Vector); err != nil {
			return fmt.Errorf("record %q: %w", r.ID, err)
		}
		for _, x := range r.Vector {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("%w: record %q has a non-finite component", model.ErrInvalidArgument, r.ID)
			}
		}
	}
	return nil
}

// Apply implements segment.Writer.
func (s *Segment) Apply(ctx context.Context, batch []model.LogRecord) error {
	return s.Base.Apply(ctx, batch, s.Validate)
}

func (s *Segment) checkFault() error {
	if s.state.fault != "" {
		return s.Corrupt(s.state.fault)
	}
	return nil
}

// ApplyRecords implements segment.State.
//
// Add ignores existing ids, Update ignores missing ids and records without a
// vector, Upsert without a vector is a metadata-only change.
func (s *state) ApplyRecords(batch []model.LogRecord) {
	for _, r := range batch {
		_, exists := s.st.Lookup(r.ID)
		switch r.Operation {
		case model.OpAdd:
			if !exists {
				s.append(r)
			}
		case model.OpUpdate:
			if exists && r.Vector != nil {
				s.append(r)
			}
		case model.OpUpsert:
			if r.Vector != nil {
				s.append(r)
			}
		case model.OpDelete:
			s.st.Remove(r.ID)
		}
		s.seq = r.SeqID
	}

	if s.st.Len() >= compactMinSlots && s.st.Tombstones() > s.st.Count() {
		s.compact()
	}
}

func (s *state) append(r model.LogRecord) {
	ord := s.st.Append(r.ID, r.SeqID, r.Vector)
	if err := s.backend.add(ord); err != nil && s.fault == "" {
		s.fault = err.Error()
	}
}

func (s *state) compact() {
	st := s.st.Compacted()
	if err := s.backend.rebuild(st); err != nil && s.fault == "" {
		s.fault = err.Error()
	}
	s.st = st
}

// Snapshot implements segment.State.
func (s *state) Snapshot() (any, error) {
	return s.snapshot()
}

// MemoryBytes implements segment.State.
func (s *state) MemoryBytes() int64 {
	return s.st.MemoryBytes() + s.backend.memoryBytes()
}

// seedFor derives the level generator seed from the segment id so graph
// construction is reproducible.
func seedFor(id uuid.UUID) [2]uint64 {
	return [2]uint64{
		binary.LittleEndian.Uint64(id[:8]),
		binary.LittleEndian.Uint64(id[8:]),
	}
}
