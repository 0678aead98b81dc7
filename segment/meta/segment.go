package meta

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecseg/metadata"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
)

const (
	// compactMinSlots is the ordinal count below which deleted ordinals are
	// never reclaimed.
	compactMinSlots = 64

	// sortedScanRatio: candidate sets smaller than 1/sortedScanRatio of the
	// segment are sorted directly instead of scanning the id order.
	sortedScanRatio = 8
)

// Compile time checks.
var (
	_ segment.MetadataReader = (*Segment)(nil)
	_ segment.Writer         = (*Segment)(nil)
	_ segment.Discarder      = (*Segment)(nil)
)

// Segment is a live metadata segment.
type Segment struct {
	*segment.Base

	state *state
}

// state is the mutable part of a Segment, guarded by the Base lock.
//
// Records live in dense ordinals so the inverted index can use roaring
// bitmaps. order lists the live ordinals sorted by id.
type state struct {
	seq model.SeqID

	ids   []string
	seqs  []model.SeqID
	docs  []metadata.Document
	texts []*string
	live  *roaring.Bitmap
	byID  map[string]uint32
	order []uint32
	index *metadata.Index
}

func newState() *state {
	return &state{
		live:  roaring.New(),
		byID:  make(map[string]uint32),
		index: metadata.NewIndex(),
	}
}

// Register adds the metadata factory to reg.
func Register(reg *segment.Registry) {
	reg.Register(model.SegmentTypeMetadata, Open)
}

// Open is the segment.Factory of metadata segments.
func Open(ctx context.Context, seg model.Segment, col model.Collection, env segment.Env) (segment.Implementation, error) {
	return New(ctx, seg, env)
}

// New constructs a metadata segment and restores its persisted state.
func New(ctx context.Context, seg model.Segment, env segment.Env) (*Segment, error) {
	if seg.Scope != model.ScopeMetadata || seg.Type.Scope() != model.ScopeMetadata {
		return nil, fmt.Errorf("%w: %s is not a metadata segment", model.ErrInvalidArgument, seg)
	}

	s := &Segment{state: newState()}
	s.Base = segment.NewBase(seg, env.WithDefaults(), s.state)

	var snap snapshot
	if err := s.Load(ctx, &snap, func() (model.SeqID, error) { return s.state.restore(&snap) }); err != nil {
		return nil, err
	}
	return s, nil
}

// Count implements segment.Implementation.
func (s *Segment) Count(ctx context.Context) (int, error) {
	var n int
	err := s.Read(ctx, func() error {
		n = len(s.state.order)
		return nil
	})
	return n, err
}

// IndexStats returns statistics about the inverted index.
func (s *Segment) IndexStats(ctx context.Context) (metadata.Stats, error) {
	var stats metadata.Stats
	err := s.Read(ctx, func() error {
		stats = s.state.index.GetStats()
		return nil
	})
	return stats, err
}

// GetMetadata implements segment.MetadataReader.
func (s *Segment) GetMetadata(ctx context.Context, q model.MetadataQuery) ([]model.MetadataEmbeddingRecord, error) {
	start := time.Now()
	out, err := s.getMetadata(ctx, q)
	s.Observe("get_metadata", start, len(out), err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Segment) getMetadata(ctx context.Context, q model.MetadataQuery) ([]model.MetadataEmbeddingRecord, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative, got %d", model.ErrInvalidArgument, q.Offset)
	}
	if q.Limit != nil && *q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", model.ErrInvalidArgument, *q.Limit)
	}
	if err := metadata.ValidateWhere(q.Where); err != nil {
		return nil, err
	}
	if err := metadata.ValidateWhereDocument(q.WhereDocument); err != nil {
		return nil, err
	}

	var out []model.MetadataEmbeddingRecord
	err := s.Read(ctx, func() error {
		st := s.state
		out = []model.MetadataEmbeddingRecord{}
		if q.Limit != nil && *q.Limit == 0 {
			return nil
		}

		candidates := st.candidates(q)
		skip := q.Offset
		emit := func(ord uint32) bool {
			if !st.match(ord, q) {
				return true
			}
			if skip > 0 {
				skip--
				return true
			}
			out = append(out, st.record(ord))
			return q.Limit == nil || len(out) < *q.Limit
		}

		if candidates != nil && candidates.GetCardinality()*sortedScanRatio < uint64(len(st.order)) {
			ords := candidates.ToArray()
			for _, ord := range ords {
				if !st.live.Contains(ord) {
					return s.Corrupt(fmt.Sprintf("index references deleted ordinal %d", ord))
				}
			}
			slices.SortFunc(ords, func(a, b uint32) int { return strings.Compare(st.ids[a], st.ids[b]) })
			for _, ord := range ords {
				if !emit(ord) {
					break
				}
			}
			return nil
		}

		for i, ord := range st.order {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if candidates != nil && !candidates.Contains(ord) {
				continue
			}
			if !emit(ord) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// candidates returns the ordinals that can match q, or nil for all.
func (st *state) candidates(q model.MetadataQuery) *roaring.Bitmap {
	var bm *roaring.Bitmap
	if q.Where != nil {
		bm = st.index.Candidates(q.Where)
	}
	if q.IDs != nil {
		ids := roaring.New()
		for _, id := range q.IDs {
			if ord, ok := st.byID[id]; ok {
				ids.Add(ord)
			}
		}
		if bm == nil {
			bm = ids
		} else {
			bm.And(ids)
		}
	}
	return bm
}

func (st *state) match(ord uint32, q model.MetadataQuery) bool {
	if q.Where != nil && !q.Where.Match(st.docs[ord]) {
		return false
	}
	if q.WhereDocument != nil && !q.WhereDocument.MatchDocument(st.texts[ord]) {
		return false
	}
	return true
}

func (st *state) record(ord uint32) model.MetadataEmbeddingRecord {
	rec := model.MetadataEmbeddingRecord{
		ID:       st.ids[ord],
		SeqID:    st.seqs[ord],
		Metadata: metadata.CloneIfNeeded(st.docs[ord]),
	}
	if text := st.texts[ord]; text != nil {
		rec.Document = new(string)
		*rec.Document = *text
	}
	return rec
}

// Validate implements segment.Writer.
func (s *Segment) Validate(batch []model.LogRecord) error {
	return segment.ValidateOrder(batch)
}

// Apply implements segment.Writer.
func (s *Segment) Apply(ctx context.Context, batch []model.LogRecord) error {
	return s.Base.Apply(ctx, batch, s.Validate)
}

// ApplyRecords implements segment.State.
//
// Add ignores existing ids and Update ignores missing ids. Metadata is
// merged as a delta where Null removes a key; a nil Document keeps the
// stored text.
func (st *state) ApplyRecords(batch []model.LogRecord) {
	for _, r := range batch {
		ord, exists := st.byID[r.ID]
		switch r.Operation {
		case model.OpAdd:
			if !exists {
				st.insert(r)
			}
		case model.OpUpdate:
			if exists {
				st.update(ord, r)
			}
		case model.OpUpsert:
			if exists {
				st.update(ord, r)
			} else {
				st.insert(r)
			}
		case model.OpDelete:
			if exists {
				st.remove(ord)
			}
		}
		st.seq = r.SeqID
	}

	if len(st.ids) >= compactMinSlots && len(st.ids)-len(st.order) > len(st.order) {
		st.compact()
	}
}

func (st *state) insert(r model.LogRecord) {
	ord := uint32(len(st.ids))
	doc := metadata.Document(nil).Merge(r.Metadata)

	st.ids = append(st.ids, r.ID)
	st.seqs = append(st.seqs, r.SeqID)
	st.docs = append(st.docs, doc)
	st.texts = append(st.texts, cloneText(r.Document))
	st.live.Add(ord)
	st.byID[r.ID] = ord
	st.index.Add(ord, doc)

	i, _ := slices.BinarySearchFunc(st.order, r.ID, st.compareOrd)
	st.order = slices.Insert(st.order, i, ord)
}

func (st *state) update(ord uint32, r model.LogRecord) {
	if r.Metadata != nil {
		st.index.Remove(ord, st.docs[ord])
		st.docs[ord] = st.docs[ord].Merge(r.Metadata)
		st.index.Add(ord, st.docs[ord])
	}
	if r.Document != nil {
		st.texts[ord] = cloneText(r.Document)
	}
	st.seqs[ord] = r.SeqID
}

func (st *state) remove(ord uint32) {
	id := st.ids[ord]
	if i, found := slices.BinarySearchFunc(st.order, id, st.compareOrd); found {
		st.order = slices.Delete(st.order, i, i+1)
	}
	st.index.Remove(ord, st.docs[ord])
	st.live.Remove(ord)
	delete(st.byID, id)
	st.docs[ord] = nil
	st.texts[ord] = nil
}

func (st *state) compareOrd(ord uint32, id string) int {
	return strings.Compare(st.ids[ord], id)
}

// compact renumbers live records densely in id order.
func (st *state) compact() {
	records := make([]model.MetadataEmbeddingRecord, len(st.order))
	for i, ord := range st.order {
		records[i] = model.MetadataEmbeddingRecord{
			ID:       st.ids[ord],
			SeqID:    st.seqs[ord],
			Metadata: st.docs[ord],
			Document: st.texts[ord],
		}
	}
	seq := st.seq
	*st = *newState()
	st.load(records)
	st.seq = seq
}

// load fills an empty state from records sorted by id.
func (st *state) load(records []model.MetadataEmbeddingRecord) {
	n := len(records)
	st.ids = make([]string, n)
	st.seqs = make([]model.SeqID, n)
	st.docs = make([]metadata.Document, n)
	st.texts = make([]*string, n)
	st.order = make([]uint32, n)
	for i, rec := range records {
		ord := uint32(i)
		st.ids[i] = rec.ID
		st.seqs[i] = rec.SeqID
		st.docs[i] = rec.Metadata
		st.texts[i] = rec.Document
		st.order[i] = ord
		st.byID[rec.ID] = ord
		st.live.Add(ord)
		st.index.Add(ord, rec.Metadata)
	}
}

// MemoryBytes implements segment.State.
func (st *state) MemoryBytes() int64 {
	var n int64
	n += int64(cap(st.ids))*16 + int64(cap(st.seqs))*8 + int64(cap(st.docs))*8 + int64(cap(st.texts))*8
	n += int64(cap(st.order)) * 4
	for ord, id := range st.ids {
		// map entry, key bytes
		n += int64(len(id))*2 + 48
		for k, v := range st.docs[ord] {
			n += int64(len(k)) + 64 + int64(len(v.StringValue()))
		}
		if text := st.texts[ord]; text != nil {
			n += int64(len(*text)) + 16
		}
	}
	n += int64(st.live.GetSizeInBytes())
	n += int64(st.index.GetStats().MemoryBytes)
	return n
}

func cloneText(text *string) *string {
	if text == nil {
		return nil
	}
	out := *text
	return &out
}
