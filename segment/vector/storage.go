package vector

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecseg/model"
)

// storage holds the vectors of a segment in dense slots. A slot (ordinal)
// never changes its vector; updates append a new slot and tombstone the
// old one. live contains the ordinals that are visible.
type storage struct {
	dim  int
	ids  []string
	seqs []model.SeqID
	data []float32
	live *roaring.Bitmap
	byID map[string]uint32
}

func newStorage(dim int) *storage {
	return &storage{
		dim:  dim,
		live: roaring.New(),
		byID: make(map[string]uint32),
	}
}

// Len returns the number of slots, including tombstones.
func (s *storage) Len() int { return len(s.ids) }

// Count returns the number of live records.
func (s *storage) Count() int { return int(s.live.GetCardinality()) }

// Tombstones returns the number of dead slots.
func (s *storage) Tombstones() int { return s.Len() - s.Count() }

// Vector returns the stored vector of ord. The slice aliases storage.
func (s *storage) Vector(ord uint32) []float32 {
	off := int(ord) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// Lookup returns the live ordinal of id.
func (s *storage) Lookup(id string) (uint32, bool) {
	ord, ok := s.byID[id]
	return ord, ok
}

// Append stores vec under id, tombstoning a previous slot of id.
func (s *storage) Append(id string, seq model.SeqID, vec []float32) uint32 {
	s.Remove(id)

	ord := uint32(len(s.ids))
	s.ids = append(s.ids, id)
	s.seqs = append(s.seqs, seq)
	s.data = append(s.data, vec...)
	s.live.Add(ord)
	s.byID[id] = ord
	return ord
}

// Remove tombstones the live slot of id.
func (s *storage) Remove(id string) (uint32, bool) {
	ord, ok := s.byID[id]
	if !ok {
		return 0, false
	}
	delete(s.byID, id)
	s.live.Remove(ord)
	return ord, true
}

// Compacted returns a copy holding only live slots, renumbered in their
// previous order.
func (s *storage) Compacted() *storage {
	out := newStorage(s.dim)
	n := s.Count()
	out.ids = make([]string, 0, n)
	out.seqs = make([]model.SeqID, 0, n)
	out.data = make([]float32, 0, n*s.dim)

	it := s.live.Iterator()
	for it.HasNext() {
		ord := it.Next()
		out.Append(s.ids[ord], s.seqs[ord], s.Vector(ord))
	}
	return out
}

// Record materializes ord.
func (s *storage) Record(ord uint32, withVector bool) model.VectorEmbeddingRecord {
	rec := model.VectorEmbeddingRecord{ID: s.ids[ord], SeqID: s.seqs[ord]}
	if withVector {
		rec.Vector = append([]float32(nil), s.Vector(ord)...)
	}
	return rec
}

// MemoryBytes estimates the resident size of the storage.
func (s *storage) MemoryBytes() int64 {
	var n int64
	n += int64(cap(s.data)) * 4
	n += int64(cap(s.seqs)) * 8
	for _, id := range s.ids {
		// string header, map entry and bytes
		n += int64(len(id))*2 + 48
	}
	n += int64(s.live.GetSizeInBytes())
	return n
}

// verify checks the invariants linking ids, slots and the live set.
func (s *storage) verify() string {
	if len(s.seqs) != len(s.ids) {
		return "seq id count does not match slot count"
	}
	if len(s.data) != len(s.ids)*s.dim {
		return "vector data does not match slot count"
	}
	if !s.live.IsEmpty() && int(s.live.Maximum()) >= len(s.ids) {
		return "live set references a missing slot"
	}
	if len(s.byID) != s.Count() {
		return "id index does not match live set"
	}
	for id, ord := range s.byID {
		if int(ord) >= len(s.ids) || s.ids[ord] != id || !s.live.Contains(ord) {
			return "id index points at the wrong slot"
		}
	}
	return ""
}
