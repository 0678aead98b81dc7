package vector

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/queue"
	"github.com/hupe1980/vecseg/model"
)

// cancelCheckInterval is how many distance computations run between
// context checks.
const cancelCheckInterval = 1024

// Backend is the search structure of a vector segment. The set of
// backends is closed: *Flat and *HNSW.
type Backend interface {
	// Type returns the segment type served by the backend.
	Type() model.SegmentType

	// search returns up to k nearest ordinals among allowed, closest first.
	// allowed only contains live ordinals.
	search(ctx context.Context, q []float32, k int, allowed *roaring.Bitmap) ([]queue.Item, error)
	// add indexes a freshly appended slot.
	add(ord uint32) error
	// rebuild reindexes every live slot of st from scratch.
	rebuild(st *storage) error
	memoryBytes() int64
	snapshot() *graphSnapshot
	restore(st *storage, g *graphSnapshot) error
}

// Flat is the exact brute-force backend.
type Flat struct {
	st   *storage
	dist distance.Func
}

func newFlat(st *storage, dist distance.Func) *Flat {
	return &Flat{st: st, dist: dist}
}

// Type implements Backend.
func (f *Flat) Type() model.SegmentType { return model.SegmentTypeFlat }

func (f *Flat) search(ctx context.Context, q []float32, k int, allowed *roaring.Bitmap) ([]queue.Item, error) {
	return exactSearch(ctx, f.st, f.dist, q, k, allowed)
}

func (f *Flat) add(uint32) error { return nil }

func (f *Flat) rebuild(st *storage) error {
	f.st = st
	return nil
}

func (f *Flat) memoryBytes() int64 { return 0 }

func (f *Flat) snapshot() *graphSnapshot { return nil }

func (f *Flat) restore(st *storage, g *graphSnapshot) error {
	f.st = st
	return nil
}

// exactSearch scans allowed and keeps the k closest ordinals, ties broken
// by record id.
func exactSearch(ctx context.Context, st *storage, dist distance.Func, q []float32, k int, allowed *roaring.Bitmap) ([]queue.Item, error) {
	closer := st.closer
	top := queue.NewMaxFunc(k+1, closer)

	it := allowed.Iterator()
	for i := 0; it.HasNext(); i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		ord := it.Next()
		item := queue.Item{Node: ord, Distance: dist(q, st.Vector(ord))}
		if top.Len() < k {
			top.Push(item)
			continue
		}
		if worst, _ := top.Top(); closer(item, worst) {
			top.Pop()
			top.Push(item)
		}
	}
	return top.Drain(), nil
}

// closer orders items by distance, then by record id.
func (s *storage) closer(a, b queue.Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return s.ids[a.Node] < s.ids[b.Node]
}

func (s *storage) compare(a, b queue.Item) int {
	switch {
	case s.closer(a, b):
		return -1
	case s.closer(b, a):
		return 1
	default:
		return 0
	}
}
