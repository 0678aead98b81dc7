package vector

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vecseg/distance"
	"github.com/hupe1980/vecseg/internal/queue"
	"github.com/hupe1980/vecseg/model"
)

const (
	// maxLevelCap bounds the layer drawn for a new node.
	maxLevelCap = 16

	// exactSelectivity is the allowed fraction of the graph below which a
	// filtered query scans the allowed set instead of walking the graph.
	exactSelectivity = 0.01
)

// corruption is returned by graph walks that hit an inconsistent link.
type corruption string

func (c corruption) Error() string { return string(c) }

// graphSnapshot is the persisted form of an HNSW graph.
type graphSnapshot struct {
	Entry    uint32       `json:"entry"`
	MaxLevel int          `json:"max_level"`
	Links    [][][]uint32 `json:"links"` // node -> level -> neighbors
}

// HNSW is the hierarchical navigable small world backend.
//
// Every storage slot is a graph node, including tombstoned ones: they keep
// routing searches until the next compaction but are never admitted to
// results.
type HNSW struct {
	st   *storage
	dist distance.Func
	cfg  Config

	mmax  int     // max links per node on layers above 0
	mmax0 int     // max links per node on layer 0
	ml    float64 // level generation factor
	rng   *rand.Rand

	entry    uint32
	maxLevel int
	links    [][][]uint32
}

func newHNSW(st *storage, dist distance.Func, cfg Config, seed [2]uint64) *HNSW {
	return &HNSW{
		st:    st,
		dist:  dist,
		cfg:   cfg,
		mmax:  cfg.M,
		mmax0: 2 * cfg.M,
		ml:    1 / math.Log(float64(cfg.M)),
		rng:   rand.New(rand.NewPCG(seed[0], seed[1])), // nolint gosec
	}
}

// Type implements Backend.
func (h *HNSW) Type() model.SegmentType { return model.SegmentTypeHNSW }

// GraphStats describes the shape of the graph.
type GraphStats struct {
	Nodes         int
	MaxLevel      int
	Entry         uint32
	NodesPerLevel []int
	LinksPerLevel []int
}

// Stats returns statistics about the graph.
func (h *HNSW) Stats() GraphStats {
	stats := GraphStats{
		Nodes:         len(h.links),
		MaxLevel:      h.maxLevel,
		Entry:         h.entry,
		NodesPerLevel: make([]int, h.maxLevel+1),
		LinksPerLevel: make([]int, h.maxLevel+1),
	}
	for _, layers := range h.links {
		for level, conns := range layers {
			if level > h.maxLevel {
				break
			}
			stats.NodesPerLevel[level]++
			stats.LinksPerLevel[level] += len(conns)
		}
	}
	return stats
}

func (h *HNSW) randomLevel() int {
	level := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
	return min(level, maxLevelCap)
}

func (h *HNSW) add(ord uint32) error {
	if int(ord) != len(h.links) {
		return fmt.Errorf("%w: graph has %d nodes, slot %d appended", model.ErrCorrupt, len(h.links), ord)
	}

	level := h.randomLevel()
	h.links = append(h.links, make([][]uint32, level+1))
	if len(h.links) == 1 {
		h.entry, h.maxLevel = ord, level
		return nil
	}

	vec := h.st.Vector(ord)

	// Find single shortest path from the top layers down to the node's
	// layer, which is the starting point for linking.
	ep := queue.Item{Node: h.entry, Distance: h.dist(vec, h.st.Vector(h.entry))}
	var err error
	for l := h.maxLevel; l > level; l-- {
		if ep, err = h.greedy(vec, ep, l); err != nil {
			return err
		}
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		found, err := h.searchLayer(context.Background(), vec, ep, h.cfg.EFConstruction, l, nil)
		if err != nil {
			return err
		}
		candidates := found.Drain()
		if len(candidates) == 0 {
			continue
		}

		selected := h.selectNeighbours(candidates, h.mmax)
		conns := make([]uint32, len(selected))
		for i, item := range selected {
			conns[i] = item.Node
		}
		h.links[ord][l] = conns

		// Link the neighbors back, making the node visible.
		for _, n := range conns {
			h.link(n, ord, l)
		}
		ep = candidates[0]
	}

	if level > h.maxLevel {
		h.entry, h.maxLevel = ord, level
	}
	return nil
}

// link adds second to the neighbors of first, pruning with the heuristic
// when first exceeds its connection budget.
func (h *HNSW) link(first, second uint32, level int) {
	maxConns := h.mmax
	// Layer 0 allows double the connections.
	if level == 0 {
		maxConns = h.mmax0
	}

	conns := append(h.links[first][level], second)
	if len(conns) > maxConns {
		base := h.st.Vector(first)
		items := make([]queue.Item, len(conns))
		for i, n := range conns {
			items[i] = queue.Item{Node: n, Distance: h.dist(base, h.st.Vector(n))}
		}
		slices.SortFunc(items, compareItems)

		selected := h.selectNeighbours(items, maxConns)
		conns = make([]uint32, len(selected))
		for i, item := range selected {
			conns[i] = item.Node
		}
	}
	h.links[first][level] = conns
}

// selectNeighbours picks up to m diverse neighbors from candidates sorted
// closest first: a candidate is kept only if it is closer to the base than
// to every neighbor already kept. Rejected candidates fill remaining slots.
func (h *HNSW) selectNeighbours(candidates []queue.Item, m int) []queue.Item {
	if len(candidates) <= m {
		return candidates
	}

	selected := make([]queue.Item, 0, m)
	var rejected []queue.Item
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		good := true
		for _, s := range selected {
			if h.dist(h.st.Vector(s.Node), h.st.Vector(c.Node)) < c.Distance {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		} else {
			rejected = append(rejected, c)
		}
	}

	for _, c := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	return selected
}

// greedy walks level towards q until no neighbor is closer.
func (h *HNSW) greedy(q []float32, ep queue.Item, level int) (queue.Item, error) {
	for changed := true; changed; {
		changed = false

		layers := h.links[ep.Node]
		if level >= len(layers) {
			return ep, corruption(fmt.Sprintf("node %d has no layer %d", ep.Node, level))
		}
		for _, n := range layers[level] {
			if int(n) >= len(h.links) {
				return ep, corruption(fmt.Sprintf("node %d links to missing node %d", ep.Node, n))
			}
			if d := h.dist(q, h.st.Vector(n)); d < ep.Distance {
				ep = queue.Item{Node: n, Distance: d}
				changed = true
			}
		}
	}
	return ep, nil
}

// searchLayer returns up to ef nodes of level closest to q, as a max-queue.
// With allowed set every node is traversed but only allowed nodes are
// admitted to the result.
func (h *HNSW) searchLayer(ctx context.Context, q []float32, ep queue.Item, ef, level int, allowed *roaring.Bitmap) (*queue.PriorityQueue, error) {
	var visited bitset.BitSet
	visited.Set(uint(ep.Node))

	candidates := queue.NewMin(ef)
	candidates.Push(ep)

	results := queue.NewMax(ef + 1)
	if allowed == nil || allowed.Contains(ep.Node) {
		results.Push(ep)
	}

	for steps := 0; candidates.Len() > 0; steps++ {
		if steps%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		candidate, _ := candidates.Pop()
		if worst, ok := results.Top(); ok && results.Len() >= ef && candidate.Distance > worst.Distance {
			break
		}

		layers := h.links[candidate.Node]
		if level >= len(layers) {
			continue
		}

		for _, n := range layers[level] {
			if int(n) >= len(h.links) {
				return nil, corruption(fmt.Sprintf("node %d links to missing node %d", candidate.Node, n))
			}
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			item := queue.Item{Node: n, Distance: h.dist(q, h.st.Vector(n))}
			if worst, ok := results.Top(); results.Len() < ef || !ok || item.Distance < worst.Distance {
				candidates.Push(item)
				if allowed == nil || allowed.Contains(n) {
					results.Push(item)
					if results.Len() > ef {
						results.Pop()
					}
				}
			}
		}
	}
	return results, nil
}

func (h *HNSW) search(ctx context.Context, q []float32, k int, allowed *roaring.Bitmap) ([]queue.Item, error) {
	if len(h.links) == 0 || allowed.IsEmpty() {
		return nil, nil
	}

	card := allowed.GetCardinality()
	ef := max(h.cfg.EFSearch, k)
	if card <= uint64(ef) || float64(card) < exactSelectivity*float64(len(h.links)) {
		return exactSearch(ctx, h.st, h.dist, q, k, allowed)
	}

	ep := queue.Item{Node: h.entry, Distance: h.dist(q, h.st.Vector(h.entry))}
	var err error
	for l := h.maxLevel; l > 0; l-- {
		if ep, err = h.greedy(q, ep, l); err != nil {
			return nil, err
		}
	}

	found, err := h.searchLayer(ctx, q, ep, ef, 0, allowed)
	if err != nil {
		return nil, err
	}

	items := found.Drain()
	if len(items) < min(k, int(card)) {
		return exactSearch(ctx, h.st, h.dist, q, k, allowed)
	}

	slices.SortFunc(items, h.st.compare)
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}

func (h *HNSW) rebuild(st *storage) error {
	h.st = st
	h.links = make([][][]uint32, 0, st.Len())
	h.entry, h.maxLevel = 0, 0
	for ord := range st.Len() {
		if err := h.add(uint32(ord)); err != nil {
			return err
		}
	}
	return nil
}

func (h *HNSW) memoryBytes() int64 {
	n := int64(cap(h.links)) * 24
	for _, layers := range h.links {
		n += int64(cap(layers)) * 24
		for _, conns := range layers {
			n += int64(cap(conns)) * 4
		}
	}
	return n
}

func (h *HNSW) snapshot() *graphSnapshot {
	return &graphSnapshot{Entry: h.entry, MaxLevel: h.maxLevel, Links: h.links}
}

func (h *HNSW) restore(st *storage, g *graphSnapshot) error {
	if g == nil {
		return h.rebuild(st)
	}
	if len(g.Links) != st.Len() {
		return fmt.Errorf("%w: graph has %d nodes, storage %d slots", model.ErrCorrupt, len(g.Links), st.Len())
	}
	for node, layers := range g.Links {
		if len(layers) == 0 || len(layers) > maxLevelCap+1 {
			return fmt.Errorf("%w: node %d has %d layers", model.ErrCorrupt, node, len(layers))
		}
		for _, conns := range layers {
			for _, n := range conns {
				if int(n) >= len(g.Links) {
					return fmt.Errorf("%w: node %d links to missing node %d", model.ErrCorrupt, node, n)
				}
			}
		}
	}
	if len(g.Links) > 0 {
		if int(g.Entry) >= len(g.Links) || len(g.Links[g.Entry]) != g.MaxLevel+1 {
			return fmt.Errorf("%w: invalid entry point %d", model.ErrCorrupt, g.Entry)
		}
	}

	h.st = st
	h.links = g.Links
	h.entry, h.maxLevel = g.Entry, g.MaxLevel
	return nil
}

func compareItems(a, b queue.Item) int {
	switch {
	case queue.Closer(a, b):
		return -1
	case queue.Closer(b, a):
		return 1
	default:
		return 0
	}
}
