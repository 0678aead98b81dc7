package vecseg

import (
	"context"

	"github.com/hupe1980/vecseg/model"
)

// State is the lifecycle position of a segment within a Manager.
//
//	DESCRIBED -> INITIALIZING -> LIVE -> DELETED
//
// A failed construction returns to DESCRIBED, as do LRU eviction and fatal
// corruption of a live instance. DELETED is terminal.
type State int

const (
	// StateDescribed means the descriptor is persisted but no instance is live.
	StateDescribed State = iota + 1
	// StateInitializing means an instance is being constructed.
	StateInitializing
	// StateLive means an instance is cached and serving.
	StateLive
	// StateDeleted means the collection was deleted through this manager.
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateDescribed:
		return "DESCRIBED"
	case StateInitializing:
		return "INITIALIZING"
	case StateLive:
		return "LIVE"
	case StateDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// State returns the lifecycle state of seg. Segments this manager never
// saw and that are missing from the catalog yield ErrNotFound.
func (m *Manager) State(ctx context.Context, seg model.Segment) (State, error) {
	m.mu.Lock()
	_, deleted := m.deleted[seg.ID]
	_, building := m.building[seg.ID]
	live := m.live.Contains(seg.ID)
	m.mu.Unlock()

	switch {
	case deleted:
		return StateDeleted, nil
	case live:
		return StateLive, nil
	case building:
		return StateInitializing, nil
	}

	if _, err := m.catalog.GetSegment(ctx, seg.Collection, seg.ID); err != nil {
		return 0, err
	}
	return StateDescribed, nil
}
