package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hupe1980/vecseg/model"
)

// State is the in-memory half of a concrete segment that Base drives:
// applying validated records and producing snapshots.
type State interface {
	// ApplyRecords mutates the state. Records are validated and newer than
	// the current MaxSeqID.
	ApplyRecords(batch []model.LogRecord)
	// Snapshot returns a value encoding the complete state.
	Snapshot() (any, error)
	// MemoryBytes estimates the resident size.
	MemoryBytes() int64
}

// Base implements the lifecycle shared by concrete segments: the
// reader/writer lock, closed state, MaxSeqID bookkeeping, journaling,
// checkpoints and memory accounting.
//
// Concrete segments embed *Base and wrap their read paths in Read.
type Base struct {
	desc    model.Segment
	env     Env
	journal *Journal
	state   State

	mu     sync.RWMutex
	closed error
	maxSeq model.SeqID
	memory int64
}

// NewBase creates the lifecycle wrapper around state.
func NewBase(desc model.Segment, env Env, state State) *Base {
	return &Base{
		desc:    desc,
		env:     env,
		journal: NewJournal(env, desc.ID),
		state:   state,
	}
}

// Load restores the segment: snap is decoded from the snapshot when present,
// then restore is called with it (or not at all if there is none) and must
// return the snapshot's MaxSeqID. Journal entries past it are replayed.
func (b *Base) Load(ctx context.Context, snap any, restore func() (model.SeqID, error)) error {
	found, err := b.journal.LoadSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	if found {
		seq, err := restore()
		if err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		b.maxSeq = seq
	}

	replayed := 0
	err = b.journal.Replay(ctx, b.maxSeq, func(batch []model.LogRecord) error {
		b.state.ApplyRecords(batch)
		b.maxSeq = batch[len(batch)-1].SeqID
		replayed += len(batch)
		return nil
	})
	if err != nil {
		return err
	}

	if err := b.resizeMemory(); err != nil {
		return err
	}

	b.env.Logger.Debug("segment loaded",
		slog.Bool("snapshot", found),
		slog.Int("replayed", replayed),
		slog.Uint64("max_seq_id", uint64(b.maxSeq)),
		slog.Int64("memory_bytes", b.memory),
	)
	return nil
}

// Descriptor implements Implementation.
func (b *Base) Descriptor() model.Segment { return b.desc }

// Env returns the construction environment.
func (b *Base) Env() Env { return b.env }

// Read runs fn under the read lock. It returns model.ErrClosed once the
// segment is closed, or the cause it was discarded with.
func (b *Base) Read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed != nil {
		return fmt.Errorf("segment %s: %w", b.desc.ID, b.closed)
	}
	return fn()
}

// MaxSeqID implements Implementation.
func (b *Base) MaxSeqID(ctx context.Context) (model.SeqID, error) {
	var seq model.SeqID
	err := b.Read(ctx, func() error {
		seq = b.maxSeq
		return nil
	})
	return seq, err
}

// Pending drops records at or below MaxSeqID. Callers must hold a lock.
func (b *Base) pending(batch []model.LogRecord) []model.LogRecord {
	for i, r := range batch {
		if r.SeqID > b.maxSeq {
			return batch[i:]
		}
	}
	return nil
}

// Apply validates batch with validate, then journals and applies the part
// newer than MaxSeqID under the write lock.
func (b *Base) Apply(ctx context.Context, batch []model.LogRecord, validate func([]model.LogRecord) error) error {
	start := time.Now()
	err := b.apply(ctx, batch, validate)
	b.env.Metrics.RecordApply(b.desc.Type, len(batch), time.Since(start), err)
	return err
}

func (b *Base) apply(ctx context.Context, batch []model.LogRecord, validate func([]model.LogRecord) error) error {
	if err := ValidateOrder(batch); err != nil {
		return err
	}
	if err := validate(batch); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed != nil {
		return fmt.Errorf("segment %s: %w", b.desc.ID, b.closed)
	}

	pending := b.pending(batch)
	if len(pending) == 0 {
		return nil
	}
	if err := b.journal.Append(ctx, pending); err != nil {
		return err
	}

	b.state.ApplyRecords(pending)
	b.maxSeq = pending[len(pending)-1].SeqID

	if err := b.resizeMemory(); err != nil {
		// The batch is durable and applied; only the budget is exceeded.
		b.env.Logger.Warn("segment over memory budget", slog.String("error", err.Error()))
	}

	if n := b.env.CheckpointEvery; n > 0 && b.journal.Entries() >= n {
		if err := b.flushLocked(ctx); err != nil {
			b.env.Logger.Warn("automatic checkpoint failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Flush implements Writer.
func (b *Base) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed != nil {
		return fmt.Errorf("segment %s: %w", b.desc.ID, b.closed)
	}
	return b.flushLocked(ctx)
}

func (b *Base) flushLocked(ctx context.Context) error {
	if b.journal.Entries() == 0 {
		return nil
	}
	start := time.Now()
	snap, err := b.state.Snapshot()
	n := 0
	if err == nil {
		n, err = b.journal.SaveSnapshot(ctx, snap, b.maxSeq)
	}
	b.env.Metrics.RecordFlush(b.desc.Type, n, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("flush segment %s: %w", b.desc.ID, err)
	}
	return nil
}

// Close implements Implementation. It waits for in-flight reads, flushes
// and releases the memory reservation. A flush error is returned but the
// segment is closed regardless.
func (b *Base) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed != nil {
		return nil
	}
	err := b.flushLocked(ctx)
	b.closed = model.ErrClosed
	b.env.Resources.ReleaseMemory(b.memory)
	b.memory = 0
	return err
}

// Discard closes the segment without flushing. Later calls fail with
// cause, or model.ErrClosed if cause is nil.
func (b *Base) Discard(cause error) {
	if cause == nil {
		cause = model.ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed != nil {
		return
	}
	b.closed = cause
	b.env.Resources.ReleaseMemory(b.memory)
	b.memory = 0
}

// Corrupt reports fatal corruption found during a read and returns the
// error to hand to the caller.
func (b *Base) Corrupt(reason string) error {
	err := fmt.Errorf("segment %s: %w: %s", b.desc.ID, model.ErrCorrupt, reason)
	b.env.Logger.Error("segment corruption detected", slog.String("reason", reason))
	b.env.Invalidate(b.desc.ID, err)
	return err
}

// Observe records a read in the metrics.
func (b *Base) Observe(op string, start time.Time, results int, err error) {
	b.env.Metrics.RecordQuery(b.desc.Type, op, results, time.Since(start), err)
}

func (b *Base) resizeMemory() error {
	want := b.state.MemoryBytes()
	delta := want - b.memory
	if delta > 0 {
		if err := b.env.Resources.AcquireMemory(delta); err != nil {
			return err
		}
	} else if delta < 0 {
		b.env.Resources.ReleaseMemory(-delta)
	}
	b.memory = want
	return nil
}

// ValidateOrder checks the structural rules every batch must satisfy:
// known operations, non-empty ids, valid metadata and strictly increasing
// SeqIDs.
func ValidateOrder(batch []model.LogRecord) error {
	var prev model.SeqID
	for i, r := range batch {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has an empty id", model.ErrInvalidArgument, i)
		}
		if !r.Operation.Valid() {
			return fmt.Errorf("%w: record %q has unknown operation %d", model.ErrInvalidArgument, r.ID, r.Operation)
		}
		if err := r.Metadata.Validate(); err != nil {
			return fmt.Errorf("%w: record %q: %v", model.ErrInvalidArgument, r.ID, err)
		}
		if i > 0 && r.SeqID <= prev {
			return fmt.Errorf("%w: seq ids must increase, %d follows %d", model.ErrInvalidArgument, r.SeqID, prev)
		}
		prev = r.SeqID
	}
	return nil
}

// IsClosed reports whether err stems from a closed segment.
func IsClosed(err error) bool { return errors.Is(err, model.ErrClosed) }
