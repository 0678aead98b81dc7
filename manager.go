package vecseg

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/catalog"
	"github.com/hupe1980/vecseg/internal/resource"
	"github.com/hupe1980/vecseg/model"
	"github.com/hupe1980/vecseg/segment"
	"github.com/hupe1980/vecseg/segment/meta"
	"github.com/hupe1980/vecseg/segment/vector"
)

var errManagerClosed = fmt.Errorf("manager: %w", model.ErrClosed)

// Manager owns the mapping from persisted segment descriptors to live
// segment instances.
//
// At most one live instance exists per segment id. Construction is
// deduplicated per id and never blocks lookups of other segments. All
// methods are safe for concurrent use.
type Manager struct {
	store     blobstore.BlobStore
	catalog   catalog.Catalog
	registry  *segment.Registry
	resources *resource.Controller
	logger    *Logger
	metrics   MetricsCollector
	opts      options

	flights singleflight.Group

	mu          sync.Mutex
	live        *simplelru.LRU[uuid.UUID, segment.Implementation]
	building    map[uuid.UUID]struct{}
	closing     map[uuid.UUID]chan struct{}
	deleted     map[uuid.UUID]struct{}
	descriptors map[uuid.UUID][]model.Segment
	closed      bool

	background sync.WaitGroup
}

// New creates a Manager persisting segment state in store. Descriptors are
// kept in a catalog.BlobCatalog on the same store unless WithCatalog is
// given.
func New(store blobstore.BlobStore, optFns ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: blob store is required", model.ErrInvalidArgument)
	}

	o := applyOptions(optFns)
	if o.vectorType.Scope() != model.ScopeVector {
		if _, custom := o.factories[o.vectorType]; !custom {
			return nil, fmt.Errorf("%w: %q is not a vector segment type", model.ErrInvalidArgument, o.vectorType)
		}
	}
	cfg, err := model.NormalizeConfig(o.vectorConfig)
	if err != nil {
		return nil, err
	}
	o.vectorConfig = cfg

	cat := o.catalog
	if cat == nil {
		cat = catalog.NewBlobCatalog(store, o.codec)
	}

	reg := segment.NewRegistry()
	vector.Register(reg)
	meta.Register(reg)
	for t, f := range o.factories {
		reg.Register(t, f)
	}

	size := o.maxCached
	if size == 0 {
		size = math.MaxInt32
	}
	live, err := simplelru.NewLRU[uuid.UUID, segment.Implementation](size, nil)
	if err != nil {
		return nil, err
	}

	return &Manager{
		store:       store,
		catalog:     cat,
		registry:    reg,
		resources:   resource.NewController(o.resources),
		logger:      o.logger,
		metrics:     o.metricsCollector,
		opts:        o,
		live:        live,
		building:    make(map[uuid.UUID]struct{}),
		closing:     make(map[uuid.UUID]chan struct{}),
		deleted:     make(map[uuid.UUID]struct{}),
		descriptors: make(map[uuid.UUID][]model.Segment),
	}, nil
}

// Catalog returns the descriptor catalog.
func (m *Manager) Catalog() catalog.Catalog { return m.catalog }

// Registry returns the segment type registry.
func (m *Manager) Registry() *segment.Registry { return m.registry }

// Resources returns the resource controller shared by all segments.
func (m *Manager) Resources() *resource.Controller { return m.resources }

// LiveInstances returns the number of cached live instances.
func (m *Manager) LiveInstances() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.Len()
}

// CreateCollection provisions one metadata and one vector segment for col
// and records them durably. It returns the new descriptors ordered by
// scope. A collection id that is already recorded yields ErrAlreadyExists.
func (m *Manager) CreateCollection(ctx context.Context, col model.Collection) ([]model.Segment, error) {
	segments, err := m.createCollection(ctx, col)
	m.logger.LogCreateCollection(ctx, col, err)
	if err != nil {
		return nil, err
	}
	return segments, nil
}

func (m *Manager) createCollection(ctx context.Context, col model.Collection) ([]model.Segment, error) {
	if col.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: collection id is required", model.ErrInvalidArgument)
	}
	if col.Dimension <= 0 {
		return nil, fmt.Errorf("%w: collection %s has dimension %d", model.ErrInvalidArgument, col.ID, col.Dimension)
	}
	if m.isClosed() {
		return nil, errManagerClosed
	}

	segments := []model.Segment{
		{
			ID:         uuid.New(),
			Type:       model.SegmentTypeMetadata,
			Scope:      model.ScopeMetadata,
			Collection: col.ID,
		},
		{
			ID:         uuid.New(),
			Type:       m.opts.vectorType,
			Scope:      model.ScopeVector,
			Collection: col.ID,
			Config:     maps.Clone(m.opts.vectorConfig),
		},
	}
	if _, err := m.registry.Lookup(m.opts.vectorType); err != nil {
		return nil, err
	}
	if m.opts.vectorType.Scope() == model.ScopeVector {
		if _, err := vector.ParseConfig(segments[1]); err != nil {
			return nil, err
		}
	}

	if err := m.catalog.CreateCollection(ctx, col, segments); err != nil {
		return nil, err
	}
	catalog.SortSegments(segments)
	return segments, nil
}

// DeleteCollection removes a collection and destroys its segments.
//
// It acts as a barrier: once it starts no new instance of the collection's
// segments is handed out, live instances are discarded after their
// in-flight reads finish and later calls on them fail with ErrNotFound.
// Persisted segment state is destroyed last.
func (m *Manager) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	n, err := m.deleteCollection(ctx, id)
	m.logger.LogDeleteCollection(ctx, id, n, err)
	return err
}

func (m *Manager) deleteCollection(ctx context.Context, id uuid.UUID) (int, error) {
	if m.isClosed() {
		return 0, errManagerClosed
	}

	segments, err := m.catalog.GetSegments(ctx, id)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	for _, s := range segments {
		m.deleted[s.ID] = struct{}{}
	}
	delete(m.descriptors, id)
	m.mu.Unlock()

	if _, err := m.catalog.DeleteCollection(ctx, id); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			// The descriptors survived; the segments stay usable.
			m.mu.Lock()
			for _, s := range segments {
				delete(m.deleted, s.ID)
			}
			m.mu.Unlock()
		}
		return 0, err
	}

	var errs []error
	for _, s := range segments {
		m.mu.Lock()
		impl, ok := m.live.Peek(s.ID)
		if ok {
			m.live.Remove(s.ID)
		}
		pending := m.closing[s.ID]
		m.mu.Unlock()

		if ok {
			if err := discard(impl, errSegmentGone); err != nil {
				errs = append(errs, err)
			}
			m.metrics.RecordEviction(EvictDelete)
			m.logger.LogEvict(ctx, s.ID, EvictDelete, nil)
		}
		if pending != nil {
			<-pending
		}
		if err := segment.Purge(ctx, m.store, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("purge segment %s: %w", s.ID, err))
		}
	}
	return len(segments), errors.Join(errs...)
}

// Collection returns the persisted collection record.
func (m *Manager) Collection(ctx context.Context, id uuid.UUID) (model.Collection, error) {
	return m.catalog.GetCollection(ctx, id)
}

// Collections returns every recorded collection ordered by id.
func (m *Manager) Collections(ctx context.Context) ([]model.Collection, error) {
	return m.catalog.ListCollections(ctx)
}

// Segments returns the persisted descriptors of a collection ordered by
// scope.
func (m *Manager) Segments(ctx context.Context, collectionID uuid.UUID) ([]model.Segment, error) {
	m.mu.Lock()
	cached, ok := m.descriptors[collectionID]
	m.mu.Unlock()
	if ok {
		return slices.Clone(cached), nil
	}

	segments, err := m.catalog.GetSegments(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		if _, gone := m.deleted[s.ID]; gone {
			return nil, fmt.Errorf("collection %s: %w", collectionID, errSegmentGone)
		}
	}
	m.descriptors[collectionID] = segments
	return slices.Clone(segments), nil
}

// SegmentFor returns the live instance serving scope in a collection.
func (m *Manager) SegmentFor(ctx context.Context, collectionID uuid.UUID, scope model.Scope) (segment.Implementation, error) {
	segments, err := m.Segments(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for _, s := range segments {
		if s.Scope == scope {
			return m.GetInstance(ctx, s)
		}
	}
	return nil, fmt.Errorf("collection %s has no %s segment: %w", collectionID, scope, model.ErrNotFound)
}

// Preload constructs every segment of a collection concurrently.
func (m *Manager) Preload(ctx context.Context, collectionID uuid.UUID) error {
	segments, err := m.Segments(ctx, collectionID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range segments {
		g.Go(func() error {
			_, err := m.GetInstance(gctx, s)
			return err
		})
	}
	return g.Wait()
}

// GetInstance returns the live instance of seg, constructing it from the
// persisted descriptor when none is cached.
//
// Concurrent calls for the same segment share one construction. A failed
// construction caches nothing and yields a *ConstructionError; the next call
// retries. Segments of deleted collections yield ErrNotFound.
func (m *Manager) GetInstance(ctx context.Context, seg model.Segment) (segment.Implementation, error) {
	m.mu.Lock()
	impl, done, err := m.lookupLocked(seg.ID)
	m.mu.Unlock()
	if done {
		m.metrics.RecordCacheLookup(impl != nil)
		return impl, err
	}
	m.metrics.RecordCacheLookup(false)

	// The construction outlives a cancelled caller so that other callers
	// waiting on it are unaffected.
	ch := m.flights.DoChan(seg.ID.String(), func() (any, error) {
		return m.construct(context.WithoutCancel(ctx), seg)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(segment.Implementation), nil
	}
}

// lookupLocked resolves id from the cache. done is false if the instance
// must be constructed.
func (m *Manager) lookupLocked(id uuid.UUID) (impl segment.Implementation, done bool, err error) {
	if m.closed {
		return nil, true, errManagerClosed
	}
	if _, gone := m.deleted[id]; gone {
		return nil, true, fmt.Errorf("segment %s: %w", id, errSegmentGone)
	}
	if impl, ok := m.live.Get(id); ok {
		return impl, true, nil
	}
	return nil, false, nil
}

func (m *Manager) construct(ctx context.Context, seg model.Segment) (segment.Implementation, error) {
	m.mu.Lock()
	if impl, done, err := m.lookupLocked(seg.ID); done {
		m.mu.Unlock()
		return impl, err
	}
	pending := m.closing[seg.ID]
	m.building[seg.ID] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.building, seg.ID)
		m.mu.Unlock()
	}()

	// A retiring instance may still be writing its final snapshot.
	if pending != nil {
		<-pending
	}

	desc, err := m.catalog.GetSegment(ctx, seg.Collection, seg.ID)
	if err != nil {
		return nil, err
	}
	col, err := m.catalog.GetCollection(ctx, desc.Collection)
	if err != nil {
		return nil, err
	}

	release, err := m.resources.AcquireConstruction(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var self segment.Implementation
	env := m.envFor(desc, func(id uuid.UUID, cause error) {
		m.invalidate(id, self, cause)
	})
	impl, err := m.registry.Build(ctx, desc, col, env)
	self = impl
	m.metrics.RecordConstruct(desc.Type, time.Since(start), err)
	m.logger.LogConstruct(ctx, desc, time.Since(start), err)

	m.mu.Lock()
	_, gone := m.deleted[desc.ID]
	closed := m.closed
	if err == nil && !gone && !closed {
		m.admitLocked(desc.ID, impl)
		m.mu.Unlock()
		return impl, nil
	}
	m.mu.Unlock()

	switch {
	case gone:
		if impl != nil {
			_ = discard(impl, errSegmentGone)
		}
		return nil, fmt.Errorf("segment %s: %w", desc.ID, errSegmentGone)
	case err != nil:
		return nil, translateError(desc, err)
	default:
		_ = impl.Close(ctx)
		return nil, errManagerClosed
	}
}

// admitLocked caches impl, retiring the least recently used instances
// beyond the configured bound.
func (m *Manager) admitLocked(id uuid.UUID, impl segment.Implementation) {
	if limit := m.opts.maxCached; limit > 0 {
		for m.live.Len() >= limit {
			oldID, old, ok := m.live.RemoveOldest()
			if !ok {
				break
			}
			m.retireLocked(oldID, old, EvictCapacity, nil)
		}
	}
	m.live.Add(id, impl)
}

// invalidate evicts the instance self after it detected corruption. It
// runs while self holds its read lock, so the instance is discarded in the
// background.
func (m *Manager) invalidate(id uuid.UUID, self segment.Implementation, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.live.Peek(id)
	if !ok || cur != self {
		return
	}
	m.live.Remove(id)
	m.retireLocked(id, cur, EvictCorrupt, cause)
}

// retireLocked closes impl in the background. A nil cause flushes; any
// other cause discards the state and is returned to later callers.
// Constructions of id wait until the instance is closed.
func (m *Manager) retireLocked(id uuid.UUID, impl segment.Implementation, reason EvictReason, cause error) {
	prev := m.closing[id]
	done := make(chan struct{})
	m.closing[id] = done

	m.metrics.RecordEviction(reason)
	m.logger.LogEvict(context.Background(), id, reason, cause)

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		if prev != nil {
			<-prev
		}

		var err error
		if cause != nil {
			err = discard(impl, cause)
		} else {
			err = impl.Close(context.Background())
		}
		if err != nil {
			m.logger.Warn("closing evicted segment failed", "segment", id, "error", err)
		}

		m.mu.Lock()
		if m.closing[id] == done {
			delete(m.closing, id)
		}
		m.mu.Unlock()
		close(done)
	}()
}

func (m *Manager) envFor(desc model.Segment, invalidate func(uuid.UUID, error)) segment.Env {
	return segment.Env{
		Store:           m.store,
		Codec:           m.opts.codec,
		Compression:     m.opts.compression,
		Logger:          m.logger.WithSegment(desc).Logger,
		Resources:       m.resources,
		Metrics:         m.metrics,
		Invalidate:      invalidate,
		CheckpointEvery: m.opts.checkpointEvery,
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset deletes every collection. It returns ErrResetDisabled unless the
// manager was created WithAllowReset(true).
func (m *Manager) Reset(ctx context.Context) error {
	if !m.opts.allowReset {
		return ErrResetDisabled
	}

	cols, err := m.catalog.ListCollections(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, col := range cols {
		if err := m.DeleteCollection(ctx, col.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := m.catalog.Reset(ctx); err != nil {
		errs = append(errs, err)
	}
	m.logger.WarnContext(ctx, "manager reset", "collections", len(cols))
	return errors.Join(errs...)
}

// Close flushes and closes every live instance. Later calls on the manager
// return ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	instances := m.live.Values()
	m.live.Purge()
	m.mu.Unlock()

	var g errgroup.Group
	for _, impl := range instances {
		g.Go(func() error {
			return impl.Close(ctx)
		})
	}
	err := g.Wait()
	m.background.Wait()
	return err
}

func discard(impl segment.Implementation, cause error) error {
	if d, ok := impl.(segment.Discarder); ok {
		d.Discard(cause)
		return nil
	}
	return impl.Close(context.Background())
}
