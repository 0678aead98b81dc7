// Package catalogtest provides a conformance suite for catalog.Catalog
// implementations.
package catalogtest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/catalog"
	"github.com/hupe1980/vecseg/metadata"
	"github.com/hupe1980/vecseg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture returns a collection with one vector and one metadata segment.
func Fixture(dim int) (model.Collection, []model.Segment) {
	col := model.Collection{
		ID:        uuid.New(),
		Name:      "fixture",
		Metadata:  metadata.Document{"owner": metadata.String("tests"), "version": metadata.Int(2)},
		Dimension: dim,
	}
	segments := []model.Segment{
		{
			ID:         uuid.New(),
			Type:       model.SegmentTypeHNSW,
			Scope:      model.ScopeVector,
			Collection: col.ID,
			Config: map[string]any{
				"hnsw:space":         "cosine",
				"hnsw:M":             int64(16),
				"hnsw:resize_factor": 1.5,
				"shard_key":          int64(9007199254740993),
				"tags":               []any{"a", int64(2)},
			},
		},
		{
			ID:         uuid.New(),
			Type:       model.SegmentTypeMetadata,
			Scope:      model.ScopeMetadata,
			Collection: col.ID,
		},
	}
	return col, segments
}

// Run exercises every Catalog operation against a fresh catalog per subtest.
func Run(t *testing.T, newCatalog func(t *testing.T) catalog.Catalog) {
	t.Run("RoundTrip", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		col, segments := Fixture(3)

		require.NoError(t, c.CreateCollection(ctx, col, segments))

		got, err := c.GetCollection(ctx, col.ID)
		require.NoError(t, err)
		assert.Equal(t, col, got)

		gotSegs, err := c.GetSegments(ctx, col.ID)
		require.NoError(t, err)
		want := append([]model.Segment(nil), segments...)
		catalog.SortSegments(want)
		assert.Equal(t, want, gotSegs)

		one, err := c.GetSegment(ctx, col.ID, segments[0].ID)
		require.NoError(t, err)
		assert.Equal(t, segments[0], one)
	})

	t.Run("AlreadyExists", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		col, segments := Fixture(3)

		require.NoError(t, c.CreateCollection(ctx, col, segments))
		err := c.CreateCollection(ctx, col, segments)
		assert.ErrorIs(t, err, model.ErrAlreadyExists)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		col, segments := Fixture(3)

		var (
			wg      sync.WaitGroup
			success atomic.Int32
			exists  atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := c.CreateCollection(ctx, col, segments)
				switch {
				case err == nil:
					success.Add(1)
				case assert.ErrorIs(t, err, model.ErrAlreadyExists):
					exists.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), success.Load())
		assert.Equal(t, int32(7), exists.Load())
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		id := uuid.New()

		_, err := c.GetCollection(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = c.GetSegments(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = c.GetSegment(ctx, id, uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = c.DeleteCollection(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		col, segments := Fixture(3)
		other, otherSegs := Fixture(4)

		require.NoError(t, c.CreateCollection(ctx, col, segments))
		require.NoError(t, c.CreateCollection(ctx, other, otherSegs))

		removed, err := c.DeleteCollection(ctx, col.ID)
		require.NoError(t, err)
		assert.Len(t, removed, 2)

		_, err = c.GetSegment(ctx, col.ID, segments[0].ID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		cols, err := c.ListCollections(ctx)
		require.NoError(t, err)
		require.Len(t, cols, 1)
		assert.Equal(t, other.ID, cols[0].ID)

		// Same id may be created again after delete
		require.NoError(t, c.CreateCollection(ctx, col, segments))
	})

	t.Run("InvalidDescriptors", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		col, segments := Fixture(3)
		segments[0].Collection = uuid.New()

		err := c.CreateCollection(ctx, col, segments)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
		_, err = c.GetCollection(ctx, col.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)

		col, segments = Fixture(3)
		segments[0].Config["bad"] = make(chan int)
		err = c.CreateCollection(ctx, col, segments)
		assert.ErrorIs(t, err, model.ErrInvalidArgument)
		_, err = c.GetCollection(ctx, col.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("Reset", func(t *testing.T) {
		ctx := context.Background()
		c := newCatalog(t)
		for i := 0; i < 3; i++ {
			col, segments := Fixture(2)
			require.NoError(t, c.CreateCollection(ctx, col, segments))
		}

		require.NoError(t, c.Reset(ctx))
		cols, err := c.ListCollections(ctx)
		require.NoError(t, err)
		assert.Empty(t, cols)
	})
}
