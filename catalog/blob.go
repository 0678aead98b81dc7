package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/vecseg/blobstore"
	"github.com/hupe1980/vecseg/internal/codec"
	"github.com/hupe1980/vecseg/model"
)

const (
	collectionsPrefix = "collections/"
	collectionFile    = "collection.json"
	segmentsDir       = "segments"
)

// CollectionPath returns the blob name of a collection record.
func CollectionPath(id uuid.UUID) string {
	return path.Join("collections", id.String(), collectionFile)
}

// SegmentPath returns the blob name of a segment descriptor.
func SegmentPath(collectionID, segmentID uuid.UUID) string {
	return path.Join("collections", collectionID.String(), segmentsDir, segmentID.String()+".json")
}

// BlobCatalog stores descriptors as JSON blobs:
//
//	collections/<collection-id>/collection.json
//	collections/<collection-id>/segments/<segment-id>.json
//
// The collection record is written last on create and removed first on
// delete, so it acts as the commit marker for the whole set.
//
// Creates are serialized within the process. Two processes sharing a store
// must coordinate externally (see catalog/dynamo for a conditional-write
// alternative).
type BlobCatalog struct {
	store blobstore.BlobStore
	codec codec.Codec

	mu sync.Mutex // serializes create/delete
}

var _ Catalog = (*BlobCatalog)(nil)

// NewBlobCatalog creates a catalog on store. A nil codec uses codec.Default.
func NewBlobCatalog(store blobstore.BlobStore, c codec.Codec) *BlobCatalog {
	if c == nil {
		c = codec.Default
	}
	return &BlobCatalog{store: store, codec: c}
}

// CreateCollection implements Catalog.
func (c *BlobCatalog) CreateCollection(ctx context.Context, col model.Collection, segments []model.Segment) error {
	if err := ValidateSegments(col, segments); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.Get(ctx, CollectionPath(col.ID)); err == nil {
		return fmt.Errorf("collection %s: %w", col.ID, model.ErrAlreadyExists)
	} else if !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}

	// Leftovers of an interrupted create or delete would otherwise be
	// picked up as segments of the new collection.
	if err := blobstore.DeletePrefix(ctx, c.store, c.segmentsPrefix(col.ID)); err != nil {
		return err
	}

	for _, s := range segments {
		data, err := c.codec.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode segment %s: %w", s.ID, err)
		}
		if err := c.store.Put(ctx, SegmentPath(col.ID, s.ID), data); err != nil {
			return err
		}
	}

	data, err := c.codec.Marshal(col)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", col.ID, err)
	}
	return c.store.Put(ctx, CollectionPath(col.ID), data)
}

// GetCollection implements Catalog.
func (c *BlobCatalog) GetCollection(ctx context.Context, id uuid.UUID) (model.Collection, error) {
	data, err := c.store.Get(ctx, CollectionPath(id))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return model.Collection{}, fmt.Errorf("collection %s: %w", id, model.ErrNotFound)
		}
		return model.Collection{}, err
	}
	var col model.Collection
	if err := c.codec.Unmarshal(data, &col); err != nil {
		return model.Collection{}, fmt.Errorf("decode collection %s: %w: %v", id, model.ErrCorrupt, err)
	}
	return col, nil
}

// ListCollections implements Catalog.
func (c *BlobCatalog) ListCollections(ctx context.Context) ([]model.Collection, error) {
	names, err := c.store.List(ctx, collectionsPrefix)
	if err != nil {
		return nil, err
	}

	var cols []model.Collection
	for _, name := range names {
		if path.Base(name) != collectionFile {
			continue
		}
		id, err := uuid.Parse(path.Base(path.Dir(name)))
		if err != nil {
			continue
		}
		col, err := c.GetCollection(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue // deleted concurrently
		}
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// GetSegments implements Catalog.
func (c *BlobCatalog) GetSegments(ctx context.Context, collectionID uuid.UUID) ([]model.Segment, error) {
	if _, err := c.GetCollection(ctx, collectionID); err != nil {
		return nil, err
	}

	names, err := c.store.List(ctx, c.segmentsPrefix(collectionID))
	if err != nil {
		return nil, err
	}

	segments := make([]model.Segment, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		s, err := c.readSegment(ctx, name)
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	SortSegments(segments)
	return segments, nil
}

// GetSegment implements Catalog.
func (c *BlobCatalog) GetSegment(ctx context.Context, collectionID, segmentID uuid.UUID) (model.Segment, error) {
	if _, err := c.GetCollection(ctx, collectionID); err != nil {
		return model.Segment{}, err
	}
	return c.readSegment(ctx, SegmentPath(collectionID, segmentID))
}

// DeleteCollection implements Catalog.
func (c *BlobCatalog) DeleteCollection(ctx context.Context, id uuid.UUID) ([]model.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	segments, err := c.GetSegments(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := c.store.Delete(ctx, CollectionPath(id)); err != nil {
		return nil, err
	}
	if err := blobstore.DeletePrefix(ctx, c.store, c.segmentsPrefix(id)); err != nil {
		return nil, err
	}
	return segments, nil
}

// Reset implements Catalog.
func (c *BlobCatalog) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return blobstore.DeletePrefix(ctx, c.store, collectionsPrefix)
}

func (c *BlobCatalog) segmentsPrefix(collectionID uuid.UUID) string {
	return path.Join("collections", collectionID.String(), segmentsDir) + "/"
}

func (c *BlobCatalog) readSegment(ctx context.Context, name string) (model.Segment, error) {
	id := strings.TrimSuffix(path.Base(name), ".json")
	data, err := c.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return model.Segment{}, fmt.Errorf("segment %s: %w", id, model.ErrNotFound)
		}
		return model.Segment{}, err
	}
	var s model.Segment
	if err := c.codec.Unmarshal(data, &s); err != nil {
		return model.Segment{}, fmt.Errorf("decode segment %s: %w: %v", id, model.ErrCorrupt, err)
	}
	return s, nil
}
