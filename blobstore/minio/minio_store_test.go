package minio

import (
	"context"
	"testing"

	"github.com/hupe1980/vecseg/blobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
}

func TestStore_Key(t *testing.T) {
	s := NewStore(nil, "bucket", "root/")
	assert.Equal(t, "root/collections/a.json", s.key("collections/a.json"))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "collections/a.json", s.key("collections/a.json"))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	bucket := "test-vecseg"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err = client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix")
	require.NoError(t, blobstore.DeletePrefix(ctx, store, ""))

	require.NoError(t, store.Put(ctx, "collections/c1/collection.json", []byte("hello minio")))

	data, err := store.Get(ctx, "collections/c1/collection.json")
	require.NoError(t, err)
	assert.Equal(t, "hello minio", string(data))

	names, err := store.List(ctx, "collections/")
	require.NoError(t, err)
	assert.Equal(t, []string{"collections/c1/collection.json"}, names)

	require.NoError(t, store.Delete(ctx, "collections/c1/collection.json"))
	_, err = store.Get(ctx, "collections/c1/collection.json")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
