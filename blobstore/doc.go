// Package blobstore provides the storage abstraction behind segment
// persistence: collection and segment descriptors, segment journals and
// snapshots.
//
// BlobStore is a small key/value interface. Implementations must be safe
// for concurrent use and Put must be atomic.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests and ephemeral managers
//   - LocalStore: local filesystem with write-then-rename
//   - minio.Store: MinIO and S3-compatible object stores
//   - s3.Store: Amazon S3 via the AWS SDK v2
package blobstore
