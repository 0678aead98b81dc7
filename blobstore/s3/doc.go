// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("vecseg/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	mgr, err := vecseg.New(store)
//
// Puts go through the SDK upload manager, so large snapshots are sent as
// multipart uploads with CRC32C checksums. Listing paginates automatically.
package s3
