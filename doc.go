// Package vecseg manages the segments of an embedding database.
//
// A collection is a namespace of embeddings with a fixed dimensionality. It
// is backed by two segments: a vector segment answering nearest-neighbor
// queries and a metadata segment answering filtered, paginated record
// lookups. The Manager provisions segment descriptors in a catalog, turns
// them into live instances on demand and tears them down on deletion.
//
// # Quick Start
//
//	ctx := context.Background()
//	m, _ := vecseg.New(blobstore.NewLocalStore("./data"))
//	defer m.Close(ctx)
//
//	col := model.Collection{ID: uuid.New(), Name: "docs", Dimension: 3}
//	_, _ = m.CreateCollection(ctx, col)
//
// Writes arrive as an ordered stream of LogRecords and are applied to both
// segments through an ingest.Applier:
//
//	app := ingest.New(m)
//	_ = app.Apply(ctx, col.ID, []model.LogRecord{
//	    {SeqID: 1, ID: "a", Operation: model.OpAdd, Vector: []float32{0, 0, 0}},
//	})
//
// Reads go through the capability interfaces of the segment package:
//
//	_ = app.View(ctx, col.ID, func(vr segment.VectorReader, mr segment.MetadataReader) error {
//	    res, err := vr.QueryVectors(ctx, model.VectorQuery{Vectors: [][]float32{{1, 0, 0}}, K: 2})
//	    ...
//	})
//
// # Segment Types
//
//   - vector/flat: exact brute-force search.
//   - vector/hnsw: hierarchical navigable small world graph, the default.
//   - metadata/inverted: records, documents and a roaring bitmap inverted
//     index for Where pre-filtering.
//
// # Durability
//
// Every applied batch is journaled to the blob store before it becomes
// visible. Segments checkpoint to a compressed, checksummed snapshot every
// WithCheckpointEvery batches and on Close. A restarted Manager rebuilds
// each segment from its snapshot plus the journal tail; MaxSeqID tells the
// ingest side where to resume.
//
// # Storage Backends
//
// Segment state and descriptors live in a blobstore.BlobStore: in memory,
// on the local filesystem, in MinIO (blobstore/minio) or in S3
// (blobstore/s3). Descriptors may instead be kept in DynamoDB
// (catalog/dynamo). The config package builds all of these from YAML and
// environment variables.
package vecseg
