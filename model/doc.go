// Package model defines the core data types shared by the segment manager,
// the segment implementations and their collaborators.
//
// # Identity Types
//
//   - Collection: logical namespace of id-addressed embeddings (uuid.UUID)
//   - Segment: persisted descriptor of one physical index (uuid.UUID)
//   - SeqID: position in a collection's write stream
//
// # Record Types
//
//   - VectorEmbeddingRecord: id + vector
//   - MetadataEmbeddingRecord: id + metadata document (+ optional document text)
//   - LogRecord: one entry of the ingest write stream
//
// # Query Types
//
//   - VectorQuery / VectorQueryResult: top-k similarity search
//   - MetadataQuery: filtered, paginated metadata scan
//
// The types carry no behavior beyond small helpers; they are safe to copy.
package model
