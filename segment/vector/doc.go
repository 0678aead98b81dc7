// Package vector implements the vector segment: a store of fixed-dimension
// float32 vectors keyed by record id with k-nearest-neighbor search.
//
// Two backends share the same storage and lifecycle:
//
//   - Flat performs exact brute-force search.
//   - HNSW maintains a hierarchical navigable small world graph for
//     approximate search. Filtered queries traverse the whole graph but only
//     admit allowed records; when the graph cannot produce enough results
//     the search falls back to an exact scan of the allowed set.
//
// Deletes and updates tombstone the previous slot. Slots are compacted once
// tombstones outnumber live records.
//
// Register adds both factories to a segment.Registry.
package vector
