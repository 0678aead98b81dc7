// Package testutil provides testing utilities for vecseg.
//
// This package is intended for use in tests only. It provides helpers for
// generating random vectors and ids, computing exact nearest neighbors,
// and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 64)
//
// # Exact Search (Ground Truth)
//
//	results := testutil.ExactTopK(ids, vecs, query, k, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exact, approx)
package testutil
