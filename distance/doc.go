// Package distance provides the vector distance functions used by vector
// segments.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default, "l2")
//   - MetricDot: Inner product distance, 1 - a·b ("ip")
//   - MetricCosine: Cosine distance, 1 - cos(a, b) ("cosine")
//
// All metrics return smaller values for closer vectors.
//
// # Usage
//
//	fn, _ := distance.Provider(distance.MetricL2)
//	d := fn(a, b)
package distance
