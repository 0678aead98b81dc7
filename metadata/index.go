package metadata

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index is an inverted index from key=value pairs to record ordinals.
//
// Architecture:
//   - Inverted index: map[key]map[valueKey]*roaring.Bitmap (posting lists)
//   - Ordinals are dense uint32 handles assigned by the owning segment
//
// Index performs no locking; the owning segment serializes writers against
// readers.
type Index struct {
	inverted map[string]map[string]*roaring.Bitmap
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		inverted: make(map[string]map[string]*roaring.Bitmap),
	}
}

// Add indexes every scalar value of doc under ord.
func (ix *Index) Add(ord uint32, doc Document) {
	for key, value := range doc {
		if !value.IsScalar() {
			continue
		}
		valueMap, ok := ix.inverted[key]
		if !ok {
			valueMap = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = valueMap
		}

		valueKey := indexKey(value)
		bitmap, ok := valueMap[valueKey]
		if !ok {
			bitmap = roaring.New()
			valueMap[valueKey] = bitmap
		}
		bitmap.Add(ord)
	}
}

// Remove drops ord from the posting lists of doc.
func (ix *Index) Remove(ord uint32, doc Document) {
	for key, value := range doc {
		if !value.IsScalar() {
			continue
		}
		valueMap, ok := ix.inverted[key]
		if !ok {
			continue
		}

		valueKey := indexKey(value)
		bitmap, ok := valueMap[valueKey]
		if !ok {
			continue
		}

		bitmap.Remove(ord)

		// Clean up empty bitmaps
		if bitmap.IsEmpty() {
			delete(valueMap, valueKey)
			if len(valueMap) == 0 {
				delete(ix.inverted, key)
			}
		}
	}
}

// Candidates returns a superset of the ordinals matching w, or nil when the
// index cannot narrow w (range operators, negations). Callers must still
// evaluate w on every candidate.
//
// Supported clauses:
//   - $eq: posting list of key=value
//   - $in: union of posting lists
//   - $and: intersection of narrowable children
//   - $or: union, only if every child is narrowable
func (ix *Index) Candidates(w Where) *roaring.Bitmap {
	switch x := w.(type) {
	case *Comparison:
		switch x.Operator {
		case OpEqual:
			if bm := ix.bitmap(x.Key, x.Value); bm != nil {
				return bm.Clone()
			}
			return roaring.New()
		case OpIn:
			arr, ok := x.Value.AsArray()
			if !ok {
				return nil
			}
			result := roaring.New()
			for _, v := range arr {
				if bm := ix.bitmap(x.Key, v); bm != nil {
					result.Or(bm)
				}
			}
			return result
		default:
			return nil
		}
	case *Logical:
		var result *roaring.Bitmap
		for _, clause := range x.Clauses {
			bm := ix.Candidates(clause)
			if x.Operator == OpOr {
				if bm == nil {
					// Can't narrow a union with an unbounded branch
					return nil
				}
				if result == nil {
					result = bm
				} else {
					result.Or(bm)
				}
				continue
			}
			if bm == nil {
				continue
			}
			if result == nil {
				result = bm
			} else {
				result.And(bm)
			}
			// Early termination if result is empty
			if result.IsEmpty() {
				return result
			}
		}
		return result
	default:
		return nil
	}
}

// Stats returns statistics about the index.
type Stats struct {
	FieldCount       int    // Number of indexed fields
	BitmapCount      int    // Total number of bitmaps
	TotalCardinality uint64 // Sum of all bitmap cardinalities
	MemoryBytes      uint64 // Estimated memory usage
}

// GetStats returns statistics about the index.
func (ix *Index) GetStats() Stats {
	stats := Stats{FieldCount: len(ix.inverted)}
	for _, valueMap := range ix.inverted {
		for _, bitmap := range valueMap {
			stats.BitmapCount++
			stats.TotalCardinality += bitmap.GetCardinality()
			stats.MemoryBytes += bitmap.GetSizeInBytes()
		}
	}
	return stats
}

func (ix *Index) bitmap(key string, value Value) *roaring.Bitmap {
	valueMap, ok := ix.inverted[key]
	if !ok {
		return nil
	}
	return valueMap[indexKey(value)]
}

// indexKey normalizes integral floats to the int form so Eq(Int(1)) and
// Eq(Float(1)) hit the same posting list, matching compareEqual.
func indexKey(v Value) string {
	if v.Kind == KindFloat && v.F64 == math.Trunc(v.F64) &&
		v.F64 >= math.MinInt64 && v.F64 < math.MaxInt64 {
		return Int(int64(v.F64)).Key()
	}
	return v.Key()
}
