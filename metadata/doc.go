// Package metadata provides typed metadata documents and the filter
// expressions evaluated by metadata segments.
//
// # Metadata Types
//
// Metadata values can be:
//
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//
// Example:
//
//	doc := metadata.Document{
//	    "category":  metadata.String("tech"),
//	    "year":      metadata.Int(2024),
//	    "published": metadata.Bool(true),
//	}
//
// # Where Expressions
//
//   - Eq(key, value), Ne(key, value)
//   - Gt, Gte, Lt, Lte(key, value): numeric comparison
//   - In(key, values...), Nin(key, values...): set membership
//   - And(clauses...), Or(clauses...): at least two clauses each
//   - Not(clause)
//
// Document text is filtered with Contains, NotContains, DocAnd and DocOr.
//
// Every expression is validated with Validate before it is evaluated; a
// malformed expression returns an error wrapping ErrInvalidFilter.
// ParseWhere and ParseWhereDocument accept the JSON-style operator maps used
// by HTTP clients ({"age": {"$gte": 18}}).
//
// # Inverted Index
//
// Index keeps roaring bitmaps per key=value pair so equality and membership
// clauses narrow the candidate set before the full predicate is evaluated.
package metadata
