// Package meta implements the metadata segment: per-record metadata
// documents and document text with exact filtering.
//
// Records are kept in id order. Equality and set-membership clauses of a
// Where filter are pre-narrowed through a roaring inverted index; every
// candidate is then checked against the full Where and WhereDocument
// predicates before offset and limit are applied.
package meta
