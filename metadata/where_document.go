package metadata

import "strings"

// WhereDocument is a predicate over a record's document text.
//
// The concrete types are DocumentContains and DocumentLogical.
type WhereDocument interface {
	Validate() error
	// MatchDocument evaluates the predicate. text is nil for records
	// without a document.
	MatchDocument(text *string) bool

	isWhereDocument()
}

// DocumentContains matches documents containing Text as a substring.
// With Negate set it matches documents that do not contain Text, including
// records that have no document at all.
type DocumentContains struct {
	Text   string
	Negate bool
}

// DocumentLogical is an AND/OR over at least two document clauses.
type DocumentLogical struct {
	Operator LogicalOperator
	Clauses  []WhereDocument
}

func (*DocumentContains) isWhereDocument() {}
func (*DocumentLogical) isWhereDocument()  {}

// Contains matches documents containing text.
func Contains(text string) WhereDocument { return &DocumentContains{Text: text} }

// NotContains matches documents not containing text.
func NotContains(text string) WhereDocument { return &DocumentContains{Text: text, Negate: true} }

// DocAnd matches when every clause matches.
func DocAnd(clauses ...WhereDocument) WhereDocument {
	return &DocumentLogical{Operator: OpAnd, Clauses: clauses}
}

// DocOr matches when any clause matches.
func DocOr(clauses ...WhereDocument) WhereDocument {
	return &DocumentLogical{Operator: OpOr, Clauses: clauses}
}

// Validate implements WhereDocument.
func (c *DocumentContains) Validate() error {
	if c.Text == "" {
		if c.Negate {
			return invalidf("$not_contains requires a non-empty string")
		}
		return invalidf("$contains requires a non-empty string")
	}
	return nil
}

// MatchDocument implements WhereDocument.
func (c *DocumentContains) MatchDocument(text *string) bool {
	found := text != nil && strings.Contains(*text, c.Text)
	return found != c.Negate
}

// Validate implements WhereDocument.
func (l *DocumentLogical) Validate() error {
	if l.Operator != OpAnd && l.Operator != OpOr {
		return invalidf("unknown logical operator %q", l.Operator)
	}
	if len(l.Clauses) < 2 {
		return invalidf("%s requires at least two clauses, got %d", l.Operator, len(l.Clauses))
	}
	for i, clause := range l.Clauses {
		if clause == nil {
			return invalidf("%s clause %d is nil", l.Operator, i)
		}
		if err := clause.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MatchDocument implements WhereDocument.
func (l *DocumentLogical) MatchDocument(text *string) bool {
	if l.Operator == OpAnd {
		for _, clause := range l.Clauses {
			if !clause.MatchDocument(text) {
				return false
			}
		}
		return true
	}
	for _, clause := range l.Clauses {
		if clause.MatchDocument(text) {
			return true
		}
	}
	return false
}

// ValidateWhereDocument validates w, treating nil as "match all".
func ValidateWhereDocument(w WhereDocument) error {
	if w == nil {
		return nil
	}
	return w.Validate()
}
