package metadata

import (
	"cmp"
	"math"
	"strings"
)

// Operator is a comparison operator of a Where clause.
type Operator string

const (
	OpEqual        Operator = "$eq"
	OpNotEqual     Operator = "$ne"
	OpGreaterThan  Operator = "$gt"
	OpGreaterEqual Operator = "$gte"
	OpLessThan     Operator = "$lt"
	OpLessEqual    Operator = "$lte"
	OpIn           Operator = "$in"
	OpNotIn        Operator = "$nin"
)

// LogicalOperator combines clauses.
type LogicalOperator string

const (
	OpAnd LogicalOperator = "$and"
	OpOr  LogicalOperator = "$or"
)

// Where is a boolean predicate over a metadata document.
//
// The concrete types are Comparison, Logical and Negation.
type Where interface {
	// Validate reports structural errors. It must be called before Match.
	Validate() error
	// Match evaluates the predicate against doc.
	Match(doc Document) bool

	isWhere()
}

// Comparison compares the value stored under Key with Value.
// A document lacking Key never matches a comparison.
type Comparison struct {
	Key      string
	Operator Operator
	Value    Value
}

// Logical is an AND/OR over at least two clauses.
type Logical struct {
	Operator LogicalOperator
	Clauses  []Where
}

// Negation inverts a clause. Unlike comparisons it matches documents that
// lack the clause's key.
type Negation struct {
	Clause Where
}

func (*Comparison) isWhere() {}
func (*Logical) isWhere()    {}
func (*Negation) isWhere()   {}

// Eq matches documents whose key equals v.
func Eq(key string, v Value) Where { return &Comparison{Key: key, Operator: OpEqual, Value: v} }

// Ne matches documents that have key with a value other than v.
func Ne(key string, v Value) Where { return &Comparison{Key: key, Operator: OpNotEqual, Value: v} }

// Gt matches numeric values greater than v.
func Gt(key string, v Value) Where { return &Comparison{Key: key, Operator: OpGreaterThan, Value: v} }

// Gte matches numeric values greater than or equal to v.
func Gte(key string, v Value) Where {
	return &Comparison{Key: key, Operator: OpGreaterEqual, Value: v}
}

// Lt matches numeric values less than v.
func Lt(key string, v Value) Where { return &Comparison{Key: key, Operator: OpLessThan, Value: v} }

// Lte matches numeric values less than or equal to v.
func Lte(key string, v Value) Where { return &Comparison{Key: key, Operator: OpLessEqual, Value: v} }

// In matches documents whose key equals any of vs.
func In(key string, vs ...Value) Where {
	return &Comparison{Key: key, Operator: OpIn, Value: Array(vs)}
}

// Nin matches documents that have key with a value equal to none of vs.
func Nin(key string, vs ...Value) Where {
	return &Comparison{Key: key, Operator: OpNotIn, Value: Array(vs)}
}

// And matches when every clause matches.
func And(clauses ...Where) Where { return &Logical{Operator: OpAnd, Clauses: clauses} }

// Or matches when any clause matches.
func Or(clauses ...Where) Where { return &Logical{Operator: OpOr, Clauses: clauses} }

// Not inverts clause.
func Not(clause Where) Where { return &Negation{Clause: clause} }

// Validate implements Where.
func (c *Comparison) Validate() error {
	if c.Key == "" {
		return invalidf("empty key")
	}
	if strings.HasPrefix(c.Key, "$") {
		return invalidf("key %q must not start with '$'", c.Key)
	}

	switch c.Operator {
	case OpEqual, OpNotEqual:
		if !c.Value.IsScalar() {
			return invalidf("%s on %q requires a string, number or bool", c.Operator, c.Key)
		}
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if !c.Value.IsNumber() {
			return invalidf("%s on %q requires a number", c.Operator, c.Key)
		}
	case OpIn, OpNotIn:
		arr, ok := c.Value.AsArray()
		if !ok {
			return invalidf("%s on %q requires a list", c.Operator, c.Key)
		}
		if len(arr) == 0 {
			return invalidf("%s on %q requires a non-empty list", c.Operator, c.Key)
		}
		for i := range arr {
			if !arr[i].IsScalar() {
				return invalidf("%s on %q: element %d is not a string, number or bool", c.Operator, c.Key, i)
			}
			if !sameClass(arr[0], arr[i]) {
				return invalidf("%s on %q: mixed element types", c.Operator, c.Key)
			}
		}
	default:
		return invalidf("unknown operator %q", c.Operator)
	}
	return nil
}

// Match implements Where.
func (c *Comparison) Match(doc Document) bool {
	value, exists := doc[c.Key]
	if !exists {
		return false
	}

	switch c.Operator {
	case OpEqual:
		return compareEqual(value, c.Value)
	case OpNotEqual:
		return !compareEqual(value, c.Value)
	case OpGreaterThan:
		return compareGreater(value, c.Value)
	case OpGreaterEqual:
		return compareGreater(value, c.Value) || compareEqual(value, c.Value)
	case OpLessThan:
		return compareLess(value, c.Value)
	case OpLessEqual:
		return compareLess(value, c.Value) || compareEqual(value, c.Value)
	case OpIn:
		return compareIn(value, c.Value)
	case OpNotIn:
		return !compareIn(value, c.Value)
	default:
		return false
	}
}

// Validate implements Where.
func (l *Logical) Validate() error {
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

// Match implements Where.
func (l *Logical) Match(doc Document) bool {
	if l.Operator == OpAnd {
		for _, clause := range l.Clauses {
			if !clause.Match(doc) {
				return false
			}
		}
		return true
	}
	for _, clause := range l.Clauses {
		if clause.Match(doc) {
			return true
		}
	}
	return false
}

// Validate implements Where.
func (n *Negation) Validate() error {
	if n.Clause == nil {
		return invalidf("$not clause is nil")
	}
	return n.Clause.Validate()
}

// Match implements Where.
func (n *Negation) Match(doc Document) bool {
	return !n.Clause.Match(doc)
}

// ValidateWhere validates w, treating nil as "match all".
func ValidateWhere(w Where) error {
	if w == nil {
		return nil
	}
	return w.Validate()
}

func sameClass(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return true
	}
	return a.Kind == b.Kind
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if a.IsNumber() && b.IsNumber() {
		return compareNumbers(a, b) == 0
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.B == b.B
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if !a.IsNumber() || !b.IsNumber() {
		return false
	}
	return compareNumbers(a, b) > 0
}

func compareLess(a, b Value) bool {
	if !a.IsNumber() || !b.IsNumber() {
		return false
	}
	return compareNumbers(a, b) < 0
}

// compareNumbers orders two numeric values exactly. An int and a float are
// compared without rounding the int to float64.
func compareNumbers(a, b Value) int {
	switch {
	case a.Kind == KindInt && b.Kind == KindInt:
		return cmp.Compare(a.I64, b.I64)
	case a.Kind == KindFloat && b.Kind == KindFloat:
		return cmp.Compare(a.F64, b.F64)
	case a.Kind == KindInt:
		return compareIntFloat(a.I64, b.F64)
	default:
		return -compareIntFloat(b.I64, a.F64)
	}
}

func compareIntFloat(i int64, f float64) int {
	if math.IsNaN(f) {
		return 1
	}
	if f >= math.MaxInt64 {
		return -1
	}
	if f < math.MinInt64 {
		return 1
	}
	t := math.Trunc(f)
	if c := cmp.Compare(i, int64(t)); c != 0 {
		return c
	}
	return cmp.Compare(t, f)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}
