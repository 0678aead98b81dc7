package metadata

import (
	"slices"
	"strings"
)

// ParseWhere converts a JSON-style operator map into a validated Where.
//
//	{"color": "red"}                          -> Eq("color", "red")
//	{"age": {"$gte": 18}}                     -> Gte("age", 18)
//	{"$and": [{"a": 1}, {"b": {"$ne": 2}}]}   -> And(...)
//	{"$not": {"a": 1}}                        -> Not(Eq("a", 1))
//
// Several field keys in one map are combined with AND in key order.
// An empty or nil map returns (nil, nil), which matches everything.
func ParseWhere(m map[string]any) (Where, error) {
	if len(m) == 0 {
		return nil, nil
	}
	w, err := parseWhereMap(m)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func parseWhereMap(m map[string]any) (Where, error) {
	if len(m) == 0 {
		return nil, invalidf("empty expression")
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	clauses := make([]Where, 0, len(keys))
	for _, key := range keys {
		clause, err := parseWhereEntry(key, m[key])
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return And(clauses...), nil
}

func parseWhereEntry(key string, raw any) (Where, error) {
	switch key {
	case string(OpAnd), string(OpOr):
		list, ok := raw.([]any)
		if !ok {
			if typed, ok2 := raw.([]map[string]any); ok2 {
				list = make([]any, len(typed))
				for i := range typed {
					list[i] = typed[i]
				}
			} else {
				return nil, invalidf("%s expects a list, got %T", key, raw)
			}
		}
		clauses := make([]Where, 0, len(list))
		for i, item := range list {
			sub, ok := item.(map[string]any)
			if !ok {
				return nil, invalidf("%s element %d is %T, expected an object", key, i, item)
			}
			clause, err := parseWhereMap(sub)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
		}
		return &Logical{Operator: LogicalOperator(key), Clauses: clauses}, nil
	case "$not":
		sub, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidf("$not expects an object, got %T", raw)
		}
		clause, err := parseWhereMap(sub)
		if err != nil {
			return nil, err
		}
		return Not(clause), nil
	}

	if strings.HasPrefix(key, "$") {
		return nil, invalidf("unknown operator %q", key)
	}

	ops, ok := raw.(map[string]any)
	if !ok {
		v, err := FromAny(raw)
		if err != nil {
			return nil, invalidf("key %q: %v", key, err)
		}
		return Eq(key, v), nil
	}
	if len(ops) != 1 {
		return nil, invalidf("key %q expects exactly one operator, got %d", key, len(ops))
	}
	for op, operand := range ops {
		v, err := FromAny(operand)
		if err != nil {
			return nil, invalidf("key %q operator %q: %v", key, op, err)
		}
		return &Comparison{Key: key, Operator: Operator(op), Value: v}, nil
	}
	return nil, invalidf("key %q has no operator", key)
}

// ParseWhereDocument converts a JSON-style document filter into a validated
// WhereDocument.
//
//	{"$contains": "hello"}
//	{"$or": [{"$contains": "a"}, {"$not_contains": "b"}]}
//
// An empty or nil map returns (nil, nil).
func ParseWhereDocument(m map[string]any) (WhereDocument, error) {
	if len(m) == 0 {
		return nil, nil
	}
	w, err := parseWhereDocumentMap(m)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func parseWhereDocumentMap(m map[string]any) (WhereDocument, error) {
	if len(m) != 1 {
		return nil, invalidf("document filter expects exactly one operator, got %d", len(m))
	}
	for op, raw := range m {
		switch op {
		case "$contains", "$not_contains":
			text, ok := raw.(string)
			if !ok {
				return nil, invalidf("%s expects a string, got %T", op, raw)
			}
			return &DocumentContains{Text: text, Negate: op == "$not_contains"}, nil
		case string(OpAnd), string(OpOr):
			list, ok := raw.([]any)
			if !ok {
				return nil, invalidf("%s expects a list, got %T", op, raw)
			}
			clauses := make([]WhereDocument, 0, len(list))
			for i, item := range list {
				sub, ok := item.(map[string]any)
				if !ok {
					return nil, invalidf("%s element %d is %T, expected an object", op, i, item)
				}
				clause, err := parseWhereDocumentMap(sub)
				if err != nil {
					return nil, err
				}
				clauses = append(clauses, clause)
			}
			return &DocumentLogical{Operator: LogicalOperator(op), Clauses: clauses}, nil
		default:
			return nil, invalidf("unknown document operator %q", op)
		}
	}
	return nil, invalidf("empty document filter")
}
