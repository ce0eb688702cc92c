package metadata

import (
	"fmt"
	"strings"
)

// ParseFilter builds a filter tree from the map-based operator syntax:
//
//	{"category": "tech"}                              equality shorthand
//	{"year": {"$gte": 2020, "$lt": 2024}}             operator object
//	{"$or": [{"lang": "go"}, {"lang": "rust"}]}       logical combinators
//	{"$not": {"status": "archived"}}                  negation
//
// Multiple top-level keys combine conjunctively. Malformed input yields an
// error wrapping ErrInvalidFilter.
func ParseFilter(m map[string]any) (*Filter, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: empty filter", ErrInvalidFilter)
	}

	var children []*Filter
	for key, raw := range m {
		f, err := parseEntry(key, raw)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And(children...), nil
}

func parseEntry(key string, raw any) (*Filter, error) {
	if strings.HasPrefix(key, "$") {
		return parseLogical(Operator(key), raw)
	}

	// Field entry: either an operator object or an equality shorthand.
	if obj, ok := raw.(map[string]any); ok && isOperatorObject(obj) {
		return parseOperatorObject(key, obj)
	}

	v, err := FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidFilter, key, err)
	}
	return Eq(key, v), nil
}

func parseLogical(op Operator, raw any) (*Filter, error) {
	switch op {
	case OpAnd, OpOr:
		items, ok := raw.([]any)
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("%w: %s requires a non-empty array", ErrInvalidFilter, op)
		}
		children := make([]*Filter, len(items))
		for i, item := range items {
			sub, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s element %d is not an object", ErrInvalidFilter, op, i)
			}
			f, err := ParseFilter(sub)
			if err != nil {
				return nil, err
			}
			children[i] = f
		}
		return &Filter{Op: op, Children: children}, nil

	case OpNot:
		sub, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $not requires an object", ErrInvalidFilter)
		}
		child, err := ParseFilter(sub)
		if err != nil {
			return nil, err
		}
		return Not(child), nil

	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
	}
}

func isOperatorObject(obj map[string]any) bool {
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func parseOperatorObject(field string, obj map[string]any) (*Filter, error) {
	var children []*Filter
	for opKey, raw := range obj {
		op := Operator(opKey)
		f, err := parseFieldOperator(field, op, raw)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return And(children...), nil
}

func parseFieldOperator(field string, op Operator, raw any) (*Filter, error) {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s on %q: %v", ErrInvalidFilter, op, field, err)
		}
		return &Filter{Op: op, Field: field, Value: v}, nil

	case OpIn, OpNin:
		v, err := FromAny(raw)
		if err != nil || v.Kind != KindArray {
			return nil, fmt.Errorf("%w: %s on %q requires an array", ErrInvalidFilter, op, field)
		}
		return &Filter{Op: op, Field: field, Value: v}, nil

	case OpExists:
		should, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists on %q requires a boolean", ErrInvalidFilter, field)
		}
		return Exists(field, should), nil

	case OpRegex:
		pattern, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $regex on %q requires a string pattern", ErrInvalidFilter, field)
		}
		return Regex(field, pattern)

	case OpText:
		query, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $text on %q requires a string query", ErrInvalidFilter, field)
		}
		return Text(field, query), nil

	default:
		return nil, fmt.Errorf("%w: unknown operator %q on field %q", ErrInvalidFilter, op, field)
	}
}
