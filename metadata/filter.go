package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidFilter indicates a malformed filter expression: an unknown
// operator, or an operator applied to an incompatible node type.
var ErrInvalidFilter = errors.New("metadata: invalid filter")

// Operator identifies a filter operator.
type Operator string

const (
	// OpEq matches values equal to the literal.
	OpEq Operator = "$eq"
	// OpNe matches values not equal to the literal (absent fields match).
	OpNe Operator = "$ne"
	// OpGt matches numeric values greater than the literal.
	OpGt Operator = "$gt"
	// OpGte matches numeric values greater than or equal to the literal.
	OpGte Operator = "$gte"
	// OpLt matches numeric values less than the literal.
	OpLt Operator = "$lt"
	// OpLte matches numeric values less than or equal to the literal.
	OpLte Operator = "$lte"
	// OpIn matches values equal to any element of the literal array.
	OpIn Operator = "$in"
	// OpNin matches values equal to no element of the literal array.
	OpNin Operator = "$nin"
	// OpRegex matches string values against a pattern, case-insensitive by
	// default.
	OpRegex Operator = "$regex"
	// OpExists matches on field presence.
	OpExists Operator = "$exists"
	// OpAnd combines child filters conjunctively.
	OpAnd Operator = "$and"
	// OpOr combines child filters disjunctively.
	OpOr Operator = "$or"
	// OpNot negates its child filter.
	OpNot Operator = "$not"
	// OpText performs a case-insensitive word/substring match.
	OpText Operator = "$text"
)

// Filter is an immutable filter expression tree node. Build it once per
// query with the constructors or ParseFilter; evaluation is stateless.
type Filter struct {
	Op       Operator
	Field    string
	Value    Value
	Children []*Filter

	re *regexp.Regexp // compiled pattern for OpRegex
}

// Eq matches documents whose field equals v.
func Eq(field string, v Value) *Filter { return &Filter{Op: OpEq, Field: field, Value: v} }

// Ne matches documents whose field does not equal v. Absent fields match.
func Ne(field string, v Value) *Filter { return &Filter{Op: OpNe, Field: field, Value: v} }

// Gt matches documents whose field is greater than v.
func Gt(field string, v Value) *Filter { return &Filter{Op: OpGt, Field: field, Value: v} }

// Gte matches documents whose field is greater than or equal to v.
func Gte(field string, v Value) *Filter { return &Filter{Op: OpGte, Field: field, Value: v} }

// Lt matches documents whose field is less than v.
func Lt(field string, v Value) *Filter { return &Filter{Op: OpLt, Field: field, Value: v} }

// Lte matches documents whose field is less than or equal to v.
func Lte(field string, v Value) *Filter { return &Filter{Op: OpLte, Field: field, Value: v} }

// In matches documents whose field equals any of vs.
func In(field string, vs ...Value) *Filter {
	return &Filter{Op: OpIn, Field: field, Value: Array(vs...)}
}

// Nin matches documents whose field equals none of vs.
func Nin(field string, vs ...Value) *Filter {
	return &Filter{Op: OpNin, Field: field, Value: Array(vs...)}
}

// Exists matches documents by field presence.
func Exists(field string, should bool) *Filter {
	return &Filter{Op: OpExists, Field: field, Value: Bool(should)}
}

// Regex matches documents whose field matches the pattern. Matching is
// case-insensitive unless the pattern carries its own flags.
func Regex(field, pattern string) (*Filter, error) {
	re, err := compileRegex(pattern)
	if err != nil {
		return nil, err
	}
	return &Filter{Op: OpRegex, Field: field, Value: String(pattern), re: re}, nil
}

// Text matches documents whose field contains the query as a word or
// substring, case-insensitive.
func Text(field, query string) *Filter {
	return &Filter{Op: OpText, Field: field, Value: String(query)}
}

// And combines filters conjunctively.
func And(children ...*Filter) *Filter { return &Filter{Op: OpAnd, Children: children} }

// Or combines filters disjunctively.
func Or(children ...*Filter) *Filter { return &Filter{Op: OpOr, Children: children} }

// Not negates a filter.
func Not(child *Filter) *Filter { return &Filter{Op: OpNot, Children: []*Filter{child}} }

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad pattern: %v", ErrInvalidFilter, err)
	}
	return re, nil
}

// Validate checks the tree for structural problems that the constructors
// cannot rule out (unknown operators, missing children). ParseFilter output
// is always valid.
func (f *Filter) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil filter", ErrInvalidFilter)
	}
	switch f.Op {
	case OpAnd, OpOr:
		if len(f.Children) == 0 {
			return fmt.Errorf("%w: %s requires at least one child", ErrInvalidFilter, f.Op)
		}
		for _, c := range f.Children {
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	case OpNot:
		if len(f.Children) != 1 {
			return fmt.Errorf("%w: %s requires exactly one child", ErrInvalidFilter, f.Op)
		}
		return f.Children[0].Validate()
	case OpIn, OpNin:
		if f.Value.Kind != KindArray {
			return fmt.Errorf("%w: %s requires an array literal", ErrInvalidFilter, f.Op)
		}
		return nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpExists, OpRegex, OpText:
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}
}

// Matches evaluates the filter against one metadata document.
//
// Comparison operators return false (not an error) when the field is absent
// or not orderable against the literal; $and/$or short-circuit.
func (f *Filter) Matches(doc Document) bool {
	switch f.Op {
	case OpAnd:
		for _, c := range f.Children {
			if !c.Matches(doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Matches(doc) {
				return true
			}
		}
		return false
	case OpNot:
		return len(f.Children) == 1 && !f.Children[0].Matches(doc)
	case OpExists:
		_, exists := doc[f.Field]
		return exists == f.Value.B
	}

	value, exists := doc[f.Field]

	switch f.Op {
	case OpEq:
		return exists && compareEqual(value, f.Value)
	case OpNe:
		return !exists || !compareEqual(value, f.Value)
	case OpGt:
		return exists && compareGreater(value, f.Value)
	case OpGte:
		return exists && (compareGreater(value, f.Value) || compareEqual(value, f.Value))
	case OpLt:
		return exists && compareLess(value, f.Value)
	case OpLte:
		return exists && (compareLess(value, f.Value) || compareEqual(value, f.Value))
	case OpIn:
		return exists && compareIn(value, f.Value)
	case OpNin:
		return exists && !compareIn(value, f.Value)
	case OpRegex:
		return exists && f.re != nil && value.Kind == KindString && f.re.MatchString(value.S)
	case OpText:
		return exists && matchText(value, f.Value.S)
	default:
		return false
	}
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindString:
		return a.S == b.S
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
	case KindMap:
		if len(a.M) != len(b.M) {
			return false
		}
		for k, av := range a.M {
			bv, ok := b.M[k]
			if !ok || !compareEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func compareGreater(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		return asFloat64(a) > asFloat64(b)
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.S > b.S
	}
	return false
}

func compareLess(a, b Value) bool {
	if isNumber(a) && isNumber(b) {
		return asFloat64(a) < asFloat64(b)
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.S < b.S
	}
	return false
}

// compareIn matches a against the elements of the literal array b. Array
// fields match if any of their elements does.
func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	if a.Kind == KindArray {
		for _, elem := range a.A {
			if compareIn(elem, b) {
				return true
			}
		}
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

// matchText performs a case-insensitive word/substring match of query
// against a string value (or any string element of an array value).
func matchText(v Value, query string) bool {
	switch v.Kind {
	case KindString:
		return containsText(v.S, query)
	case KindArray:
		for _, elem := range v.A {
			if elem.Kind == KindString && containsText(elem.S, query) {
				return true
			}
		}
	}
	return false
}

func containsText(s, query string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(query))
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
