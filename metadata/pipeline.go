package metadata

import (
	"fmt"
	"sort"
	"strings"
)

// AccumOp identifies a $group accumulator.
type AccumOp string

const (
	// AccumSum sums numeric values.
	AccumSum AccumOp = "$sum"
	// AccumAvg averages numeric values.
	AccumAvg AccumOp = "$avg"
	// AccumMin keeps the smallest value.
	AccumMin AccumOp = "$min"
	// AccumMax keeps the largest value.
	AccumMax AccumOp = "$max"
)

// Accumulator aggregates one field within a $group stage.
type Accumulator struct {
	Op    AccumOp
	Field string
}

// SortKey orders a $sort stage; Order is 1 for ascending, -1 for descending.
type SortKey struct {
	Field string
	Order int
}

// Stage is one step of an aggregation pipeline.
type Stage interface {
	apply(docs []Document) ([]Document, error)
}

// Pipeline is a sequential transform over a sequence of metadata documents.
type Pipeline []Stage

// Run evaluates the pipeline over the input documents. The input slice is
// never mutated.
func (p Pipeline) Run(docs []Document) ([]Document, error) {
	out := docs
	for _, stage := range p {
		var err error
		out, err = stage.apply(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Match keeps only documents matching the filter.
type Match struct {
	Filter *Filter
}

func (s Match) apply(docs []Document) ([]Document, error) {
	if s.Filter == nil {
		return nil, fmt.Errorf("%w: $match requires a filter", ErrInvalidFilter)
	}
	if err := s.Filter.Validate(); err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if s.Filter.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Project keeps only the listed fields of each document.
type Project struct {
	Fields []string
}

func (s Project) apply(docs []Document) ([]Document, error) {
	out := make([]Document, len(docs))
	for i, doc := range docs {
		proj := make(Document, len(s.Fields))
		for _, f := range s.Fields {
			if v, ok := doc[f]; ok {
				proj[f] = v
			}
		}
		out[i] = proj
	}
	return out, nil
}

// Sort orders documents by multiple keys; the sort is stable.
type Sort struct {
	Keys []SortKey
}

func (s Sort) apply(docs []Document) ([]Document, error) {
	for _, k := range s.Keys {
		if k.Order != 1 && k.Order != -1 {
			return nil, fmt.Errorf("%w: $sort order for %q must be 1 or -1", ErrInvalidFilter, k.Field)
		}
	}
	out := make([]Document, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range s.Keys {
			c := compareOrder(out[i][k.Field], out[j][k.Field])
			if c == 0 {
				continue
			}
			if k.Order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, nil
}

// compareOrder imposes a total order over values: by kind first, then by
// value within a kind. Numbers compare across int/float.
func compareOrder(a, b Value) int {
	if isNumber(a) && isNumber(b) {
		af, bf := asFloat64(a), asFloat64(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	switch a.Kind {
	case KindString:
		return strings.Compare(a.S, b.S)
	case KindBool:
		switch {
		case a.B == b.B:
			return 0
		case b.B:
			return -1
		default:
			return 1
		}
	default:
		return 0
	}
}

// Limit keeps at most N documents.
type Limit struct {
	N int
}

func (s Limit) apply(docs []Document) ([]Document, error) {
	if s.N < 0 {
		return nil, fmt.Errorf("%w: $limit must be non-negative", ErrInvalidFilter)
	}
	if len(docs) > s.N {
		docs = docs[:s.N]
	}
	return docs, nil
}

// Skip drops the first N documents.
type Skip struct {
	N int
}

func (s Skip) apply(docs []Document) ([]Document, error) {
	if s.N < 0 {
		return nil, fmt.Errorf("%w: $skip must be non-negative", ErrInvalidFilter)
	}
	if s.N >= len(docs) {
		return nil, nil
	}
	return docs[s.N:], nil
}

// Count replaces the stream with a single document holding the input count.
type Count struct {
	As string
}

func (s Count) apply(docs []Document) ([]Document, error) {
	name := s.As
	if name == "" {
		name = "count"
	}
	return []Document{{name: Int(int64(len(docs)))}}, nil
}

// Group accumulates documents by a composite key.
//
// By maps output field names to source fields ("$field" or "field"); Accums
// maps output field names to accumulators. Groups are emitted in first-seen
// order.
type Group struct {
	By     map[string]string
	Accums map[string]Accumulator
}

type groupState struct {
	key    Document
	sums   map[string]float64
	counts map[string]int64
	mins   map[string]Value
	maxs   map[string]Value
	isInt  map[string]bool
}

func (s Group) apply(docs []Document) ([]Document, error) {
	for name, acc := range s.Accums {
		switch acc.Op {
		case AccumSum, AccumAvg, AccumMin, AccumMax:
		default:
			return nil, fmt.Errorf("%w: unknown accumulator %q for %q", ErrInvalidFilter, acc.Op, name)
		}
	}

	groups := make(map[string]*groupState)
	var order []string // deterministic iteration for stable output

	for _, doc := range docs {
		key := make(Document, len(s.By))
		var keyParts []string
		for name, src := range s.By {
			v := doc[fieldRef(src)]
			key[name] = v
			keyParts = append(keyParts, name+"="+v.Key())
		}
		sort.Strings(keyParts)
		groupKey := strings.Join(keyParts, "\x1f")

		st, ok := groups[groupKey]
		if !ok {
			st = &groupState{
				key:    key,
				sums:   make(map[string]float64),
				counts: make(map[string]int64),
				mins:   make(map[string]Value),
				maxs:   make(map[string]Value),
				isInt:  make(map[string]bool),
			}
			groups[groupKey] = st
			order = append(order, groupKey)
		}

		for name, acc := range s.Accums {
			v, ok := doc[fieldRef(acc.Field)]
			if !ok {
				continue
			}
			switch acc.Op {
			case AccumSum, AccumAvg:
				if !isNumber(v) {
					continue
				}
				if _, seen := st.counts[name]; !seen {
					st.isInt[name] = true
				}
				if v.Kind != KindInt {
					st.isInt[name] = false
				}
				st.sums[name] += asFloat64(v)
				st.counts[name]++
			case AccumMin:
				if cur, seen := st.mins[name]; !seen || compareOrder(v, cur) < 0 {
					st.mins[name] = v
				}
			case AccumMax:
				if cur, seen := st.maxs[name]; !seen || compareOrder(v, cur) > 0 {
					st.maxs[name] = v
				}
			}
		}
	}

	out := make([]Document, 0, len(order))
	for _, groupKey := range order {
		st := groups[groupKey]
		doc := make(Document, len(st.key)+len(s.Accums))
		for name, v := range st.key {
			doc[name] = v
		}
		for name, acc := range s.Accums {
			switch acc.Op {
			case AccumSum:
				if st.isInt[name] {
					doc[name] = Int(int64(st.sums[name]))
				} else {
					doc[name] = Float(st.sums[name])
				}
			case AccumAvg:
				if n := st.counts[name]; n > 0 {
					doc[name] = Float(st.sums[name] / float64(n))
				} else {
					doc[name] = Null()
				}
			case AccumMin:
				if v, seen := st.mins[name]; seen {
					doc[name] = v
				} else {
					doc[name] = Null()
				}
			case AccumMax:
				if v, seen := st.maxs[name]; seen {
					doc[name] = v
				} else {
					doc[name] = Null()
				}
			}
		}
		out = append(out, doc)
	}

	return out, nil
}

// fieldRef strips the "$field" reference prefix used in pipeline specs.
func fieldRef(s string) string {
	return strings.TrimPrefix(s, "$")
}
