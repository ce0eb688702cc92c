package metadata

import (
	"fmt"
)

// ParsePipeline builds a pipeline from the map-based stage syntax:
//
//	[
//	  {"$match": {"lang": "go"}},
//	  {"$group": {"_id": {"cat": "$cat"}, "total": {"$sum": "v"}}},
//	  {"$sort": {"total": -1}},
//	  {"$limit": 10},
//	]
//
// Each stage object must hold exactly one stage operator. Malformed input
// yields an error wrapping ErrInvalidFilter.
func ParsePipeline(stages []map[string]any) (Pipeline, error) {
	p := make(Pipeline, 0, len(stages))
	for i, raw := range stages {
		if len(raw) != 1 {
			return nil, fmt.Errorf("%w: stage %d must hold exactly one operator", ErrInvalidFilter, i)
		}
		for op, spec := range raw {
			stage, err := parseStage(op, spec)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			p = append(p, stage)
		}
	}
	return p, nil
}

func parseStage(op string, spec any) (Stage, error) {
	switch op {
	case "$match":
		m, ok := spec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $match requires an object", ErrInvalidFilter)
		}
		f, err := ParseFilter(m)
		if err != nil {
			return nil, err
		}
		return Match{Filter: f}, nil

	case "$project":
		m, ok := spec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $project requires an object", ErrInvalidFilter)
		}
		fields := make([]string, 0, len(m))
		for field, include := range m {
			if n, ok := toInt(include); !ok || n != 1 {
				return nil, fmt.Errorf("%w: $project only supports inclusion (field: 1)", ErrInvalidFilter)
			}
			fields = append(fields, field)
		}
		return Project{Fields: fields}, nil

	case "$sort":
		m, ok := spec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $sort requires an object", ErrInvalidFilter)
		}
		keys := make([]SortKey, 0, len(m))
		for field, ord := range m {
			n, ok := toInt(ord)
			if !ok || (n != 1 && n != -1) {
				return nil, fmt.Errorf("%w: $sort order for %q must be 1 or -1", ErrInvalidFilter, field)
			}
			keys = append(keys, SortKey{Field: field, Order: int(n)})
		}
		return Sort{Keys: keys}, nil

	case "$limit":
		n, ok := toInt(spec)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: $limit requires a non-negative integer", ErrInvalidFilter)
		}
		return Limit{N: int(n)}, nil

	case "$skip":
		n, ok := toInt(spec)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: $skip requires a non-negative integer", ErrInvalidFilter)
		}
		return Skip{N: int(n)}, nil

	case "$count":
		name, ok := spec.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $count requires a string field name", ErrInvalidFilter)
		}
		return Count{As: name}, nil

	case "$group":
		return parseGroup(spec)

	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidFilter, op)
	}
}

func parseGroup(spec any) (Stage, error) {
	m, ok := spec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: $group requires an object", ErrInvalidFilter)
	}

	g := Group{
		By:     make(map[string]string),
		Accums: make(map[string]Accumulator),
	}

	for name, raw := range m {
		if name == "_id" {
			idSpec, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: $group _id must be an object of field references", ErrInvalidFilter)
			}
			for outName, ref := range idSpec {
				src, ok := ref.(string)
				if !ok {
					return nil, fmt.Errorf("%w: $group _id entry %q must be a field reference", ErrInvalidFilter, outName)
				}
				g.By[outName] = src
			}
			continue
		}

		accSpec, ok := raw.(map[string]any)
		if !ok || len(accSpec) != 1 {
			return nil, fmt.Errorf("%w: $group accumulator %q must hold exactly one operator", ErrInvalidFilter, name)
		}
		for opName, fieldRaw := range accSpec {
			field, ok := fieldRaw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: $group accumulator %q must reference a field", ErrInvalidFilter, name)
			}
			switch AccumOp(opName) {
			case AccumSum, AccumAvg, AccumMin, AccumMax:
				g.Accums[name] = Accumulator{Op: AccumOp(opName), Field: field}
			default:
				return nil, fmt.Errorf("%w: unknown accumulator %q", ErrInvalidFilter, opName)
			}
		}
	}

	return g, nil
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
		return 0, false
	default:
		return 0, false
	}
}
