package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw map[string]any) *Filter {
	t.Helper()

	f, err := ParseFilter(raw)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	return f
}

func TestParseEqualityShorthand(t *testing.T) {
	doc := sampleDoc()

	f := mustParse(t, map[string]any{"lang": "go"})
	assert.True(t, f.Matches(doc))

	f = mustParse(t, map[string]any{"stars": 42})
	assert.True(t, f.Matches(doc))

	f = mustParse(t, map[string]any{"lang": "rust"})
	assert.False(t, f.Matches(doc))
}

func TestParseNestedDocumentShorthand(t *testing.T) {
	doc := Document{
		"meta": Map(Document{"lang": String("go")}),
	}

	// A nested object without operator keys is an equality literal, not an
	// operator object.
	f := mustParse(t, map[string]any{"meta": map[string]any{"lang": "go"}})
	assert.True(t, f.Matches(doc))

	f = mustParse(t, map[string]any{"meta": map[string]any{"lang": "rust"}})
	assert.False(t, f.Matches(doc))
}

func TestParseOperatorObject(t *testing.T) {
	doc := sampleDoc()

	tests := []struct {
		name    string
		raw     map[string]any
		matches bool
	}{
		{"gt", map[string]any{"stars": map[string]any{"$gt": 40}}, true},
		{"gt excluded", map[string]any{"stars": map[string]any{"$gt": 42}}, false},
		{"gte", map[string]any{"stars": map[string]any{"$gte": 42}}, true},
		{"lt", map[string]any{"rating": map[string]any{"$lt": 5.0}}, true},
		{"lte", map[string]any{"rating": map[string]any{"$lte": 4.5}}, true},
		{"ne", map[string]any{"lang": map[string]any{"$ne": "rust"}}, true},
		{"in", map[string]any{"lang": map[string]any{"$in": []any{"go", "rust"}}}, true},
		{"nin", map[string]any{"lang": map[string]any{"$nin": []any{"c", "rust"}}}, true},
		{"exists", map[string]any{"missing": map[string]any{"$exists": false}}, true},
		{"regex", map[string]any{"lang": map[string]any{"$regex": "^g"}}, true},
		{"text", map[string]any{"lang": map[string]any{"$text": "GO"}}, true},
		{"range", map[string]any{"stars": map[string]any{"$gt": 40, "$lt": 50}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, tt.raw)
			assert.Equal(t, tt.matches, f.Matches(doc))
		})
	}
}

func TestParseLogical(t *testing.T) {
	doc := sampleDoc()

	f := mustParse(t, map[string]any{
		"$and": []any{
			map[string]any{"lang": "go"},
			map[string]any{"stars": map[string]any{"$gt": 10}},
		},
	})
	assert.True(t, f.Matches(doc))

	f = mustParse(t, map[string]any{
		"$or": []any{
			map[string]any{"lang": "rust"},
			map[string]any{"stars": map[string]any{"$gt": 100}},
		},
	})
	assert.False(t, f.Matches(doc))

	f = mustParse(t, map[string]any{
		"$not": map[string]any{"lang": "rust"},
	})
	assert.True(t, f.Matches(doc))
}

func TestParseImplicitAnd(t *testing.T) {
	doc := sampleDoc()

	// Multiple top-level keys combine conjunctively.
	f := mustParse(t, map[string]any{
		"lang":  "go",
		"stars": map[string]any{"$gte": 42},
	})
	assert.True(t, f.Matches(doc))

	f = mustParse(t, map[string]any{
		"lang":  "go",
		"stars": map[string]any{"$gt": 100},
	})
	assert.False(t, f.Matches(doc))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"empty filter", map[string]any{}},
		{"unknown operator", map[string]any{"a": map[string]any{"$near": 1}}},
		{"and not array", map[string]any{"$and": map[string]any{"a": 1}}},
		{"or not array", map[string]any{"$or": "nope"}},
		{"not not object", map[string]any{"$not": []any{1}}},
		{"in not array", map[string]any{"a": map[string]any{"$in": 1}}},
		{"bad regex", map[string]any{"a": map[string]any{"$regex": "(["}}},
		{"unsupported literal", map[string]any{"a": struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.raw)
			require.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}
