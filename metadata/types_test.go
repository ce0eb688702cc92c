package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null()},
		{"bool", true, Bool(true)},
		{"string", "x", String("x")},
		{"int", 7, Int(7)},
		{"int64", int64(7), Int(7)},
		{"float64", 1.5, Float(1.5)},
		{"float32", float32(2), Float(2)},
		{"slice", []any{1, "a"}, Array(Int(1), String("a"))},
		{"nested map", map[string]any{"a": map[string]any{"b": 1}},
			Map(Document{"a": Map(Document{"b": Int(1)})})},
		{"document passthrough", Document{"k": Bool(true)}, Map(Document{"k": Bool(true)})},
		{"value passthrough", Int(3), Int(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		_, err := FromAny(struct{}{})
		require.Error(t, err)

		_, err = FromAny(map[string]string{"a": "b"})
		require.Error(t, err)

		_, err = FromAny(map[string]any{"a": struct{}{}})
		require.Error(t, err)
	})
}

func TestDocumentFromAny(t *testing.T) {
	doc, err := DocumentFromAny(map[string]any{
		"name":  "x",
		"count": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, String("x"), doc["name"])
	assert.Equal(t, Int(2), doc["count"])

	_, err = DocumentFromAny(map[string]any{"bad": struct{}{}})
	require.Error(t, err)
}

func TestDocumentClone(t *testing.T) {
	orig := Document{
		"tags": Array(String("a"), String("b")),
		"n":    Int(1),
		"meta": Map(Document{"lang": String("go")}),
	}

	clone := orig.Clone()
	clone["n"] = Int(2)
	clone["tags"].A[0] = String("mutated")
	clone["meta"].M["lang"] = String("mutated")

	assert.Equal(t, Int(1), orig["n"])
	assert.Equal(t, String("a"), orig["tags"].A[0])
	assert.Equal(t, String("go"), orig["meta"].M["lang"])
}

func TestValueKey(t *testing.T) {
	// Key must distinguish kinds that could collide textually.
	assert.NotEqual(t, Int(1).Key(), String("1").Key())
	assert.NotEqual(t, Bool(true).Key(), String("true").Key())
	assert.Equal(t, Int(5).Key(), Int(5).Key())

	// Map keys are sorted so the representation is insertion-order
	// independent.
	assert.Equal(t,
		Map(Document{"a": Int(1), "b": Int(2)}).Key(),
		Map(Document{"b": Int(2), "a": Int(1)}).Key())
	assert.NotEqual(t,
		Map(Document{"a": Int(1)}).Key(),
		Map(Document{"a": Int(2)}).Key())
}
