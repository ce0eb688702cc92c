package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDoc() Document {
	return Document{
		"lang":    String("go"),
		"stars":   Int(42),
		"rating":  Float(4.5),
		"public":  Bool(true),
		"tags":    Array(String("db"), String("vector")),
		"nothing": Null(),
	}
}

func TestEq(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, Eq("lang", String("go")).Matches(doc))
	assert.False(t, Eq("lang", String("rust")).Matches(doc))
	assert.True(t, Eq("stars", Int(42)).Matches(doc))
	assert.True(t, Eq("public", Bool(true)).Matches(doc))
	assert.False(t, Eq("missing", String("x")).Matches(doc))

	// Cross-kind numeric equality.
	assert.True(t, Eq("stars", Float(42)).Matches(doc))
	assert.True(t, Eq("rating", Float(4.5)).Matches(doc))
}

func TestEqNestedDocument(t *testing.T) {
	doc := Document{
		"meta": Map(Document{"lang": String("go"), "stars": Int(3)}),
	}

	// Exact subdocument equality, insertion-order independent.
	assert.True(t, Eq("meta", Map(Document{"stars": Int(3), "lang": String("go")})).Matches(doc))
	assert.False(t, Eq("meta", Map(Document{"lang": String("go")})).Matches(doc))
	assert.False(t, Eq("meta", Map(Document{"lang": String("rust"), "stars": Int(3)})).Matches(doc))
}

func TestNe(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, Ne("lang", String("rust")).Matches(doc))
	assert.False(t, Ne("lang", String("go")).Matches(doc))

	// A missing field is "not equal" to any value.
	assert.True(t, Ne("missing", String("go")).Matches(doc))
}

func TestOrderedComparisons(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, Gt("stars", Int(41)).Matches(doc))
	assert.False(t, Gt("stars", Int(42)).Matches(doc))
	assert.True(t, Gte("stars", Int(42)).Matches(doc))
	assert.True(t, Lt("stars", Int(43)).Matches(doc))
	assert.False(t, Lt("stars", Int(42)).Matches(doc))
	assert.True(t, Lte("stars", Int(42)).Matches(doc))

	// Cross-kind numeric ordering.
	assert.True(t, Gt("rating", Int(4)).Matches(doc))
	assert.True(t, Lt("stars", Float(42.5)).Matches(doc))

	// Strings order lexicographically.
	assert.True(t, Gt("lang", String("ab")).Matches(doc))
	assert.True(t, Lt("lang", String("rust")).Matches(doc))

	// Comparisons on missing or non-orderable fields never match.
	assert.False(t, Gt("missing", Int(0)).Matches(doc))
	assert.False(t, Lt("public", Bool(false)).Matches(doc))
}

func TestInNin(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, In("lang", String("go"), String("rust")).Matches(doc))
	assert.False(t, In("lang", String("c"), String("rust")).Matches(doc))
	assert.True(t, Nin("lang", String("c"), String("rust")).Matches(doc))
	assert.False(t, Nin("lang", String("go")).Matches(doc))

	// Array fields match when any element is in the set.
	assert.True(t, In("tags", String("vector")).Matches(doc))
	assert.False(t, In("tags", String("graph")).Matches(doc))
}

func TestExists(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, Exists("lang", true).Matches(doc))
	assert.False(t, Exists("lang", false).Matches(doc))
	assert.False(t, Exists("missing", true).Matches(doc))
	assert.True(t, Exists("missing", false).Matches(doc))

	// An explicit null is present.
	assert.True(t, Exists("nothing", true).Matches(doc))
}

func TestRegex(t *testing.T) {
	doc := sampleDoc()

	f, err := Regex("lang", "^g")
	require.NoError(t, err)
	assert.True(t, f.Matches(doc))

	// Case-insensitive by default.
	f, err = Regex("lang", "^GO$")
	require.NoError(t, err)
	assert.True(t, f.Matches(doc))

	// Explicit flag group disables the default.
	f, err = Regex("lang", "(?-i:^GO$)")
	require.NoError(t, err)
	assert.False(t, f.Matches(doc))

	_, err = Regex("lang", "([")
	require.ErrorIs(t, err, ErrInvalidFilter)

	f, err = Regex("stars", "4")
	require.NoError(t, err)
	assert.False(t, f.Matches(doc), "regex only applies to string fields")
}

func TestText(t *testing.T) {
	doc := Document{"title": String("Fast Approximate Nearest Neighbor Search")}

	assert.True(t, Text("title", "nearest neighbor").Matches(doc))
	assert.True(t, Text("title", "FAST").Matches(doc))
	assert.False(t, Text("title", "exact").Matches(doc))
	assert.False(t, Text("missing", "fast").Matches(doc))
}

func TestLogicalOperators(t *testing.T) {
	doc := sampleDoc()

	assert.True(t, And(
		Eq("lang", String("go")),
		Gt("stars", Int(10)),
	).Matches(doc))

	assert.False(t, And(
		Eq("lang", String("go")),
		Gt("stars", Int(100)),
	).Matches(doc))

	assert.True(t, Or(
		Eq("lang", String("rust")),
		Gt("stars", Int(10)),
	).Matches(doc))

	assert.False(t, Or(
		Eq("lang", String("rust")),
		Gt("stars", Int(100)),
	).Matches(doc))

	assert.False(t, Not(Eq("lang", String("go"))).Matches(doc))
	assert.True(t, Not(Eq("lang", String("rust"))).Matches(doc))

	assert.True(t, And(
		Or(Eq("lang", String("go")), Eq("lang", String("rust"))),
		Not(Lt("rating", Float(4))),
	).Matches(doc))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Eq("a", Int(1)).Validate())
	require.NoError(t, And(Eq("a", Int(1)), Ne("b", Int(2))).Validate())

	t.Run("empty logical group", func(t *testing.T) {
		require.ErrorIs(t, And().Validate(), ErrInvalidFilter)
		require.ErrorIs(t, Or().Validate(), ErrInvalidFilter)
	})

	t.Run("nested invalid child", func(t *testing.T) {
		require.ErrorIs(t, And(Eq("a", Int(1)), Or()).Validate(), ErrInvalidFilter)
	})

	t.Run("unknown operator", func(t *testing.T) {
		f := &Filter{Op: Operator("$between"), Field: "a"}
		require.ErrorIs(t, f.Validate(), ErrInvalidFilter)
	})
}
