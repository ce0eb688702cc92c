package vecdb

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/metadata"
)

func TestSearchValidation(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	_, err := coll.Search(ctx, []float32{1, 0, 0}, 0)
	require.ErrorIs(t, err, ErrInvalidK)

	var dm *ErrDimensionMismatch
	_, err = coll.Search(ctx, []float32{1, 0}, 1)
	require.ErrorAs(t, err, &dm)

	_, err = coll.Search(ctx, []float32{1, 0, 0}, 1, func(o *SearchOptions) {
		o.Filter = metadata.And()
	})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestSearchIncludeFlags(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	_, err := coll.Insert(ctx, Item{
		Vector:   []float32{1, 0, 0},
		Metadata: metadata.Document{"lang": metadata.String("go")},
		Document: "the document",
	})
	require.NoError(t, err)

	t.Run("excluded by default", func(t *testing.T) {
		results, err := coll.Search(ctx, []float32{1, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Nil(t, results[0].Metadata)
		assert.Empty(t, results[0].Document)
	})

	t.Run("included on request", func(t *testing.T) {
		results, err := coll.Search(ctx, []float32{1, 0, 0}, 1, func(o *SearchOptions) {
			o.IncludeMetadata = true
			o.IncludeDocument = true
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, metadata.String("go"), results[0].Metadata["lang"])
		assert.Equal(t, "the document", results[0].Document)
	})
}

func TestFilteredSearch(t *testing.T) {
	ctx := context.Background()

	for _, kind := range []index.Kind{index.KindFlat, index.KindHNSW} {
		t.Run(string(kind), func(t *testing.T) {
			coll := newTestCollection(t, kind)

			// 50 near-identical vectors; only every fifth carries the tag,
			// so k matches force the over-fetch retry path.
			for i := 0; i < 50; i++ {
				tag := "other"
				if i%5 == 0 {
					tag = "wanted"
				}
				_, err := coll.Insert(ctx, Item{
					Vector:   []float32{1, float32(i) * 0.001, 0},
					Metadata: metadata.Document{"tag": metadata.String(tag)},
				})
				require.NoError(t, err)
			}

			results, err := coll.Search(ctx, []float32{1, 0, 0}, 8, func(o *SearchOptions) {
				o.Filter = metadata.Eq("tag", metadata.String("wanted"))
				o.IncludeMetadata = true
			})
			require.NoError(t, err)
			require.Len(t, results, 8)

			for _, r := range results {
				assert.Equal(t, metadata.String("wanted"), r.Metadata["tag"])
			}
			for i := 1; i < len(results); i++ {
				assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
			}
		})
	}
}

func TestFilteredSearchFewerMatchesThanK(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	for i := 0; i < 10; i++ {
		_, err := coll.Insert(ctx, Item{
			Vector:   []float32{1, float32(i) * 0.01, 0},
			Metadata: metadata.Document{"i": metadata.Int(int64(i))},
		})
		require.NoError(t, err)
	}

	results, err := coll.Search(ctx, []float32{1, 0, 0}, 10, func(o *SearchOptions) {
		o.Filter = metadata.Lt("i", metadata.Int(3))
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestFilteredSearchNoMatches(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	_, err := coll.Insert(ctx, Item{Vector: []float32{1, 0, 0}})
	require.NoError(t, err)

	results, err := coll.Search(ctx, []float32{1, 0, 0}, 5, func(o *SearchOptions) {
		o.Filter = metadata.Eq("tag", metadata.String("nope"))
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchEmptyCollection(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindHNSW)

	results, err := coll.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = coll.Search(ctx, []float32{1, 0, 0}, 5, func(o *SearchOptions) {
		o.Filter = metadata.Eq("a", metadata.Int(1))
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchBatch(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, v := range vectors {
		_, err := coll.Insert(ctx, Item{Vector: v})
		require.NoError(t, err)
	}

	results, err := coll.SearchBatch(ctx, vectors, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i := range vectors {
		require.Len(t, results[i], 1)
		assert.Equal(t, uint64(i), results[i][0].ID)
	}

	t.Run("error aborts the batch", func(t *testing.T) {
		_, err := coll.SearchBatch(ctx, [][]float32{{1, 0, 0}, {1, 0}}, 1)
		require.Error(t, err)
	})
}

func TestTextSearch(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindFlat)

	id0, err := coll.Insert(ctx, Item{
		Vector:   []float32{1, 0, 0},
		Document: "approximate nearest neighbor search",
	})
	require.NoError(t, err)
	id1, err := coll.Insert(ctx, Item{
		Vector:   []float32{0, 1, 0},
		Metadata: metadata.Document{"title": metadata.String("exact search methods")},
	})
	require.NoError(t, err)
	_, err = coll.Insert(ctx, Item{Vector: []float32{0, 0, 1}})
	require.NoError(t, err)

	t.Run("across documents and metadata", func(t *testing.T) {
		assert.Equal(t, []uint64{id0, id1}, coll.TextSearch("search"))
	})

	t.Run("field restricted", func(t *testing.T) {
		ids := coll.TextSearch("search", func(o *TextSearchOptions) { o.Field = "title" })
		assert.Equal(t, []uint64{id1}, ids)
	})

	t.Run("all words must match", func(t *testing.T) {
		assert.Equal(t, []uint64{id0}, coll.TextSearch("neighbor approximate"))
		assert.Empty(t, coll.TextSearch("neighbor exact"))
	})

	t.Run("limit", func(t *testing.T) {
		ids := coll.TextSearch("search", func(o *TextSearchOptions) { o.Limit = 1 })
		assert.Len(t, ids, 1)
	})

	t.Run("index tracks mutations", func(t *testing.T) {
		require.NoError(t, coll.Delete(ctx, id0))
		assert.Equal(t, []uint64{id1}, coll.TextSearch("search"))

		id3, err := coll.Insert(ctx, Item{
			Vector:   []float32{1, 1, 0},
			Document: "hybrid search",
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{id1, id3}, coll.TextSearch("search"))
	})
}

func TestConcurrentReads(t *testing.T) {
	ctx := context.Background()
	coll := newTestCollection(t, index.KindHNSW)

	for i := 0; i < 100; i++ {
		_, err := coll.Insert(ctx, Item{
			Vector:   []float32{float32(i), float32(i % 7), 1},
			Metadata: metadata.Document{"i": metadata.Int(int64(i))},
		})
		require.NoError(t, err)
	}

	queries := make([][]float32, 20)
	for i := range queries {
		queries[i] = []float32{float32(i), 1, 1}
	}

	results, err := coll.SearchBatch(ctx, queries, 5)
	require.NoError(t, err)
	require.Len(t, results, len(queries))
	for i, rs := range results {
		assert.NotEmpty(t, rs, fmt.Sprintf("query %d", i))
	}
}
