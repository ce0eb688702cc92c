package vecdb

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/metadata"
	"github.com/hupe1980/vecdb/snapshot"
)

func populatedCollection(t *testing.T, kind index.Kind) *Collection {
	t.Helper()

	ctx := context.Background()
	coll := newTestCollection(t, kind)

	items := []Item{
		{Vector: []float32{1, 0, 0}, Metadata: metadata.Document{"lang": metadata.String("go")}, Document: "first doc"},
		{Vector: []float32{0, 1, 0}, Metadata: metadata.Document{"lang": metadata.String("rust")}},
		{Vector: []float32{0.9, 0.1, 0}, Metadata: metadata.Document{"stars": metadata.Int(7)}},
	}
	result := coll.InsertBatch(ctx, items)
	require.Zero(t, result.Failed())
	require.NoError(t, coll.Delete(ctx, 1))
	return coll
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name  string
		codec Compression
	}{
		{"none", CompressionNone},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			coll := populatedCollection(t, index.KindHNSW)

			var buf bytes.Buffer
			require.NoError(t, coll.Snapshot(ctx, &buf, func(o *SnapshotOptions) {
				o.Compression = tc.codec
			}))

			restored, err := LoadCollection(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)

			assert.Equal(t, coll.Name(), restored.Name())
			assert.Equal(t, coll.Dimension(), restored.Dimension())
			assert.Equal(t, coll.Count(), restored.Count())

			rec, err := restored.Get(0)
			require.NoError(t, err)
			assert.Equal(t, "first doc", rec.Document)
			assert.Equal(t, metadata.String("go"), rec.Metadata["lang"])

			// The tombstone survives: the deleted ID stays unusable.
			var dup *ErrDuplicateID
			_, err = restored.Insert(ctx, Item{ID: uint64Ptr(1), Vector: []float32{0, 1, 0}})
			require.ErrorAs(t, err, &dup)

			// ID allocation resumes where it left off.
			id, err := restored.Insert(ctx, Item{Vector: []float32{0, 0, 1}})
			require.NoError(t, err)
			assert.Equal(t, uint64(3), id)

			// Search works on the restored graph.
			results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, uint64(0), results[0].ID)
		})
	}
}

func TestLoadCollectionRejectsGarbage(t *testing.T) {
	_, err := LoadCollection(bytes.NewReader([]byte("not a snapshot at all")))
	require.Error(t, err)

	_, err = LoadCollection(bytes.NewReader(nil))
	require.Error(t, err)
}

func TestSaveAndRestoreThroughStore(t *testing.T) {
	ctx := context.Background()

	db := New()
	coll := populatedCollection(t, index.KindFlat)
	db.attach(coll)

	store := snapshot.NewMemoryStore()

	id, err := db.SaveCollection(ctx, store, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// Restoring replaces the in-memory collection.
	restored, err := db.RestoreCollection(ctx, store, "test")
	require.NoError(t, err)
	assert.Equal(t, coll.Count(), restored.Count())

	got, err := db.Collection("test")
	require.NoError(t, err)
	assert.Same(t, restored, got)

	t.Run("unknown collection", func(t *testing.T) {
		_, err := db.SaveCollection(ctx, store, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = db.RestoreCollection(ctx, store, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}
