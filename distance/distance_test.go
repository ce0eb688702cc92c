package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input    string
		expected Metric
		wantErr  bool
	}{
		{"cosine", MetricCosine, false},
		{"Cosine", MetricCosine, false},
		{"euclidean", MetricEuclidean, false},
		{"l2", MetricEuclidean, false},
		{"dot", MetricDot, false},
		{"manhattan", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m, err := ParseMetric(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestDot(t *testing.T) {
	assert.InDelta(t, 32.0, Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
	assert.InDelta(t, 0.0, Dot([]float32{1, 0}, []float32{0, 1}), 1e-6)
}

func TestSquaredL2(t *testing.T) {
	assert.InDelta(t, 0.0, SquaredL2([]float32{1, 2}, []float32{1, 2}), 1e-6)
	assert.InDelta(t, 25.0, SquaredL2([]float32{0, 0}, []float32{3, 4}), 1e-6)
}

func TestEuclidean(t *testing.T) {
	assert.InDelta(t, 5.0, Euclidean([]float32{0, 0}, []float32{3, 4}), 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical direction", func(t *testing.T) {
		assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0, 0}, []float32{2, 0, 0}), 1e-6)
	})

	t.Run("orthogonal", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	})

	t.Run("opposite", func(t *testing.T) {
		assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	})

	t.Run("zero vector yields zero similarity", func(t *testing.T) {
		assert.InDelta(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), 1e-6)
	})
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{3, 0}), 1e-6)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-6)

	// Degenerate zero-norm input maps to the maximum distance.
	assert.Equal(t, float32(math.MaxFloat32), CosineDistance([]float32{0, 0}, []float32{1, 0}))
}

func TestDistanceChecked(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Distance(MetricCosine, []float32{1, 2}, []float32{1, 2, 3})
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	})

	t.Run("euclidean", func(t *testing.T) {
		d, err := Distance(MetricEuclidean, []float32{0, 0}, []float32{3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 5.0, d, 1e-6)
	})

	t.Run("dot is negated for ordering", func(t *testing.T) {
		d, err := Distance(MetricDot, []float32{1, 2, 3}, []float32{4, 5, 6})
		require.NoError(t, err)
		assert.InDelta(t, -32.0, d, 1e-6)
	})
}

func TestSimilarity(t *testing.T) {
	t.Run("cosine", func(t *testing.T) {
		s, err := Similarity(MetricCosine, []float32{1, 0}, []float32{1, 0})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-6)
	})

	t.Run("dot", func(t *testing.T) {
		s, err := Similarity(MetricDot, []float32{1, 2}, []float32{3, 4})
		require.NoError(t, err)
		assert.InDelta(t, 11.0, s, 1e-6)
	})
}

func TestProvider(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricEuclidean, MetricDot} {
		fn, err := Provider(m)
		require.NoError(t, err, m.String())
		require.NotNil(t, fn)
	}

	_, err := Provider(Metric(99))
	require.Error(t, err)
}
