// Package distance provides the distance metrics used by the vector indexes.
//
// All metrics are normalized so that "smaller is closer": cosine is reported
// as 1 - cosine similarity, euclidean as the L2 norm of the difference, and
// dot product negated. This lets the indexes use a single comparator.
package distance

import (
	"fmt"
	"math"
	"strings"
)

// MaxDistance is the finite sentinel returned for degenerate inputs such as
// cosine distance against a zero-norm vector. It is deliberately finite so
// that heap comparisons and sorting stay total.
const MaxDistance = float32(math.MaxFloat32)

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricCosine measures the angle between vectors (1 - cosine similarity).
	MetricCosine Metric = iota
	// MetricEuclidean measures the straight-line L2 distance.
	MetricEuclidean
	// MetricDot measures the negated dot product.
	MetricDot
)

// String returns a string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricEuclidean:
		return "Euclidean"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMetric parses a metric name as used in configuration files.
// Matching is case-insensitive.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "cosine":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("distance: unsupported metric %q", s)
	}
}

// ErrDimensionMismatch indicates two vectors of different lengths were
// compared.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Func calculates the distance between two vectors of equal length.
// Length equality is the caller's responsibility; use Distance for a
// checked variant.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return CosineDistance, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricDot:
		return NegDot, nil
	default:
		return nil, fmt.Errorf("distance: unsupported metric: %v", m)
	}
}

// Distance computes the distance between a and b under metric m.
// It returns ErrDimensionMismatch if the vector lengths differ.
func Distance(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	fn, err := Provider(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

// Similarity computes the similarity between a and b under metric m.
// It returns ErrDimensionMismatch if the vector lengths differ.
//
// Cosine similarity is the raw cosine of the angle, dot similarity the raw
// dot product, and euclidean similarity 1/(1+d) so that identical vectors
// score 1 and the score decays towards 0 with distance.
func Similarity(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}
	switch m {
	case MetricCosine:
		return CosineSimilarity(a, b), nil
	case MetricEuclidean:
		return 1 / (1 + Euclidean(a, b)), nil
	case MetricDot:
		return Dot(a, b), nil
	default:
		return 0, fmt.Errorf("distance: unsupported metric: %v", m)
	}
}

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// NegDot calculates the negated dot product so that larger dot products
// sort as closer.
func NegDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// SquaredL2 calculates the squared L2 distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Euclidean calculates the L2 distance between two vectors.
func Euclidean(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// Magnitude calculates the L2 norm of a vector.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// CosineSimilarity calculates the cosine of the angle between two vectors.
// Zero-norm operands yield a similarity of 0.
func CosineSimilarity(a, b []float32) float32 {
	ma := Magnitude(a)
	mb := Magnitude(b)
	if ma == 0 || mb == 0 {
		return 0
	}
	return Dot(a, b) / (ma * mb)
}

// CosineDistance calculates 1 - cosine similarity.
// Zero-norm operands are treated as maximally distant (MaxDistance), never
// NaN: a zero vector has no direction to compare against.
func CosineDistance(a, b []float32) float32 {
	ma := Magnitude(a)
	mb := Magnitude(b)
	if ma == 0 || mb == 0 {
		return MaxDistance
	}
	return 1 - Dot(a, b)/(ma*mb)
}
