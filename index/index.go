// Package index provides interfaces and shared types for the vector search
// indexes.
package index

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb/distance"
)

var (
	// ErrEmptyVector is returned when an empty vector is inserted or queried.
	ErrEmptyVector = errors.New("index: empty vector")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("index: k must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNodeNotFound indicates an operation on an ID that is not in the index.
type ErrNodeNotFound struct {
	ID uint64
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %d", e.ID)
}

// ErrDuplicateID indicates an insert with an ID that is already indexed.
type ErrDuplicateID struct {
	ID uint64
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

// ErrInvalidOption indicates an out-of-range configuration value.
type ErrInvalidOption struct {
	Option string
	Value  any
}

func (e *ErrInvalidOption) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Option, e.Value)
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// ID is the identifier of the matched vector.
	ID uint64

	// Distance is the distance between the query vector and the match,
	// under the index's configured metric (smaller is closer).
	Distance float32
}

// SearchOptions tunes a single search call.
type SearchOptions struct {
	// EF overrides the index's candidate list size for this call.
	// Values below k are raised to k. Zero means "use the configured default".
	EF int

	// Filter restricts results to IDs for which it returns true.
	// The filter is consulted during traversal; filtered nodes are still
	// used for navigation so the graph does not fragment.
	Filter func(id uint64) bool
}

// Index is a similarity index over fixed-dimension vectors.
//
// An Index is not safe for concurrent mutation; the owning collection
// serializes writers and allows concurrent readers (multiple readers XOR
// one writer).
type Index interface {
	gob.GobEncoder
	gob.GobDecoder

	// Insert adds a vector under the given ID.
	Insert(ctx context.Context, id uint64, v []float32) error

	// Delete removes the ID from the index. After Delete returns, the ID
	// can no longer appear in any search result.
	Delete(ctx context.Context, id uint64) error

	// Search returns up to k results ordered by ascending distance,
	// ties broken by smaller ID.
	Search(ctx context.Context, q []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// Contains reports whether the ID is live in the index.
	Contains(id uint64) bool

	// Len returns the number of live vectors.
	Len() int

	// Dimension returns the configured vector dimensionality.
	Dimension() int
}

// Kind identifies an index implementation.
type Kind string

const (
	// KindHNSW selects the hierarchical navigable small world graph index.
	KindHNSW Kind = "hnsw"
	// KindFlat selects the exact brute-force index.
	KindFlat Kind = "flat"
)

// ValidateBasicOptions validates options shared by all index types.
func ValidateBasicOptions(dimension int, metric distance.Metric) error {
	if dimension < 1 {
		return &ErrInvalidOption{Option: "Dimension", Value: dimension}
	}
	if _, err := distance.Provider(metric); err != nil {
		return &ErrInvalidOption{Option: "Metric", Value: metric}
	}
	return nil
}
