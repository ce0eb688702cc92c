package vecdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/metadata"
)

var (
	// ErrNotFound is returned when an ID, document or collection is absent.
	ErrNotFound = errors.New("not found")

	// ErrCollectionExists is returned when creating a collection under a
	// name that is already taken.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidFilter is returned for malformed filter expressions.
	// It aliases metadata.ErrInvalidFilter so callers can match either.
	ErrInvalidFilter = metadata.ErrInvalidFilter
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates an insert with an explicit ID that is already
// live.
type ErrDuplicateID struct {
	ID    uint64
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %d", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// ErrConfiguration indicates an invalid configuration value at creation
// time (bad dimension, M, EF, metric or index kind).
type ErrConfiguration struct {
	Option string
	Value  any
	cause  error
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Option, e.Value)
}

func (e *ErrConfiguration) Unwrap() error { return e.cause }

// translateError maps index-level errors onto the package taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var enf *index.ErrNodeNotFound
	if errors.As(err, &enf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var dup *index.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID, cause: err}
	}

	var opt *index.ErrInvalidOption
	if errors.As(err, &opt) {
		return &ErrConfiguration{Option: opt.Option, Value: opt.Value, cause: err}
	}

	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	return err
}
