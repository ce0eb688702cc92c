// Package flat provides an exact brute-force index for vector storage and
// search.
//
// Insert and Delete are O(1); Search scans every live vector and keeps the
// top k in a bounded max-heap. It is the index of choice for small
// collections, and the ground-truth oracle for recall testing of the HNSW
// index.
package flat

import (
	"context"
	"sort"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/queue"
)

// Compile-time check
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	Dimension int

	// Metric selects the distance metric.
	Metric distance.Metric
}

// DefaultOptions contains the default configuration options for the flat
// index.
var DefaultOptions = Options{
	Metric: distance.MetricCosine,
}

type entry struct {
	id     uint64
	vector []float32
}

// Flat represents the brute-force index.
//
// Like HNSW, Flat is not safe for concurrent mutation; the owning collection
// serializes writers.
type Flat struct {
	opts         Options
	distanceFunc distance.Func

	entries []*entry          // arena; nil entries are free slots
	free    []uint32          // reclaimed slots
	slots   map[uint64]uint32 // id -> slot
}

// New creates a new flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateBasicOptions(opts.Dimension, opts.Metric); err != nil {
		return nil, err
	}

	distanceFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		opts:         opts,
		distanceFunc: distanceFunc,
		slots:        make(map[uint64]uint32),
	}, nil
}

// Name returns the index name.
func (*Flat) Name() string { return "Flat" }

// Dimension returns the configured vector dimensionality.
func (f *Flat) Dimension() int { return f.opts.Dimension }

// Len returns the number of live vectors.
func (f *Flat) Len() int { return len(f.slots) }

// Contains reports whether the ID is live in the index.
func (f *Flat) Contains(id uint64) bool {
	_, ok := f.slots[id]
	return ok
}

// Insert adds a vector under the given ID.
func (f *Flat) Insert(ctx context.Context, id uint64, v []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(v) == 0 {
		return index.ErrEmptyVector
	}
	if len(v) != f.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(v)}
	}
	if _, ok := f.slots[id]; ok {
		return &index.ErrDuplicateID{ID: id}
	}

	vec := make([]float32, len(v))
	copy(vec, v)
	e := &entry{id: id, vector: vec}

	if n := len(f.free); n > 0 {
		slot := f.free[n-1]
		f.free = f.free[:n-1]
		f.entries[slot] = e
		f.slots[id] = slot
		return nil
	}

	f.entries = append(f.entries, e)
	f.slots[id] = uint32(len(f.entries) - 1)
	return nil
}

// Delete removes the ID from the index.
func (f *Flat) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slot, ok := f.slots[id]
	if !ok {
		return &index.ErrNodeNotFound{ID: id}
	}
	f.entries[slot] = nil
	delete(f.slots, id)
	f.free = append(f.free, slot)
	return nil
}

// Search scans all live vectors and returns the exact top k ordered by
// ascending distance, ties broken by smaller ID.
func (f *Flat) Search(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	if len(q) != f.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(q)}
	}

	var filter func(uint64) bool
	if opts != nil {
		filter = opts.Filter
	}

	top := queue.NewMax(k)
	for _, e := range f.entries {
		if e == nil {
			continue
		}
		if filter != nil && !filter(e.id) {
			continue
		}

		d := f.distanceFunc(q, e.vector)
		if top.Len() < k {
			top.PushItem(queue.Item{Node: e.id, Distance: d})
			continue
		}
		if worst, _ := top.TopItem(); d < worst.Distance || (d == worst.Distance && e.id < worst.Node) {
			_, _ = top.PopItem()
			top.PushItem(queue.Item{Node: e.id, Distance: d})
		}
	}

	out := make([]index.SearchResult, 0, top.Len())
	for top.Len() > 0 {
		item, _ := top.PopItem()
		out = append(out, index.SearchResult{ID: item.Node, Distance: item.Distance})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}
