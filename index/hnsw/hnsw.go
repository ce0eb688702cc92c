// Package hnsw implements the Hierarchical Navigable Small World (HNSW)
// graph index for approximate nearest neighbor search.
//
// Nodes live in a slot arena: neighbor lists reference dense slot indices
// rather than pointers, deleted slots are reclaimed through a free list, and
// external IDs map to slots through a lookup table. Mutations build new
// neighbor lists and swap them in, so a reader never observes a half-updated
// list.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/queue"
	"github.com/hupe1980/vecdb/internal/visited"
)

const (
	// minimumM is the minimum valid value for M; M < 2 would break the
	// layer multiplier (1/ln(M)).
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node per layer.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate list size during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default candidate list size during search.
	DefaultEFSearch = 100
)

// Compile-time check
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	Dimension int

	// M is the number of established connections per node per layer.
	// Layer 0 allows M0 connections.
	M int

	// M0 is the number of connections at layer 0. Zero means 2*M.
	M0 int

	// EFConstruction is the size of the dynamic candidate list while
	// inserting. Larger values improve graph quality at build cost.
	EFConstruction int

	// EFSearch is the default size of the dynamic candidate list while
	// searching. Larger values improve recall at search cost.
	EFSearch int

	// Metric selects the distance metric.
	Metric distance.Metric

	// Heuristic toggles the diversity-preserving neighbor selection.
	// Disabled, plain nearest-M selection is used.
	Heuristic bool

	// RandomSeed seeds the layer generator. Nil seeds from the clock;
	// set it for reproducible graph construction in tests.
	RandomSeed *int64
}

// DefaultOptions contains the default configuration options for HNSW.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Metric:         distance.MetricCosine,
	Heuristic:      true,
}

// node is a graph node stored in the slot arena.
type node struct {
	id     uint64
	vector []float32
	layer  int
	conns  [][]uint32 // neighbor slots, one list per layer 0..layer
}

// HNSW represents the hierarchical navigable small world graph.
//
// HNSW is not safe for concurrent mutation. Concurrent Search calls are
// safe with each other as long as no Insert/Delete runs; the owning
// collection enforces that discipline with its own lock.
type HNSW struct {
	opts         Options
	distanceFunc distance.Func
	ml           float64 // layer multiplier, 1/ln(M)

	nodes []*node           // arena; nil entries are free slots
	free  []uint32          // reclaimed slots
	slots map[uint64]uint32 // id -> slot

	ep       uint32
	hasEP    bool
	maxLevel int

	rng   *rand.Rand
	rngMu sync.Mutex

	minQueuePool *sync.Pool
	maxQueuePool *sync.Pool
	visitedPool  *sync.Pool
}

// New creates a new HNSW index.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateBasicOptions(opts.Dimension, opts.Metric); err != nil {
		return nil, err
	}
	if opts.M < minimumM {
		return nil, &index.ErrInvalidOption{Option: "M", Value: opts.M}
	}
	if opts.M0 == 0 {
		opts.M0 = 2 * opts.M
	}
	if opts.M0 < opts.M {
		return nil, &index.ErrInvalidOption{Option: "M0", Value: opts.M0}
	}
	if opts.EFConstruction < 1 {
		return nil, &index.ErrInvalidOption{Option: "EFConstruction", Value: opts.EFConstruction}
	}
	if opts.EFSearch < 1 {
		return nil, &index.ErrInvalidOption{Option: "EFSearch", Value: opts.EFSearch}
	}

	distanceFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = newRand(*opts.RandomSeed)
	} else {
		rng = newClockRand()
	}

	h := &HNSW{
		opts:         opts,
		distanceFunc: distanceFunc,
		ml:           1 / logM(opts.M),
		slots:        make(map[uint64]uint32),
		rng:          rng,
	}
	h.initPools()

	return h, nil
}

func (h *HNSW) initPools() {
	h.minQueuePool = &sync.Pool{
		New: func() any { return queue.NewMin(h.opts.EFConstruction) },
	}
	h.maxQueuePool = &sync.Pool{
		New: func() any { return queue.NewMax(h.opts.EFConstruction) },
	}
	h.visitedPool = &sync.Pool{
		New: func() any { return visited.New(1024) },
	}
}

func logM(m int) float64 { return math.Log(float64(m)) }

func newRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }

func newClockRand() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }

// Name returns the index name.
func (*HNSW) Name() string { return "HNSW" }

// Dimension returns the configured vector dimensionality.
func (h *HNSW) Dimension() int { return h.opts.Dimension }

// Len returns the number of live vectors in the graph.
func (h *HNSW) Len() int { return len(h.slots) }

// Contains reports whether the ID is live in the graph.
func (h *HNSW) Contains(id uint64) bool {
	_, ok := h.slots[id]
	return ok
}

// EFSearch returns the configured default search candidate list size.
func (h *HNSW) EFSearch() int { return h.opts.EFSearch }

func (h *HNSW) maxConns(level int) int {
	if level == 0 {
		return h.opts.M0
	}
	return h.opts.M
}

// randomLayer draws the top layer for a new node from the exponential
// distribution floor(-ln(U) * mL).
func (h *HNSW) randomLayer() int {
	h.rngMu.Lock()
	u := h.rng.Float64()
	h.rngMu.Unlock()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(u) * h.ml))
}

func (h *HNSW) allocSlot(n *node) uint32 {
	if cnt := len(h.free); cnt > 0 {
		slot := h.free[cnt-1]
		h.free = h.free[:cnt-1]
		h.nodes[slot] = n
		return slot
	}
	h.nodes = append(h.nodes, n)
	return uint32(len(h.nodes) - 1)
}

func (h *HNSW) dist(v []float32, slot uint32) float32 {
	return h.distanceFunc(v, h.nodes[slot].vector)
}

// Insert adds a vector to the graph under the given ID.
//
// The ID must not already be present; the caller allocates IDs. On any
// validation error the graph is left unchanged.
func (h *HNSW) Insert(ctx context.Context, id uint64, v []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(v) == 0 {
		return index.ErrEmptyVector
	}
	if len(v) != h.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(v)}
	}
	if _, ok := h.slots[id]; ok {
		return &index.ErrDuplicateID{ID: id}
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	layer := h.randomLayer()

	n := &node{
		id:     id,
		vector: vec,
		layer:  layer,
		conns:  make([][]uint32, layer+1),
	}

	// First node becomes the entry point.
	if !h.hasEP {
		slot := h.allocSlot(n)
		h.slots[id] = slot
		h.ep = slot
		h.maxLevel = layer
		h.hasEP = true
		return nil
	}

	currSlot := h.ep
	currDist := h.dist(vec, currSlot)

	// Greedy single-best descent through the layers above the new node's
	// top layer.
	for level := h.maxLevel; level > layer; level-- {
		currSlot, currDist = h.greedyStep(vec, currSlot, currDist, level)
	}

	// Best-first search and linking from min(layer, maxLevel) down to 0.
	slot := h.allocSlot(n)
	h.slots[id] = slot

	for level := min(layer, h.maxLevel); level >= 0; level-- {
		results := h.searchLayer(vec, currSlot, currDist, level, h.opts.EFConstruction, nil)

		if best, ok := results.MinItem(); ok {
			currSlot = uint32(best.Node)
			currDist = best.Distance
		}

		neighbors := h.selectNeighbors(vec, results, h.maxConns(level))
		results.Reset()
		h.maxQueuePool.Put(results)

		n.conns[level] = neighbors

		for _, neighborSlot := range neighbors {
			h.link(neighborSlot, slot, level)
		}
	}

	if layer > h.maxLevel {
		h.maxLevel = layer
		h.ep = slot
	}

	return nil
}

// greedyStep walks to the local optimum for the query at the given level.
func (h *HNSW) greedyStep(q []float32, currSlot uint32, currDist float32, level int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		n := h.nodes[currSlot]
		if level >= len(n.conns) {
			continue
		}
		for _, nextSlot := range n.conns[level] {
			if h.nodes[nextSlot] == nil {
				continue
			}
			if nextDist := h.dist(q, nextSlot); nextDist < currDist {
				currSlot = nextSlot
				currDist = nextDist
				changed = true
			}
		}
	}
	return currSlot, currDist
}

// searchLayer runs a best-first search on one layer and returns up to ef
// results as a max-heap (worst on top). The caller returns the heap to
// maxQueuePool.
func (h *HNSW) searchLayer(q []float32, epSlot uint32, epDist float32, level, ef int, filter func(uint64) bool) *queue.PriorityQueue {
	vis := h.visitedPool.Get().(*visited.Set)
	vis.Reset()
	defer h.visitedPool.Put(vis)

	candidates := h.minQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.minQueuePool.Put(candidates)
	}()

	results := h.maxQueuePool.Get().(*queue.PriorityQueue)
	results.Reset()

	vis.Visit(uint64(epSlot))
	candidates.PushItem(queue.Item{Node: uint64(epSlot), Distance: epDist})

	// The entry point always seeds navigation, but only contributes a
	// result if it passes the filter.
	if filter == nil || filter(h.nodes[epSlot].id) {
		results.PushItem(queue.Item{Node: uint64(epSlot), Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if results.Len() >= ef {
			if worst, ok := results.TopItem(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		n := h.nodes[uint32(curr.Node)]
		if level >= len(n.conns) {
			continue
		}

		for _, nextSlot := range n.conns[level] {
			if vis.Visited(uint64(nextSlot)) {
				continue
			}
			vis.Visit(uint64(nextSlot))

			next := h.nodes[nextSlot]
			if next == nil {
				continue
			}
			nextDist := h.dist(q, nextSlot)

			// Skip obviously-bad candidates once ef results are held.
			// With a filter the traversal stays permissive so it does not
			// get trapped in filtered-out regions.
			if filter == nil && results.Len() >= ef {
				if worst, _ := results.TopItem(); nextDist > worst.Distance {
					continue
				}
			}

			candidates.PushItem(queue.Item{Node: uint64(nextSlot), Distance: nextDist})

			if filter == nil || filter(next.id) {
				results.PushItem(queue.Item{Node: uint64(nextSlot), Distance: nextDist})
				if results.Len() > ef {
					_, _ = results.PopItem()
				}
			}
		}
	}

	return results
}

// selectNeighbors picks up to m neighbor slots from the result heap.
func (h *HNSW) selectNeighbors(q []float32, candidates *queue.PriorityQueue, m int) []uint32 {
	// Extract best-first: the max-heap pops worst-first.
	sorted := make([]queue.Item, candidates.Len())
	for i := len(sorted) - 1; i >= 0; i-- {
		sorted[i], _ = candidates.PopItem()
	}

	if !h.opts.Heuristic || len(sorted) <= m {
		if len(sorted) > m {
			sorted = sorted[:m]
		}
		selected := make([]uint32, len(sorted))
		for i, it := range sorted {
			selected[i] = uint32(it.Node)
		}
		return selected
	}

	// Diversity-preserving heuristic: take the closest remaining candidate
	// unless it is closer to an already-selected neighbor than to the
	// query. Rejected candidates backfill if the quota is not met.
	selected := make([]uint32, 0, m)
	rejected := make([]uint32, 0, len(sorted))

	for _, cand := range sorted {
		if len(selected) >= m {
			break
		}
		candSlot := uint32(cand.Node)
		good := true
		for _, selSlot := range selected {
			if h.distanceFunc(h.nodes[candSlot].vector, h.nodes[selSlot].vector) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, candSlot)
		} else {
			rejected = append(rejected, candSlot)
		}
	}

	for _, slot := range rejected {
		if len(selected) >= m {
			break
		}
		selected = append(selected, slot)
	}

	return selected
}

// link adds an edge from slot to newSlot at the given level, pruning back
// to capacity with the selection heuristic when the neighbor overflows.
func (h *HNSW) link(slot, newSlot uint32, level int) {
	n := h.nodes[slot]
	if level >= len(n.conns) {
		return
	}
	for _, c := range n.conns[level] {
		if c == newSlot {
			return
		}
	}

	maxM := h.maxConns(level)

	if len(n.conns[level]) < maxM {
		conns := make([]uint32, 0, len(n.conns[level])+1)
		conns = append(conns, n.conns[level]...)
		conns = append(conns, newSlot)
		n.conns[level] = conns
		return
	}

	// Over capacity: re-select over the existing neighbors plus the new
	// edge and swap the pruned list in.
	candidates := h.maxQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.maxQueuePool.Put(candidates)
	}()

	for _, c := range n.conns[level] {
		candidates.PushItem(queue.Item{Node: uint64(c), Distance: h.dist(n.vector, c)})
	}
	candidates.PushItem(queue.Item{Node: uint64(newSlot), Distance: h.dist(n.vector, newSlot)})

	n.conns[level] = h.selectNeighbors(n.vector, candidates, maxM)
}

// Search returns up to k results ordered by ascending distance, ties broken
// by smaller ID. Searching an empty graph returns an empty result.
func (h *HNSW) Search(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, index.ErrInvalidK
	}
	if len(q) != h.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(q)}
	}
	if !h.hasEP {
		return nil, nil
	}

	ef := h.opts.EFSearch
	var filter func(uint64) bool
	if opts != nil {
		if opts.EF > 0 {
			ef = opts.EF
		}
		filter = opts.Filter
	}
	if ef < k {
		ef = k
	}

	currSlot := h.ep
	currDist := h.dist(q, currSlot)
	for level := h.maxLevel; level > 0; level-- {
		currSlot, currDist = h.greedyStep(q, currSlot, currDist, level)
	}

	results := h.searchLayer(q, currSlot, currDist, 0, ef, filter)
	defer func() {
		results.Reset()
		h.maxQueuePool.Put(results)
	}()

	out := make([]index.SearchResult, 0, results.Len())
	for results.Len() > 0 {
		item, _ := results.PopItem()
		out = append(out, index.SearchResult{ID: h.nodes[uint32(item.Node)].id, Distance: item.Distance})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}

	return out, nil
}

// Delete removes the ID from the graph.
//
// Every edge into the node is unlinked, including asymmetric in-edges that
// its own neighbor lists no longer record: a surviving stale edge would
// attach its owner to whatever node later reuses the slot. The former
// neighbors are then reconnected to each other where capacity allows,
// keeping the graph navigable without a rebuild, and the slot returns to
// the free list. Cost is one O(N) in-edge sweep plus O(M^2) reconnection.
func (h *HNSW) Delete(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slot, ok := h.slots[id]
	if !ok {
		return &index.ErrNodeNotFound{ID: id}
	}
	n := h.nodes[slot]

	for s, other := range h.nodes {
		if other == nil || uint32(s) == slot {
			continue
		}
		for level := range other.conns {
			h.unlink(uint32(s), slot, level)
		}
	}

	for level := 0; level <= n.layer; level++ {
		neighbors := n.conns[level]

		// Reconnect former neighbors pairwise while respecting capacity.
		maxM := h.maxConns(level)
		for i, a := range neighbors {
			if h.nodes[a] == nil {
				continue
			}
			for _, b := range neighbors[i+1:] {
				if h.nodes[b] == nil || a == b {
					continue
				}
				if len(h.connsAt(a, level)) >= maxM || len(h.connsAt(b, level)) >= maxM {
					continue
				}
				if h.connected(a, b, level) {
					continue
				}
				h.appendConn(a, b, level)
				h.appendConn(b, a, level)
			}
		}
	}

	h.nodes[slot] = nil
	delete(h.slots, id)
	h.free = append(h.free, slot)

	if slot == h.ep {
		h.repairEntryPoint(n)
	}

	return nil
}

func (h *HNSW) connsAt(slot uint32, level int) []uint32 {
	n := h.nodes[slot]
	if n == nil || level >= len(n.conns) {
		return nil
	}
	return n.conns[level]
}

func (h *HNSW) connected(a, b uint32, level int) bool {
	for _, c := range h.connsAt(a, level) {
		if c == b {
			return true
		}
	}
	return false
}

func (h *HNSW) appendConn(slot, target uint32, level int) {
	n := h.nodes[slot]
	if n == nil || level >= len(n.conns) {
		return
	}
	conns := make([]uint32, 0, len(n.conns[level])+1)
	conns = append(conns, n.conns[level]...)
	conns = append(conns, target)
	n.conns[level] = conns
}

func (h *HNSW) unlink(slot, target uint32, level int) {
	n := h.nodes[slot]
	if n == nil || level >= len(n.conns) {
		return
	}
	old := n.conns[level]
	for i, c := range old {
		if c == target {
			conns := make([]uint32, 0, len(old)-1)
			conns = append(conns, old[:i]...)
			conns = append(conns, old[i+1:]...)
			n.conns[level] = conns
			return
		}
	}
}

// repairEntryPoint promotes a new entry point after the old one was deleted:
// preferably the former neighbor with the highest layer, otherwise any live
// node, otherwise the graph is empty.
func (h *HNSW) repairEntryPoint(deleted *node) {
	bestLayer := -1
	var bestSlot uint32

	for level := deleted.layer; level >= 0 && bestLayer < 0; level-- {
		for _, nb := range deleted.conns[level] {
			if n := h.nodes[nb]; n != nil && n.layer > bestLayer {
				bestLayer = n.layer
				bestSlot = nb
			}
		}
	}

	if bestLayer < 0 {
		for slot, n := range h.nodes {
			if n != nil && n.layer > bestLayer {
				bestLayer = n.layer
				bestSlot = uint32(slot)
			}
		}
	}

	if bestLayer < 0 {
		h.hasEP = false
		h.maxLevel = 0
		return
	}

	h.ep = bestSlot
	h.maxLevel = bestLayer
}
