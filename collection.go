package vecdb

import (
	"context"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/index/flat"
	"github.com/hupe1980/vecdb/index/hnsw"
	"github.com/hupe1980/vecdb/metadata"
)

// documentField is the reserved text-index field holding the record's
// source document. The "$" prefix keeps it out of the metadata namespace.
const documentField = "$document"

// Record is a stored vector with its metadata and optional source document.
type Record struct {
	ID       uint64
	Vector   []float32
	Metadata metadata.Document
	Document string
}

// Item is the insert payload. When ID is nil the collection allocates the
// next monotonic ID; an explicit ID must not collide with a live or
// previously deleted ID (IDs are never reused).
type Item struct {
	ID       *uint64
	Vector   []float32
	Metadata metadata.Document
	Document string
}

// BatchResult reports per-item outcomes of a batch operation. Entry i
// corresponds to input item i; a failed item has a non-nil error and a
// zero ID.
type BatchResult struct {
	IDs    []uint64
	Errors []error
}

// Failed returns the number of failed items.
func (r BatchResult) Failed() int {
	var n int
	for _, err := range r.Errors {
		if err != nil {
			n++
		}
	}
	return n
}

// CollectionConfig configures a collection at creation time.
type CollectionConfig struct {
	// Name identifies the collection within a DB.
	Name string

	// Dimension is the fixed vector dimensionality; immutable afterwards.
	Dimension int

	// Metric selects the distance metric.
	Metric distance.Metric

	// Kind selects the index implementation (hnsw or flat).
	Kind index.Kind

	// HNSW tuning; zero values fall back to the hnsw package defaults.
	M              int
	M0             int
	EFConstruction int
	EFSearch       int

	// RandomSeed seeds HNSW layer assignment for reproducible builds.
	RandomSeed *int64
}

// Collection owns the authoritative vector+metadata+document store for one
// named collection, allocates stable IDs and keeps the similarity index
// consistent with the store.
//
// Concurrency follows a multiple-readers XOR one-writer discipline: every
// mutating operation takes the write lock for its full duration, read-only
// operations share the read lock. Collections never share locks, so
// operations on different collections do not contend.
type Collection struct {
	mu sync.RWMutex

	cfg        CollectionConfig
	idx        index.Index
	records    map[uint64]*Record
	tombstones *roaring64.Bitmap
	nextID     uint64

	// textIndex is built lazily on the first text query and maintained
	// incrementally afterwards. It is an accelerator; records stay
	// authoritative.
	textIndex *metadata.TextIndex

	logger *Logger
}

func newCollection(cfg CollectionConfig, logger *Logger) (*Collection, error) {
	if cfg.Name == "" {
		return nil, &ErrConfiguration{Option: "Name", Value: cfg.Name}
	}
	if logger == nil {
		logger = NoopLogger()
	}

	idx, err := newIndex(cfg)
	if err != nil {
		return nil, err
	}

	return &Collection{
		cfg:        cfg,
		idx:        idx,
		records:    make(map[uint64]*Record),
		tombstones: roaring64.New(),
		logger:     logger.WithCollection(cfg.Name),
	}, nil
}

func newIndex(cfg CollectionConfig) (index.Index, error) {
	switch cfg.Kind {
	case index.KindHNSW:
		idx, err := hnsw.New(func(o *hnsw.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = cfg.Metric
			if cfg.M > 0 {
				o.M = cfg.M
			}
			if cfg.M0 > 0 {
				o.M0 = cfg.M0
			}
			if cfg.EFConstruction > 0 {
				o.EFConstruction = cfg.EFConstruction
			}
			if cfg.EFSearch > 0 {
				o.EFSearch = cfg.EFSearch
			}
			o.RandomSeed = cfg.RandomSeed
		})
		if err != nil {
			return nil, translateError(err)
		}
		return idx, nil

	case index.KindFlat:
		idx, err := flat.New(func(o *flat.Options) {
			o.Dimension = cfg.Dimension
			o.Metric = cfg.Metric
		})
		if err != nil {
			return nil, translateError(err)
		}
		return idx, nil

	default:
		return nil, &ErrConfiguration{Option: "Kind", Value: cfg.Kind}
	}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.cfg.Name }

// Dimension returns the fixed vector dimensionality.
func (c *Collection) Dimension() int { return c.cfg.Dimension }

// Metric returns the configured distance metric.
func (c *Collection) Metric() distance.Metric { return c.cfg.Metric }

// Kind returns the configured index kind.
func (c *Collection) Kind() index.Kind { return c.cfg.Kind }

// Count returns the number of live records.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Insert stores a new record and indexes its vector, returning the
// allocated (or supplied) ID.
func (c *Collection) Insert(ctx context.Context, item Item) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.insertLocked(ctx, item)
	c.logger.LogInsert(ctx, id, len(item.Vector), err)
	return id, err
}

// InsertBatch inserts every item independently: a failure on one item
// neither rolls back earlier items nor blocks later ones.
func (c *Collection) InsertBatch(ctx context.Context, items []Item) BatchResult {
	result := BatchResult{
		IDs:    make([]uint64, len(items)),
		Errors: make([]error, len(items)),
	}

	c.mu.Lock()
	for i, item := range items {
		result.IDs[i], result.Errors[i] = c.insertLocked(ctx, item)
	}
	c.mu.Unlock()

	c.logger.LogBatchInsert(ctx, len(items), result.Failed())
	return result
}

func (c *Collection) insertLocked(ctx context.Context, item Item) (uint64, error) {
	if len(item.Vector) != c.cfg.Dimension {
		return 0, &ErrDimensionMismatch{Expected: c.cfg.Dimension, Actual: len(item.Vector)}
	}

	var id uint64
	if item.ID != nil {
		id = *item.ID
		if _, exists := c.records[id]; exists || c.tombstones.Contains(id) {
			// Tombstoned IDs are rejected too: an ID is never resurrected.
			return 0, &ErrDuplicateID{ID: id}
		}
		if id >= c.nextID {
			c.nextID = id + 1
		}
	} else {
		id = c.nextID
		c.nextID++
	}

	vec := make([]float32, len(item.Vector))
	copy(vec, item.Vector)

	rec := &Record{
		ID:       id,
		Vector:   vec,
		Metadata: metadata.CloneIfNeeded(item.Metadata),
		Document: item.Document,
	}
	c.records[id] = rec

	if err := c.idx.Insert(ctx, id, vec); err != nil {
		delete(c.records, id)
		return 0, translateError(err)
	}

	if c.textIndex != nil {
		c.textIndex.Add(id, rec.Metadata)
		c.textIndex.AddText(id, documentField, rec.Document)
	}

	return id, nil
}

// Update modifies a live record in place. Metadata and document replace
// wholesale when supplied; a new vector re-indexes the record (embeddings
// are immutable within an index node once inserted).
type Update struct {
	Vector   []float32
	Metadata metadata.Document
	Document *string
}

// Update applies upd to the record with the given ID.
func (c *Collection) Update(ctx context.Context, id uint64, upd Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.updateLocked(ctx, id, upd)
	c.logger.LogUpdate(ctx, id, err)
	return err
}

func (c *Collection) updateLocked(ctx context.Context, id uint64, upd Update) error {
	rec, ok := c.records[id]
	if !ok {
		return ErrNotFound
	}

	if upd.Vector != nil {
		if len(upd.Vector) != c.cfg.Dimension {
			return &ErrDimensionMismatch{Expected: c.cfg.Dimension, Actual: len(upd.Vector)}
		}
		vec := make([]float32, len(upd.Vector))
		copy(vec, upd.Vector)

		if err := c.idx.Delete(ctx, id); err != nil {
			return translateError(err)
		}
		if err := c.idx.Insert(ctx, id, vec); err != nil {
			return translateError(err)
		}
		rec.Vector = vec
	}

	if upd.Metadata != nil {
		if c.textIndex != nil {
			c.textIndex.Remove(id, rec.Metadata)
			c.textIndex.Add(id, upd.Metadata)
		}
		rec.Metadata = metadata.CloneIfNeeded(upd.Metadata)
	}

	if upd.Document != nil {
		if c.textIndex != nil {
			c.textIndex.RemoveText(id, documentField, rec.Document)
			c.textIndex.AddText(id, documentField, *upd.Document)
		}
		rec.Document = *upd.Document
	}

	return nil
}

// Delete removes the record. The ID is tombstoned and never reused; a
// deleted ID can no longer appear in any search result.
func (c *Collection) Delete(ctx context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.deleteLocked(ctx, id)
	c.logger.LogDelete(ctx, id, err)
	return err
}

// DeleteBatch deletes every ID independently and reports per-item outcomes.
func (c *Collection) DeleteBatch(ctx context.Context, ids []uint64) []error {
	errs := make([]error, len(ids))

	c.mu.Lock()
	for i, id := range ids {
		errs[i] = c.deleteLocked(ctx, id)
	}
	c.mu.Unlock()

	return errs
}

func (c *Collection) deleteLocked(ctx context.Context, id uint64) error {
	rec, ok := c.records[id]
	if !ok {
		return ErrNotFound
	}

	if err := c.idx.Delete(ctx, id); err != nil {
		return translateError(err)
	}

	if c.textIndex != nil {
		c.textIndex.Remove(id, rec.Metadata)
		c.textIndex.RemoveText(id, documentField, rec.Document)
	}

	delete(c.records, id)
	c.tombstones.Add(id)
	return nil
}

// GetOptions tunes a Get call.
type GetOptions struct {
	IncludeMetadata bool
	IncludeDocument bool
}

// Get returns a copy of the record with the given ID.
func (c *Collection) Get(id uint64, optFns ...func(o *GetOptions)) (*Record, error) {
	opts := GetOptions{IncludeMetadata: true, IncludeDocument: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := &Record{ID: rec.ID, Vector: make([]float32, len(rec.Vector))}
	copy(out.Vector, rec.Vector)
	if opts.IncludeMetadata {
		out.Metadata = rec.Metadata.Clone()
	}
	if opts.IncludeDocument {
		out.Document = rec.Document
	}
	return out, nil
}

// ListDocuments returns the source documents of all live records that
// carry one, keyed by record ID.
func (c *Collection) ListDocuments() map[uint64]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	docs := make(map[uint64]string)
	for id, rec := range c.records {
		if rec.Document != "" {
			docs[id] = rec.Document
		}
	}
	return docs
}

// DeleteDocument clears the source document of the record with the given
// ID. The record itself stays live.
func (c *Collection) DeleteDocument(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok || rec.Document == "" {
		return ErrNotFound
	}

	if c.textIndex != nil {
		c.textIndex.RemoveText(id, documentField, rec.Document)
	}
	rec.Document = ""
	return nil
}

// ClearDocuments clears the source documents of all live records.
func (c *Collection) ClearDocuments() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, rec := range c.records {
		if rec.Document == "" {
			continue
		}
		if c.textIndex != nil {
			c.textIndex.RemoveText(id, documentField, rec.Document)
		}
		rec.Document = ""
	}
}

// Aggregate runs an aggregation pipeline over the metadata of all live
// records, in ascending ID order.
func (c *Collection) Aggregate(p metadata.Pipeline) ([]metadata.Document, error) {
	c.mu.RLock()
	ids := make([]uint64, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	// Cloned so pipeline output never aliases live records.
	docs := make([]metadata.Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, c.records[id].Metadata.Clone())
	}
	c.mu.RUnlock()

	return p.Run(docs)
}
