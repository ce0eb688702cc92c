package vecdb

import (
	"context"
	"sort"
	"sync"
)

// Options configures a DB.
type Options struct {
	// Logger receives structured operation logs. Nil discards all output.
	Logger *Logger
}

// DefaultOptions are the options used by New when no option funcs are given.
var DefaultOptions = Options{
	Logger: nil,
}

// DB is the embedded vector database: a registry of named, independently
// locked collections. All access to vectors, metadata and documents goes
// through a Collection obtained from the DB.
type DB struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	logger      *Logger
}

// New creates an empty DB.
func New(optFns ...func(o *Options)) *DB {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	return &DB{
		collections: make(map[string]*Collection),
		logger:      opts.Logger,
	}
}

// CreateCollection creates and registers a new collection. The name must be
// unused and the config valid; configuration errors are reported as
// ErrConfiguration before any state changes.
func (db *DB) CreateCollection(ctx context.Context, cfg CollectionConfig) (*Collection, error) {
	coll, err := newCollection(cfg, db.logger)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.collections[cfg.Name]; exists {
		return nil, ErrCollectionExists
	}
	db.collections[cfg.Name] = coll

	db.logger.InfoContext(ctx, "collection created",
		"collection", cfg.Name, "dimension", cfg.Dimension,
		"metric", cfg.Metric.String(), "kind", string(coll.Kind()))
	return coll, nil
}

// Collection returns the collection registered under name.
func (db *DB) Collection(name string) (*Collection, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	coll, ok := db.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	return coll, nil
}

// DropCollection removes the collection and all its data.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.collections[name]; !ok {
		return ErrNotFound
	}
	delete(db.collections, name)

	db.logger.InfoContext(ctx, "collection dropped", "collection", name)
	return nil
}

// ListCollections returns the registered collection names in sorted order.
func (db *DB) ListCollections() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// attach registers a restored collection, replacing any same-named one.
func (db *DB) attach(coll *Collection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.collections[coll.Name()] = coll
}
