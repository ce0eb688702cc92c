package vecdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecdb/snapshot"
)

// SaveCollection snapshots the named collection into the store and returns
// the stored snapshot ID.
func (db *DB) SaveCollection(ctx context.Context, store snapshot.Store, name string, optFns ...func(o *SnapshotOptions)) (string, error) {
	coll, err := db.Collection(name)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := coll.Snapshot(ctx, &buf, optFns...); err != nil {
		return "", err
	}

	id, err := store.Save(ctx, name, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}
	return id, nil
}

// RestoreCollection loads the most recent snapshot of the named collection
// from the store and registers it with the DB, replacing any same-named
// collection.
func (db *DB) RestoreCollection(ctx context.Context, store snapshot.Store, name string) (*Collection, error) {
	data, err := store.Load(ctx, name)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	coll, err := LoadCollection(bytes.NewReader(data), func(o *Options) {
		o.Logger = db.logger
	})
	if err != nil {
		return nil, err
	}

	db.attach(coll)
	db.logger.InfoContext(ctx, "collection restored", "collection", coll.Name())
	return coll, nil
}
