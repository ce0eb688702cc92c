// Package snapshot provides durable storage backends for collection
// snapshots.
package snapshot

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no snapshot exists for a collection or ID.
var ErrNotFound = errors.New("snapshot: not found")

// Info describes a stored snapshot.
type Info struct {
	ID         string
	Collection string
	Size       int64
	CreatedAt  time.Time
}

// Store persists encoded collection snapshots. Implementations keep every
// saved snapshot; Load returns the most recent one for a collection.
type Store interface {
	// Save stores an encoded snapshot and returns its generated ID.
	Save(ctx context.Context, collection string, data []byte) (string, error)

	// Load returns the most recently saved snapshot for the collection.
	Load(ctx context.Context, collection string) ([]byte, error)

	// List returns metadata for all stored snapshots, newest first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the snapshot with the given ID.
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	info Info
	data []byte
}

// MemoryStore is an in-memory Store, mainly for tests and ephemeral use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []memoryEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, collection string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()

	buf := make([]byte, len(data))
	copy(buf, data)

	s.entries = append(s.entries, memoryEntry{
		info: Info{
			ID:         id,
			Collection: collection,
			Size:       int64(len(data)),
			CreatedAt:  time.Now(),
		},
		data: buf,
	})
	return id, nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, collection string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].info.Collection == collection {
			data := make([]byte, len(s.entries[i].data))
			copy(data, s.entries[i].data)
			return data, nil
		}
	}
	return nil, ErrNotFound
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		infos = append(infos, e.info)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.info.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
