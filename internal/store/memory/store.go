package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lesprima/attempt-service/internal/store"
)

// Store is an in-memory implementation of store.Store. Snapshots die
// with the process, so it only satisfies the durability contract within
// one run — meant for development and tests.
type Store struct {
	mu        sync.RWMutex
	snapshots map[int]*store.Snapshot
}

func NewStore() *Store {
	return &Store{snapshots: make(map[int]*store.Snapshot)}
}

func (s *Store) Save(_ context.Context, studentID int, snap *store.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[studentID] = snap.Clone()
	return nil
}

func (s *Store) Load(_ context.Context, studentID int) (*store.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[studentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return snap.Clone(), nil
}

func (s *Store) Clear(_ context.Context, studentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, studentID)
	return nil
}

func (s *Store) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, snap := range s.snapshots {
		if snap.SavedAt.Before(cutoff) {
			delete(s.snapshots, id)
			removed++
		}
	}
	return removed, nil
}
