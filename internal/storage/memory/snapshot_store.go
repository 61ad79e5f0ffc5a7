package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	byPair map[string]*domain.ListingSnapshot

	now func() time.Time
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byPair: make(map[string]*domain.ListingSnapshot),
		now:    time.Now,
	}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Upsert inserts or refreshes the snapshot for a pair address.
// Identity fields from the first insert win; mutable fields are last-write-wins.
func (s *SnapshotStore) Upsert(_ context.Context, snap *domain.ListingSnapshot) error {
	if snap == nil || snap.PairAddress == "" {
		return storage.ErrInvalidInput
	}
	if !snap.Status.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byPair[snap.PairAddress]
	if !ok {
		cp := *snap
		cp.UpdatedAt = s.now()
		s.byPair[snap.PairAddress] = &cp
		snap.UpdatedAt = cp.UpdatedAt
		return nil
	}

	existing.Price = snap.Price
	existing.Liquidity = snap.Liquidity
	existing.Volume24h = snap.Volume24h
	existing.Status = snap.Status
	existing.UpdatedAt = s.now()
	snap.UpdatedAt = existing.UpdatedAt
	return nil
}

// Get retrieves the snapshot by pair address.
func (s *SnapshotStore) Get(_ context.Context, pairAddress string) (*domain.ListingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.byPair[pairAddress]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

// List returns all snapshots, most recently updated first.
func (s *SnapshotStore) List(_ context.Context) ([]*domain.ListingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ListingSnapshot, 0, len(s.byPair))
	for _, snap := range s.byPair {
		cp := *snap
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}
