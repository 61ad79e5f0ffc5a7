package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// DenyListStore is an in-memory implementation of storage.DenyListStore.
type DenyListStore struct {
	mu        sync.RWMutex
	byAddress map[string]*domain.DenyListEntry

	now func() time.Time
}

// NewDenyListStore creates a new in-memory deny-list store.
func NewDenyListStore() *DenyListStore {
	return &DenyListStore{
		byAddress: make(map[string]*domain.DenyListEntry),
		now:       time.Now,
	}
}

var _ storage.DenyListStore = (*DenyListStore)(nil)

// Upsert inserts the entry or updates the reason of an existing one.
// Category and ListedAt of an existing entry are never mutated.
func (s *DenyListStore) Upsert(_ context.Context, entry *domain.DenyListEntry) error {
	if entry == nil || entry.Address == "" || !entry.Category.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAddress[entry.Address]; ok {
		existing.Reason = entry.Reason
		return nil
	}

	cp := *entry
	cp.ListedAt = s.now()
	s.byAddress[entry.Address] = &cp
	entry.ListedAt = cp.ListedAt
	return nil
}

// Seed inserts absent entries and leaves existing ones untouched.
func (s *DenyListStore) Seed(_ context.Context, entries []*domain.DenyListEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if entry == nil || entry.Address == "" || !entry.Category.Valid() {
			return storage.ErrInvalidInput
		}
		if _, ok := s.byAddress[entry.Address]; ok {
			continue
		}
		cp := *entry
		cp.ListedAt = s.now()
		s.byAddress[entry.Address] = &cp
	}
	return nil
}

// Get retrieves the entry for an address.
func (s *DenyListStore) Get(_ context.Context, address string) (*domain.DenyListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// IsDenied reports whether any value matches an entry of the given category.
func (s *DenyListStore) IsDenied(_ context.Context, category domain.Category, values ...string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range values {
		if v == "" {
			continue
		}
		if entry, ok := s.byAddress[v]; ok && entry.Category == category {
			return true, nil
		}
	}
	return false, nil
}

// List returns all entries of a category, newest first.
func (s *DenyListStore) List(_ context.Context, category domain.Category) ([]*domain.DenyListEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DenyListEntry
	for _, entry := range s.byAddress {
		if entry.Category != category {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListedAt.After(out[j].ListedAt) })
	return out, nil
}
