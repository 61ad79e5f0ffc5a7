package storage

import (
	"context"

	"github.com/tokenwatch/tokenwatch/internal/domain"
)

// SnapshotStore provides access to the latest known state of monitored pairs.
//
// Upsert is atomic per pair address: concurrent writes for the same key resolve
// last-write-wins on the mutable fields, and the identity fields set by the
// first insert are never overwritten.
type SnapshotStore interface {
	// Upsert inserts the snapshot, or refreshes price/liquidity/volume/status
	// and updated_at if the pair address already exists. The store assigns
	// UpdatedAt.
	Upsert(ctx context.Context, snap *domain.ListingSnapshot) error

	// Get retrieves the snapshot by pair address. Returns ErrNotFound if absent.
	Get(ctx context.Context, pairAddress string) (*domain.ListingSnapshot, error)

	// List returns all stored snapshots, most recently updated first.
	List(ctx context.Context) ([]*domain.ListingSnapshot, error)
}

// DenyListStore provides access to banned token and developer addresses.
//
// Address is the identity. Upsert on conflict replaces the reason only;
// category and listed_at keep their original values.
type DenyListStore interface {
	// Upsert inserts the entry or, if the address exists, updates its reason.
	// The store assigns ListedAt on first insert. Idempotent.
	Upsert(ctx context.Context, entry *domain.DenyListEntry) error

	// Seed inserts entries that are not yet present and leaves existing ones
	// untouched, reason included. Used for startup seed data.
	Seed(ctx context.Context, entries []*domain.DenyListEntry) error

	// Get retrieves the entry for an address. Returns ErrNotFound if absent.
	Get(ctx context.Context, address string) (*domain.DenyListEntry, error)

	// IsDenied reports whether any of the given values matches an entry of the
	// given category. Values may be addresses or, for the token category,
	// legacy display names.
	IsDenied(ctx context.Context, category domain.Category, values ...string) (bool, error)

	// List returns all entries of a category, newest first.
	List(ctx context.Context, category domain.Category) ([]*domain.DenyListEntry, error)
}
