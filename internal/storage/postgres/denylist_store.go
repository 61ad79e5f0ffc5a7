package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// DenyListStore implements storage.DenyListStore using PostgreSQL.
//
// The address column is the primary key across both categories. Re-listing an
// address under a different category is not supported by Upsert; the conflict
// clause keeps the original category and listed_at and replaces the reason only.
type DenyListStore struct {
	pool *Pool
}

// NewDenyListStore creates a new DenyListStore.
func NewDenyListStore(pool *Pool) *DenyListStore {
	return &DenyListStore{pool: pool}
}

var _ storage.DenyListStore = (*DenyListStore)(nil)

// Upsert inserts the entry or replaces the reason of an existing one.
func (s *DenyListStore) Upsert(ctx context.Context, entry *domain.DenyListEntry) error {
	if entry == nil || entry.Address == "" || !entry.Category.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO blacklist (address, category, reason, listed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (address) DO UPDATE SET reason = EXCLUDED.reason
		RETURNING listed_at
	`

	err := s.pool.QueryRow(ctx, query,
		entry.Address,
		string(entry.Category),
		entry.Reason,
	).Scan(&entry.ListedAt)
	if err != nil {
		return fmt.Errorf("upsert denylist entry: %w", err)
	}
	return nil
}

// Seed inserts entries that are not yet present; existing rows are untouched.
func (s *DenyListStore) Seed(ctx context.Context, entries []*domain.DenyListEntry) error {
	query := `
		INSERT INTO blacklist (address, category, reason, listed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (address) DO NOTHING
	`

	for _, entry := range entries {
		if entry == nil || entry.Address == "" || !entry.Category.Valid() {
			return storage.ErrInvalidInput
		}
		if _, err := s.pool.Exec(ctx, query, entry.Address, string(entry.Category), entry.Reason); err != nil {
			return fmt.Errorf("seed denylist entry %s: %w", entry.Address, err)
		}
	}
	return nil
}

// Get retrieves the entry for an address. Returns ErrNotFound if absent.
func (s *DenyListStore) Get(ctx context.Context, address string) (*domain.DenyListEntry, error) {
	query := `
		SELECT address, category, reason, listed_at
		FROM blacklist
		WHERE address = $1
	`

	row := s.pool.QueryRow(ctx, query, address)
	entry, err := scanDenyListEntry(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get denylist entry: %w", err)
	}
	return entry, nil
}

// IsDenied reports whether any of the values matches an entry of the category.
// The category index keeps this a cheap membership probe.
func (s *DenyListStore) IsDenied(ctx context.Context, category domain.Category, values ...string) (bool, error) {
	nonEmpty := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		return false, nil
	}

	query := `
		SELECT EXISTS(
			SELECT 1 FROM blacklist
			WHERE category = $1 AND address = ANY($2)
		)
	`

	var denied bool
	if err := s.pool.QueryRow(ctx, query, string(category), nonEmpty).Scan(&denied); err != nil {
		return false, fmt.Errorf("denylist membership check: %w", err)
	}
	return denied, nil
}

// List returns all entries of a category, newest first.
func (s *DenyListStore) List(ctx context.Context, category domain.Category) ([]*domain.DenyListEntry, error) {
	query := `
		SELECT address, category, reason, listed_at
		FROM blacklist
		WHERE category = $1
		ORDER BY listed_at DESC
	`

	rows, err := s.pool.Query(ctx, query, string(category))
	if err != nil {
		return nil, fmt.Errorf("list denylist: %w", err)
	}
	defer rows.Close()

	var out []*domain.DenyListEntry
	for rows.Next() {
		entry, err := scanDenyListEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan denylist entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list denylist: %w", err)
	}
	return out, nil
}

// scanDenyListEntry scans a single row into a DenyListEntry.
func scanDenyListEntry(row pgx.Row) (*domain.DenyListEntry, error) {
	var (
		entry    domain.DenyListEntry
		category string
	)

	err := row.Scan(&entry.Address, &category, &entry.Reason, &entry.ListedAt)
	if err != nil {
		return nil, err
	}

	entry.Category = domain.Category(category)
	return &entry, nil
}
