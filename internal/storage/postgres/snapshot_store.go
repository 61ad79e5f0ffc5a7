package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tokenwatch/tokenwatch/internal/domain"
	"github.com/tokenwatch/tokenwatch/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Upsert inserts the snapshot, or refreshes the mutable fields on conflict.
// The ON CONFLICT clause deliberately leaves the identity columns alone, so
// concurrent upserts for the same pair stay last-write-wins on price, liquidity,
// volume and status only.
func (s *SnapshotStore) Upsert(ctx context.Context, snap *domain.ListingSnapshot) error {
	if snap == nil || snap.PairAddress == "" {
		return storage.ErrInvalidInput
	}
	if !snap.Status.Valid() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (
			pair_address, base_token_name, base_token_address, quote_token_address,
			chain, exchange, created_at, price, liquidity, volume_24h, status, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (pair_address) DO UPDATE SET
			price      = EXCLUDED.price,
			liquidity  = EXCLUDED.liquidity,
			volume_24h = EXCLUDED.volume_24h,
			status     = EXCLUDED.status,
			updated_at = NOW()
		RETURNING updated_at
	`

	err := s.pool.QueryRow(ctx, query,
		snap.PairAddress,
		snap.BaseTokenName,
		snap.BaseTokenAddress,
		snap.QuoteTokenAddress,
		snap.Chain,
		snap.Exchange,
		snap.CreatedAt,
		snap.Price,
		snap.Liquidity,
		snap.Volume24h,
		statusParam(snap.Status),
	).Scan(&snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Get retrieves the snapshot by pair address. Returns ErrNotFound if absent.
func (s *SnapshotStore) Get(ctx context.Context, pairAddress string) (*domain.ListingSnapshot, error) {
	query := selectSnapshot + ` WHERE pair_address = $1`

	row := s.pool.QueryRow(ctx, query, pairAddress)
	snap, err := scanSnapshot(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// List returns all snapshots, most recently updated first.
func (s *SnapshotStore) List(ctx context.Context) ([]*domain.ListingSnapshot, error) {
	query := selectSnapshot + ` ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*domain.ListingSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return out, nil
}

const selectSnapshot = `
	SELECT pair_address, base_token_name, base_token_address, quote_token_address,
	       chain, exchange, created_at, price, liquidity, volume_24h, status, updated_at
	FROM tokens`

// scanSnapshot scans a single row into a ListingSnapshot.
func scanSnapshot(row pgx.Row) (*domain.ListingSnapshot, error) {
	var (
		snap   domain.ListingSnapshot
		status *string
	)

	err := row.Scan(
		&snap.PairAddress,
		&snap.BaseTokenName,
		&snap.BaseTokenAddress,
		&snap.QuoteTokenAddress,
		&snap.Chain,
		&snap.Exchange,
		&snap.CreatedAt,
		&snap.Price,
		&snap.Liquidity,
		&snap.Volume24h,
		&status,
		&snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if status != nil {
		snap.Status = domain.Status(*status)
	}
	return &snap, nil
}

// statusParam maps StatusNone to SQL NULL so the check constraint only ever
// sees the three real statuses.
func statusParam(s domain.Status) *string {
	if s == domain.StatusNone {
		return nil
	}
	v := string(s)
	return &v
}
