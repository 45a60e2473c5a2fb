package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upvault/vaultd/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `vault_id, name, position,
	total_shares::text, sold_amount::text, profit::text, pool_size::text,
	max_cap::text, taken_at`

// Insert records one vault state snapshot. A zero TakenAt defaults to the
// database clock.
func (s *SnapshotStore) Insert(ctx context.Context, state domain.VaultState) error {
	var err error
	if state.TakenAt.IsZero() {
		const query = `
			INSERT INTO vault_snapshots (vault_id, name, position,
				total_shares, sold_amount, profit, pool_size, max_cap)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric)`
		_, err = s.pool.Exec(ctx, query,
			state.ID, state.Name, string(state.Position),
			state.TotalShares.String(), state.SoldAmount.String(),
			state.Profit.String(), state.PoolSize.String(), state.MaxCap.String())
	} else {
		const query = `
			INSERT INTO vault_snapshots (vault_id, name, position,
				total_shares, sold_amount, profit, pool_size, max_cap, taken_at)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)`
		_, err = s.pool.Exec(ctx, query,
			state.ID, state.Name, string(state.Position),
			state.TotalShares.String(), state.SoldAmount.String(),
			state.Profit.String(), state.PoolSize.String(), state.MaxCap.String(),
			state.TakenAt)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot for %s: %w", state.ID, err)
	}
	return nil
}

// Latest returns the most recent snapshot for a vault.
func (s *SnapshotStore) Latest(ctx context.Context, vaultID string) (domain.VaultState, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+snapshotSelectCols+` FROM vault_snapshots
		 WHERE vault_id = $1 ORDER BY taken_at DESC LIMIT 1`, vaultID)
	st, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, fmt.Errorf("postgres: snapshot for %s: %w", vaultID, domain.ErrNotFound)
	}
	if err != nil {
		return st, fmt.Errorf("postgres: latest snapshot for %s: %w", vaultID, err)
	}
	return st, nil
}

// ListByVault returns a vault's snapshots, newest first.
func (s *SnapshotStore) ListByVault(ctx context.Context, vaultID string, opts domain.ListOpts) ([]domain.VaultState, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM vault_snapshots WHERE vault_id = $1`
	args := []any{vaultID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND taken_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND taken_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY taken_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query snapshots: %w", err)
	}
	defer rows.Close()

	var states []domain.VaultState
	for rows.Next() {
		st, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanSnapshot(row pgx.Row) (domain.VaultState, error) {
	var (
		st                             domain.VaultState
		totalShares, soldAmount        string
		profit, poolSize, maxCap       string
	)
	if err := row.Scan(&st.ID, &st.Name, &st.Position,
		&totalShares, &soldAmount, &profit, &poolSize, &maxCap,
		&st.TakenAt); err != nil {
		return st, err
	}

	var err error
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&st.TotalShares, totalShares}, {&st.SoldAmount, soldAmount},
		{&st.Profit, profit}, {&st.PoolSize, poolSize}, {&st.MaxCap, maxCap},
	} {
		if *f.dst, err = parseBig(f.src); err != nil {
			return st, err
		}
	}
	return st, nil
}
