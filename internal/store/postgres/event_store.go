package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upvault/vaultd/internal/domain"
)

// EventStore implements domain.VaultEventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

var _ domain.VaultEventStore = (*EventStore)(nil)

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert appends one event to the journal. A zero EmittedAt defaults to the
// database clock.
func (s *EventStore) Insert(ctx context.Context, evt domain.VaultEvent) error {
	detailJSON, err := json.Marshal(evt.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	if evt.EmittedAt.IsZero() {
		const query = `INSERT INTO vault_events (vault_id, event_type, detail) VALUES ($1, $2, $3)`
		_, err = s.pool.Exec(ctx, query, evt.VaultID, evt.Type, detailJSON)
	} else {
		const query = `INSERT INTO vault_events (vault_id, event_type, detail, emitted_at) VALUES ($1, $2, $3, $4)`
		_, err = s.pool.Exec(ctx, query, evt.VaultID, evt.Type, detailJSON, evt.EmittedAt)
	}
	if err != nil {
		return fmt.Errorf("postgres: insert event %s/%s: %w", evt.VaultID, evt.Type, err)
	}
	return nil
}

// ListByVault returns a vault's events, newest first.
func (s *EventStore) ListByVault(ctx context.Context, vaultID string, opts domain.ListOpts) ([]domain.VaultEvent, error) {
	query := `SELECT id, vault_id, event_type, detail, emitted_at FROM vault_events WHERE vault_id = $1`
	args := []any{vaultID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND emitted_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND emitted_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY emitted_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryEvents(ctx, query, args...)
}

// ListBefore returns up to limit events emitted before the cutoff, oldest
// first, for archival.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.VaultEvent, error) {
	return s.queryEvents(ctx,
		`SELECT id, vault_id, event_type, detail, emitted_at FROM vault_events
		 WHERE emitted_at < $1 ORDER BY emitted_at ASC LIMIT $2`,
		before, limit)
}

// DeleteBefore removes events emitted before the cutoff.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM vault_events WHERE emitted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.VaultEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	var events []domain.VaultEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (domain.VaultEvent, error) {
	var (
		e          domain.VaultEvent
		detailJSON []byte
	)
	if err := row.Scan(&e.ID, &e.VaultID, &e.Type, &detailJSON, &e.EmittedAt); err != nil {
		return e, err
	}
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return e, nil
}
