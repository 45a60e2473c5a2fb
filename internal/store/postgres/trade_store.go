package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/upvault/vaultd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Amounts round-trip through text: NUMERIC(78,0) holds any uint256, and
// big.Int has no native pgx codec.
const tradeSelectCols = `id, vault_id, direction, caller,
	amount_in::text, amount_out::text, trade_fee::text, perf_fee::text,
	profit::text, executed_at`

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric %q", s)
	}
	return v, nil
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t                                    domain.Trade
		caller                               string
		amountIn, amountOut                  string
		tradeFee, perfFee, profit            string
	)
	if err := row.Scan(
		&t.ID, &t.VaultID, &t.Direction, &caller,
		&amountIn, &amountOut, &tradeFee, &perfFee, &profit,
		&t.ExecutedAt,
	); err != nil {
		return t, err
	}

	t.Caller = common.HexToAddress(caller)
	var err error
	for _, f := range []struct {
		dst **big.Int
		src string
	}{
		{&t.AmountIn, amountIn}, {&t.AmountOut, amountOut},
		{&t.TradeFee, tradeFee}, {&t.PerfFee, perfFee}, {&t.Profit, profit},
	} {
		if *f.dst, err = parseBig(f.src); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Insert persists one settled trade.
func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, vault_id, direction, caller,
			amount_in, amount_out, trade_fee, perf_fee, profit, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10
		)`
	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.VaultID, string(trade.Direction), trade.Caller.Hex(),
		trade.AmountIn.String(), trade.AmountOut.String(),
		trade.TradeFee.String(), trade.PerfFee.String(), trade.Profit.String(),
		trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// GetByID fetches one trade by its identifier.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, fmt.Errorf("postgres: trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return t, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListByVault returns a vault's trades, newest first.
func (s *TradeStore) ListByVault(ctx context.Context, vaultID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE vault_id = $1`
	args := []any{vaultID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY executed_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryTrades(ctx, query, args...)
}

// ListBefore returns up to limit trades executed before the cutoff, oldest
// first, for archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	return s.queryTrades(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE executed_at < $1 ORDER BY executed_at ASC LIMIT $2`,
		before, limit)
}

// DeleteBefore removes trades executed before the cutoff, returning the
// number of rows deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
