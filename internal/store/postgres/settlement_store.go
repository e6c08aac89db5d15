package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashverse/flashcore/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. One
// settlement per market, enforced by the primary key: settling twice is a
// storage-level conflict, not just an engine invariant.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// Create inserts a settlement record.
func (s *SettlementStore) Create(ctx context.Context, st domain.Settlement) error {
	payouts, err := json.Marshal(st.Payouts)
	if err != nil {
		return fmt.Errorf("postgres: marshal payouts for %s: %w", st.MarketID, err)
	}

	const query = `
		INSERT INTO settlements (market_id, outcome, resolution_path, proof_hash, payouts, resolved_at, emitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		st.MarketID, st.Outcome, string(st.Path), st.ProofHash, payouts, st.ResolvedAt, st.EmittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement %s: %w", st.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settlement %s: %w", st.MarketID, domain.ErrAlreadyExists)
	}
	return nil
}

// GetByMarket returns the settlement for one market, or domain.ErrNotFound.
func (s *SettlementStore) GetByMarket(ctx context.Context, marketID string) (domain.Settlement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT market_id, outcome, resolution_path, proof_hash, payouts, resolved_at, emitted_at
		 FROM settlements WHERE market_id = $1`, marketID)
	st, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Settlement{}, fmt.Errorf("postgres: settlement %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.Settlement{}, fmt.Errorf("postgres: get settlement %s: %w", marketID, err)
	}
	return st, nil
}

// ListSince returns settlements finalized at or after the given time.
func (s *SettlementStore) ListSince(ctx context.Context, since time.Time, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT market_id, outcome, resolution_path, proof_hash, payouts, resolved_at, emitted_at
		FROM settlements WHERE resolved_at >= $1 ORDER BY resolved_at ASC`
	args := []any{since}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: settlement rows: %w", err)
	}
	return out, nil
}

// ListUnemitted returns settlements that never reached the ledger stream,
// oldest first.
func (s *SettlementStore) ListUnemitted(ctx context.Context, opts domain.ListOpts) ([]domain.Settlement, error) {
	query := `SELECT market_id, outcome, resolution_path, proof_hash, payouts, resolved_at, emitted_at
		FROM settlements WHERE emitted_at IS NULL ORDER BY resolved_at ASC`
	var args []any
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unemitted settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: settlement rows: %w", err)
	}
	return out, nil
}

// MarkEmitted records that a settlement reached the ledger stream.
func (s *SettlementStore) MarkEmitted(ctx context.Context, marketID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE settlements SET emitted_at = $2 WHERE market_id = $1`, marketID, at)
	if err != nil {
		return fmt.Errorf("postgres: mark settlement %s emitted: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settlement %s: %w", marketID, domain.ErrNotFound)
	}
	return nil
}

func scanSettlement(row pgx.Row) (domain.Settlement, error) {
	var st domain.Settlement
	var path string
	var payouts []byte
	if err := row.Scan(&st.MarketID, &st.Outcome, &path, &st.ProofHash, &payouts, &st.ResolvedAt, &st.EmittedAt); err != nil {
		return domain.Settlement{}, err
	}
	if err := json.Unmarshal(payouts, &st.Payouts); err != nil {
		return domain.Settlement{}, fmt.Errorf("unmarshal payouts: %w", err)
	}
	st.Path = domain.ResolutionPath(path)
	return st, nil
}
