package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashverse/flashcore/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. The outcome
// set is stored as a JSONB document since it is always read and written as a
// whole under the market lock.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `
	id, parent_id, title, category, tau, time_left, outcomes,
	total_volume, leverage_ceiling, status, winning_outcome,
	proof_hash, resolution_path, created_at, resolved_at`

// Upsert inserts or replaces a market row.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return fmt.Errorf("postgres: marshal outcomes for %s: %w", m.ID, err)
	}

	const query = `
		INSERT INTO markets (
			id, parent_id, title, category, tau, time_left, outcomes,
			total_volume, leverage_ceiling, status, winning_outcome,
			proof_hash, resolution_path, created_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			tau              = EXCLUDED.tau,
			time_left        = EXCLUDED.time_left,
			outcomes         = EXCLUDED.outcomes,
			total_volume     = EXCLUDED.total_volume,
			leverage_ceiling = EXCLUDED.leverage_ceiling,
			status           = EXCLUDED.status,
			winning_outcome  = EXCLUDED.winning_outcome,
			proof_hash       = EXCLUDED.proof_hash,
			resolution_path  = EXCLUDED.resolution_path,
			resolved_at      = EXCLUDED.resolved_at,
			updated_at       = NOW()`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.ParentID, m.Title, m.Category, m.Tau, m.TimeLeft, outcomes,
		m.TotalVolume, m.LeverageCeiling, string(m.Status), m.WinningOutcome,
		m.ProofHash, string(m.ResolutionPath), m.CreatedAt, m.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns a single market, or domain.ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListByStatus returns markets in one lifecycle state, oldest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(status)}
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
		return nil, fmt.Errorf("postgres: list markets by status %s: %w", status, err)
	}
	defer rows.Close()
	return scanMarkets(rows)
}

// ListByParent returns the child markets of one parent.
func (s *MarketStore) ListByParent(ctx context.Context, parentID string) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE parent_id = $1 ORDER BY created_at ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets by parent %s: %w", parentID, err)
	}
	defer rows.Close()
	return scanMarkets(rows)
}

// Delete removes a market row. Deleting an absent row is not an error.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of market rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var outcomes []byte
	var status, path string
	err := row.Scan(
		&m.ID, &m.ParentID, &m.Title, &m.Category, &m.Tau, &m.TimeLeft, &outcomes,
		&m.TotalVolume, &m.LeverageCeiling, &status, &m.WinningOutcome,
		&m.ProofHash, &path, &m.CreatedAt, &m.ResolvedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	m.Status = domain.MarketStatus(status)
	m.ResolutionPath = domain.ResolutionPath(path)
	return m, nil
}

func scanMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return out, nil
}
