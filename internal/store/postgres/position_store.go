package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashverse/flashcore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionColumns = `
	id, owner_id, market_id, outcome_index, stake, base_leverage,
	effective_leverage, entry_odds, collateral, status, payout,
	opened_at, closed_at`

// Create inserts a new position; an existing id is a conflict.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, owner_id, market_id, outcome_index, stake, base_leverage,
			effective_leverage, entry_odds, collateral, status, payout,
			opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Owner, p.MarketID, p.OutcomeIndex, p.Stake, p.BaseLeverage,
		p.EffectiveLeverage, p.EntryOdds, p.Collateral, string(p.Status), p.Payout,
		p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// Update rewrites the mutable fields of an existing position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			effective_leverage = $2,
			collateral         = $3,
			status             = $4,
			payout             = $5,
			closed_at          = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.EffectiveLeverage, p.Collateral, string(p.Status), p.Payout, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a single position, or domain.ErrNotFound.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenByMarket returns every open position on one market.
func (s *PositionStore) ListOpenByMarket(ctx context.Context, marketID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 AND status = 'open' ORDER BY opened_at ASC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListOpenByOwner returns every open position held by one owner.
func (s *PositionStore) ListOpenByOwner(ctx context.Context, owner string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE owner_id = $1 AND status = 'open' ORDER BY opened_at ASC`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for owner %s: %w", owner, err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string
	err := row.Scan(
		&p.ID, &p.Owner, &p.MarketID, &p.OutcomeIndex, &p.Stake, &p.BaseLeverage,
		&p.EffectiveLeverage, &p.EntryOdds, &p.Collateral, &status, &p.Payout,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position rows: %w", err)
	}
	return out, nil
}
