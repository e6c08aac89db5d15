package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists flash market state.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListByParent(ctx context.Context, parentID string) ([]Market, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpenByMarket(ctx context.Context, marketID string) ([]Position, error)
	ListOpenByOwner(ctx context.Context, owner string) ([]Position, error)
}

// SettlementStore persists finalized settlement records.
type SettlementStore interface {
	Create(ctx context.Context, s Settlement) error
	GetByMarket(ctx context.Context, marketID string) (Settlement, error)
	ListSince(ctx context.Context, since time.Time, opts ListOpts) ([]Settlement, error)

	// ListUnemitted returns settlements that never reached the ledger
	// stream, oldest first.
	ListUnemitted(ctx context.Context, opts ListOpts) ([]Settlement, error)
	MarkEmitted(ctx context.Context, marketID string, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Every administrative risk
// mutation (pause/unpause) lands here.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
