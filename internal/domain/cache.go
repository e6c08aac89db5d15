package domain

import (
	"context"
	"time"
)

// MarketCache caches market snapshots for fast quoting reads.
type MarketCache interface {
	SetMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, id string) (Market, error)
	DeleteMarket(ctx context.Context, id string) error
}

// LockManager provides per-market distributed locks so that trades, chain
// evaluations, and resolution attempts against one market are linearized
// across process instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus is durable, ordered message delivery for settlement events.
type SignalBus interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
