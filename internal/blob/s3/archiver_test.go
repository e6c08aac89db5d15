package s3blob

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashverse/flashcore/internal/domain"
)

type memWriter struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = buf
	w.contentTypes[path] = contentType
	return nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func resolvedFixture() (domain.Market, domain.Settlement) {
	resolved := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m := domain.Market{
		ID:             "mkt-1",
		Title:          "btc above strike",
		Outcomes:       []domain.Outcome{{Name: "yes"}, {Name: "no"}},
		TotalVolume:    500,
		Status:         domain.MarketStatusResolved,
		WinningOutcome: 0,
		ResolutionPath: domain.ResolutionPathProof,
		CreatedAt:      resolved.Add(-time.Minute),
		ResolvedAt:     &resolved,
	}
	s := domain.Settlement{
		MarketID:   "mkt-1",
		Outcome:    0,
		Path:       domain.ResolutionPathProof,
		Payouts:    []domain.Payout{{PositionID: "pos-1", Owner: "alice", Amount: 1000}},
		ResolvedAt: resolved,
	}
	return m, s
}

func TestArchiveMarket(t *testing.T) {
	w := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(w, audit)

	m, s := resolvedFixture()
	require.NoError(t, a.ArchiveMarket(context.Background(), m, s))

	const path = "archive/markets/2026-08/mkt-1.json"
	require.Contains(t, w.objects, path)
	assert.Equal(t, "application/json", w.contentTypes[path])

	var rec MarketArchive
	require.NoError(t, json.Unmarshal(w.objects[path], &rec))
	assert.Equal(t, "mkt-1", rec.Market.ID)
	assert.Equal(t, 0, rec.Market.WinningOutcome)
	assert.Equal(t, "proof", rec.Market.ResolutionPath)
	require.Len(t, rec.Settlement.Payouts, 1)
	assert.Equal(t, "alice", rec.Settlement.Payouts[0].Owner)

	assert.Equal(t, []string{"archive.market"}, audit.events)
}

func TestArchiveMarketUploadFailure(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("bucket gone")
	a := NewArchiver(w, nil)

	m, s := resolvedFixture()
	err := a.ArchiveMarket(context.Background(), m, s)
	assert.ErrorContains(t, err, "mkt-1")
}

func TestArchivePathFallsBackToMarketTime(t *testing.T) {
	m, s := resolvedFixture()
	s.ResolvedAt = time.Time{}
	assert.Equal(t, "archive/markets/2026-08/mkt-1.json", archivePath(m, s))
}
