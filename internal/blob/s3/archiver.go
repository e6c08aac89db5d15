package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flashverse/flashcore/internal/domain"
)

// MarketArchive is the JSON shape of one archived market, written to blob
// storage when the market is reclaimed from hot storage.
type MarketArchive struct {
	Market     archivedMarket    `json:"market"`
	Settlement domain.Settlement `json:"settlement"`
	ArchivedAt time.Time         `json:"archived_at"`
}

type archivedMarket struct {
	ID             string           `json:"id"`
	ParentID       string           `json:"parent_id,omitempty"`
	Title          string           `json:"title"`
	Category       string           `json:"category,omitempty"`
	Outcomes       []domain.Outcome `json:"outcomes"`
	TotalVolume    float64          `json:"total_volume"`
	WinningOutcome int              `json:"winning_outcome"`
	ResolutionPath string           `json:"resolution_path"`
	CreatedAt      time.Time        `json:"created_at"`
	ResolvedAt     *time.Time       `json:"resolved_at,omitempty"`
}

// Archiver implements domain.Archiver by serializing the resolved market and
// its settlement to JSON and uploading the result to blob storage. Deleting
// the market from hot storage is the engine's job, performed only after the
// archive upload has succeeded.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// ArchiveMarket uploads one resolved market under
// archive/markets/YYYY-MM/<id>.json, partitioned by resolution month.
func (a *Archiver) ArchiveMarket(ctx context.Context, m domain.Market, s domain.Settlement) error {
	rec := MarketArchive{
		Market: archivedMarket{
			ID:             m.ID,
			ParentID:       m.ParentID,
			Title:          m.Title,
			Category:       m.Category,
			Outcomes:       m.Outcomes,
			TotalVolume:    m.TotalVolume,
			WinningOutcome: m.WinningOutcome,
			ResolutionPath: string(m.ResolutionPath),
			CreatedAt:      m.CreatedAt,
			ResolvedAt:     m.ResolvedAt,
		},
		Settlement: s,
		ArchivedAt: time.Now().UTC(),
	}

	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("s3blob: marshal market archive %s: %w", m.ID, err)
	}

	path := archivePath(m, s)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive market %s: %w", m.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.market", map[string]any{
			"market_id": m.ID,
			"path":      path,
			"payouts":   len(s.Payouts),
		}); err != nil {
			return fmt.Errorf("s3blob: archive market %s audit log: %w", m.ID, err)
		}
	}
	return nil
}

// archivePath partitions archives by the year-month the market resolved.
func archivePath(m domain.Market, s domain.Settlement) string {
	at := s.ResolvedAt
	if at.IsZero() && m.ResolvedAt != nil {
		at = *m.ResolvedAt
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return fmt.Sprintf("archive/markets/%s/%s.json", at.Format("2006-01"), m.ID)
}

var _ domain.Archiver = (*Archiver)(nil)
