package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/upvault/vaultd/internal/domain"
)

// archiveBatch bounds how many rows one archive pass pulls from the store.
const archiveBatch = 10_000

// ArchiveImpl implements domain.Archiver: it drains aged trades and events
// from the primary store into JSONL objects, one batch per upload, and
// deletes the archived rows only after the upload succeeded. Each pass is
// recorded in the audit log.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	events domain.VaultEventStore
	audit  domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, events domain.VaultEventStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		events: events,
		audit:  audit,
	}
}

// ArchiveTrades moves trades executed before the cutoff to
// archive/trades/YYYY-MM.jsonl and removes them from the store. It returns
// the number of rows archived.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	// Delete only up to the last archived row, never past what was
	// uploaded.
	cutoff := trades[len(trades)-1].ExecutedAt.Add(time.Nanosecond)
	if cutoff.After(before) {
		cutoff = before
	}
	deleted, err := a.trades.DeleteBefore(ctx, cutoff)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":    path,
		"count":   len(trades),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return int64(len(trades)), nil
}

// ArchiveEvents moves journal events emitted before the cutoff to
// archive/events/YYYY-MM.jsonl and removes them from the store.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	cutoff := events[len(events)-1].EmittedAt.Add(time.Nanosecond)
	if cutoff.After(before) {
		cutoff = before
	}
	deleted, err := a.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive events delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":    path,
		"count":   len(events),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive events audit log: %w", err)
	}

	return int64(len(events)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2025-01.jsonl
//	archive/events/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
