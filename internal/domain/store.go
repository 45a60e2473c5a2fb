package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists settled trades.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	ListByVault(ctx context.Context, vaultID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// VaultEventStore persists the emitted event journal.
type VaultEventStore interface {
	Insert(ctx context.Context, evt VaultEvent) error
	ListByVault(ctx context.Context, vaultID string, opts ListOpts) ([]VaultEvent, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]VaultEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotStore persists periodic vault state snapshots for reporting.
type SnapshotStore interface {
	Insert(ctx context.Context, state VaultState) error
	Latest(ctx context.Context, vaultID string) (VaultState, error)
	ListByVault(ctx context.Context, vaultID string, opts ListOpts) ([]VaultState, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves aged rows from the database to cold storage.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
