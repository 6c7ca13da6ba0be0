package storage

import (
	"context"
	"errors"

	"github.com/stellarstream/watcher/internal/core/domain"
)

var (
	// ErrCheckpointNotFound is returned when no ledger checkpoint has been
	// saved yet.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// StreamRepository handles the latest-state snapshot per stream.
// The watcher loop is the only writer; reads may run concurrently.
type StreamRepository interface {
	// Get retrieves a stream record, or (nil, nil) when absent.
	Get(ctx context.Context, streamID string) (*domain.StreamRecord, error)

	// Save inserts or replaces one record atomically.
	Save(ctx context.Context, record *domain.StreamRecord) error

	// Snapshot returns all records keyed by stream ID, loaded in one pass.
	Snapshot(ctx context.Context) (map[string]*domain.StreamRecord, error)
}

// AuditLogRepository is the append-only record of every normalized event.
type AuditLogRepository interface {
	// Append stores one audit entry.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// Recent retrieves the last N entries, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.AuditEntry, error)

	// ByStream retrieves all entries for a stream, newest first.
	ByStream(ctx context.Context, streamID string) ([]*domain.AuditEntry, error)
}

// WebhookRepository stores registered outbound notification targets.
type WebhookRepository interface {
	// Save inserts or updates a target.
	Save(ctx context.Context, target *domain.WebhookTarget) error

	// Active retrieves all active targets.
	Active(ctx context.Context) ([]*domain.WebhookTarget, error)

	// All retrieves every registered target.
	All(ctx context.Context) ([]*domain.WebhookTarget, error)

	// SetActive toggles a target's active flag.
	SetActive(ctx context.Context, id string, active bool) error
}

// CheckpointRepository persists the last fully processed ledger so a restart
// resumes instead of re-syncing to the chain head.
type CheckpointRepository interface {
	// Load returns the saved ledger, or ErrCheckpointNotFound on first run.
	Load(ctx context.Context) (uint32, error)

	// Save persists the ledger. Call only after a cycle fully completes.
	Save(ctx context.Context, ledger uint32) error
}
