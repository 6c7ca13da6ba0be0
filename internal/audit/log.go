// Package audit keeps the append-only record of every normalized event,
// independent of the current-state snapshot.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
)

// Log is a write-mostly service over the audit repository. Writes never
// fail the caller; the ledger index must not stall on a broken audit sink.
type Log struct {
	repo storage.AuditLogRepository
	log  *slog.Logger
}

// NewLog creates an audit log service.
func NewLog(repo storage.AuditLogRepository) *Log {
	return &Log{repo: repo, log: slog.Default()}
}

// Record appends one entry, assigning an ID and timestamp when absent.
// Failures are logged and swallowed.
func (l *Log) Record(ctx context.Context, entry *domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		l.log.Warn("audit append failed",
			"event_type", entry.EventType, "stream_id", entry.StreamID, "error", err)
	}
}

// Recent returns the last N entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	return l.repo.Recent(ctx, limit)
}

// ByStream returns all entries for one stream, newest first.
func (l *Log) ByStream(ctx context.Context, streamID string) ([]*domain.AuditEntry, error) {
	return l.repo.ByStream(ctx, streamID)
}
