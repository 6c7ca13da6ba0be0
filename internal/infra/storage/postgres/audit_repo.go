package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stellarstream/watcher/internal/core/domain"
)

// AuditRepo implements storage.AuditLogRepository using PostgreSQL.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new PostgreSQL audit log repository.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

type auditRow struct {
	ID             string         `db:"id"`
	EventType      string         `db:"event_type"`
	StreamID       string         `db:"stream_id"`
	TxHash         string         `db:"tx_hash"`
	Ledger         int64          `db:"ledger"`
	LedgerClosedAt string         `db:"ledger_closed_at"`
	Sender         sql.NullString `db:"sender"`
	Receiver       sql.NullString `db:"receiver"`
	Amount         sql.NullString `db:"amount"`
	Metadata       []byte         `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *auditRow) toDomain() *domain.AuditEntry {
	entry := &domain.AuditEntry{
		ID:             r.ID,
		EventType:      r.EventType,
		StreamID:       r.StreamID,
		TxHash:         r.TxHash,
		Ledger:         uint32(r.Ledger),
		LedgerClosedAt: r.LedgerClosedAt,
		Sender:         r.Sender.String,
		Receiver:       r.Receiver.String,
		Amount:         r.Amount.String,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		// Metadata is best-effort; a bad blob should not hide the entry.
		_ = json.Unmarshal(r.Metadata, &entry.Metadata)
	}
	return entry
}

// Append stores one audit entry.
func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}

	var metadata []byte
	if entry.Metadata != nil {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = data
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_log (
			id, event_type, stream_id, tx_hash, ledger, ledger_closed_at,
			sender, receiver, amount, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`,
		id, entry.EventType, entry.StreamID, entry.TxHash,
		int64(entry.Ledger), entry.LedgerClosedAt,
		nullable(entry.Sender), nullable(entry.Receiver), nullable(entry.Amount),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Recent retrieves the last N entries, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, stream_id, tx_hash, ledger, ledger_closed_at,
		       sender, receiver, amount, metadata, created_at
		FROM event_log ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}
	return toEntries(rows), nil
}

// ByStream retrieves all entries for a stream, newest first.
func (r *AuditRepo) ByStream(ctx context.Context, streamID string) ([]*domain.AuditEntry, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, event_type, stream_id, tx_hash, ledger, ledger_closed_at,
		       sender, receiver, amount, metadata, created_at
		FROM event_log WHERE stream_id = $1 ORDER BY created_at DESC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stream events: %w", err)
	}
	return toEntries(rows), nil
}

func toEntries(rows []auditRow) []*domain.AuditEntry {
	entries := make([]*domain.AuditEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
