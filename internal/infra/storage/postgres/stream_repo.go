package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
)

// StreamRepo implements storage.StreamRepository using PostgreSQL.
type StreamRepo struct {
	db *DB
}

// NewStreamRepo creates a new PostgreSQL stream repository.
func NewStreamRepo(db *DB) *StreamRepo {
	return &StreamRepo{db: db}
}

type streamRow struct {
	StreamID            string         `db:"stream_id"`
	TxHashCreated       string         `db:"tx_hash_created"`
	Sender              string         `db:"sender"`
	Receiver            string         `db:"receiver"`
	OriginalTotalAmount string         `db:"original_total_amount"`
	StreamedAmount      string         `db:"streamed_amount"`
	Status              string         `db:"status"`
	CreatedAt           string         `db:"created_at"`
	ClosedAt            sql.NullString `db:"closed_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	LastLedger          int64          `db:"last_ledger"`
}

func (r *streamRow) toDomain() *domain.StreamRecord {
	rec := &domain.StreamRecord{
		StreamID:            r.StreamID,
		TxHashCreated:       r.TxHashCreated,
		Sender:              r.Sender,
		Receiver:            r.Receiver,
		OriginalTotalAmount: r.OriginalTotalAmount,
		StreamedAmount:      r.StreamedAmount,
		Status:              domain.StreamStatus(r.Status),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		LastLedger:          uint32(r.LastLedger),
	}
	if r.ClosedAt.Valid {
		closed := r.ClosedAt.String
		rec.ClosedAt = &closed
	}
	return rec
}

// Get retrieves a stream record by ID, or (nil, nil) when absent.
func (r *StreamRepo) Get(ctx context.Context, streamID string) (*domain.StreamRecord, error) {
	var row streamRow
	err := r.db.GetContext(ctx, &row, `
		SELECT stream_id, tx_hash_created, sender, receiver, original_total_amount,
		       streamed_amount, status, created_at, closed_at, updated_at, last_ledger
		FROM streams WHERE stream_id = $1
	`, streamID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	return row.toDomain(), nil
}

// Save inserts or replaces one record.
func (r *StreamRepo) Save(ctx context.Context, rec *domain.StreamRecord) error {
	var closedAt sql.NullString
	if rec.ClosedAt != nil {
		closedAt = sql.NullString{String: *rec.ClosedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO streams (
			stream_id, tx_hash_created, sender, receiver, original_total_amount,
			streamed_amount, status, created_at, closed_at, updated_at, last_ledger
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (stream_id) DO UPDATE SET
			tx_hash_created = EXCLUDED.tx_hash_created,
			sender = EXCLUDED.sender,
			receiver = EXCLUDED.receiver,
			original_total_amount = EXCLUDED.original_total_amount,
			streamed_amount = EXCLUDED.streamed_amount,
			status = EXCLUDED.status,
			created_at = EXCLUDED.created_at,
			closed_at = EXCLUDED.closed_at,
			updated_at = EXCLUDED.updated_at,
			last_ledger = EXCLUDED.last_ledger
	`,
		rec.StreamID, rec.TxHashCreated, rec.Sender, rec.Receiver,
		rec.OriginalTotalAmount, rec.StreamedAmount, string(rec.Status),
		rec.CreatedAt, closedAt, rec.UpdatedAt, int64(rec.LastLedger),
	)
	if err != nil {
		return fmt.Errorf("failed to save stream: %w", err)
	}
	return nil
}

// Snapshot loads every stream record in one query.
func (r *StreamRepo) Snapshot(ctx context.Context) (map[string]*domain.StreamRecord, error) {
	var rows []streamRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT stream_id, tx_hash_created, sender, receiver, original_total_amount,
		       streamed_amount, status, created_at, closed_at, updated_at, last_ledger
		FROM streams
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load streams: %w", err)
	}

	snap := make(map[string]*domain.StreamRecord, len(rows))
	for i := range rows {
		rec := rows[i].toDomain()
		snap[rec.StreamID] = rec
	}
	return snap, nil
}
