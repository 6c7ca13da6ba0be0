package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stellarstream/watcher/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
// A single row keyed by id=1 holds the last fully processed ledger.
type CheckpointRepo struct {
	db *DB
}

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Load returns the saved ledger, or storage.ErrCheckpointNotFound on first run.
func (r *CheckpointRepo) Load(ctx context.Context) (uint32, error) {
	var ledger int64
	err := r.db.GetContext(ctx, &ledger,
		`SELECT last_ledger FROM sync_state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return uint32(ledger), nil
}

// Save persists the ledger checkpoint.
func (r *CheckpointRepo) Save(ctx context.Context, ledger uint32) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, last_ledger, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_ledger = EXCLUDED.last_ledger,
			updated_at = EXCLUDED.updated_at
	`, int64(ledger))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
