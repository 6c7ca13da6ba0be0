package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
)

// WebhookRepo implements storage.WebhookRepository using PostgreSQL.
type WebhookRepo struct {
	db *DB
}

// NewWebhookRepo creates a new PostgreSQL webhook repository.
func NewWebhookRepo(db *DB) *WebhookRepo {
	return &WebhookRepo{db: db}
}

type webhookRow struct {
	ID        string    `db:"id"`
	URL       string    `db:"url"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// Save inserts or updates a target.
func (r *WebhookRepo) Save(ctx context.Context, target *domain.WebhookTarget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, url, is_active, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			is_active = EXCLUDED.is_active
	`, target.ID, target.URL, target.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save webhook: %w", err)
	}
	return nil
}

// Active retrieves all active targets.
func (r *WebhookRepo) Active(ctx context.Context) ([]*domain.WebhookTarget, error) {
	return r.query(ctx, `
		SELECT id, url, is_active, created_at FROM webhooks
		WHERE is_active ORDER BY created_at
	`)
}

// All retrieves every registered target.
func (r *WebhookRepo) All(ctx context.Context) ([]*domain.WebhookTarget, error) {
	return r.query(ctx, `
		SELECT id, url, is_active, created_at FROM webhooks ORDER BY created_at
	`)
}

// SetActive toggles a target's active flag.
func (r *WebhookRepo) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (r *WebhookRepo) query(ctx context.Context, query string) ([]*domain.WebhookTarget, error) {
	var rows []webhookRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load webhooks: %w", err)
	}

	targets := make([]*domain.WebhookTarget, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, &domain.WebhookTarget{
			ID:        row.ID,
			URL:       row.URL,
			IsActive:  row.IsActive,
			CreatedAt: row.CreatedAt,
		})
	}
	return targets, nil
}
