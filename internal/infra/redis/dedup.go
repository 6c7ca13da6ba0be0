package redis

import (
	"context"
	"fmt"
	"time"
)

const dedupTTL = 7 * 24 * time.Hour

// DedupStore tracks applied event IDs in Redis so a re-processed ledger range
// does not double-apply non-idempotent events.
type DedupStore struct {
	client *Client
}

// NewDedupStore creates a Redis-backed dedup store.
func NewDedupStore(client *Client) *DedupStore {
	return &DedupStore{client: client}
}

func dedupKey(eventID string) string {
	return fmt.Sprintf("applied_event:%s", eventID)
}

// MarkApplied records an event ID and reports whether it was seen before.
// The check-and-set is atomic (SETNX), so concurrent callers cannot both
// observe "first time".
func (s *DedupStore) MarkApplied(ctx context.Context, eventID string) (seen bool, err error) {
	ok, err := s.client.rdb.SetNX(ctx, dedupKey(eventID), 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return !ok, nil
}
