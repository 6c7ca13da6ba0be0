package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage/memory"
)

type failingRepo struct{}

func (failingRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	return errors.New("disk full")
}
func (failingRepo) Recent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	return nil, nil
}
func (failingRepo) ByStream(ctx context.Context, streamID string) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func TestRecord_AssignsIDAndTimestamp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	log := NewLog(memory.NewAuditRepo(store))

	entry := &domain.AuditEntry{
		EventType: "stream_created",
		StreamID:  "s1",
		TxHash:    "abc",
		Ledger:    100,
	}
	log.Record(ctx, entry)

	if entry.ID == "" {
		t.Error("ID should be assigned")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be assigned")
	}

	recent, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].StreamID != "s1" {
		t.Errorf("recent = %+v, want the recorded entry", recent)
	}
}

func TestRecord_SwallowsAppendFailure(t *testing.T) {
	log := NewLog(failingRepo{})
	// Must not panic or surface the error.
	log.Record(context.Background(), &domain.AuditEntry{
		EventType: "stream_created",
		StreamID:  "s1",
	})
}
