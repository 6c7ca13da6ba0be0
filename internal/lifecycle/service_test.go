package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage/memory"
)

type failingDedup struct{}

func (failingDedup) MarkApplied(ctx context.Context, eventID string) (bool, error) {
	return false, errors.New("redis down")
}

func newTestService(t *testing.T, cfg Config, dedup DedupStore) *Service {
	t.Helper()
	store := memory.NewMemoryStorage()
	return NewService(cfg, memory.NewStreamRepo(store), dedup)
}

func TestHandleWithdrawal_ReplaySkipped(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Config{}, nil)

	if err := svc.HandleCreated(ctx, createInput("s1", "1000")); err != nil {
		t.Fatalf("HandleCreated: %v", err)
	}

	in := WithdrawalInput{StreamID: "s1", Amount: mustBig("100"), Ledger: 510}
	if err := svc.HandleWithdrawal(ctx, "evt-1", in); err != nil {
		t.Fatalf("HandleWithdrawal: %v", err)
	}
	// Same event ID replayed: no second accumulation.
	if err := svc.HandleWithdrawal(ctx, "evt-1", in); err != nil {
		t.Fatalf("HandleWithdrawal replay: %v", err)
	}

	record, err := svc.Record(ctx, "s1")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if record.StreamedAmount != "100" {
		t.Errorf("streamed = %s, want 100 (replay must not double-apply)", record.StreamedAmount)
	}
}

func TestHandleWithdrawal_DedupFailureDoesNotStall(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Config{}, failingDedup{})

	if err := svc.HandleCreated(ctx, createInput("s1", "1000")); err != nil {
		t.Fatalf("HandleCreated: %v", err)
	}
	in := WithdrawalInput{StreamID: "s1", Amount: mustBig("100"), Ledger: 510}
	if err := svc.HandleWithdrawal(ctx, "evt-1", in); err != nil {
		t.Fatalf("HandleWithdrawal with broken dedup: %v", err)
	}

	record, _ := svc.Record(ctx, "s1")
	if record.StreamedAmount != "100" {
		t.Errorf("streamed = %s, want 100", record.StreamedAmount)
	}
}

func TestHandleCancellation_StrictRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Config{StrictCancel: true}, nil)

	_, err := svc.HandleCancellation(ctx, CancelInput{
		StreamID:   "ghost",
		ToReceiver: mustBig("600"),
		ToSender:   mustBig("400"),
		ClosedAt:   "2024-06-01T08:00:00Z",
		Ledger:     600,
	})
	if !errors.Is(err, ErrUnknownStream) {
		t.Errorf("err = %v, want ErrUnknownStream", err)
	}

	if record, _ := svc.Record(ctx, "ghost"); record != nil {
		t.Error("strict mode must not persist a placeholder record")
	}
}

func TestHandleCancellation_LenientSynthesizes(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Config{}, nil)

	summary, err := svc.HandleCancellation(ctx, CancelInput{
		StreamID:   "ghost",
		ToReceiver: mustBig("600"),
		ToSender:   mustBig("400"),
		ClosedAt:   "2024-06-01T08:00:00Z",
		Ledger:     600,
	})
	if err != nil {
		t.Fatalf("HandleCancellation: %v", err)
	}
	if summary.FinalStreamedAmount.String() != "600" {
		t.Errorf("final streamed = %s, want 600", summary.FinalStreamedAmount)
	}

	record, _ := svc.Record(ctx, "ghost")
	if record == nil || record.Status != domain.StreamStatusCanceled {
		t.Fatalf("record = %+v, want persisted CANCELED record", record)
	}
	if record.Sender != "unknown" {
		t.Errorf("sender = %s, want placeholder", record.Sender)
	}
}

func TestMemoryDedup_WindowEviction(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDedup(2)

	for _, id := range []string{"a", "b"} {
		if seen, _ := d.MarkApplied(ctx, id); seen {
			t.Errorf("fresh id %q reported as seen", id)
		}
	}
	if seen, _ := d.MarkApplied(ctx, "b"); !seen {
		t.Error("id b should still be inside the window")
	}
	// c evicts a, the oldest entry.
	if seen, _ := d.MarkApplied(ctx, "c"); seen {
		t.Error("fresh id c reported as seen")
	}
	if seen, _ := d.MarkApplied(ctx, "a"); seen {
		t.Error("id a should have been evicted as the oldest entry")
	}
	if seen, _ := d.MarkApplied(ctx, "c"); !seen {
		t.Error("id c should still be inside the window")
	}
}
