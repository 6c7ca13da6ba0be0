package lifecycle

import (
	"math/big"
	"testing"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func createInput(streamID, total string) CreateInput {
	return CreateInput{
		StreamID:    streamID,
		TxHash:      "txhash-create",
		Sender:      "GSENDER",
		Receiver:    "GRECEIVER",
		TotalAmount: mustBig(total),
		CreatedAt:   "2024-06-01T00:00:00Z",
		Ledger:      500,
	}
}

func mustBig(s string) *big.Int {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return i
}

func TestApplyCreated_Idempotent(t *testing.T) {
	in := createInput("s1", "1000")

	first := ApplyCreated(nil, in, testNow)
	second := ApplyCreated(first, in, testNow.Add(time.Minute))

	if first.Status != domain.StreamStatusActive || second.Status != domain.StreamStatusActive {
		t.Errorf("status = %s / %s, want ACTIVE", first.Status, second.Status)
	}
	if second.StreamedAmount != first.StreamedAmount {
		t.Errorf("streamed amount changed on replay: %s -> %s", first.StreamedAmount, second.StreamedAmount)
	}
	if second.OriginalTotalAmount != first.OriginalTotalAmount {
		t.Errorf("total changed on replay: %s -> %s", first.OriginalTotalAmount, second.OriginalTotalAmount)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Errorf("createdAt changed on replay: %s -> %s", first.CreatedAt, second.CreatedAt)
	}
}

func TestApplyCreated_FirstWriteWinsCreatedAt(t *testing.T) {
	existing := ApplyCreated(nil, createInput("s1", "1000"), testNow)

	replay := createInput("s1", "1000")
	replay.CreatedAt = "2024-06-02T00:00:00Z"

	next := ApplyCreated(existing, replay, testNow)
	if next.CreatedAt != "2024-06-01T00:00:00Z" {
		t.Errorf("createdAt = %s, want first-written value", next.CreatedAt)
	}
}

func TestApplyCreated_DoesNotResurrectCancelled(t *testing.T) {
	cancelled, _ := ApplyCancellation(nil, CancelInput{
		StreamID:   "s1",
		ToReceiver: mustBig("600"),
		ToSender:   mustBig("400"),
		ClosedAt:   "2024-06-01T06:00:00Z",
		Ledger:     400,
	}, testNow)

	next := ApplyCreated(cancelled, createInput("s1", "1000"), testNow)
	if next.Status != domain.StreamStatusCanceled {
		t.Errorf("status = %s, want CANCELED preserved", next.Status)
	}
}

func TestApplyWithdrawal_Accumulates(t *testing.T) {
	record := ApplyCreated(nil, createInput("s1", "1000"), testNow)

	for i, amount := range []string{"100", "250", "50"} {
		next, ok := ApplyWithdrawal(record, WithdrawalInput{
			StreamID: "s1",
			Amount:   mustBig(amount),
			Ledger:   uint32(510 + i),
		}, testNow)
		if !ok {
			t.Fatalf("withdrawal %d dropped", i)
		}
		record = next
	}

	if record.StreamedAmount != "400" {
		t.Errorf("streamed = %s, want 400", record.StreamedAmount)
	}
	if record.LastLedger != 512 {
		t.Errorf("lastLedger = %d, want 512", record.LastLedger)
	}
}

func TestApplyWithdrawal_UnknownStreamDropped(t *testing.T) {
	next, ok := ApplyWithdrawal(nil, WithdrawalInput{
		StreamID: "ghost",
		Amount:   mustBig("100"),
		Ledger:   100,
	}, testNow)
	if ok || next != nil {
		t.Error("withdrawal against unknown stream must be dropped")
	}
}

func TestApplyWithdrawal_CancelledStreamTerminal(t *testing.T) {
	cancelled, _ := ApplyCancellation(
		ApplyCreated(nil, createInput("s1", "1000"), testNow),
		CancelInput{
			StreamID:   "s1",
			ToReceiver: mustBig("600"),
			ToSender:   mustBig("400"),
			ClosedAt:   "2024-06-01T06:00:00Z",
			Ledger:     520,
		}, testNow)

	_, ok := ApplyWithdrawal(cancelled, WithdrawalInput{
		StreamID: "s1",
		Amount:   mustBig("10"),
		Ledger:   530,
	}, testNow)
	if ok {
		t.Error("withdrawal against cancelled stream must be dropped")
	}
}

func TestApplyCancellation_Arithmetic(t *testing.T) {
	existing := ApplyCreated(nil, createInput("s1", "1000000"), testNow)

	record, summary := ApplyCancellation(existing, CancelInput{
		StreamID:   "s1",
		ToReceiver: mustBig("800000"),
		ToSender:   mustBig("200000"),
		ClosedAt:   "2024-06-01T08:00:00Z",
		Ledger:     600,
	}, testNow)

	if record.StreamedAmount != "800000" {
		t.Errorf("streamed = %s, want 800000", record.StreamedAmount)
	}
	if record.Status != domain.StreamStatusCanceled {
		t.Errorf("status = %s, want CANCELED", record.Status)
	}
	if record.ClosedAt == nil || *record.ClosedAt != "2024-06-01T08:00:00Z" {
		t.Errorf("closedAt = %v, want set", record.ClosedAt)
	}
	if summary.OriginalTotalAmount.String() != "1000000" {
		t.Errorf("summary original = %s, want 1000000", summary.OriginalTotalAmount)
	}
	if summary.RemainingUnstreamedAmount.String() != "200000" {
		t.Errorf("summary remaining = %s, want 200000", summary.RemainingUnstreamedAmount)
	}
}

func TestApplyCancellation_UnknownStreamSynthesized(t *testing.T) {
	record, summary := ApplyCancellation(nil, CancelInput{
		StreamID:   "never-seen",
		ToReceiver: mustBig("300"),
		ToSender:   mustBig("700"),
		ClosedAt:   "2024-06-01T08:00:00Z",
		Ledger:     600,
	}, testNow)

	if record.Sender != "unknown" || record.Receiver != "unknown" || record.TxHashCreated != "unknown" {
		t.Errorf("expected placeholder identity fields, got %+v", record)
	}
	// Original total inferred from the two payout legs.
	if record.OriginalTotalAmount != "1000" {
		t.Errorf("original = %s, want 1000", record.OriginalTotalAmount)
	}
	if summary.FinalStreamedAmount.String() != "300" {
		t.Errorf("final streamed = %s, want 300", summary.FinalStreamedAmount)
	}
	if record.CreatedAt != "2024-06-01T08:00:00Z" {
		t.Errorf("createdAt = %s, want closedAt fallback", record.CreatedAt)
	}
}

func TestMaxLedger_NeverDecreases(t *testing.T) {
	record := ApplyCreated(nil, createInput("s1", "1000"), testNow)
	record.LastLedger = 900

	next, ok := ApplyWithdrawal(record, WithdrawalInput{
		StreamID: "s1",
		Amount:   mustBig("1"),
		Ledger:   100, // stale ledger
	}, testNow)
	if !ok {
		t.Fatal("withdrawal dropped")
	}
	if next.LastLedger != 900 {
		t.Errorf("lastLedger = %d, want 900 (high-water mark)", next.LastLedger)
	}
}
