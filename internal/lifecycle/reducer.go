// Package lifecycle folds normalized stream events into the latest-state
// record per stream. The transition functions are pure; Service drives them
// against the store with replay protection.
package lifecycle

import (
	"math/big"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
)

const unknownPlaceholder = "unknown"

// CreateInput carries the fields of a stream_created event.
type CreateInput struct {
	StreamID    string
	TxHash      string
	Sender      string
	Receiver    string
	TotalAmount *big.Int
	CreatedAt   string
	Ledger      uint32
}

// WithdrawalInput carries the fields of a stream_withdrawn event.
type WithdrawalInput struct {
	StreamID string
	Amount   *big.Int
	Ledger   uint32
}

// CancelInput carries the fields of a stream_cancelled event.
type CancelInput struct {
	StreamID   string
	ToReceiver *big.Int
	ToSender   *big.Int
	ClosedAt   string
	Ledger     uint32
}

// CancellationSummary reports the settled amounts for downstream consumers.
type CancellationSummary struct {
	StreamID                  string
	OriginalTotalAmount       *big.Int
	FinalStreamedAmount       *big.Int
	RemainingUnstreamedAmount *big.Int
	ClosedAt                  string
}

// ApplyCreated produces the next record for a created event. Applying the
// same event twice yields the same record aside from UpdatedAt bookkeeping.
// A replayed create must not resurrect a cancelled stream.
func ApplyCreated(existing *domain.StreamRecord, in CreateInput, now time.Time) *domain.StreamRecord {
	status := domain.StreamStatusActive
	streamed := "0"
	createdAt := in.CreatedAt
	var closedAt *string

	if existing != nil {
		if existing.Status == domain.StreamStatusCanceled {
			status = domain.StreamStatusCanceled
		}
		streamed = existing.StreamedAmount
		createdAt = existing.CreatedAt
		closedAt = existing.ClosedAt
	}

	return &domain.StreamRecord{
		StreamID:            in.StreamID,
		TxHashCreated:       in.TxHash,
		Sender:              in.Sender,
		Receiver:            in.Receiver,
		OriginalTotalAmount: in.TotalAmount.String(),
		StreamedAmount:      streamed,
		Status:              status,
		CreatedAt:           createdAt,
		ClosedAt:            closedAt,
		UpdatedAt:           now,
		LastLedger:          maxLedger(existing, in.Ledger),
	}
}

// ApplyWithdrawal produces the next record for a withdrawal event. A
// withdrawal for an unknown stream is dropped (no synthetic record), as is
// one against a cancelled record, which is terminal.
func ApplyWithdrawal(existing *domain.StreamRecord, in WithdrawalInput, now time.Time) (*domain.StreamRecord, bool) {
	if existing == nil || existing.Status == domain.StreamStatusCanceled {
		return nil, false
	}

	streamed := bigFromDecimal(existing.StreamedAmount)
	streamed.Add(streamed, in.Amount)

	next := existing.Clone()
	next.StreamedAmount = streamed.String()
	next.UpdatedAt = now
	next.LastLedger = maxLedger(existing, in.Ledger)
	return next, true
}

// ApplyCancellation settles a stream. The recomputed streamed amount
// (original minus the refund to the sender) is authoritative and overwrites
// the accumulated value; when no prior record exists the original total is
// inferred from the two payout legs and identity fields are placeholders.
func ApplyCancellation(existing *domain.StreamRecord, in CancelInput, now time.Time) (*domain.StreamRecord, CancellationSummary) {
	var originalTotal *big.Int
	if existing != nil {
		originalTotal = bigFromDecimal(existing.OriginalTotalAmount)
	} else {
		originalTotal = new(big.Int).Add(in.ToReceiver, in.ToSender)
	}

	finalStreamed := new(big.Int).Sub(originalTotal, in.ToSender)

	txHash := unknownPlaceholder
	sender := unknownPlaceholder
	receiver := unknownPlaceholder
	createdAt := in.ClosedAt
	if existing != nil {
		txHash = existing.TxHashCreated
		sender = existing.Sender
		receiver = existing.Receiver
		createdAt = existing.CreatedAt
	}

	closedAt := in.ClosedAt
	record := &domain.StreamRecord{
		StreamID:            in.StreamID,
		TxHashCreated:       txHash,
		Sender:              sender,
		Receiver:            receiver,
		OriginalTotalAmount: originalTotal.String(),
		StreamedAmount:      finalStreamed.String(),
		Status:              domain.StreamStatusCanceled,
		CreatedAt:           createdAt,
		ClosedAt:            &closedAt,
		UpdatedAt:           now,
		LastLedger:          maxLedger(existing, in.Ledger),
	}

	summary := CancellationSummary{
		StreamID:                  in.StreamID,
		OriginalTotalAmount:       originalTotal,
		FinalStreamedAmount:       finalStreamed,
		RemainingUnstreamedAmount: new(big.Int).Set(in.ToSender),
		ClosedAt:                  in.ClosedAt,
	}
	return record, summary
}

func maxLedger(existing *domain.StreamRecord, ledger uint32) uint32 {
	if existing != nil && existing.LastLedger > ledger {
		return existing.LastLedger
	}
	return ledger
}

// bigFromDecimal parses a stored decimal string, treating garbage as zero
// the way the store treats a missing value.
func bigFromDecimal(s string) *big.Int {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return i
}
