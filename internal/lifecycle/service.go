package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
)

// ErrUnknownStream is returned in strict mode when a cancellation references
// a stream the store has never seen.
var ErrUnknownStream = errors.New("unknown stream")

// Config holds reducer policy knobs.
type Config struct {
	// StrictCancel rejects cancellations for unknown streams instead of
	// synthesizing a placeholder record.
	StrictCancel bool
}

// Service drives the pure transitions against the stream store. The watcher
// loop is the only caller that mutates; reads may happen concurrently.
type Service struct {
	cfg     Config
	streams storage.StreamRepository
	dedup   DedupStore
	log     *slog.Logger
}

// NewService creates a lifecycle service.
func NewService(cfg Config, streams storage.StreamRepository, dedup DedupStore) *Service {
	if dedup == nil {
		dedup = NewMemoryDedup(0)
	}
	return &Service{
		cfg:     cfg,
		streams: streams,
		dedup:   dedup,
		log:     slog.Default(),
	}
}

// HandleCreated upserts the record for a created event. Idempotent.
func (s *Service) HandleCreated(ctx context.Context, in CreateInput) error {
	existing, err := s.streams.Get(ctx, in.StreamID)
	if err != nil {
		return fmt.Errorf("load stream %s: %w", in.StreamID, err)
	}

	next := ApplyCreated(existing, in, time.Now().UTC())
	if err := s.streams.Save(ctx, next); err != nil {
		return fmt.Errorf("save stream %s: %w", in.StreamID, err)
	}
	return nil
}

// HandleWithdrawal accumulates a withdrawal. The event ID gates the
// non-idempotent update: a replayed event is skipped before any mutation.
// Withdrawals for unknown or cancelled streams are dropped silently.
func (s *Service) HandleWithdrawal(ctx context.Context, eventID string, in WithdrawalInput) error {
	seen, err := s.dedup.MarkApplied(ctx, eventID)
	if err != nil {
		// A broken dedup store must not stall the pipeline; the replay
		// window degrades, the ledger index does not.
		s.log.Warn("dedup store unavailable, applying without replay check",
			"event_id", eventID, "error", err)
	} else if seen {
		s.log.Debug("skipping replayed withdrawal", "event_id", eventID, "stream_id", in.StreamID)
		return nil
	}

	existing, err := s.streams.Get(ctx, in.StreamID)
	if err != nil {
		return fmt.Errorf("load stream %s: %w", in.StreamID, err)
	}

	next, ok := ApplyWithdrawal(existing, in, time.Now().UTC())
	if !ok {
		s.log.Debug("dropping withdrawal without matching stream",
			"stream_id", in.StreamID, "ledger", in.Ledger)
		return nil
	}

	if err := s.streams.Save(ctx, next); err != nil {
		return fmt.Errorf("save stream %s: %w", in.StreamID, err)
	}
	return nil
}

// HandleCancellation settles a stream and returns the summary for webhook
// payloads. In lenient mode an unknown stream gets a placeholder record; in
// strict mode it is rejected with ErrUnknownStream.
func (s *Service) HandleCancellation(ctx context.Context, in CancelInput) (*CancellationSummary, error) {
	existing, err := s.streams.Get(ctx, in.StreamID)
	if err != nil {
		return nil, fmt.Errorf("load stream %s: %w", in.StreamID, err)
	}

	if existing == nil && s.cfg.StrictCancel {
		return nil, fmt.Errorf("cancel stream %s: %w", in.StreamID, ErrUnknownStream)
	}

	next, summary := ApplyCancellation(existing, in, time.Now().UTC())

	// The recomputed settlement is authoritative, but a divergence from the
	// accumulated total means missed or double-applied withdrawals upstream.
	if existing != nil {
		accumulated := bigFromDecimal(existing.StreamedAmount)
		if accumulated.Sign() > 0 && accumulated.Cmp(summary.FinalStreamedAmount) != 0 {
			s.log.Warn("cancellation settlement disagrees with accumulated withdrawals",
				"stream_id", in.StreamID,
				"accumulated", accumulated.String(),
				"settled", summary.FinalStreamedAmount.String())
		}
	}

	if err := s.streams.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save stream %s: %w", in.StreamID, err)
	}
	return &summary, nil
}

// Record returns the current record for a stream, or nil when absent.
func (s *Service) Record(ctx context.Context, streamID string) (*domain.StreamRecord, error) {
	return s.streams.Get(ctx, streamID)
}
