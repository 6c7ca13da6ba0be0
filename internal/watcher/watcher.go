package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stellarstream/watcher/internal/audit"
	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/events"
	"github.com/stellarstream/watcher/internal/infra/storage"
	"github.com/stellarstream/watcher/internal/lifecycle"
	"github.com/stellarstream/watcher/internal/metrics"
	"github.com/stellarstream/watcher/internal/soroban"
)

const maxBackoff = 30 * time.Second

// Notifier delivers one payload to all registered webhook targets. It must
// never block the poll loop on delivery failures.
type Notifier interface {
	Notify(ctx context.Context, payload domain.WebhookPayload)
}

// Config holds poll loop settings.
type Config struct {
	PollInterval time.Duration
	RetryDelay   time.Duration
	MaxRetries   int
	PageSize     int
}

// Watcher polls the event source and fans each normalized event out to the
// lifecycle reducer, the audit log and the webhook notifier. Only fetch
// failures drive the backoff; a failure in one sink never blocks the others.
type Watcher struct {
	cfg        Config
	source     soroban.EventSource
	lifecycle  *lifecycle.Service
	audit      *audit.Log
	checkpoint storage.CheckpointRepository
	notifier   Notifier
	log        *slog.Logger

	mu         sync.Mutex
	running    bool
	phase      domain.WatcherPhase
	cursor     uint32
	errorCount int
	lastError  string
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New creates a watcher. The notifier may be nil when no webhooks are
// configured.
func New(cfg Config, source soroban.EventSource, svc *lifecycle.Service, auditLog *audit.Log, checkpoint storage.CheckpointRepository, notifier Notifier) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Watcher{
		cfg:        cfg,
		source:     source,
		lifecycle:  svc,
		audit:      auditLog,
		checkpoint: checkpoint,
		notifier:   notifier,
		log:        slog.Default(),
		phase:      domain.WatcherPhaseStopped,
	}
}

// Start brings up the poll loop. Calling Start on a running watcher logs a
// warning and returns without a second loop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.log.Warn("watcher already running, ignoring start")
		return
	}
	w.running = true
	w.phase = domain.WatcherPhaseStarting
	w.errorCount = 0
	w.lastError = ""
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	cursor := w.initialCursor(ctx)
	w.mu.Lock()
	w.cursor = cursor
	w.mu.Unlock()
	metrics.LastProcessedLedger.Set(float64(cursor))

	w.log.Info("watcher started", "cursor", cursor,
		"poll_interval", w.cfg.PollInterval, "page_size", w.cfg.PageSize)

	go w.run(ctx, stopCh, doneCh)
}

// Stop shuts the poll loop down and waits for the in-flight cycle to finish.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
	w.log.Info("watcher stopped")
}

// State returns a point-in-time snapshot of the loop.
func (w *Watcher) State() domain.WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return domain.WatcherState{
		LastProcessedLedger: w.cursor,
		IsRunning:           w.running,
		ErrorCount:          w.errorCount,
		LastError:           w.lastError,
		Phase:               w.phase,
	}
}

// initialCursor prefers the persisted checkpoint; a fresh deployment starts
// at the chain tip so historic ledgers are not replayed.
func (w *Watcher) initialCursor(ctx context.Context) uint32 {
	ledger, err := w.checkpoint.Load(ctx)
	if err == nil {
		w.log.Info("resuming from checkpoint", "ledger", ledger)
		return ledger
	}
	if !errors.Is(err, storage.ErrCheckpointNotFound) {
		w.log.Warn("checkpoint load failed, probing chain tip", "error", err)
	}

	latest, err := w.source.LatestLedger(ctx)
	if err != nil {
		w.log.Warn("latest ledger probe failed, starting from zero", "error", err)
		return 0
	}
	return latest
}

func (w *Watcher) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.phase = domain.WatcherPhaseStopped
		w.mu.Unlock()
	}()

	for {
		err := w.pollOnce(ctx)

		var delay time.Duration
		w.mu.Lock()
		if err != nil {
			w.errorCount++
			w.lastError = err.Error()
			if w.errorCount >= w.cfg.MaxRetries {
				w.mu.Unlock()
				w.log.Error("watcher giving up after repeated poll failures",
					"error", err, "attempts", w.cfg.MaxRetries)
				return
			}
			w.phase = domain.WatcherPhaseBackoff
			delay = backoffDelay(w.cfg.RetryDelay, w.errorCount)
			w.mu.Unlock()
			metrics.PollCycleErrors.Inc()
			w.log.Warn("poll cycle failed, backing off",
				"error", err, "attempt", w.errorCount, "delay", delay)
		} else {
			w.errorCount = 0
			w.lastError = ""
			w.phase = domain.WatcherPhasePolling
			delay = w.cfg.PollInterval
			w.mu.Unlock()
		}

		timer := time.NewTimer(delay)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// backoffDelay doubles the base delay per consecutive failure, capped.
func backoffDelay(base time.Duration, errorCount int) time.Duration {
	delay := base << (errorCount - 1)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

// pollOnce runs a single fetch-and-dispatch cycle. Returns an error only on
// fetch failure; per-event sink failures are logged and skipped.
func (w *Watcher) pollOnce(ctx context.Context) error {
	w.mu.Lock()
	cursor := w.cursor
	w.mu.Unlock()

	raws, err := w.source.Events(ctx, cursor+1, w.cfg.PageSize)
	if err != nil {
		return err
	}

	if len(raws) == 0 {
		// Quiet range: advance the cursor to the tip so a later restart
		// does not re-scan ledgers already known to be empty.
		latest, err := w.source.LatestLedger(ctx)
		if err != nil {
			return err
		}
		metrics.ChainLatestLedger.Set(float64(latest))
		if latest > cursor {
			w.advanceCursor(ctx, latest)
		}
		return nil
	}

	for _, raw := range raws {
		w.dispatch(ctx, raw)
		if raw.Ledger > cursor {
			cursor = raw.Ledger
		}
	}
	w.advanceCursor(ctx, cursor)
	return nil
}

// advanceCursor moves the high-water mark forward and persists it. A failed
// checkpoint write costs at most one re-scanned page on restart.
func (w *Watcher) advanceCursor(ctx context.Context, ledger uint32) {
	w.mu.Lock()
	if ledger > w.cursor {
		w.cursor = ledger
	}
	ledger = w.cursor
	w.mu.Unlock()

	metrics.LastProcessedLedger.Set(float64(ledger))
	if err := w.checkpoint.Save(ctx, ledger); err != nil {
		w.log.Warn("checkpoint save failed", "ledger", ledger, "error", err)
	}
}

func (w *Watcher) dispatch(ctx context.Context, raw *domain.RawEvent) {
	ev, ok := events.Parse(raw)
	if !ok {
		metrics.EventsSkipped.WithLabelValues("unparseable").Inc()
		w.log.Warn("skipping unparseable event", "event_id", raw.ID, "ledger", raw.Ledger)
		return
	}
	if !ev.Successful {
		metrics.EventsSkipped.WithLabelValues("failed_call").Inc()
		w.log.Debug("skipping event from failed contract call", "event_id", ev.ID, "ledger", ev.Ledger)
		return
	}

	eventType := events.ExtractEventType(ev.Topics)
	switch eventType {
	case domain.EventTypeStreamCreated:
		w.handleCreated(ctx, ev)
	case domain.EventTypeStreamWithdrawn:
		w.handleWithdrawn(ctx, ev)
	case domain.EventTypeStreamCancelled:
		w.handleCancelled(ctx, ev)
	default:
		metrics.EventsSkipped.WithLabelValues("unknown_type").Inc()
		w.log.Debug("skipping event with unknown type",
			"event_id", ev.ID, "type", eventType, "ledger", ev.Ledger)
	}
}

func (w *Watcher) handleCreated(ctx context.Context, ev *domain.ParsedEvent) {
	data, ok := events.DecodeCreated(ev.Value)
	if !ok {
		metrics.EventsSkipped.WithLabelValues("bad_payload").Inc()
		w.log.Warn("skipping created event with undecodable payload", "event_id", ev.ID)
		return
	}

	err := w.lifecycle.HandleCreated(ctx, lifecycle.CreateInput{
		StreamID:    data.StreamID,
		TxHash:      ev.TxHash,
		Sender:      data.Sender,
		Receiver:    data.Receiver,
		TotalAmount: data.TotalAmount,
		CreatedAt:   ev.LedgerClosedAt,
		Ledger:      ev.Ledger,
	})
	if err != nil {
		w.log.Error("created event not applied", "event_id", ev.ID, "error", err)
		return
	}
	metrics.EventsProcessed.WithLabelValues(domain.EventTypeStreamCreated).Inc()

	w.appendAudit(ctx, ev, domain.EventTypeStreamCreated, data.StreamID,
		data.Sender, data.Receiver, data.TotalAmount.String(), map[string]any{
			"duration": data.Duration,
		})
	w.notify(ctx, domain.WebhookPayload{
		EventType: domain.EventTypeStreamCreated,
		StreamID:  data.StreamID,
		TxHash:    ev.TxHash,
		Sender:    data.Sender,
		Receiver:  data.Receiver,
		Amount:    data.TotalAmount.String(),
		Timestamp: ev.LedgerClosedAt,
	})
}

func (w *Watcher) handleWithdrawn(ctx context.Context, ev *domain.ParsedEvent) {
	data, ok := events.DecodeWithdrawal(ev.Value)
	if !ok {
		metrics.EventsSkipped.WithLabelValues("bad_payload").Inc()
		w.log.Warn("skipping withdrawal event with undecodable payload", "event_id", ev.ID)
		return
	}

	err := w.lifecycle.HandleWithdrawal(ctx, ev.ID, lifecycle.WithdrawalInput{
		StreamID: data.StreamID,
		Amount:   data.Amount,
		Ledger:   ev.Ledger,
	})
	if err != nil {
		w.log.Error("withdrawal event not applied", "event_id", ev.ID, "error", err)
		return
	}
	metrics.EventsProcessed.WithLabelValues(domain.EventTypeStreamWithdrawn).Inc()

	w.appendAudit(ctx, ev, domain.EventTypeStreamWithdrawn, data.StreamID,
		"", "", data.Amount.String(), nil)
	w.notify(ctx, domain.WebhookPayload{
		EventType: domain.EventTypeStreamWithdrawn,
		StreamID:  data.StreamID,
		TxHash:    ev.TxHash,
		Amount:    data.Amount.String(),
		Timestamp: ev.LedgerClosedAt,
	})
}

func (w *Watcher) handleCancelled(ctx context.Context, ev *domain.ParsedEvent) {
	data, ok := events.DecodeCancellation(ev.Value)
	if !ok {
		metrics.EventsSkipped.WithLabelValues("bad_payload").Inc()
		w.log.Warn("skipping cancellation event with undecodable payload", "event_id", ev.ID)
		return
	}

	summary, err := w.lifecycle.HandleCancellation(ctx, lifecycle.CancelInput{
		StreamID:   data.StreamID,
		ToReceiver: data.ToReceiver,
		ToSender:   data.ToSender,
		ClosedAt:   ev.LedgerClosedAt,
		Ledger:     ev.Ledger,
	})
	if err != nil {
		if errors.Is(err, lifecycle.ErrUnknownStream) {
			metrics.EventsSkipped.WithLabelValues("unknown_stream").Inc()
			w.log.Warn("rejecting cancellation for unknown stream",
				"event_id", ev.ID, "stream_id", data.StreamID)
		} else {
			w.log.Error("cancellation event not applied", "event_id", ev.ID, "error", err)
		}
		return
	}
	metrics.EventsProcessed.WithLabelValues(domain.EventTypeStreamCancelled).Inc()

	w.appendAudit(ctx, ev, domain.EventTypeStreamCancelled, data.StreamID,
		"", "", summary.FinalStreamedAmount.String(), map[string]any{
			"to_receiver": data.ToReceiver.String(),
			"to_sender":   data.ToSender.String(),
		})
	w.notify(ctx, domain.WebhookPayload{
		EventType: domain.EventTypeStreamCancelled,
		StreamID:  data.StreamID,
		TxHash:    ev.TxHash,
		Amount:    summary.FinalStreamedAmount.String(),
		Timestamp: ev.LedgerClosedAt,
	})
}

func (w *Watcher) appendAudit(ctx context.Context, ev *domain.ParsedEvent, eventType, streamID, sender, receiver, amount string, metadata map[string]any) {
	w.audit.Record(ctx, &domain.AuditEntry{
		EventType:      eventType,
		StreamID:       streamID,
		TxHash:         ev.TxHash,
		Ledger:         ev.Ledger,
		LedgerClosedAt: ev.LedgerClosedAt,
		Sender:         sender,
		Receiver:       receiver,
		Amount:         amount,
		Metadata:       metadata,
	})
}

func (w *Watcher) notify(ctx context.Context, payload domain.WebhookPayload) {
	if w.notifier == nil {
		return
	}
	w.notifier.Notify(ctx, payload)
}
