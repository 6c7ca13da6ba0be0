package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stellarstream/watcher/internal/audit"
	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage/memory"
	"github.com/stellarstream/watcher/internal/lifecycle"
)

type fakeSource struct {
	mu         sync.Mutex
	latest     uint32
	batches    [][]*domain.RawEvent
	fetchErr   error
	fetchCalls int
	lastStart  uint32
}

func (f *fakeSource) LatestLedger(ctx context.Context) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeSource) Events(ctx context.Context, startLedger uint32, limit int) ([]*domain.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	f.lastStart = startLedger
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []domain.WebhookPayload
}

func (n *recordingNotifier) Notify(ctx context.Context, payload domain.WebhookPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
}

func (n *recordingNotifier) all() []domain.WebhookPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.WebhookPayload(nil), n.payloads...)
}

func rawEvent(id string, ledger uint32, topic string, value any) *domain.RawEvent {
	data, _ := json.Marshal(value)
	return &domain.RawEvent{
		ID:                       id,
		Type:                     "contract",
		Ledger:                   ledger,
		LedgerClosedAt:           "2024-06-01T00:00:00Z",
		ContractID:               "CCONTRACT",
		Topic:                    []string{topic},
		Value:                    data,
		TxHash:                   "tx-" + id,
		InSuccessfulContractCall: true,
	}
}

func createdValue(streamID string) map[string]any {
	return map[string]any{
		"stream_id":    streamID,
		"sender":       "GSENDER",
		"receiver":     "GRECEIVER",
		"total_amount": "1000",
		"duration":     3600,
	}
}

type harness struct {
	watcher  *Watcher
	source   *fakeSource
	store    *memory.MemoryStorage
	svc      *lifecycle.Service
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cfg Config, source *fakeSource) *harness {
	t.Helper()
	store := memory.NewMemoryStorage()
	svc := lifecycle.NewService(lifecycle.Config{}, memory.NewStreamRepo(store), nil)
	notifier := &recordingNotifier{}
	w := New(cfg, source, svc, audit.NewLog(memory.NewAuditRepo(store)), memory.NewCheckpointRepo(store), notifier)
	return &harness{watcher: w, source: source, store: store, svc: svc, notifier: notifier}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for i, expected := range want {
		if got := backoffDelay(time.Second, i+1); got != expected {
			t.Errorf("backoffDelay(1s, %d) = %v, want %v", i+1, got, expected)
		}
	}
}

func TestPollOnce_CursorAdvancesAndPersists(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		latest: 1100,
		batches: [][]*domain.RawEvent{{
			rawEvent("evt-1", 1001, "stream_created", createdValue("s1")),
			rawEvent("evt-2", 1005, "stream_withdrawn", map[string]any{
				"stream_id": "s1", "amount": "100",
			}),
		}},
	}
	h := newHarness(t, Config{}, source)
	h.watcher.cursor = 1000

	if err := h.watcher.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if source.lastStart != 1001 {
		t.Errorf("fetch start = %d, want cursor+1 = 1001", source.lastStart)
	}
	if got := h.watcher.State().LastProcessedLedger; got != 1005 {
		t.Errorf("cursor = %d, want 1005", got)
	}
	saved, err := memory.NewCheckpointRepo(h.store).Load(ctx)
	if err != nil || saved != 1005 {
		t.Errorf("checkpoint = %d (%v), want 1005", saved, err)
	}

	record, _ := h.svc.Record(ctx, "s1")
	if record == nil || record.StreamedAmount != "100" {
		t.Fatalf("record = %+v, want streamed 100", record)
	}
	if got := len(h.notifier.all()); got != 2 {
		t.Errorf("notifications = %d, want 2", got)
	}
}

func TestPollOnce_CursorNeverDecreases(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{
		batches: [][]*domain.RawEvent{{
			rawEvent("evt-1", 500, "stream_created", createdValue("s1")),
		}},
	}
	h := newHarness(t, Config{}, source)
	h.watcher.cursor = 1000

	if err := h.watcher.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if got := h.watcher.State().LastProcessedLedger; got != 1000 {
		t.Errorf("cursor = %d, want 1000 (stale events must not rewind)", got)
	}
}

func TestPollOnce_EmptyResultResyncsToTip(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 2000}
	h := newHarness(t, Config{}, source)
	h.watcher.cursor = 1500

	if err := h.watcher.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if got := h.watcher.State().LastProcessedLedger; got != 2000 {
		t.Errorf("cursor = %d, want tip 2000", got)
	}
}

func TestPollOnce_UnparseableEventSkipped(t *testing.T) {
	ctx := context.Background()
	bad := rawEvent("evt-bad", 1002, "stream_created", createdValue("s1"))
	bad.TxHash = ""
	source := &fakeSource{
		batches: [][]*domain.RawEvent{{
			bad,
			rawEvent("evt-ok", 1003, "stream_created", createdValue("s2")),
		}},
	}
	h := newHarness(t, Config{}, source)

	if err := h.watcher.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if record, _ := h.svc.Record(ctx, "s1"); record != nil {
		t.Error("unparseable event must not produce a record")
	}
	if record, _ := h.svc.Record(ctx, "s2"); record == nil {
		t.Error("valid event after a bad one must still apply")
	}
	// The skipped event still moves the cursor past its ledger.
	if got := h.watcher.State().LastProcessedLedger; got != 1003 {
		t.Errorf("cursor = %d, want 1003", got)
	}
}

func TestPollOnce_FailedCallSkipped(t *testing.T) {
	ctx := context.Background()
	failed := rawEvent("evt-fail", 1001, "stream_created", createdValue("s1"))
	failed.InSuccessfulContractCall = false
	source := &fakeSource{batches: [][]*domain.RawEvent{{failed}}}
	h := newHarness(t, Config{}, source)

	if err := h.watcher.pollOnce(ctx); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if record, _ := h.svc.Record(ctx, "s1"); record != nil {
		t.Error("event from a failed contract call must not produce a record")
	}
}

func TestStartStop_Lifecycle(t *testing.T) {
	source := &fakeSource{latest: 100}
	h := newHarness(t, Config{PollInterval: 5 * time.Millisecond}, source)

	h.watcher.Start(context.Background())
	if !h.watcher.State().IsRunning {
		t.Fatal("watcher should be running after Start")
	}
	// Second Start is a no-op.
	h.watcher.Start(context.Background())

	waitFor(t, time.Second, func() bool { return source.calls() >= 2 })

	h.watcher.Stop()
	if state := h.watcher.State(); state.IsRunning || state.Phase != domain.WatcherPhaseStopped {
		t.Errorf("state after stop = %+v, want stopped", state)
	}
	// Stop again is safe.
	h.watcher.Stop()
}

func TestRun_FatalAfterMaxRetries(t *testing.T) {
	source := &fakeSource{fetchErr: errors.New("rpc unreachable")}
	h := newHarness(t, Config{
		PollInterval: 5 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		MaxRetries:   3,
	}, source)

	h.watcher.Start(context.Background())

	waitFor(t, time.Second, func() bool { return !h.watcher.State().IsRunning })

	state := h.watcher.State()
	if state.ErrorCount != 3 {
		t.Errorf("errorCount = %d, want 3", state.ErrorCount)
	}
	if state.LastError == "" {
		t.Error("lastError should record the fetch failure")
	}
	if source.calls() != 3 {
		t.Errorf("fetch calls = %d, want exactly maxRetries", source.calls())
	}
}

func TestRun_ErrorCountResetsOnSuccess(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{fetchErr: errors.New("transient")}
	h := newHarness(t, Config{
		PollInterval: 5 * time.Millisecond,
		RetryDelay:   time.Millisecond,
		MaxRetries:   10,
	}, source)

	h.watcher.Start(ctx)
	waitFor(t, time.Second, func() bool { return h.watcher.State().ErrorCount >= 2 })

	source.mu.Lock()
	source.fetchErr = nil
	source.mu.Unlock()

	waitFor(t, time.Second, func() bool { return h.watcher.State().ErrorCount == 0 })
	if state := h.watcher.State(); state.Phase != domain.WatcherPhasePolling || state.LastError != "" {
		t.Errorf("state = %+v, want polling with cleared error", state)
	}
	h.watcher.Stop()
}

func TestStart_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{latest: 5000}
	h := newHarness(t, Config{PollInterval: time.Hour}, source)

	if err := memory.NewCheckpointRepo(h.store).Save(ctx, 4200); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	h.watcher.Start(ctx)
	defer h.watcher.Stop()

	if got := h.watcher.State().LastProcessedLedger; got != 4200 {
		t.Errorf("cursor = %d, want checkpoint 4200, not chain tip", got)
	}
}

func TestStart_FreshDeploymentProbesTip(t *testing.T) {
	source := &fakeSource{latest: 5000}
	h := newHarness(t, Config{PollInterval: time.Hour}, source)

	h.watcher.Start(context.Background())
	defer h.watcher.Stop()

	if got := h.watcher.State().LastProcessedLedger; got != 5000 {
		t.Errorf("cursor = %d, want chain tip 5000", got)
	}
}
