package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage/memory"
)

func newTestService(t *testing.T) (*Service, *memory.MemoryStorage) {
	t.Helper()
	store := memory.NewMemoryStorage()
	return NewService(memory.NewWebhookRepo(store)), store
}

func samplePayload() domain.WebhookPayload {
	return domain.WebhookPayload{
		EventType: "stream_created",
		StreamID:  "s1",
		TxHash:    "abc",
		Sender:    "GSENDER",
		Receiver:  "GRECEIVER",
		Amount:    "1000",
		Timestamp: "2024-06-01T00:00:00Z",
	}
}

func TestRegister_ValidatesURL(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "ftp://example.com/hook"); err == nil {
		t.Error("expected error for non-http scheme")
	}
	if _, err := svc.Register(ctx, "not a url"); err == nil {
		t.Error("expected error for garbage url")
	}

	target, err := svc.Register(ctx, "https://example.com/hook")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if target.ID == "" || !target.IsActive {
		t.Errorf("target = %+v, want active with generated id", target)
	}
}

func TestNotify_DeliversToActiveTargetsOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	var mu sync.Mutex
	hits := map[string]int{}
	newEndpoint := func(name string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload domain.WebhookPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("bad payload at %s: %v", name, err)
			}
			if payload.StreamID != "s1" {
				t.Errorf("streamId = %s, want s1", payload.StreamID)
			}
			if ua := r.Header.Get("User-Agent"); ua != userAgent {
				t.Errorf("user-agent = %q, want %q", ua, userAgent)
			}
			mu.Lock()
			hits[name]++
			mu.Unlock()
		}))
	}
	first := newEndpoint("first")
	defer first.Close()
	second := newEndpoint("second")
	defer second.Close()

	if _, err := svc.Register(ctx, first.URL); err != nil {
		t.Fatal(err)
	}
	inactive, err := svc.Register(ctx, second.URL)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Deactivate(ctx, inactive.ID); err != nil {
		t.Fatal(err)
	}

	svc.Notify(ctx, samplePayload())
	svc.Drain()

	mu.Lock()
	defer mu.Unlock()
	if hits["first"] != 1 {
		t.Errorf("active target hits = %d, want 1", hits["first"])
	}
	if hits["second"] != 0 {
		t.Errorf("deactivated target hits = %d, want 0", hits["second"])
	}
}

func TestNotify_FailingTargetDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	var mu sync.Mutex
	delivered := 0
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}))
	defer healthy.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer failing.Close()

	if _, err := svc.Register(ctx, failing.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, healthy.URL); err != nil {
		t.Fatal(err)
	}

	svc.Notify(ctx, samplePayload())
	svc.Drain()

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("healthy deliveries = %d, want 1", delivered)
	}
}

func TestNotify_NoTargetsIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Notify(context.Background(), samplePayload())
	svc.Drain()
}
