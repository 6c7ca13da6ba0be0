package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
	"github.com/stellarstream/watcher/internal/metrics"
)

const (
	deliveryTimeout = 10 * time.Second
	userAgent       = "stellarstream-watcher/1.0"
)

// Service manages webhook registrations and fans event payloads out to every
// active target. Delivery is fire-and-forget per target; a slow or failing
// endpoint never blocks the poll loop or the other targets.
type Service struct {
	targets    storage.WebhookRepository
	httpClient *http.Client
	log        *slog.Logger

	// wg tracks in-flight deliveries so shutdown can drain them.
	wg sync.WaitGroup
}

// NewService creates a webhook service backed by the given registry.
func NewService(targets storage.WebhookRepository) *Service {
	return &Service{
		targets: targets,
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
		log: slog.Default(),
	}
}

// Register stores a new active target and returns it. The URL must be
// absolute http or https.
func (s *Service) Register(ctx context.Context, url string) (*domain.WebhookTarget, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid webhook url %q", url)
	}

	target := &domain.WebhookTarget{
		ID:        uuid.NewString(),
		URL:       url,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.targets.Save(ctx, target); err != nil {
		return nil, fmt.Errorf("save webhook: %w", err)
	}
	s.log.Info("webhook registered", "id", target.ID, "url", target.URL)
	return target, nil
}

// List returns every registered target, active or not.
func (s *Service) List(ctx context.Context) ([]*domain.WebhookTarget, error) {
	return s.targets.All(ctx)
}

// Deactivate keeps the registration but stops deliveries to it.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.targets.SetActive(ctx, id, false)
}

// Notify posts the payload to every active target concurrently. Failures are
// logged and counted; they are never surfaced to the caller.
func (s *Service) Notify(ctx context.Context, payload domain.WebhookPayload) {
	targets, err := s.targets.Active(ctx)
	if err != nil {
		s.log.Warn("webhook target lookup failed, skipping notification",
			"event_type", payload.EventType, "error", err)
		return
	}
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("webhook payload marshal failed", "event_type", payload.EventType, "error", err)
		return
	}

	for _, target := range targets {
		s.wg.Add(1)
		go func(target *domain.WebhookTarget) {
			defer s.wg.Done()
			s.deliver(target, body)
		}(target)
	}
}

// Drain waits for in-flight deliveries to finish.
func (s *Service) Drain() {
	s.wg.Wait()
}

func (s *Service) deliver(target *domain.WebhookTarget, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", target.URL, bytes.NewReader(body))
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		s.log.Warn("webhook request build failed", "url", target.URL, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		s.log.Warn("webhook delivery failed", "url", target.URL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		s.log.Warn("webhook delivery rejected", "url", target.URL, "status", resp.StatusCode)
		return
	}
	metrics.WebhookDeliveries.WithLabelValues("ok").Inc()
	s.log.Debug("webhook delivered", "url", target.URL, "status", resp.StatusCode)
}
