package batch

import (
	"context"
	"log/slog"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
	"github.com/stellarstream/watcher/internal/metrics"
)

// LookupError reports one requested id the store does not hold.
type LookupError struct {
	StreamID string `json:"stream_id"`
	Error    string `json:"error"`
}

// Result is the response to one batch query. Results and errors together
// cover every distinct requested id exactly once, each in first-seen input
// order.
type Result struct {
	Results []*domain.StreamRecord `json:"results"`
	Errors  []LookupError          `json:"errors"`
}

// Service answers bulk metadata queries against the stream store with a
// single snapshot read per call, whatever the batch size.
type Service struct {
	streams storage.StreamRepository
	log     *slog.Logger
}

// NewService creates a batch query service.
func NewService(streams storage.StreamRepository) *Service {
	return &Service{streams: streams, log: slog.Default()}
}

// GetBatch looks every requested id up in one snapshot. Duplicate ids are
// answered once. An unreadable store degrades to empty: every id comes back
// as a not-found error, never as a call failure.
func (s *Service) GetBatch(ctx context.Context, ids []string) *Result {
	metrics.BatchQueries.Inc()

	snapshot, err := s.streams.Snapshot(ctx)
	if err != nil {
		s.log.Warn("stream snapshot unavailable, answering batch from empty store", "error", err)
		snapshot = nil
	}

	out := &Result{
		Results: []*domain.StreamRecord{},
		Errors:  []LookupError{},
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if record, ok := snapshot[id]; ok {
			out.Results = append(out.Results, record)
		} else {
			out.Errors = append(out.Errors, LookupError{StreamID: id, Error: "Stream not found"})
		}
	}
	return out
}
