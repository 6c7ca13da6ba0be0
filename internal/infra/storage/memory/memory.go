package memory

import (
	"context"
	"sync"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used for tests
// and for running the watcher without any external store.
type MemoryStorage struct {
	streams    map[string]*domain.StreamRecord
	audit      []*domain.AuditEntry
	webhooks   map[string]*domain.WebhookTarget
	checkpoint uint32
	hasCkpt    bool
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		streams:  make(map[string]*domain.StreamRecord),
		webhooks: make(map[string]*domain.WebhookTarget),
	}
}

// -----------------------------------------------------------------------------
// Stream Repository
// -----------------------------------------------------------------------------

type StreamRepo struct {
	store *MemoryStorage
}

func NewStreamRepo(store *MemoryStorage) *StreamRepo {
	return &StreamRepo{store: store}
}

func (r *StreamRepo) Get(ctx context.Context, streamID string) (*domain.StreamRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.streams[streamID].Clone(), nil
}

func (r *StreamRepo) Save(ctx context.Context, record *domain.StreamRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.streams[record.StreamID] = record.Clone()
	return nil
}

func (r *StreamRepo) Snapshot(ctx context.Context) (map[string]*domain.StreamRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	snap := make(map[string]*domain.StreamRecord, len(r.store.streams))
	for id, rec := range r.store.streams {
		snap[id] = rec.Clone()
	}
	return snap, nil
}

// -----------------------------------------------------------------------------
// Audit Log Repository
// -----------------------------------------------------------------------------

type AuditRepo struct {
	store *MemoryStorage
}

func NewAuditRepo(store *MemoryStorage) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e := *entry
	r.store.audit = append(r.store.audit, &e)
	return nil
}

func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]*domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := len(r.store.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.AuditEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		e := *r.store.audit[i]
		out = append(out, &e)
	}
	return out, nil
}

func (r *AuditRepo) ByStream(ctx context.Context, streamID string) ([]*domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.AuditEntry
	for i := len(r.store.audit) - 1; i >= 0; i-- {
		if r.store.audit[i].StreamID == streamID {
			e := *r.store.audit[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Webhook Repository
// -----------------------------------------------------------------------------

type WebhookRepo struct {
	store *MemoryStorage
}

func NewWebhookRepo(store *MemoryStorage) *WebhookRepo {
	return &WebhookRepo{store: store}
}

func (r *WebhookRepo) Save(ctx context.Context, target *domain.WebhookTarget) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	t := *target
	r.store.webhooks[target.ID] = &t
	return nil
}

func (r *WebhookRepo) Active(ctx context.Context) ([]*domain.WebhookTarget, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.WebhookTarget
	for _, t := range r.store.webhooks {
		if t.IsActive {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *WebhookRepo) All(ctx context.Context) ([]*domain.WebhookTarget, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.WebhookTarget, 0, len(r.store.webhooks))
	for _, t := range r.store.webhooks {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func (r *WebhookRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if t, ok := r.store.webhooks[id]; ok {
		t.IsActive = active
	}
	return nil
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Load(ctx context.Context) (uint32, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if !r.store.hasCkpt {
		return 0, storage.ErrCheckpointNotFound
	}
	return r.store.checkpoint, nil
}

func (r *CheckpointRepo) Save(ctx context.Context, ledger uint32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.checkpoint = ledger
	r.store.hasCkpt = true
	return nil
}
