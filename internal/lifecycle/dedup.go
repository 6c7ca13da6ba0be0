package lifecycle

import (
	"context"
	"sync"
)

// DedupStore remembers applied event IDs so re-processed ledger ranges do
// not double-apply non-idempotent events.
type DedupStore interface {
	// MarkApplied records an event ID and reports whether it was seen before.
	MarkApplied(ctx context.Context, eventID string) (seen bool, err error)
}

// MemoryDedup is a bounded in-process dedup window. Oldest entries are
// evicted first once the window is full.
type MemoryDedup struct {
	mu     sync.Mutex
	window int
	order  []string
	seen   map[string]struct{}
}

// NewMemoryDedup creates a dedup window holding up to `window` event IDs.
func NewMemoryDedup(window int) *MemoryDedup {
	if window <= 0 {
		window = 10000
	}
	return &MemoryDedup{
		window: window,
		seen:   make(map[string]struct{}, window),
	}
}

func (d *MemoryDedup) MarkApplied(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return true, nil
	}

	if len(d.order) >= d.window {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}

	d.seen[eventID] = struct{}{}
	d.order = append(d.order, eventID)
	return false, nil
}
