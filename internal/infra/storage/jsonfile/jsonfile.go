// Package jsonfile provides a single-file JSON store for stream records.
//
// The file holds the full keyed snapshot plus the ledger checkpoint. A
// missing or unreadable file degrades to an empty store, never an error, so
// a fresh deployment and a wiped data directory behave the same.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/stellarstream/watcher/internal/core/domain"
	"github.com/stellarstream/watcher/internal/infra/storage"
)

type database struct {
	Checkpoint uint32                          `json:"checkpoint,omitempty"`
	Streams    map[string]*domain.StreamRecord `json:"streams"`
}

// Store implements storage.StreamRepository and storage.CheckpointRepository
// over one JSON file. Writes replace the whole file; the single-writer
// assumption of the watcher loop makes that safe.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Get(ctx context.Context, streamID string) (*domain.StreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.load()
	return db.Streams[streamID].Clone(), nil
}

func (s *Store) Save(ctx context.Context, record *domain.StreamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.load()
	db.Streams[record.StreamID] = record.Clone()
	return s.flush(db)
}

func (s *Store) Snapshot(ctx context.Context) (map[string]*domain.StreamRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.load()
	snap := make(map[string]*domain.StreamRecord, len(db.Streams))
	for id, rec := range db.Streams {
		snap[id] = rec.Clone()
	}
	return snap, nil
}

// Checkpoint returns the ledger-checkpoint view of the same file.
func (s *Store) Checkpoint() *CheckpointView {
	return &CheckpointView{store: s}
}

// CheckpointView implements storage.CheckpointRepository over a Store.
type CheckpointView struct {
	store *Store
}

func (v *CheckpointView) Load(ctx context.Context) (uint32, error) {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	db := v.store.load()
	if db.Checkpoint == 0 {
		return 0, storage.ErrCheckpointNotFound
	}
	return db.Checkpoint, nil
}

func (v *CheckpointView) Save(ctx context.Context, ledger uint32) error {
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	db := v.store.load()
	db.Checkpoint = ledger
	return v.store.flush(db)
}

// load reads the file, degrading to an empty database on any failure.
func (s *Store) load() *database {
	db := &database{Streams: make(map[string]*domain.StreamRecord)}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return db
	}

	var parsed database
	if err := json.Unmarshal(data, &parsed); err != nil {
		return db
	}
	if parsed.Streams != nil {
		db.Streams = parsed.Streams
	}
	db.Checkpoint = parsed.Checkpoint
	return db
}

func (s *Store) flush(db *database) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
