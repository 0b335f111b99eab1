package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// KV is the key-value string store used to persist graph snapshots
// across sessions.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// Store persists graph snapshots to a key-value backend under a fixed key.
// Writes are debounced with a cancel-and-reschedule timer: every schedule
// call before the delay elapses cancels the pending write and starts over.
// Snapshots are only written once the graph has grown past the seed size.
type Store struct {
	kv       KV
	key      string
	delay    time.Duration
	seedSize int
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewStore creates a graph store. seedSize is the node count of the initial
// graph; snapshots smaller than or equal to it are not worth persisting.
func NewStore(kv KV, key string, delay time.Duration, seedSize int, logger *zap.Logger) *Store {
	return &Store{
		kv:       kv,
		key:      key,
		delay:    delay,
		seedSize: seedSize,
		logger:   logger,
	}
}

// Schedule queues a debounced snapshot write for the given graph.
func (s *Store) Schedule(g Graph) {
	if s.kv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		if err := s.Save(context.Background(), g); err != nil {
			s.logger.Warn("graph snapshot failed", zap.Error(err))
		}
	})
}

// Save writes the snapshot immediately, subject to the minimum-size check.
func (s *Store) Save(ctx context.Context, g Graph) error {
	if s.kv == nil {
		return nil
	}
	if len(g.Nodes) <= s.seedSize {
		return nil
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to serialize graph: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("failed to persist graph: %w", err)
	}
	s.logger.Debug("graph snapshot persisted",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("links", len(g.Links)))
	return nil
}

// Restore loads the persisted snapshot. A missing or unreadable snapshot
// returns ok=false rather than an error; the caller falls back to the seed.
func (s *Store) Restore(ctx context.Context) (Graph, bool) {
	if s.kv == nil {
		return Graph{}, false
	}
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil || raw == "" {
		return Graph{}, false
	}
	var g Graph
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		s.logger.Warn("discarding corrupt graph snapshot", zap.Error(err))
		return Graph{}, false
	}
	return g, true
}

// Flush cancels any pending debounced write and saves immediately.
func (s *Store) Flush(ctx context.Context, g Graph) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.Save(ctx, g)
}
