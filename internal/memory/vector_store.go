package memory

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"nightloom/server/internal/interfaces"
)

const (
	defaultSearchLimit = 5
	scoreThreshold     = 0.55
)

type storedMemory struct {
	memory interfaces.Memory
	vector []float64
}

// VectorStore is an in-memory semantic memory store. Memories are
// embedded on write and retrieved by cosine similarity. It implements
// interfaces.MemoryStore.
type VectorStore struct {
	mu       sync.RWMutex
	memories map[string][]*storedMemory // sessionID -> memories
	embedder interfaces.Embedder
	entropy  *ulid.MonotonicEntropy
	logger   *zap.Logger
}

// NewVectorStore creates a store backed by the given embedder. A nil
// embedder is allowed; writes and searches then degrade to recency order.
func NewVectorStore(embedder interfaces.Embedder, logger *zap.Logger) *VectorStore {
	return &VectorStore{
		memories: make(map[string][]*storedMemory),
		embedder: embedder,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		logger:   logger,
	}
}

// StoreMemory implements interfaces.MemoryStore.
func (s *VectorStore) StoreMemory(ctx context.Context, mem *interfaces.Memory) error {
	if mem == nil || mem.Content == "" {
		return fmt.Errorf("empty memory")
	}
	if mem.ID == "" {
		s.mu.Lock()
		mem.ID = ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
		s.mu.Unlock()
	}
	if mem.Timestamp == 0 {
		mem.Timestamp = time.Now().Unix()
	}

	var vector []float64
	if s.embedder != nil {
		v, err := s.embedder.Embed(ctx, mem.Content)
		if err != nil {
			s.logger.Warn("embedding failed, storing without vector",
				zap.String("session_id", mem.SessionID), zap.Error(err))
		} else {
			vector = v
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[mem.SessionID] = append(s.memories[mem.SessionID], &storedMemory{
		memory: *mem,
		vector: vector,
	})
	return nil
}

// SearchMemories implements interfaces.MemoryStore. Results come back
// most-similar first; memories without vectors rank by recency behind
// the scored ones.
func (s *VectorStore) SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]*interfaces.Memory, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var queryVector []float64
	if s.embedder != nil && query != "" {
		v, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("query embedding failed, falling back to recency",
				zap.Error(err))
		} else {
			queryVector = v
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.memories[sessionID]
	if len(stored) == 0 {
		return nil, nil
	}

	if queryVector == nil {
		return recentMemories(stored, limit), nil
	}

	type scored struct {
		mem   *interfaces.Memory
		score float64
	}
	candidates := make([]scored, 0, len(stored))
	for _, sm := range stored {
		if sm.vector == nil {
			continue
		}
		score := cosineSimilarity(queryVector, sm.vector)
		if score < scoreThreshold {
			continue
		}
		m := sm.memory
		candidates = append(candidates, scored{mem: &m, score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	results := make([]*interfaces.Memory, 0, limit)
	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		results = append(results, c.mem)
	}
	return results, nil
}

// DeleteSessionMemories implements interfaces.MemoryStore.
func (s *VectorStore) DeleteSessionMemories(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, sessionID)
	return nil
}

// Count returns the number of memories held for a session.
func (s *VectorStore) Count(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories[sessionID])
}

func recentMemories(stored []*storedMemory, limit int) []*interfaces.Memory {
	start := len(stored) - limit
	if start < 0 {
		start = 0
	}
	results := make([]*interfaces.Memory, 0, limit)
	for i := len(stored) - 1; i >= start; i-- {
		m := stored[i].memory
		results = append(results, &m)
	}
	return results
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BuildContextSummary renders memories as a numbered digest for prompt
// assembly. Empty input yields an explicit marker so the template slot
// never goes blank.
func BuildContextSummary(memories []*interfaces.Memory, max int) string {
	if len(memories) == 0 {
		return "(no recorded history)"
	}
	if max > 0 && len(memories) > max {
		memories = memories[:max]
	}

	var b strings.Builder
	b.WriteString("## Relevant history\n\n")
	for i, mem := range memories {
		fmt.Fprintf(&b, "%d. ", i+1)
		switch mem.Type {
		case interfaces.MemoryDecision:
			fmt.Fprintf(&b, "Visitor chose: %s", mem.Content)
		case interfaces.MemoryBeat:
			fmt.Fprintf(&b, "Story beat: %s", mem.Content)
		case interfaces.MemoryInsight:
			fmt.Fprintf(&b, "Observed: %s", mem.Content)
		default:
			b.WriteString(mem.Content)
		}
		if mem.Turn > 0 {
			fmt.Fprintf(&b, " (turn %d)", mem.Turn)
		}
		b.WriteString("\n")
	}
	return b.String()
}
