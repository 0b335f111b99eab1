package interfaces

import "context"

// MemoryType represents the type of memory
type MemoryType string

const (
	MemoryDecision MemoryType = "decision" // player decision
	MemoryBeat     MemoryType = "beat"     // committed narrative beat
	MemoryInsight  MemoryType = "insight"  // director bookkeeping
)

// Memory is a stored recollection with its vector embedding.
type Memory struct {
	ID        string
	SessionID string
	Type      MemoryType
	Content   string
	Turn      int
	Metadata  map[string]interface{}
	Embedding []float64
	Timestamp int64
}

// MemoryStore defines vector-backed recall over past narrative beats.
// Search failures degrade to empty results at the call site.
type MemoryStore interface {
	// StoreMemory stores a memory, embedding its content first.
	StoreMemory(ctx context.Context, memory *Memory) error

	// SearchMemories returns the memories most related to the query,
	// scoped to a session.
	SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]*Memory, error)

	// DeleteSessionMemories removes all memories for a session.
	DeleteSessionMemories(ctx context.Context, sessionID string) error
}
