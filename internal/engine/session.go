package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/atomic"

	"nightloom/server/internal/graph"
	"nightloom/server/internal/ledger"
	"nightloom/server/internal/models"
)

const historyWindow = 12

// HistoryEntry is one committed turn kept in the session's rolling window.
type HistoryEntry struct {
	Turn   int                  `json:"turn"`
	Action string               `json:"action"`
	Unit   models.NarrativeUnit `json:"unit"`
}

// Session holds the live state of one playthrough. State fields are
// replaced wholesale under the mutex on commit; readers get copies.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time

	mu      sync.RWMutex
	ledger  ledger.Ledger
	graph   graph.Graph
	history []HistoryEntry
	current *models.NarrativeUnit

	// busy guards the turn pipeline: one submission in flight at a time.
	busy *atomic.Bool
}

// Snapshot is a read-only view of session state for handlers.
type Snapshot struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Ledger    ledger.Ledger         `json:"ledger"`
	Graph     graph.Graph           `json:"graph"`
	Current   *models.NarrativeUnit `json:"current,omitempty"`
	TurnCount int                   `json:"turn_count"`
	Busy      bool                  `json:"busy"`
}

// Snapshot returns a consistent copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var current *models.NarrativeUnit
	if s.current != nil {
		c := *s.current
		current = &c
	}
	return Snapshot{
		ID:        s.ID,
		Title:     s.Title,
		Ledger:    s.ledger,
		Graph:     s.graph,
		Current:   current,
		TurnCount: s.ledger.TurnCount,
		Busy:      s.busy.Load(),
	}
}

// State returns the ledger and graph under the read lock.
func (s *Session) State() (ledger.Ledger, graph.Graph) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger, s.graph
}

// Current returns a copy of the latest committed unit, or nil before the
// opening turn.
func (s *Session) Current() *models.NarrativeUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	c := *s.current
	return &c
}

// History returns a copy of the rolling turn window.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Commit replaces the session state with the outcome of a turn. The
// superseded unit moves into history; the window keeps the newest
// entries only.
func (s *Session) Commit(action string, unit *models.NarrativeUnit, l ledger.Ledger, g graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		s.history = append(s.history, HistoryEntry{
			Turn:   s.ledger.TurnCount,
			Action: action,
			Unit:   *s.current,
		})
		if len(s.history) > historyWindow {
			s.history = s.history[len(s.history)-historyWindow:]
		}
	}
	s.ledger = l
	s.graph = g
	s.current = unit
}

// TryAcquire attempts to mark the session busy. False means a turn is
// already in flight.
func (s *Session) TryAcquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release clears the busy flag after a turn completes or fails.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Manager owns the live session table.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	entropy  *ulid.MonotonicEntropy
	roster   models.Roster
}

// NewManager creates an empty session table over the given roster.
func NewManager(roster models.Roster) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		roster:   roster,
	}
}

// Roster returns the character table shared by all sessions.
func (m *Manager) Roster() models.Roster {
	return m.roster
}

// Create registers a new session seeded with the starting ledger and graph.
func (m *Manager) Create(title string, seed graph.Graph) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session := &Session{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String(),
		Title:     title,
		CreatedAt: time.Now(),
		ledger:    ledger.New(),
		graph:     seed,
		busy:      atomic.NewBool(false),
	}
	m.sessions[session.ID] = session
	return session
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return session, nil
}

// Remove drops a session from the table.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// ActiveIDs lists the ids of all live sessions.
func (m *Manager) ActiveIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
