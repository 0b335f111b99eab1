package generators

import (
	"sync"
	"time"
)

// Clip is one synthesized speech clip.
type Clip struct {
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn"`
	SpeakerID string    `json:"speaker_id"`
	VoiceID   string    `json:"voice_id"`
	MIMEType  string    `json:"mime_type"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ClipStore keeps the most recent speech clips per session so the
// client can replay narration without another synthesis round trip.
type ClipStore struct {
	clips      map[string][]*Clip
	maxPerSess int
	mu         sync.RWMutex
}

// NewClipStore creates a store retaining up to maxPerSession clips
// for each session.
func NewClipStore(maxPerSession int) *ClipStore {
	if maxPerSession <= 0 {
		maxPerSession = 8
	}
	return &ClipStore{
		clips:      make(map[string][]*Clip),
		maxPerSess: maxPerSession,
	}
}

// Put records a clip, evicting the oldest when the session is full.
func (s *ClipStore) Put(clip *Clip) {
	if clip == nil || len(clip.Data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.clips[clip.SessionID], clip)
	if len(list) > s.maxPerSess {
		list = list[len(list)-s.maxPerSess:]
	}
	s.clips[clip.SessionID] = list
}

// Latest returns the newest clip for a session, or nil.
func (s *ClipStore) Latest(sessionID string) *Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.clips[sessionID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

// ForTurn returns the clip recorded for a specific turn, or nil.
func (s *ClipStore) ForTurn(sessionID string, turn int) *Clip {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.clips[sessionID]) - 1; i >= 0; i-- {
		if s.clips[sessionID][i].Turn == turn {
			return s.clips[sessionID][i]
		}
	}
	return nil
}

// DropSession forgets all clips for a session.
func (s *ClipStore) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clips, sessionID)
}
