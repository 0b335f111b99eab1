package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/engine"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // development
	},
}

type Handlers struct {
	config       *config.Config
	orchestrator *engine.Orchestrator
	hub          *EventHub
	clips        *generators.ClipStore
	scenes       *generators.SceneCache
	feed         *storage.RedisStore
	logger       *zap.Logger
}

func NewHandlers(cfg *config.Config, orch *engine.Orchestrator, hub *EventHub, clips *generators.ClipStore, scenes *generators.SceneCache, feed *storage.RedisStore, logger *zap.Logger) *Handlers {
	return &Handlers{
		config:       cfg,
		orchestrator: orch,
		hub:          hub,
		clips:        clips,
		scenes:       scenes,
		feed:         feed,
		logger:       logger,
	}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "nightloom",
	})
}

// CreateSession starts a playthrough and runs the opening turn before
// responding.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "An Unplanned Stay"
	}

	session, err := h.orchestrator.StartSession(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("session creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

// GetSession returns the live snapshot.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// SubmitChoice queues a turn. A submission while a turn is in flight is
// dropped and reported as not accepted.
func (h *Handlers) SubmitChoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChoiceID string `json:"choice_id"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChoiceID == "" && req.Text == "" {
		writeError(w, http.StatusBadRequest, "choice_id or text required")
		return
	}

	accepted, err := h.orchestrator.SubmitChoice(chi.URLParam(r, "session_id"), req.ChoiceID, req.Text)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]bool{"accepted": accepted})
}

// EndSession tears the session down.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.orchestrator.EndSession(r.Context(), chi.URLParam(r, "session_id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// GetGraph returns the session's relationship graph.
func (h *Handlers) GetGraph(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	_, g := session.State()
	writeJSON(w, http.StatusOK, g)
}

// GetHistory returns the rolling turn window.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.History())
}

// GetSpeech streams a narration clip: the latest by default, a specific
// turn with ?turn=N.
func (h *Handlers) GetSpeech(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var clip *generators.Clip
	if turnParam := r.URL.Query().Get("turn"); turnParam != "" {
		turn, err := strconv.Atoi(turnParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid turn")
			return
		}
		clip = h.clips.ForTurn(sessionID, turn)
	} else {
		clip = h.clips.Latest(sessionID)
	}
	if clip == nil {
		writeError(w, http.StatusNotFound, "no narration clip available")
		return
	}

	w.Header().Set("Content-Type", clip.MIMEType)
	w.WriteHeader(http.StatusOK)
	w.Write(clip.Data)
}

// AnimateScene produces a short animation of the current scene.
func (h *Handlers) AnimateScene(w http.ResponseWriter, r *http.Request) {
	url, err := h.orchestrator.AnimateScene(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// GetSceneImage serves the cached base image for a scene.
func (h *Handlers) GetSceneImage(w http.ResponseWriter, r *http.Request) {
	img := h.scenes.Get(chi.URLParam(r, "scene_id"))
	if img == nil {
		writeError(w, http.StatusNotFound, "no image for scene")
		return
	}
	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// GetFeed returns recent committed turns across sessions.
func (h *Handlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed storage not configured")
		return
	}
	limit := int64(50)
	if param := r.URL.Query().Get("limit"); param != "" {
		if v, err := strconv.ParseInt(param, 10, 64); err == nil {
			limit = v
		}
	}
	events, err := h.feed.GetRecentTurnEvents(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read feed")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// Subscribe upgrades to WebSocket and registers the client with the hub.
// ?session=<id> scopes delivery to one session.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:        generateClientID(),
		SessionID: r.URL.Query().Get("session"),
		Conn:      conn,
		Send:      make(chan []byte, 256),
		Hub:       h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*engine.Session, bool) {
	session, err := h.orchestrator.Manager().Get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
