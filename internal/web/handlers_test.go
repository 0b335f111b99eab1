package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/engine"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/memory"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

const testUnitJSON = `{
	"scene_id": "scene_atrium",
	"text": "The lamps gutter as the door closes behind you.",
	"visual": {"style": "grounded gothic realism", "environment": "atrium"},
	"choices": [
		{"id": "greet", "text": "Announce yourself."},
		{"id": "wait", "text": "Wait in the doorway."}
	],
	"ledger_updates": {"stress": 10}
}`

type cannedText struct{}

func (cannedText) GenerateText(_ context.Context, req *interfaces.TextRequest) (string, error) {
	if req.Schema == nil {
		return "a thought", nil
	}
	return testUnitJSON, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Orchestrator) {
	t.Helper()
	logger := zap.NewNop()
	promptEngine := prompts.NewTemplateEngine()
	require.NoError(t, promptEngine.InitializeDefaultTemplates())

	roster := models.DefaultRoster()
	manager := engine.NewManager(roster)
	director := engine.NewDirector(cannedText{}, promptEngine, roster, logger)
	memStore := memory.NewVectorStore(nil, logger)

	hub := NewEventHub(logger)
	go hub.Run()

	orch := engine.NewOrchestrator(manager, director, nil, nil, nil, memStore,
		nil, nil, nil, hub, false, logger)

	cache := generators.NewSceneCache(t.TempDir(), 4)
	require.NoError(t, cache.Initialize())
	require.NoError(t, cache.Put("scene_atrium",
		&interfaces.Image{Data: []byte("png"), MIMEType: "image/png"}, ""))

	clips := generators.NewClipStore(4)
	clips.Put(&generators.Clip{
		SessionID: "clip-session", Turn: 1,
		MIMEType: "audio/wav", Data: []byte("wav"),
	})

	handlers := NewHandlers(config.Default(), orch, hub, clips, cache, nil, logger)
	server := httptest.NewServer(NewRouter(handlers, logger))
	t.Cleanup(server.Close)
	return server, orch
}

func createSession(t *testing.T, server *httptest.Server) engine.Snapshot {
	t.Helper()
	resp, err := http.Post(server.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"title": "test night"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var snap engine.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndGetSession(t *testing.T) {
	server, _ := newTestServer(t)

	snap := createSession(t, server)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 1, snap.TurnCount)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "scene_atrium", snap.Current.SceneID)
	assert.Equal(t, 10, snap.Ledger.Stress)

	resp, err := http.Get(server.URL + "/api/sessions/" + snap.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitChoiceAccepted(t *testing.T) {
	server, orch := newTestServer(t)
	snap := createSession(t, server)

	resp, err := http.Post(server.URL+"/api/sessions/"+snap.ID+"/choice",
		"application/json", strings.NewReader(`{"choice_id": "greet"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["accepted"])

	session, err := orch.Manager().Get(snap.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return session.Snapshot().Ledger.TurnCount == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSubmitChoiceWhileBusyNotAccepted(t *testing.T) {
	server, orch := newTestServer(t)
	snap := createSession(t, server)

	session, err := orch.Manager().Get(snap.ID)
	require.NoError(t, err)
	require.True(t, session.TryAcquire())
	defer session.Release()

	resp, err := http.Post(server.URL+"/api/sessions/"+snap.ID+"/choice",
		"application/json", strings.NewReader(`{"choice_id": "greet"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body["accepted"])
}

func TestSubmitChoiceValidation(t *testing.T) {
	server, _ := newTestServer(t)
	snap := createSession(t, server)

	resp, err := http.Post(server.URL+"/api/sessions/"+snap.ID+"/choice",
		"application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSessionReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/sessions/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetGraph(t *testing.T) {
	server, _ := newTestServer(t)
	snap := createSession(t, server)

	resp, err := http.Get(server.URL + "/api/sessions/" + snap.ID + "/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g struct {
		Nodes []map[string]interface{} `json:"nodes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	assert.NotEmpty(t, g.Nodes)
}

func TestGetSceneImage(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/scenes/scene_atrium/image")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	missing, err := http.Get(server.URL + "/api/scenes/nowhere/image")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestGetSpeechClip(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/sessions/clip-session/speech")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))

	missing, err := http.Get(server.URL + "/api/sessions/clip-session/speech?turn=9")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestFeedUnavailableWithoutRedis(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEndSession(t *testing.T) {
	server, orch := newTestServer(t)
	snap := createSession(t, server)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/sessions/"+snap.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = orch.Manager().Get(snap.ID)
	assert.Error(t, err)
}
