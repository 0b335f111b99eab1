package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/memory"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

const fakeUnitJSON = `{
	"scene_id": "scene_atrium",
	"text": "The atrium smells of salt and lamp oil. Maren does not look up.",
	"speaker": "Warden Maren",
	"speaker_id": "maren",
	"visual": {
		"style": "grounded gothic realism",
		"environment": "signal station atrium, dusk",
		"lighting": "single lamp, deep shadow"
	},
	"choices": [
		{"id": "greet", "text": "Announce yourself."},
		{"id": "wait", "text": "Wait to be acknowledged."}
	],
	"ledger_updates": {"compliance": 5},
	"graph_updates": {
		"nodes": [{"id": "ferry", "label": "The Last Ferry", "group": "event"}],
		"links": [{"source": "visitor", "target": "ferry", "label": "arrived_by", "strength": 0.4}]
	},
	"audio": {"ambient": "theme", "mood": "clinical"}
}`

const fakeBriefJSON = `{
	"analysis": "The visitor just arrived; establish the power gradient.",
	"critique": "",
	"directives": ["keep maren distant", "plant the archive hook"],
	"focus_characters": ["maren", "cole"]
}`

// fakeText serves canned responses keyed on the request shape: brief
// schema requests get the brief, unit schema requests get the unit,
// schemaless requests get plain text.
type fakeText struct {
	mu       sync.Mutex
	calls    []string
	failAll  bool
	unitJSON string
}

func (f *fakeText) GenerateText(_ context.Context, req *interfaces.TextRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", fmt.Errorf("backend down")
	}
	if req.Schema == nil {
		f.calls = append(f.calls, "plain")
		return "a private thought", nil
	}
	props, _ := req.Schema["properties"].(map[string]interface{})
	if _, isBrief := props["analysis"]; isBrief {
		f.calls = append(f.calls, "plan")
		return fakeBriefJSON, nil
	}
	f.calls = append(f.calls, "synthesize")
	if f.unitJSON != "" {
		return f.unitJSON, nil
	}
	return fakeUnitJSON, nil
}

func (f *fakeText) callCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) byType(t string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, text interfaces.TextGenerator, useDirector bool) (*Orchestrator, *captureSink) {
	t.Helper()
	logger := zap.NewNop()
	engine := prompts.NewTemplateEngine()
	require.NoError(t, engine.InitializeDefaultTemplates())

	roster := models.DefaultRoster()
	manager := NewManager(roster)
	director := NewDirector(text, engine, roster, logger)
	store := memory.NewVectorStore(nil, logger)
	sink := &captureSink{}

	orch := NewOrchestrator(manager, director, nil, nil, nil, store,
		nil, nil, nil, sink, useDirector, logger)
	return orch, sink
}

func TestOpeningTurnCommitsState(t *testing.T) {
	text := &fakeText{}
	orch, sink := newTestOrchestrator(t, text, false)

	session, err := orch.StartSession(context.Background(), "first night")
	require.NoError(t, err)

	snap := session.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, "scene_atrium", snap.Current.SceneID)
	assert.Equal(t, 1, snap.Ledger.TurnCount)
	assert.Equal(t, 5, snap.Ledger.Compliance)
	assert.Equal(t, 100, snap.Ledger.Integrity)
	assert.True(t, snap.Graph.HasNode("ferry"))
	assert.False(t, snap.Busy)

	require.Len(t, sink.byType(EventUnit), 1)
}

func TestDirectorPipelineRunsAllStages(t *testing.T) {
	text := &fakeText{}
	orch, _ := newTestOrchestrator(t, text, true)

	_, err := orch.StartSession(context.Background(), "staged")
	require.NoError(t, err)

	assert.Equal(t, 1, text.callCount("plan"))
	assert.Equal(t, 1, text.callCount("synthesize"))
	// Two focus characters reason privately.
	assert.Equal(t, 2, text.callCount("plain"))
}

func TestBusyGuardDropsSubmission(t *testing.T) {
	text := &fakeText{}
	orch, _ := newTestOrchestrator(t, text, false)

	session, err := orch.StartSession(context.Background(), "busy")
	require.NoError(t, err)

	require.True(t, session.TryAcquire())
	defer session.Release()

	accepted, err := orch.SubmitChoice(session.ID, "greet", "")
	require.NoError(t, err)
	assert.False(t, accepted)
	// The dropped submission produced no new turn.
	assert.Equal(t, 1, session.Snapshot().Ledger.TurnCount)
}

func TestSubmitChoiceRunsFullTurn(t *testing.T) {
	text := &fakeText{}
	orch, sink := newTestOrchestrator(t, text, false)

	session, err := orch.StartSession(context.Background(), "second turn")
	require.NoError(t, err)

	accepted, err := orch.SubmitChoice(session.ID, "greet", "")
	require.NoError(t, err)
	assert.True(t, accepted)

	require.Eventually(t, func() bool {
		return session.Snapshot().Ledger.TurnCount == 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.False(t, session.Snapshot().Busy)
	assert.Len(t, sink.byType(EventUnit), 2)

	// The superseded unit moved into history with the action that caused it.
	history := session.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Announce yourself.", history[0].Action)
}

func TestTurnFailurePublishesErrorAndReleases(t *testing.T) {
	text := &fakeText{}
	orch, sink := newTestOrchestrator(t, text, false)

	session, err := orch.StartSession(context.Background(), "failing")
	require.NoError(t, err)

	text.mu.Lock()
	text.failAll = true
	text.mu.Unlock()

	accepted, err := orch.SubmitChoice(session.ID, "greet", "")
	require.NoError(t, err)
	assert.True(t, accepted)

	require.Eventually(t, func() bool {
		return len(sink.byType(EventError)) == 1
	}, 3*time.Second, 10*time.Millisecond)

	snap := session.Snapshot()
	assert.False(t, snap.Busy)
	assert.Equal(t, 1, snap.Ledger.TurnCount)
}

func TestSubmitChoiceUnknownSession(t *testing.T) {
	text := &fakeText{}
	orch, _ := newTestOrchestrator(t, text, false)

	_, err := orch.SubmitChoice("missing", "greet", "")
	assert.Error(t, err)
}

func TestEndSessionRemovesState(t *testing.T) {
	text := &fakeText{}
	orch, _ := newTestOrchestrator(t, text, false)

	session, err := orch.StartSession(context.Background(), "ending")
	require.NoError(t, err)

	require.NoError(t, orch.EndSession(context.Background(), session.ID))
	_, err = orch.Manager().Get(session.ID)
	assert.Error(t, err)
}

func TestSeedGraphContainsRoster(t *testing.T) {
	g := SeedGraph(models.DefaultRoster())
	assert.True(t, g.HasNode("station"))
	assert.True(t, g.HasNode("maren"))
	assert.True(t, g.HasNode("visitor"))
	assert.Len(t, g.Links, 5)
}

func TestMalformedUnitFailsTurn(t *testing.T) {
	text := &fakeText{unitJSON: `{"scene_id": "x", "text": ""}`}
	orch, _ := newTestOrchestrator(t, text, false)

	_, err := orch.StartSession(context.Background(), "malformed")
	assert.Error(t, err)
}

func TestStripFences(t *testing.T) {
	fenced := "```json\n" + fakeUnitJSON + "\n```"
	var unit models.NarrativeUnit
	require.NoError(t, json.Unmarshal([]byte(stripFences(fenced)), &unit))
	assert.Equal(t, "scene_atrium", unit.SceneID)
}
