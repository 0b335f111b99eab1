package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nightloom/server/internal/graph"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/ledger"
	"nightloom/server/internal/memory"
	"nightloom/server/internal/models"
	"nightloom/server/internal/storage"
)

const (
	turnTimeout   = 5 * time.Minute
	openingAction = "The visitor steps off the last ferry and enters the signal station."
)

// Orchestrator drives the full turn pipeline and owns all post-commit
// side effects. Exactly one turn runs per session at a time; submissions
// while busy are dropped.
type Orchestrator struct {
	manager  *Manager
	director *Director
	visual   *VisualPipeline
	speech   *SpeechPipeline
	video    interfaces.VideoGenerator
	memories interfaces.MemoryStore

	graphStore *graph.Store
	archive    *storage.MySQLStore
	feed       *storage.RedisStore

	sink        EventSink
	useDirector bool
	logger      *zap.Logger
}

// NewOrchestrator wires the pipeline. graphStore, archive, feed and
// video may be nil; the matching side effects are then skipped.
func NewOrchestrator(
	manager *Manager,
	director *Director,
	visual *VisualPipeline,
	speech *SpeechPipeline,
	video interfaces.VideoGenerator,
	memories interfaces.MemoryStore,
	graphStore *graph.Store,
	archive *storage.MySQLStore,
	feed *storage.RedisStore,
	sink EventSink,
	useDirector bool,
	logger *zap.Logger,
) *Orchestrator {
	if sink == nil {
		sink = NopSink{}
	}
	return &Orchestrator{
		manager:     manager,
		director:    director,
		visual:      visual,
		speech:      speech,
		video:       video,
		memories:    memories,
		graphStore:  graphStore,
		archive:     archive,
		feed:        feed,
		sink:        sink,
		useDirector: useDirector,
		logger:      logger,
	}
}

// SeedGraph builds the starting relationship graph from the roster.
func SeedGraph(roster models.Roster) graph.Graph {
	g := graph.Graph{}
	g.Nodes = append(g.Nodes, graph.Node{
		ID: "station", Label: "Greyharbor Signal Station", Group: graph.GroupConcept,
	})
	for _, id := range roster.IDs() {
		c := roster[id]
		g.Nodes = append(g.Nodes, graph.Node{
			ID: c.ID, Label: c.Name, Group: graph.GroupCharacter,
		})
		g.Links = append(g.Links, graph.Link{
			Source: c.ID, Target: "station", Label: "resides_at", Strength: 0.5,
		})
	}
	return g
}

// StartSession creates a session, restores or seeds its graph, and runs
// the opening turn synchronously.
func (o *Orchestrator) StartSession(ctx context.Context, title string) (*Session, error) {
	seed := SeedGraph(o.manager.Roster())
	if o.graphStore != nil {
		if restored, ok := o.graphStore.Restore(ctx); ok {
			seed = restored
		}
	}

	session := o.manager.Create(title, seed)
	if !session.TryAcquire() {
		return nil, fmt.Errorf("fresh session unexpectedly busy")
	}
	defer session.Release()

	if err := o.runTurn(ctx, session, openingAction); err != nil {
		o.manager.Remove(session.ID)
		return nil, fmt.Errorf("opening turn failed: %w", err)
	}

	if o.archive != nil {
		record := &models.SessionRecord{
			ID:     session.ID,
			Title:  title,
			Status: "active",
		}
		if err := o.archive.CreateSessionRecord(record); err != nil {
			o.logger.Warn("failed to archive session", zap.Error(err))
		}
	}
	return session, nil
}

// SubmitChoice starts a turn for the chosen option. Returns false when
// the session is already processing a turn; the submission is dropped
// without side effects.
func (o *Orchestrator) SubmitChoice(sessionID, choiceID, choiceText string) (bool, error) {
	session, err := o.manager.Get(sessionID)
	if err != nil {
		return false, err
	}
	if !session.TryAcquire() {
		o.logger.Debug("turn already in flight, submission dropped",
			zap.String("session_id", sessionID),
			zap.String("choice_id", choiceID))
		return false, nil
	}

	action := choiceText
	if action == "" {
		action = o.resolveChoiceText(session, choiceID)
	}

	go func() {
		defer session.Release()
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()

		if err := o.runTurn(ctx, session, action); err != nil {
			o.logger.Error("turn failed",
				zap.String("session_id", session.ID), zap.Error(err))
			o.sink.Publish(Event{
				Type:      EventError,
				SessionID: session.ID,
				Payload:   map[string]string{"message": "the story faltered, try again"},
			})
		}
	}()
	return true, nil
}

// EndSession tears a session down: pending speech cancelled, memories
// dropped, archive row closed.
func (o *Orchestrator) EndSession(ctx context.Context, sessionID string) error {
	session, err := o.manager.Get(sessionID)
	if err != nil {
		return err
	}

	if o.speech != nil {
		o.speech.Cancel(session.ID)
	}
	if o.memories != nil {
		if err := o.memories.DeleteSessionMemories(ctx, session.ID); err != nil {
			o.logger.Warn("failed to delete session memories", zap.Error(err))
		}
	}
	if o.archive != nil {
		if err := o.archive.EndSession(session.ID); err != nil {
			o.logger.Warn("failed to close archive row", zap.Error(err))
		}
	}
	if o.graphStore != nil {
		_, g := session.State()
		if err := o.graphStore.Flush(ctx, g); err != nil {
			o.logger.Warn("failed to flush graph", zap.Error(err))
		}
	}
	o.manager.Remove(session.ID)
	return nil
}

// AnimateScene produces a short animation from the current scene's base
// image. Synchronous; callers decide how long they are willing to wait.
func (o *Orchestrator) AnimateScene(ctx context.Context, sessionID string) (string, error) {
	if o.video == nil {
		return "", fmt.Errorf("video backend not configured")
	}
	session, err := o.manager.Get(sessionID)
	if err != nil {
		return "", err
	}
	unit := session.Current()
	if unit == nil {
		return "", fmt.Errorf("session has no scene yet")
	}
	base := o.visual.BaseImage(unit.SceneID)
	if base == nil {
		return "", fmt.Errorf("no base image for scene %s", unit.SceneID)
	}

	url, err := o.video.Animate(ctx, base, unit.Text)
	if err != nil {
		return "", err
	}
	o.sink.Publish(Event{
		Type:      EventVideo,
		SessionID: session.ID,
		Payload:   map[string]string{"scene_id": unit.SceneID, "url": url},
	})
	return url, nil
}

// runTurn executes the full pipeline for one action. The caller holds
// the session's busy flag.
func (o *Orchestrator) runTurn(ctx context.Context, session *Session, action string) error {
	l, g := session.State()
	prev := session.Current()

	tc := &TurnContext{
		Action:  action,
		History: o.formatHistory(session),
		Ledger:  l,
		Graph:   g,
	}
	if prev != nil {
		tc.PreviousMood = prev.MoodOrDefault()
		tc.PreviousSceneID = prev.SceneID
		tc.SceneText = prev.Text
	}
	tc.Memories = o.recallMemories(ctx, session.ID, action)

	unit, err := o.produceUnit(ctx, tc)
	if err != nil {
		return err
	}

	// Apply state deltas.
	nextLedger := ledger.Apply(l, unit.Ledger)
	nextGraph := graph.Merge(g, unit.Graph)
	analysis := nextGraph.Analyze()
	if len(analysis.SuggestedLinks) > 0 {
		nextGraph = graph.Merge(nextGraph, &graph.Delta{Links: analysis.SuggestedLinks})
		o.logger.Info("novelty low, foreshadow link injected",
			zap.String("session_id", session.ID),
			zap.Float64("novelty", analysis.Novelty))
	}

	prevSceneID := tc.PreviousSceneID
	session.Commit(action, unit, nextLedger, nextGraph)

	o.sink.Publish(Event{Type: EventUnit, SessionID: session.ID, Payload: unit})

	o.postCommit(ctx, session, action, unit, prevSceneID)
	return nil
}

func (o *Orchestrator) produceUnit(ctx context.Context, tc *TurnContext) (*models.NarrativeUnit, error) {
	if !o.useDirector {
		return o.director.Narrate(ctx, tc)
	}

	brief, err := o.director.Plan(ctx, tc)
	if err != nil {
		// A failed plan degrades to the single-stage path.
		o.logger.Warn("planning failed, using single-stage synthesis", zap.Error(err))
		return o.director.Narrate(ctx, tc)
	}
	thoughts := o.director.Think(ctx, tc, brief)
	return o.director.Synthesize(ctx, tc, brief, thoughts)
}

// postCommit runs the side effects that never block or fail a turn.
func (o *Orchestrator) postCommit(ctx context.Context, session *Session, action string, unit *models.NarrativeUnit, prevSceneID string) {
	nextLedger, nextGraph := session.State()

	if o.graphStore != nil {
		o.graphStore.Schedule(nextGraph)
	}

	o.storeMemories(session.ID, action, unit, nextLedger.TurnCount)
	o.archiveTurn(session, action, unit, nextLedger)
	o.publishFeed(session.ID, unit, nextLedger.TurnCount)

	if o.visual != nil {
		if img := o.visual.Render(ctx, prevSceneID, unit); img != nil {
			o.sink.Publish(Event{
				Type:      EventImage,
				SessionID: session.ID,
				Payload: map[string]string{
					"scene_id": unit.SceneID,
					"url":      fmt.Sprintf("/api/scenes/%s/image", unit.SceneID),
				},
			})
		}
	}

	if o.speech != nil {
		o.speech.Enqueue(session, unit, nextLedger)
	}
}

func (o *Orchestrator) storeMemories(sessionID, action string, unit *models.NarrativeUnit, turn int) {
	if o.memories == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		decision := &interfaces.Memory{
			SessionID: sessionID,
			Type:      interfaces.MemoryDecision,
			Content:   action,
			Turn:      turn,
		}
		if err := o.memories.StoreMemory(ctx, decision); err != nil {
			o.logger.Warn("failed to store decision memory", zap.Error(err))
		}

		beat := &interfaces.Memory{
			SessionID: sessionID,
			Type:      interfaces.MemoryBeat,
			Content:   unit.Text,
			Turn:      turn,
			Metadata:  map[string]interface{}{"scene_id": unit.SceneID},
		}
		if err := o.memories.StoreMemory(ctx, beat); err != nil {
			o.logger.Warn("failed to store beat memory", zap.Error(err))
		}
	}()
}

// archiveTurn writes the committed turn to the database, fire-and-forget.
func (o *Orchestrator) archiveTurn(session *Session, action string, unit *models.NarrativeUnit, l ledger.Ledger) {
	if o.archive == nil {
		return
	}
	go func() {
		unitJSON, err := json.Marshal(unit)
		if err != nil {
			o.logger.Warn("failed to serialize unit for archive", zap.Error(err))
			return
		}
		ledgerJSON, _ := json.Marshal(l)

		record := &models.TurnRecord{
			ID:         fmt.Sprintf("%s_%d", session.ID, l.TurnCount),
			SessionID:  session.ID,
			Turn:       l.TurnCount,
			SceneID:    unit.SceneID,
			Action:     action,
			UnitJSON:   string(unitJSON),
			LedgerJSON: string(ledgerJSON),
		}
		if err := o.archive.ArchiveTurn(record); err != nil {
			o.logger.Warn("failed to archive turn",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}()
}

func (o *Orchestrator) publishFeed(sessionID string, unit *models.NarrativeUnit, turn int) {
	if o.feed == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		event := storage.TurnEvent{
			SessionID: sessionID,
			Turn:      turn,
			SceneID:   unit.SceneID,
			Speaker:   unit.Speaker,
			Text:      unit.Text,
			Timestamp: time.Now().Unix(),
		}
		if err := o.feed.StoreTurnEvent(ctx, event); err != nil {
			o.logger.Warn("failed to publish turn feed event", zap.Error(err))
		}
	}()
}

func (o *Orchestrator) recallMemories(ctx context.Context, sessionID, query string) string {
	if o.memories == nil {
		return "(no recorded history)"
	}
	results, err := o.memories.SearchMemories(ctx, sessionID, query, 5)
	if err != nil {
		o.logger.Warn("memory recall failed", zap.Error(err))
		return "(no recorded history)"
	}
	return memory.BuildContextSummary(results, 5)
}

func (o *Orchestrator) formatHistory(session *Session) string {
	entries := session.History()
	if len(entries) == 0 {
		return "(the story has not begun)"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "Turn %d. Visitor: %s\n%s\n\n", e.Turn, e.Action, e.Unit.Text)
	}
	return strings.TrimSpace(b.String())
}

func (o *Orchestrator) resolveChoiceText(session *Session, choiceID string) string {
	unit := session.Current()
	if unit == nil {
		return choiceID
	}
	for _, c := range unit.Choices {
		if c.ID == choiceID {
			return c.Text
		}
	}
	return choiceID
}

// Manager exposes the session table for handlers.
func (o *Orchestrator) Manager() *Manager {
	return o.manager
}
