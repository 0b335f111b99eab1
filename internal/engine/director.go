package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"nightloom/server/internal/graph"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/ledger"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

const (
	planTemperature  = 0.7
	thinkTemperature = 0.9
	synthTemperature = 0.85
	maxThinkAgents   = 4
)

// TurnContext carries everything prompt assembly needs for one turn.
type TurnContext struct {
	Action          string
	History         string
	Memories        string
	Ledger          ledger.Ledger
	Graph           graph.Graph
	PreviousMood    models.Mood
	PreviousSceneID string
	SceneText       string
}

// TurnBrief is the planner's output steering the rest of the turn.
type TurnBrief struct {
	Analysis        string   `json:"analysis"`
	Critique        string   `json:"critique"`
	Directives      []string `json:"directives"`
	FocusCharacters []string `json:"focus_characters"`
}

// AgentThought is one character's private reasoning for a turn.
type AgentThought struct {
	CharacterID string
	Content     string
}

// Director runs the multi-stage turn pipeline: plan, per-character
// reasoning, synthesis. With planning disabled it degrades to a single
// synthesis call.
type Director struct {
	text    interfaces.TextGenerator
	prompts *prompts.TemplateEngine
	roster  models.Roster
	logger  *zap.Logger
}

// NewDirector wires the director over a text backend.
func NewDirector(text interfaces.TextGenerator, engine *prompts.TemplateEngine, roster models.Roster, logger *zap.Logger) *Director {
	return &Director{
		text:    text,
		prompts: engine,
		roster:  roster,
		logger:  logger,
	}
}

// Plan produces the turn brief from the current state.
func (d *Director) Plan(ctx context.Context, tc *TurnContext) (*TurnBrief, error) {
	prompt, err := d.prompts.Render("planner", map[string]string{
		"ledger":        marshalCompact(tc.Ledger),
		"graph_summary": summarizeGraph(tc.Graph),
		"novelty":       fmt.Sprintf("%.2f", tc.Graph.Novelty()),
		"history":       tc.History,
		"memories":      tc.Memories,
		"action":        tc.Action,
	})
	if err != nil {
		return nil, err
	}

	raw, err := d.text.GenerateText(ctx, &interfaces.TextRequest{
		Instruction: prompts.PlannerInstruction,
		Prompt:      prompt,
		Schema:      briefSchema(),
		Temperature: planTemperature,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}

	var brief TurnBrief
	if err := json.Unmarshal([]byte(stripFences(raw)), &brief); err != nil {
		return nil, fmt.Errorf("failed to parse turn brief: %w", err)
	}
	return &brief, nil
}

// Think runs private reasoning for the focus characters concurrently.
// Individual failures are logged and discarded; the turn proceeds with
// whatever thoughts survive.
func (d *Director) Think(ctx context.Context, tc *TurnContext, brief *TurnBrief) []AgentThought {
	ids := d.focusIDs(brief)
	if len(ids) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	results := make(chan AgentThought, len(ids))

	for _, id := range ids {
		char, ok := d.roster.Get(id)
		if !ok || char.Role == models.RoleVisitor {
			continue
		}
		wg.Add(1)
		go func(c models.Character) {
			defer wg.Done()
			thought, err := d.thinkFor(ctx, tc, c)
			if err != nil {
				d.logger.Warn("agent reasoning failed",
					zap.String("character", c.ID), zap.Error(err))
				return
			}
			results <- AgentThought{CharacterID: c.ID, Content: thought}
		}(char)
	}

	wg.Wait()
	close(results)

	thoughts := make([]AgentThought, 0, len(ids))
	for t := range results {
		thoughts = append(thoughts, t)
	}
	sort.Slice(thoughts, func(i, j int) bool {
		return thoughts[i].CharacterID < thoughts[j].CharacterID
	})
	return thoughts
}

func (d *Director) thinkFor(ctx context.Context, tc *TurnContext, c models.Character) (string, error) {
	prompt, err := d.prompts.Render("agent_think", map[string]string{
		"name":        c.Name,
		"archetype":   c.Archetype,
		"role":        string(c.Role),
		"traits":      strings.Join(c.Traits, ", "),
		"dominance":   fmt.Sprintf("%d", c.Dominance),
		"connections": summarizeLinks(tc.Graph, c.ID),
		"scene_text":  tc.SceneText,
		"action":      tc.Action,
	})
	if err != nil {
		return "", err
	}

	return d.text.GenerateText(ctx, &interfaces.TextRequest{
		Instruction: prompts.AgentInstruction,
		Prompt:      prompt,
		Temperature: thinkTemperature,
		MaxTokens:   1024,
	})
}

// Synthesize folds the brief and agent thoughts into the next unit.
func (d *Director) Synthesize(ctx context.Context, tc *TurnContext, brief *TurnBrief, thoughts []AgentThought) (*models.NarrativeUnit, error) {
	prompt, err := d.prompts.Render("director_synthesis", map[string]string{
		"brief":             formatBrief(brief),
		"thoughts":          formatThoughts(thoughts),
		"ledger":            marshalCompact(tc.Ledger),
		"previous_mood":     string(tc.PreviousMood),
		"previous_scene_id": tc.PreviousSceneID,
		"action":            tc.Action,
	})
	if err != nil {
		return nil, err
	}
	return d.generateUnit(ctx, prompt)
}

// Narrate is the single-stage path used when the multi-agent pipeline
// is disabled.
func (d *Director) Narrate(ctx context.Context, tc *TurnContext) (*models.NarrativeUnit, error) {
	prompt, err := d.prompts.Render("synthesis", map[string]string{
		"ledger":            marshalCompact(tc.Ledger),
		"history":           tc.History,
		"roster":            d.rosterSummary(),
		"previous_mood":     string(tc.PreviousMood),
		"previous_scene_id": tc.PreviousSceneID,
		"action":            tc.Action,
	})
	if err != nil {
		return nil, err
	}
	return d.generateUnit(ctx, prompt)
}

func (d *Director) generateUnit(ctx context.Context, prompt string) (*models.NarrativeUnit, error) {
	raw, err := d.text.GenerateText(ctx, &interfaces.TextRequest{
		Instruction: prompts.NarratorInstruction,
		Prompt:      prompt,
		Schema:      unitSchema(),
		Temperature: synthTemperature,
		MaxTokens:   8192,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	var unit models.NarrativeUnit
	if err := json.Unmarshal([]byte(stripFences(raw)), &unit); err != nil {
		return nil, fmt.Errorf("failed to parse narrative unit: %w", err)
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (d *Director) focusIDs(brief *TurnBrief) []string {
	ids := brief.FocusCharacters
	if len(ids) == 0 {
		ids = d.roster.IDs()
		sort.Strings(ids)
	}
	if len(ids) > maxThinkAgents {
		ids = ids[:maxThinkAgents]
	}
	return ids
}

func (d *Director) rosterSummary() string {
	ids := d.roster.IDs()
	sort.Strings(ids)
	var b strings.Builder
	for _, id := range ids {
		c := d.roster[id]
		fmt.Fprintf(&b, "- %s (%s, %s): %s. Dominance %d\n",
			c.Name, c.ID, c.Role, strings.Join(c.Traits, ", "), c.Dominance)
	}
	return b.String()
}

func formatBrief(brief *TurnBrief) string {
	if brief == nil {
		return "(no brief)"
	}
	var b strings.Builder
	b.WriteString("Analysis: " + brief.Analysis + "\n")
	if brief.Critique != "" {
		b.WriteString("Critique: " + brief.Critique + "\n")
	}
	for _, dir := range brief.Directives {
		b.WriteString("- " + dir + "\n")
	}
	return b.String()
}

func formatThoughts(thoughts []AgentThought) string {
	if len(thoughts) == 0 {
		return "(no private reasoning this turn)"
	}
	var b strings.Builder
	for _, t := range thoughts {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", t.CharacterID, t.Content)
	}
	return b.String()
}

func summarizeGraph(g graph.Graph) string {
	if len(g.Nodes) == 0 {
		return "(empty graph)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d nodes, %d links\n", len(g.Nodes), len(g.Links))
	for _, l := range g.Links {
		fmt.Fprintf(&b, "%s -[%s]-> %s\n", l.Source, l.Label, l.Target)
	}
	return b.String()
}

func summarizeLinks(g graph.Graph, id string) string {
	links := g.LinksFor(id)
	if len(links) == 0 {
		return "(no recorded connections)"
	}
	var b strings.Builder
	for _, l := range links {
		fmt.Fprintf(&b, "%s -[%s]-> %s\n", l.Source, l.Label, l.Target)
	}
	return b.String()
}

func marshalCompact(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// stripFences trims markdown code fences some backends wrap around
// JSON despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
