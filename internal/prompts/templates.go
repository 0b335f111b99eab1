package prompts

import "fmt"

// System instructions for the collaborating roles of the pipeline.
// Narrative style content is deliberately kept restrained; the engine, not
// the flavor text, is the product.
const (
	// NarratorInstruction scopes the synthesis call.
	NarratorInstruction = `You are the narrator of "Nightloom", an interactive gothic mystery set at
the remote Greyharbor signal station. Write second-person prose, grounded and
atmospheric. Keep the cast consistent with their roster profiles. The visual
description must mirror the narrative text exactly: describe the scene the
reader just experienced, not a generic portrait. Output strictly valid JSON
conforming to the requested schema.`

	// PlannerInstruction scopes the strategic planning call.
	PlannerInstruction = `You are the strategic planner for the Nightloom narrative engine. You never
write prose; you assess narrative state and produce a concise brief for the
narrator. Output strictly valid JSON conforming to the requested schema.`

	// AgentInstruction scopes a character's private reasoning call.
	AgentInstruction = `You are an autonomous character agent reasoning in private. Nobody sees this
reasoning, not the player and not the narrator. Pursue your own goals; you may
conceal, mislead, and plan ahead. Output strictly valid JSON conforming to the
requested schema.`

	// SpeechInstruction scopes the performance-script call.
	SpeechInstruction = `You convert narrative text into an annotated performance script for speech
synthesis. Wrap the result in <speak> tags and use <prosody> and <break>
markup to realize the requested delivery. Return the markup only.`
)

// MandatoryStyleTag is the style anchor every generated image must carry.
// The pre-generation validator injects it when synthesis omits it.
const MandatoryStyleTag = "grounded gothic realism"

// DefaultStyleLine is appended to flattened visual specs for fresh
// generations.
const DefaultStyleLine = "Style: grounded gothic realism, weathered maritime architecture, " +
	"chiaroscuro lamplight, oil painting texture. No anime, no cartoon, no sketch."

// CharacterSpeechInstructions maps roster ids to persona delivery notes for
// the speech pipeline. Unmapped speakers fall back to a mood instruction.
var CharacterSpeechInstructions = map[string]string{
	"maren": "Measured, unhurried, every word weighed. Long pauses that expect obedience.",
	"cole":  "Dry, papery voice. Speeds up when evasive, trails off mid-thought.",
	"imre":  "Level clinical warmth. Precise diction, softened at the edges.",
	"sefa":  "Light, amused, conspiratorial. Smiles audibly.",
}

// InitializeDefaultTemplates registers the built-in pipeline templates.
func (e *TemplateEngine) InitializeDefaultTemplates() error {
	templates := []*Template{
		{
			Name:        "synthesis",
			Description: "Scene synthesis from full current state (simple variant)",
			Content: `CURRENT STATE:
Ledger: {{ledger}}
Recent history:
{{history}}

CAST (visual profiles, obey these):
{{roster}}

PREVIOUS NARRATOR MOOD: {{previous_mood}}
PREVIOUS SCENE ID: {{previous_scene_id}}

Maintain the mood unless the narrative triggers a shift. Decide whether this
turn is a NEW scene (location or major event change) or a CONTINUATION
(dialogue, reaction). If new, mint a new scene_id; if continuation, keep the
previous scene_id.

PLAYER ACTION: {{action}}

Generate the next narrative beat. Choose a speaker from the cast ids or
"Narrator". If a character speaks, derive their visual entry from their base
profile plus the current action and expression.`,
		},
		{
			Name:        "planner",
			Description: "Strategic brief before synthesis (director variant)",
			Content: `CURRENT STATE:
Ledger: {{ledger}}
Graph: {{graph_summary}}
Graph novelty: {{novelty}}
Recent history:
{{history}}
Recalled memories:
{{memories}}

PLAYER ACTION: {{action}}

Tasks:
1. ANALYZE the narrative tensions at play and the player's likely state.
2. CRITIQUE staleness: with novelty {{novelty}}, are we repeating patterns?
3. PLAN what should happen next for maximum impact and freshness.
4. FOCUS: name the cast ids that should drive this beat, and a tension
   target from 0 to 100.`,
		},
		{
			Name:        "agent_think",
			Description: "Per-character private reasoning (director variant)",
			Content: `You are {{name}} ({{archetype}}), reasoning privately.
Role: {{role}}
Traits: {{traits}}
Dominance: {{dominance}}

Your relationships:
{{connections}}

Current scene:
{{scene_text}}

The player just chose: {{action}}

What do you really want next? What are you hiding, and what action serves
your goals while keeping your public face intact?`,
		},
		{
			Name:        "director_synthesis",
			Description: "Final synthesis from brief and agent thoughts",
			Content: `STRATEGIC BRIEF:
{{brief}}

PRIVATE AGENT THOUGHTS (hidden from the player):
{{thoughts}}

CURRENT STATE:
Ledger: {{ledger}}
PREVIOUS NARRATOR MOOD: {{previous_mood}}
PREVIOUS SCENE ID: {{previous_scene_id}}

PLAYER ACTION: {{action}}

Weave the agent thoughts into one coherent narrative beat. Choose which
character acts publicly and decide whether their public action matches their
private goal. Decide scene continuation versus new scene as usual. The visual
description must capture this exact moment.`,
		},
		{
			Name:        "speech_script",
			Description: "Performance script generation",
			Content: `Task: convert narrative text to an annotated performance script.
{{persona}}
Intensity: {{intensity}}
Input text: "{{text}}"
Wrap the output in <speak> tags and use <prosody> and <break> to realize the
delivery. Return the markup only.`,
		},
		{
			Name:        "image_edit",
			Description: "Targeted edit instruction for scene continuation",
			Content: `Edit ONLY the specified change: "{{change}}"

Rules:
- Keep faces, lighting, composition, palette and background identical.
- Change only the named element (expression, pose, one detail).
- No creative liberties; this is a precise modification.
- Style must remain: ` + MandatoryStyleTag + `.`,
		},
		{
			Name:        "image_fallback",
			Description: "Emergency image prompt derived from plain narrative text",
			Content: `{{text}}

Style: ` + MandatoryStyleTag + `, chiaroscuro lamplight, oil painting texture
Camera: 50mm, close framing, deep shadows
Mood: suspended, watchful quiet
Quality: high detail

No anime, no cartoon, no bright flat lighting.`,
		},
		{
			Name:        "image_verify",
			Description: "Vision checklist for the quality gate",
			Content: `Analyze this image against the requirements:

EXPECTED STYLE: {{style}}
EXPECTED MOOD: {{mood}}
EXPECTED CHARACTERS: {{characters}}
EXPECTED LIGHTING: {{lighting}}

Answer YES/NO:
1. Does the image use dark, dramatic chiaroscuro lighting?
2. Is the style consistent with grounded gothic realism?
3. Is character attire period-appropriate (not anime or cartoon style)?
4. Is the mood sufficiently dark and atmospheric?
5. Are there bright flat colors or soft even lighting (should be NO)?

Return JSON: {"scores": [true/false for each], "notes": "brief analysis"}`,
		},
	}

	for _, tmpl := range templates {
		if err := e.RegisterTemplate(tmpl); err != nil {
			return fmt.Errorf("failed to register template %s: %w", tmpl.Name, err)
		}
	}
	return nil
}
