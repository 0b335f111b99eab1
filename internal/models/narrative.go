package models

import (
	"fmt"
	"strings"

	"nightloom/server/internal/graph"
	"nightloom/server/internal/ledger"
)

// AmbientTrack identifies the background loop for a scene
type AmbientTrack string

const (
	AmbientTheme     AmbientTrack = "theme"
	AmbientTension   AmbientTrack = "tension"
	AmbientRitual    AmbientTrack = "ritual"
	AmbientSilence   AmbientTrack = "silence"
	AmbientHeartbeat AmbientTrack = "heartbeat"
)

// Mood is the narrator delivery hint carried between turns
type Mood string

const (
	MoodClinical    Mood = "clinical"
	MoodMocking     Mood = "mocking"
	MoodSeductive   Mood = "seductive"
	MoodSympathetic Mood = "sympathetic"
)

// AudioState describes the requested soundscape for a narrative unit
type AudioState struct {
	Ambient AmbientTrack `json:"ambient,omitempty"`
	Effect  string       `json:"effect,omitempty"`
	Mood    Mood         `json:"mood,omitempty"`
}

// Choice is one player option attached to a narrative unit
type Choice struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Impact string `json:"impact,omitempty"` // predicted consequence preview
}

// VisualCharacter describes one character's appearance within a scene
type VisualCharacter struct {
	ID         string `json:"id"`
	Outfit     string `json:"outfit,omitempty"`
	Expression string `json:"expression,omitempty"`
	Pose       string `json:"pose,omitempty"`
}

// VisualSpec is the structured scene description consumed by the visual
// pipeline. Synthesis fills it; the validator may repair it before the
// first generation attempt.
type VisualSpec struct {
	Style       string            `json:"style"`
	Camera      string            `json:"camera,omitempty"`
	Lighting    string            `json:"lighting,omitempty"`
	Mood        string            `json:"mood,omitempty"`
	Characters  []VisualCharacter `json:"characters,omitempty"`
	Environment string            `json:"environment"`
	Quality     string            `json:"quality,omitempty"`
}

// IsZero reports whether the spec carries no usable content.
func (v VisualSpec) IsZero() bool {
	return v.Style == "" && v.Environment == "" && len(v.Characters) == 0
}

// Flatten renders the spec as a single image prompt string.
func (v VisualSpec) Flatten() string {
	var b strings.Builder
	if v.Environment != "" {
		b.WriteString(v.Environment)
	}
	for _, c := range v.Characters {
		parts := make([]string, 0, 3)
		for _, p := range []string{c.Outfit, c.Expression, c.Pose} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, ". %s: %s", c.ID, strings.Join(parts, ", "))
		}
	}
	for _, p := range []struct{ label, val string }{
		{"Style", v.Style},
		{"Camera", v.Camera},
		{"Lighting", v.Lighting},
		{"Mood", v.Mood},
		{"Quality", v.Quality},
	} {
		if p.val != "" {
			fmt.Fprintf(&b, ". %s: %s", p.label, p.val)
		}
	}
	return strings.TrimPrefix(b.String(), ". ")
}

// NarrativeUnit is one turn's complete output. Immutable once produced by
// synthesis; the session appends the superseded unit to its history.
type NarrativeUnit struct {
	SceneID   string        `json:"scene_id"`
	Text      string        `json:"text"`
	Speaker   string        `json:"speaker,omitempty"`
	SpeakerID string        `json:"speaker_id,omitempty"`
	Visual    VisualSpec    `json:"visual"`
	Choices   []Choice      `json:"choices"`
	Ledger    *ledger.Delta `json:"ledger_updates,omitempty"`
	Graph     *graph.Delta  `json:"graph_updates,omitempty"`
	Audio     *AudioState   `json:"audio,omitempty"`
	ImageURL  string        `json:"image_url,omitempty"`
	VideoURL  string        `json:"video_url,omitempty"`

	// Director bookkeeping surfaced to the client as insights.
	HiddenPlots []string `json:"hidden_plots,omitempty"`
	FutureHooks []string `json:"future_hooks,omitempty"`
}

// Mood returns the unit's narrator mood, defaulting to clinical.
func (u *NarrativeUnit) MoodOrDefault() Mood {
	if u.Audio != nil && u.Audio.Mood != "" {
		return u.Audio.Mood
	}
	return MoodClinical
}

// Validate checks a synthesized unit at the service boundary and repairs
// what it can. Units with no text are rejected outright; fewer than two
// choices are padded with generic continuations so the player is never
// left without options.
func (u *NarrativeUnit) Validate() error {
	if u == nil {
		return fmt.Errorf("narrative unit is nil")
	}
	if strings.TrimSpace(u.Text) == "" {
		return fmt.Errorf("narrative unit has no text")
	}
	if u.SceneID == "" {
		u.SceneID = "scene_unnamed"
	}
	defaults := []Choice{
		{ID: "continue", Text: "Press on."},
		{ID: "observe", Text: "Stop and take in the surroundings."},
	}
	for _, d := range defaults {
		if len(u.Choices) >= 2 {
			break
		}
		u.Choices = append(u.Choices, d)
	}
	for i := range u.Choices {
		if u.Choices[i].ID == "" {
			u.Choices[i].ID = fmt.Sprintf("%d", i+1)
		}
	}
	return nil
}
