package models

// Role classifies a roster member's function in the narrative
type Role string

const (
	RoleWarden    Role = "warden"
	RoleArchivist Role = "archivist"
	RolePhysician Role = "physician"
	RoleCurator   Role = "curator"
	RoleKeeper    Role = "keeper"
	RoleVisitor   Role = "visitor"
)

// Character is a static roster entry. Immutable after initialization.
type Character struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Role       Role     `json:"role"`
	Archetype  string   `json:"archetype"`
	VoiceID    string   `json:"voice_id"`
	Traits     []string `json:"traits"`
	Dominance  int      `json:"dominance"` // 0-100
	VisualBase string   `json:"visual_base"`
}

// Roster is the read-only character lookup table keyed by id.
type Roster map[string]Character

// Get returns the character for an id, ok=false when unmapped.
func (r Roster) Get(id string) (Character, bool) {
	c, ok := r[id]
	return c, ok
}

// IDs returns every roster id. Order is not stable.
func (r Roster) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	return ids
}

// DefaultRoster seeds the built-in cast for the Greyharbor scenario.
func DefaultRoster() Roster {
	return Roster{
		"maren": {
			ID:        "maren",
			Name:      "Warden Maren",
			Role:      RoleWarden,
			Archetype: "The Unblinking Eye",
			VoiceID:   "Kore",
			Traits:    []string{"exacting", "guarded", "quietly proud"},
			Dominance: 90,
			VisualBase: "Warden Maren, late 50s, storm coat with brass fastenings, " +
				"weathered face, measuring gaze, standing at the rail of the signal tower",
		},
		"cole": {
			ID:        "cole",
			Name:      "Archivist Cole",
			Role:      RoleArchivist,
			Archetype: "The Collector of Echoes",
			VoiceID:   "Charon",
			Traits:    []string{"meticulous", "evasive", "haunted"},
			Dominance: 55,
			VisualBase: "Archivist Cole, 40s, ink-stained cuffs, spectacles on a chain, " +
				"surrounded by ledgers and tide charts in lamplight",
		},
		"imre": {
			ID:        "imre",
			Name:      "Doctor Imre",
			Role:      RolePhysician,
			Archetype: "The Patient Diagnostician",
			VoiceID:   "Zephyr",
			Traits:    []string{"clinical", "curious", "conditionally kind"},
			Dominance: 70,
			VisualBase: "Doctor Imre, 30s, grey apron over wool, steady hands, " +
				"infirmary of glass cabinets lit by a single green-shaded lamp",
		},
		"sefa": {
			ID:        "sefa",
			Name:      "Curator Sefa",
			Role:      RoleCurator,
			Archetype: "The Smiling Door",
			VoiceID:   "Fenrir",
			Traits:    []string{"charming", "watchful", "never surprised"},
			Dominance: 65,
			VisualBase: "Curator Sefa, late 20s, dark velvet jacket, ring of old keys " +
				"at the belt, half-lit gallery of shrouded exhibits behind them",
		},
		"visitor": {
			ID:        "visitor",
			Name:      "The Visitor",
			Role:      RoleVisitor,
			Archetype: "The Unwritten Page",
			VoiceID:   "Puck",
			Traits:    []string{"unproven"},
			Dominance: 20,
			VisualBase: "The visitor, travel-worn coat, salt-stained luggage, " +
				"face kept out of frame",
		},
	}
}
