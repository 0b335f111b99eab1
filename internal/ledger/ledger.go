package ledger

// Phase represents the ordinal act of the narrative arc
type Phase string

const (
	PhaseAlpha Phase = "alpha" // arrival
	PhaseBeta  Phase = "beta"  // entanglement
	PhaseGamma Phase = "gamma" // resolution
)

// Ordinal returns the position of a phase in the arc. Unknown phases sort first.
func (p Phase) Ordinal() int {
	switch p {
	case PhaseAlpha:
		return 1
	case PhaseBeta:
		return 2
	case PhaseGamma:
		return 3
	}
	return 0
}

// Ledger tracks the five bounded progress scores for a session,
// the current narrative phase, and a monotonic turn counter.
// Values are treated as immutable; Apply returns a new Ledger.
type Ledger struct {
	Integrity  int   `json:"integrity"`
	Trauma     int   `json:"trauma"`
	Stress     int   `json:"stress"`
	Hope       int   `json:"hope"`
	Compliance int   `json:"compliance"`
	Phase      Phase `json:"phase"`
	TurnCount  int   `json:"turn_count"`
}

// Delta is a partial update to a ledger as returned by scene synthesis.
// Nil fields leave the current value untouched.
type Delta struct {
	Integrity  *int   `json:"integrity,omitempty"`
	Trauma     *int   `json:"trauma,omitempty"`
	Stress     *int   `json:"stress,omitempty"`
	Hope       *int   `json:"hope,omitempty"`
	Compliance *int   `json:"compliance,omitempty"`
	Phase      *Phase `json:"phase,omitempty"`
}

// New returns the starting ledger for a fresh session.
func New() Ledger {
	return Ledger{
		Integrity: 100,
		Hope:      100,
		Phase:     PhaseAlpha,
	}
}

// Apply merges a delta into the ledger and returns the result.
// Fields present in the delta overwrite the current value, clamped to [0,100].
// The turn counter increments by exactly one per committed turn, delta or not.
// The phase only advances; a delta naming an earlier phase is ignored.
func Apply(l Ledger, d *Delta) Ledger {
	next := l
	next.TurnCount = l.TurnCount + 1
	if d == nil {
		return next
	}
	if d.Integrity != nil {
		next.Integrity = clamp(*d.Integrity)
	}
	if d.Trauma != nil {
		next.Trauma = clamp(*d.Trauma)
	}
	if d.Stress != nil {
		next.Stress = clamp(*d.Stress)
	}
	if d.Hope != nil {
		next.Hope = clamp(*d.Hope)
	}
	if d.Compliance != nil {
		next.Compliance = clamp(*d.Compliance)
	}
	if d.Phase != nil && d.Phase.Ordinal() > l.Phase.Ordinal() {
		next.Phase = *d.Phase
	}
	return next
}

// Intensity derives a [0,1] performance-intensity scalar from the ledger,
// weighted toward trauma. The speech pipeline forwards it as a delivery hint.
func (l Ledger) Intensity() float64 {
	v := float64(l.Trauma)*0.6 + float64(l.Stress)*0.4
	return v / 100.0
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
