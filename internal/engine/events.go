package engine

// Event is one server-push message for a session's subscribers.
type Event struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Event types pushed during and after a turn.
const (
	EventUnit   = "unit"   // new narrative unit committed
	EventImage  = "image"  // scene image ready
	EventSpeech = "speech" // narration clip ready
	EventVideo  = "video"  // scene animation ready
	EventError  = "error"  // turn failed, session idle again
)

// EventSink receives events for delivery to connected clients.
type EventSink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
