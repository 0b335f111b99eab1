package interfaces

import "context"

// TextRequest is a role-scoped instruction plus a task prompt sent to the
// generative reasoning service. When Schema is non-nil the service is asked
// for structured JSON output conforming to it; otherwise free text.
type TextRequest struct {
	Instruction string                 // system-level persona/role instruction
	Prompt      string                 // the task itself
	Schema      map[string]interface{} // desired structured-output shape, optional
	Temperature float64
	MaxTokens   int
}

// TextGenerator is the opaque generative text/reasoning collaborator.
// Failures (network, quota, safety filter) surface as errors; callers must
// treat them as absence and fall back, never crash the turn.
type TextGenerator interface {
	GenerateText(ctx context.Context, req *TextRequest) (string, error)
}

// Image is raw image bytes plus their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageGenerator produces or edits scene imagery.
type ImageGenerator interface {
	// GenerateImage renders a fresh image from a text description.
	GenerateImage(ctx context.Context, prompt string) (*Image, error)

	// EditImage applies a targeted change to an existing base image,
	// preserving everything the change description does not name.
	EditImage(ctx context.Context, base *Image, change string) (*Image, error)
}

// ImageInspector answers questions about an image, used by the quality gate.
type ImageInspector interface {
	// InspectImage sends the image plus a checklist prompt and returns the
	// service's raw JSON verdict.
	InspectImage(ctx context.Context, img *Image, prompt string) (string, error)
}

// SpeechGenerator synthesizes audio from a markup-annotated performance
// script using the given prebuilt voice.
type SpeechGenerator interface {
	Synthesize(ctx context.Context, script, voiceID string) ([]byte, error)
}

// VideoGenerator animates a still image into a short video clip.
// Implementations poll the service until the operation completes.
type VideoGenerator interface {
	Animate(ctx context.Context, base *Image, prompt string) (string, error)
}

// Embedder converts text into a vector for memory recall.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
