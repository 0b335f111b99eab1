package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/ledger"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

const speechTimeout = 60 * time.Second

// SpeechJob is one queued narration request.
type SpeechJob struct {
	SessionID string
	Turn      int
	Text      string
	SpeakerID string
	Mood      models.Mood
	Intensity float64
}

// SpeechPipeline turns narrative text into synthesized clips. Requests
// are debounced per session: a new turn arriving before the timer fires
// cancels the previous one, so only the latest text gets voiced.
type SpeechPipeline struct {
	text    interfaces.TextGenerator
	speech  interfaces.SpeechGenerator
	clips   *generators.ClipStore
	prompts *prompts.TemplateEngine
	roster  models.Roster
	cfg     config.SpeechConfig
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer

	// onClip fires after a clip lands in the store.
	onClip func(clip *generators.Clip)
}

// NewSpeechPipeline wires the pipeline. speech may be nil; Enqueue then
// becomes a no-op.
func NewSpeechPipeline(text interfaces.TextGenerator, speech interfaces.SpeechGenerator, clips *generators.ClipStore, engine *prompts.TemplateEngine, roster models.Roster, cfg config.SpeechConfig, logger *zap.Logger) *SpeechPipeline {
	return &SpeechPipeline{
		text:    text,
		speech:  speech,
		clips:   clips,
		prompts: engine,
		roster:  roster,
		cfg:     cfg,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

// OnClip registers the post-synthesis callback.
func (p *SpeechPipeline) OnClip(fn func(clip *generators.Clip)) {
	p.onClip = fn
}

// Enqueue schedules narration for a unit, replacing any pending job for
// the same session.
func (p *SpeechPipeline) Enqueue(session *Session, unit *models.NarrativeUnit, l ledger.Ledger) {
	if p.speech == nil || !p.cfg.Enabled || unit == nil {
		return
	}

	job := &SpeechJob{
		SessionID: session.ID,
		Turn:      l.TurnCount,
		Text:      unit.Text,
		SpeakerID: unit.SpeakerID,
		Mood:      unit.MoodOrDefault(),
		Intensity: l.Intensity(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[session.ID]; ok {
		timer.Stop()
	}
	p.timers[session.ID] = time.AfterFunc(p.cfg.Debounce, func() {
		p.run(job)
	})
}

// Cancel drops any pending narration for a session.
func (p *SpeechPipeline) Cancel(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timer, ok := p.timers[sessionID]; ok {
		timer.Stop()
		delete(p.timers, sessionID)
	}
}

func (p *SpeechPipeline) run(job *SpeechJob) {
	ctx, cancel := context.WithTimeout(context.Background(), speechTimeout)
	defer cancel()

	script := p.buildScript(ctx, job)
	voice := p.voiceFor(job.SpeakerID)

	audio, err := p.speech.Synthesize(ctx, script, voice)
	if err != nil {
		p.logger.Warn("speech synthesis failed",
			zap.String("session_id", job.SessionID),
			zap.Int("turn", job.Turn),
			zap.Error(err))
		return
	}

	clip := &generators.Clip{
		SessionID: job.SessionID,
		Turn:      job.Turn,
		SpeakerID: job.SpeakerID,
		VoiceID:   voice,
		MIMEType:  "audio/wav",
		Data:      audio,
		CreatedAt: time.Now(),
	}
	p.clips.Put(clip)

	if p.onClip != nil {
		p.onClip(clip)
	}
}

// buildScript produces the annotated performance script. A failed
// script pass falls back to the raw text in a bare speak wrapper so
// narration still goes out.
func (p *SpeechPipeline) buildScript(ctx context.Context, job *SpeechJob) string {
	prompt, err := p.prompts.Render("speech_script", map[string]string{
		"persona":   p.personaFor(job),
		"intensity": fmt.Sprintf("%.2f", job.Intensity),
		"text":      job.Text,
	})
	if err != nil {
		return "<speak>" + job.Text + "</speak>"
	}

	script, err := p.text.GenerateText(ctx, &interfaces.TextRequest{
		Instruction: prompts.SpeechInstruction,
		Prompt:      prompt,
		Temperature: 0.6,
		MaxTokens:   2048,
	})
	if err != nil || script == "" {
		p.logger.Warn("performance script failed, using raw text",
			zap.String("session_id", job.SessionID), zap.Error(err))
		return "<speak>" + job.Text + "</speak>"
	}
	return script
}

// personaFor picks delivery notes: the speaker's persona when the
// roster knows them, otherwise a mood-derived narrator note.
func (p *SpeechPipeline) personaFor(job *SpeechJob) string {
	if job.SpeakerID != "" {
		if persona, ok := prompts.CharacterSpeechInstructions[job.SpeakerID]; ok {
			return persona
		}
	}
	switch job.Mood {
	case models.MoodMocking:
		return "Narrator: dry, amused, lets the irony land on its own."
	case models.MoodSeductive:
		return "Narrator: low, unhurried, every pause deliberate."
	case models.MoodSympathetic:
		return "Narrator: warm, close to the listener, unguarded."
	default:
		return "Narrator: precise, detached, clinical observation."
	}
}

func (p *SpeechPipeline) voiceFor(speakerID string) string {
	if speakerID != "" {
		if c, ok := p.roster.Get(speakerID); ok && c.VoiceID != "" {
			return c.VoiceID
		}
	}
	return p.cfg.DefaultVoice
}
