package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

// renderMode is how a turn's image gets produced.
type renderMode int

const (
	renderSkip renderMode = iota
	renderReuse
	renderEdit
	renderGenerate
)

// passesPerVerdict is the weight of one verification check.
const passesPerVerdict = 20

// VisualPipeline resolves scene continuity and runs quality-gated image
// production. Scene-local changes become edits over the cached base
// image; scene changes regenerate from the full spec.
type VisualPipeline struct {
	images    interfaces.ImageGenerator
	inspector interfaces.ImageInspector
	cache     *generators.SceneCache
	prompts   *prompts.TemplateEngine
	cfg       config.VisualConfig
	logger    *zap.Logger
}

// NewVisualPipeline wires the pipeline. images may be nil when no
// backend is configured; Render then skips silently.
func NewVisualPipeline(images interfaces.ImageGenerator, inspector interfaces.ImageInspector, cache *generators.SceneCache, engine *prompts.TemplateEngine, cfg config.VisualConfig, logger *zap.Logger) *VisualPipeline {
	return &VisualPipeline{
		images:    images,
		inspector: inspector,
		cache:     cache,
		prompts:   engine,
		cfg:       cfg,
		logger:    logger,
	}
}

// Render produces the image for a unit and stores it as the scene's new
// base. Returns nil without error when rendering is skipped or every
// strategy fails; the turn is never blocked on visuals.
func (p *VisualPipeline) Render(ctx context.Context, prevSceneID string, unit *models.NarrativeUnit) *interfaces.Image {
	if p.images == nil {
		return nil
	}

	mode := p.resolveMode(prevSceneID, unit)

	switch mode {
	case renderSkip:
		return nil
	case renderReuse:
		return p.cache.Get(unit.SceneID)
	case renderEdit:
		p.repairSpec(unit)
		if img := p.edit(ctx, unit); img != nil {
			return img
		}
		// A failed edit degrades to full generation.
		return p.generate(ctx, unit)
	default:
		p.repairSpec(unit)
		return p.generate(ctx, unit)
	}
}

// resolveMode picks the rendering strategy for a unit.
func (p *VisualPipeline) resolveMode(prevSceneID string, unit *models.NarrativeUnit) renderMode {
	sameScene := unit.SceneID == prevSceneID
	cached := p.cache.Has(unit.SceneID)

	if sameScene && cached {
		if unit.Visual.IsZero() {
			// Nothing changed visually; keep the current base.
			return renderReuse
		}
		return renderEdit
	}
	if unit.Visual.IsZero() && strings.TrimSpace(unit.Text) == "" {
		return renderSkip
	}
	return renderGenerate
}

// repairSpec enforces the mandatory style tag before any generation.
func (p *VisualPipeline) repairSpec(unit *models.NarrativeUnit) {
	style := unit.Visual.Style
	if !strings.Contains(strings.ToLower(style), prompts.MandatoryStyleTag) {
		if style == "" {
			unit.Visual.Style = prompts.MandatoryStyleTag
		} else {
			unit.Visual.Style = style + ", " + prompts.MandatoryStyleTag
		}
		p.logger.Debug("repaired visual style tag",
			zap.String("scene_id", unit.SceneID))
	}
}

func (p *VisualPipeline) edit(ctx context.Context, unit *models.NarrativeUnit) *interfaces.Image {
	base := p.cache.Get(unit.SceneID)
	if base == nil {
		return nil
	}

	change, err := p.prompts.Render("image_edit", map[string]string{
		"change": unit.Visual.Flatten(),
	})
	if err != nil {
		p.logger.Warn("edit prompt render failed", zap.Error(err))
		return nil
	}

	img, err := p.images.EditImage(ctx, base, change)
	if err != nil {
		p.logger.Warn("image edit failed, falling back to generation",
			zap.String("scene_id", unit.SceneID), zap.Error(err))
		return nil
	}

	if err := p.cache.Put(unit.SceneID, img, change); err != nil {
		p.logger.Warn("failed to cache edited image", zap.Error(err))
	}
	return img
}

// generate runs quality-gated generation with a bounded retry budget.
// Every attempt is inspected; the best-scoring image wins when no
// attempt clears the bar. A final emergency attempt renders from plain
// narrative text.
func (p *VisualPipeline) generate(ctx context.Context, unit *models.NarrativeUnit) *interfaces.Image {
	prompt := unit.Visual.Flatten()
	if unit.Visual.Environment == "" && len(unit.Visual.Characters) == 0 {
		// Spec carries no scene content; render from the prose instead.
		prompt = p.fallbackPrompt(unit.Text)
	}

	var best *interfaces.Image
	bestScore := -1

	attempts := p.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		img, err := p.images.GenerateImage(ctx, prompt)
		if err != nil {
			p.logger.Warn("image generation failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		score, issues := p.inspect(ctx, img, unit)
		if score >= p.cfg.MinScore {
			p.store(unit.SceneID, img, prompt)
			return img
		}
		if score > bestScore {
			best, bestScore = img, score
		}
		p.logger.Info("image below quality bar, retrying",
			zap.Int("attempt", attempt),
			zap.Int("score", score),
			zap.Strings("issues", issues))
		if len(issues) > 0 {
			prompt = prompt + "\nFix: " + strings.Join(issues, "; ")
		}
	}

	if best == nil {
		// Emergency path: plain text, default styling.
		img, err := p.images.GenerateImage(ctx, p.fallbackPrompt(unit.Text))
		if err != nil {
			p.logger.Warn("emergency image generation failed", zap.Error(err))
			return nil
		}
		best = img
	}
	p.store(unit.SceneID, best, prompt)
	return best
}

func (p *VisualPipeline) fallbackPrompt(text string) string {
	prompt, err := p.prompts.Render("image_fallback", map[string]string{"text": text})
	if err != nil {
		return text + "\n" + prompts.DefaultStyleLine
	}
	return prompt
}

// inspect scores an image through the vision checklist. Inspection
// failures return a passing score so a broken inspector never blocks
// rendering.
func (p *VisualPipeline) inspect(ctx context.Context, img *interfaces.Image, unit *models.NarrativeUnit) (int, []string) {
	if p.inspector == nil {
		return 100, nil
	}

	characters := make([]string, 0, len(unit.Visual.Characters))
	for _, c := range unit.Visual.Characters {
		characters = append(characters, c.ID)
	}
	checklist, err := p.prompts.Render("image_verify", map[string]string{
		"style":      unit.Visual.Style,
		"mood":       unit.Visual.Mood,
		"characters": strings.Join(characters, ", "),
		"lighting":   unit.Visual.Lighting,
	})
	if err != nil {
		return 100, nil
	}

	raw, err := p.inspector.InspectImage(ctx, img, checklist)
	if err != nil {
		p.logger.Warn("image inspection failed, accepting image", zap.Error(err))
		return 100, nil
	}

	var verdict struct {
		Scores []bool `json:"scores"`
		Notes  string `json:"notes"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &verdict); err != nil || len(verdict.Scores) == 0 {
		return 100, nil
	}

	score := 0
	var issues []string
	for i, pass := range verdict.Scores {
		// The last check flags bright flat lighting; false is the pass.
		wanted := i != len(verdict.Scores)-1
		if pass == wanted {
			score += passesPerVerdict
		} else {
			issues = append(issues, fmt.Sprintf("check %d failed", i+1))
		}
	}
	if verdict.Notes != "" && len(issues) > 0 {
		issues = append(issues, verdict.Notes)
	}
	return score, issues
}

func (p *VisualPipeline) store(sceneID string, img *interfaces.Image, prompt string) {
	if err := p.cache.Put(sceneID, img, prompt); err != nil {
		p.logger.Warn("failed to cache scene image",
			zap.String("scene_id", sceneID), zap.Error(err))
	}
}

// BaseImage exposes the cached base for a scene to other pipelines.
func (p *VisualPipeline) BaseImage(sceneID string) *interfaces.Image {
	return p.cache.Get(sceneID)
}
