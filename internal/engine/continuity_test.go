package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nightloom/server/internal/config"
	"nightloom/server/internal/generators"
	"nightloom/server/internal/interfaces"
	"nightloom/server/internal/models"
	"nightloom/server/internal/prompts"
)

type fakeImages struct {
	mu        sync.Mutex
	generated int
	edited    int
	failEdit  bool
	failGen   bool
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (*interfaces.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated++
	if f.failGen {
		return nil, fmt.Errorf("generation refused")
	}
	return &interfaces.Image{Data: []byte(fmt.Sprintf("gen-%d", f.generated)), MIMEType: "image/png"}, nil
}

func (f *fakeImages) EditImage(_ context.Context, base *interfaces.Image, _ string) (*interfaces.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited++
	if f.failEdit {
		return nil, fmt.Errorf("edit refused")
	}
	return &interfaces.Image{Data: append([]byte("edited-"), base.Data...), MIMEType: "image/png"}, nil
}

// fakeInspector scores each inspection from a scripted queue of verdicts.
type fakeInspector struct {
	mu       sync.Mutex
	verdicts []string
	calls    int
}

func (f *fakeInspector) InspectImage(_ context.Context, _ *interfaces.Image, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.verdicts) == 0 {
		return `{"scores": [true, true, true, true, false], "notes": ""}`, nil
	}
	v := f.verdicts[0]
	f.verdicts = f.verdicts[1:]
	return v, nil
}

func newTestVisual(t *testing.T, images *fakeImages, inspector interfaces.ImageInspector) (*VisualPipeline, *generators.SceneCache) {
	t.Helper()
	engine := prompts.NewTemplateEngine()
	require.NoError(t, engine.InitializeDefaultTemplates())

	cache := generators.NewSceneCache(t.TempDir(), 8)
	require.NoError(t, cache.Initialize())

	cfg := config.VisualConfig{MaxRetries: 2, MinScore: 70}
	return NewVisualPipeline(images, inspector, cache, engine, cfg, zap.NewNop()), cache
}

func sceneUnit(sceneID string) *models.NarrativeUnit {
	return &models.NarrativeUnit{
		SceneID: sceneID,
		Text:    "lamplight over the tide charts",
		Visual: models.VisualSpec{
			Style:       "grounded gothic realism",
			Environment: "archive room",
			Lighting:    "single lamp",
		},
	}
}

func TestRenderGeneratesForNewScene(t *testing.T) {
	images := &fakeImages{}
	pipeline, cache := newTestVisual(t, images, &fakeInspector{})

	img := pipeline.Render(context.Background(), "", sceneUnit("scene_archive"))
	require.NotNil(t, img)
	assert.Equal(t, 1, images.generated)
	assert.Zero(t, images.edited)
	assert.True(t, cache.Has("scene_archive"))
}

func TestRenderEditsWithinScene(t *testing.T) {
	images := &fakeImages{}
	pipeline, cache := newTestVisual(t, images, &fakeInspector{})
	require.NoError(t, cache.Put("scene_archive", &interfaces.Image{Data: []byte("base"), MIMEType: "image/png"}, ""))

	img := pipeline.Render(context.Background(), "scene_archive", sceneUnit("scene_archive"))
	require.NotNil(t, img)
	assert.Equal(t, 1, images.edited)
	assert.Zero(t, images.generated)
	assert.Contains(t, string(img.Data), "edited-")
}

func TestRenderReusesBaseWhenNothingChanged(t *testing.T) {
	images := &fakeImages{}
	pipeline, cache := newTestVisual(t, images, &fakeInspector{})
	require.NoError(t, cache.Put("scene_archive", &interfaces.Image{Data: []byte("base"), MIMEType: "image/png"}, ""))

	unit := &models.NarrativeUnit{SceneID: "scene_archive", Text: "a long silence"}
	img := pipeline.Render(context.Background(), "scene_archive", unit)
	require.NotNil(t, img)
	assert.Equal(t, []byte("base"), img.Data)
	assert.Zero(t, images.generated)
	assert.Zero(t, images.edited)
}

func TestRenderFailedEditFallsBackToGeneration(t *testing.T) {
	images := &fakeImages{failEdit: true}
	pipeline, cache := newTestVisual(t, images, &fakeInspector{})
	require.NoError(t, cache.Put("scene_archive", &interfaces.Image{Data: []byte("base"), MIMEType: "image/png"}, ""))

	img := pipeline.Render(context.Background(), "scene_archive", sceneUnit("scene_archive"))
	require.NotNil(t, img)
	assert.Equal(t, 1, images.edited)
	assert.Equal(t, 1, images.generated)
}

func TestRenderRetriesBelowQualityBar(t *testing.T) {
	images := &fakeImages{}
	inspector := &fakeInspector{verdicts: []string{
		`{"scores": [false, false, true, false, true], "notes": "flat lighting"}`,
		`{"scores": [true, true, true, true, false], "notes": ""}`,
	}}
	pipeline, _ := newTestVisual(t, images, inspector)

	img := pipeline.Render(context.Background(), "", sceneUnit("scene_pier"))
	require.NotNil(t, img)
	assert.Equal(t, 2, images.generated)
	assert.Equal(t, 2, inspector.calls)
}

func TestRenderKeepsBestWhenBudgetExhausted(t *testing.T) {
	images := &fakeImages{}
	failing := `{"scores": [false, false, false, false, true], "notes": "wrong everything"}`
	better := `{"scores": [true, true, false, false, true], "notes": "closer"}`
	inspector := &fakeInspector{verdicts: []string{failing, better, failing}}
	pipeline, cache := newTestVisual(t, images, inspector)

	img := pipeline.Render(context.Background(), "", sceneUnit("scene_pier"))
	require.NotNil(t, img)
	// Budget is MaxRetries+1 attempts; the best scorer (attempt 2) wins.
	assert.Equal(t, 3, images.generated)
	assert.Equal(t, []byte("gen-2"), img.Data)
	assert.True(t, cache.Has("scene_pier"))
}

func TestRenderRepairsMissingStyleTag(t *testing.T) {
	images := &fakeImages{}
	pipeline, _ := newTestVisual(t, images, &fakeInspector{})

	unit := sceneUnit("scene_pier")
	unit.Visual.Style = "watercolor sketch"
	pipeline.Render(context.Background(), "", unit)
	assert.Contains(t, unit.Visual.Style, prompts.MandatoryStyleTag)
}

func TestRenderSkipsWithoutBackend(t *testing.T) {
	engine := prompts.NewTemplateEngine()
	require.NoError(t, engine.InitializeDefaultTemplates())
	cache := generators.NewSceneCache(t.TempDir(), 8)
	require.NoError(t, cache.Initialize())

	pipeline := NewVisualPipeline(nil, nil, cache, engine, config.VisualConfig{}, zap.NewNop())
	assert.Nil(t, pipeline.Render(context.Background(), "", sceneUnit("scene_pier")))
}
