package generators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightloom/server/internal/interfaces"
)

func TestSceneCachePutGet(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 4)
	require.NoError(t, cache.Initialize())

	img := &interfaces.Image{Data: []byte("png-bytes"), MIMEType: "image/png"}
	require.NoError(t, cache.Put("scene_atrium", img, "the station atrium at dusk"))

	got := cache.Get("scene_atrium")
	require.NotNil(t, got)
	assert.Equal(t, img.Data, got.Data)
	assert.Equal(t, "image/png", got.MIMEType)
	assert.True(t, cache.Has("scene_atrium"))
}

func TestSceneCacheMiss(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 4)
	require.NoError(t, cache.Initialize())

	assert.Nil(t, cache.Get("scene_unknown"))
	assert.False(t, cache.Has("scene_unknown"))

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Misses)
}

func TestSceneCacheRejectsEmptyImage(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 4)
	require.NoError(t, cache.Initialize())

	assert.Error(t, cache.Put("scene_atrium", nil, "prompt"))
	assert.Error(t, cache.Put("scene_atrium", &interfaces.Image{}, "prompt"))
}

func TestSceneCacheReplaceAndEvict(t *testing.T) {
	cache := NewSceneCache(t.TempDir(), 2)
	require.NoError(t, cache.Initialize())

	require.NoError(t, cache.Put("a", &interfaces.Image{Data: []byte("one"), MIMEType: "image/png"}, ""))
	require.NoError(t, cache.Put("a", &interfaces.Image{Data: []byte("two"), MIMEType: "image/png"}, ""))
	got := cache.Get("a")
	require.NotNil(t, got)
	assert.Equal(t, []byte("two"), got.Data)

	require.NoError(t, cache.Put("b", &interfaces.Image{Data: []byte("b"), MIMEType: "image/png"}, ""))
	require.NoError(t, cache.Put("c", &interfaces.Image{Data: []byte("c"), MIMEType: "image/png"}, ""))
	assert.Equal(t, 2, cache.Stats().TotalEntries)
}

func TestSceneCacheSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	first := NewSceneCache(dir, 4)
	require.NoError(t, first.Initialize())
	require.NoError(t, first.Put("scene_pier", &interfaces.Image{Data: []byte("pier"), MIMEType: "image/png"}, "the pier"))

	second := NewSceneCache(dir, 4)
	require.NoError(t, second.Initialize())
	got := second.Get("scene_pier")
	require.NotNil(t, got)
	assert.Equal(t, []byte("pier"), got.Data)
}

func TestClipStoreLatestAndEviction(t *testing.T) {
	store := NewClipStore(2)

	store.Put(&Clip{SessionID: "s1", Turn: 1, Data: []byte("one")})
	store.Put(&Clip{SessionID: "s1", Turn: 2, Data: []byte("two")})
	store.Put(&Clip{SessionID: "s1", Turn: 3, Data: []byte("three")})

	latest := store.Latest("s1")
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Turn)

	assert.Nil(t, store.ForTurn("s1", 1))
	require.NotNil(t, store.ForTurn("s1", 2))

	store.DropSession("s1")
	assert.Nil(t, store.Latest("s1"))
}

func TestClipStoreIgnoresEmpty(t *testing.T) {
	store := NewClipStore(4)
	store.Put(nil)
	store.Put(&Clip{SessionID: "s1", Turn: 1})
	assert.Nil(t, store.Latest("s1"))
}
