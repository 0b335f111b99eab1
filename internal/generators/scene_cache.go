package generators

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"nightloom/server/internal/interfaces"
)

// SceneEntry is one cached base image for a scene.
type SceneEntry struct {
	SceneID      string    `json:"scene_id"`
	FilePath     string    `json:"file_path"`
	MIMEType     string    `json:"mime_type"`
	Prompt       string    `json:"prompt"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	FileSize     int64     `json:"file_size"`
	Hits         int       `json:"hits"`
}

// SceneCache keeps the latest base image per scene so that scene-local
// changes can be rendered as edits instead of full regenerations. Images
// live on disk with a JSON sidecar; the map only holds metadata.
type SceneCache struct {
	entries    map[string]*SceneEntry
	directory  string
	maxEntries int
	mu         sync.RWMutex
	stats      SceneCacheStats
}

// SceneCacheStats holds counters for cache effectiveness.
type SceneCacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hit_rate"`
	TotalEntries int     `json:"total_entries"`
	TotalSize    int64   `json:"total_size"`
}

// NewSceneCache creates a cache rooted at directory.
func NewSceneCache(directory string, maxEntries int) *SceneCache {
	return &SceneCache{
		entries:    make(map[string]*SceneEntry),
		directory:  directory,
		maxEntries: maxEntries,
	}
}

// Initialize creates the cache directory and loads surviving sidecars.
func (c *SceneCache) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.directory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.directory, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		return nil
	}

	files, err := os.ReadDir(c.directory)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".meta" {
			continue
		}
		metaData, err := os.ReadFile(filepath.Join(c.directory, f.Name()))
		if err != nil {
			continue
		}
		var entry SceneEntry
		if err := json.Unmarshal(metaData, &entry); err != nil {
			continue
		}
		if _, err := os.Stat(entry.FilePath); err != nil {
			continue
		}
		c.entries[entry.SceneID] = &entry
		c.stats.TotalEntries++
		c.stats.TotalSize += entry.FileSize
	}
	return nil
}

// Get returns the cached base image for a scene, or nil on a miss.
func (c *SceneCache) Get(sceneID string) *interfaces.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sceneID]
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return nil
	}

	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		delete(c.entries, sceneID)
		c.stats.Misses++
		c.updateHitRate()
		return nil
	}

	entry.LastAccessed = time.Now()
	entry.Hits++
	c.stats.Hits++
	c.updateHitRate()

	return &interfaces.Image{Data: data, MIMEType: entry.MIMEType}
}

// Put stores the base image for a scene, replacing any previous one.
func (c *SceneCache) Put(sceneID string, img *interfaces.Image, prompt string) error {
	if img == nil || len(img.Data) == 0 {
		return fmt.Errorf("refusing to cache empty image for scene %s", sceneID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := filepath.Join(c.directory, sceneID+".png")
	if err := os.WriteFile(filePath, img.Data, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	if prev, ok := c.entries[sceneID]; ok {
		c.stats.TotalSize -= prev.FileSize
		c.stats.TotalEntries--
	}

	now := time.Now()
	entry := &SceneEntry{
		SceneID:      sceneID,
		FilePath:     filePath,
		MIMEType:     img.MIMEType,
		Prompt:       prompt,
		CreatedAt:    now,
		LastAccessed: now,
		FileSize:     int64(len(img.Data)),
	}

	metaData, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filePath+".meta", metaData, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	c.entries[sceneID] = entry
	c.stats.TotalEntries++
	c.stats.TotalSize += entry.FileSize

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
	return nil
}

// Has reports whether a scene has a cached base image.
func (c *SceneCache) Has(sceneID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[sceneID]
	return ok
}

// Invalidate drops a scene from the cache.
func (c *SceneCache) Invalidate(sceneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(sceneID)
}

// Stats returns a snapshot of the cache counters.
func (c *SceneCache) Stats() SceneCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *SceneCache) removeLocked(sceneID string) {
	entry, ok := c.entries[sceneID]
	if !ok {
		return
	}
	if entry.FilePath != "" {
		_ = os.Remove(entry.FilePath)
		_ = os.Remove(entry.FilePath + ".meta")
	}
	delete(c.entries, sceneID)
	c.stats.TotalEntries--
	c.stats.TotalSize -= entry.FileSize
}

func (c *SceneCache) evictOldest() {
	var oldestID string
	var oldestTime time.Time
	for id, entry := range c.entries {
		if oldestTime.IsZero() || entry.LastAccessed.Before(oldestTime) {
			oldestID = id
			oldestTime = entry.LastAccessed
		}
	}
	if oldestID != "" {
		c.removeLocked(oldestID)
	}
}

func (c *SceneCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
