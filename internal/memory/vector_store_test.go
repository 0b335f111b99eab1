package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nightloom/server/internal/interfaces"
)

// fakeEmbedder maps known words onto fixed axes so similarity is
// predictable in tests.
type fakeEmbedder struct {
	fail bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, fmt.Errorf("embedding backend down")
	}
	vec := make([]float64, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "lighthouse") {
		vec[0] = 1
	}
	if strings.Contains(lower, "archive") {
		vec[1] = 1
	}
	if strings.Contains(lower, "storm") {
		vec[2] = 1
	}
	if vec[0] == 0 && vec[1] == 0 && vec[2] == 0 {
		vec[0], vec[1], vec[2] = 0.1, 0.1, 0.1
	}
	return vec, nil
}

func TestStoreAndSearchBySimilarity(t *testing.T) {
	store := NewVectorStore(&fakeEmbedder{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{
		SessionID: "s1", Type: interfaces.MemoryBeat,
		Content: "the lighthouse beam failed at midnight",
	}))
	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{
		SessionID: "s1", Type: interfaces.MemoryBeat,
		Content: "cole sealed the archive door",
	}))

	results, err := store.SearchMemories(ctx, "s1", "what happened at the lighthouse", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Content, "lighthouse")
}

func TestSearchScopedToSession(t *testing.T) {
	store := NewVectorStore(&fakeEmbedder{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{
		SessionID: "s1", Content: "storm warning posted",
	}))

	results, err := store.SearchMemories(ctx, "s2", "storm", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreAssignsIDAndTimestamp(t *testing.T) {
	store := NewVectorStore(&fakeEmbedder{}, zap.NewNop())
	mem := &interfaces.Memory{SessionID: "s1", Content: "storm rising"}
	require.NoError(t, store.StoreMemory(context.Background(), mem))
	assert.NotEmpty(t, mem.ID)
	assert.NotZero(t, mem.Timestamp)
}

func TestEmbedderFailureDegradesToRecency(t *testing.T) {
	store := NewVectorStore(&fakeEmbedder{fail: true}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{SessionID: "s1", Content: "first"}))
	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{SessionID: "s1", Content: "second"}))

	results, err := store.SearchMemories(ctx, "s1", "anything", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second", results[0].Content)
}

func TestDeleteSessionMemories(t *testing.T) {
	store := NewVectorStore(&fakeEmbedder{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.StoreMemory(ctx, &interfaces.Memory{SessionID: "s1", Content: "storm"}))
	require.Equal(t, 1, store.Count("s1"))

	require.NoError(t, store.DeleteSessionMemories(ctx, "s1"))
	assert.Zero(t, store.Count("s1"))
}

func TestBuildContextSummary(t *testing.T) {
	memories := []*interfaces.Memory{
		{Type: interfaces.MemoryDecision, Content: "open the signal room", Turn: 3},
		{Type: interfaces.MemoryBeat, Content: "maren lit the beacon", Turn: 4},
	}
	summary := BuildContextSummary(memories, 10)
	assert.Contains(t, summary, "Visitor chose: open the signal room")
	assert.Contains(t, summary, "Story beat: maren lit the beacon")
	assert.Contains(t, summary, "(turn 3)")

	assert.Equal(t, "(no recorded history)", BuildContextSummary(nil, 10))
}
