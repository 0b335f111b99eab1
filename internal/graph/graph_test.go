package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func seedGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "maren", Label: "Warden Maren", Group: GroupCharacter},
			{ID: "visitor", Label: "The Visitor", Group: GroupCharacter},
			{ID: "station", Label: "Greyharbor Station", Group: GroupConcept},
		},
		Links: []Link{
			{Source: "maren", Target: "station", Label: "keeps", Strength: 1},
			{Source: "visitor", Target: "station", Label: "arrived_at", Strength: 1},
		},
	}
}

func TestMergeDeduplicatesNodesByID(t *testing.T) {
	g := seedGraph()
	next := Merge(g, &Delta{
		Nodes: []Node{
			{ID: "maren", Label: "Someone Else", Group: GroupItem},
			{ID: "lens", Label: "The Cracked Lens", Group: GroupItem},
		},
	})

	assert.Len(t, next.Nodes, 4)
	for _, n := range next.Nodes {
		if n.ID == "maren" {
			assert.Equal(t, "Warden Maren", n.Label, "first write wins on label")
			assert.Equal(t, GroupCharacter, n.Group)
		}
	}
}

func TestMergeAlwaysAppendsLinks(t *testing.T) {
	g := seedGraph()
	dup := g.Links[0]
	next := Merge(g, &Delta{Links: []Link{dup, dup}})
	assert.Len(t, next.Links, len(g.Links)+2, "identical links append as multi-edges")
}

func TestMergeNeverShrinks(t *testing.T) {
	g := seedGraph()
	next := Merge(g, nil)
	assert.Len(t, next.Nodes, len(g.Nodes))
	assert.Len(t, next.Links, len(g.Links))

	next = Merge(g, &Delta{})
	assert.Len(t, next.Nodes, len(g.Nodes))
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	g := seedGraph()
	_ = Merge(g, &Delta{
		Nodes: []Node{{ID: "lens", Label: "Lens", Group: GroupItem}},
		Links: []Link{{Source: "visitor", Target: "lens", Label: "found", Strength: 1}},
	})
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Links, 2)
}

func TestNoveltySingleLabelIsZero(t *testing.T) {
	g := Graph{Links: []Link{
		{Source: "a", Target: "b", Label: "fears"},
		{Source: "b", Target: "c", Label: "fears"},
		{Source: "c", Target: "a", Label: "fears"},
	}}
	assert.Equal(t, 0.0, g.Novelty())
}

func TestNoveltyEmptyGraphSentinel(t *testing.T) {
	assert.Equal(t, 0.5, Graph{}.Novelty())
}

func TestNoveltyApproachesOneWithUniformSpread(t *testing.T) {
	prev := 0.0
	for _, k := range []int{2, 4, 8, 16} {
		var g Graph
		for i := 0; i < k; i++ {
			g.Links = append(g.Links, Link{Source: "a", Target: "b", Label: fmt.Sprintf("rel_%d", i)})
		}
		n := g.Novelty()
		assert.InDelta(t, 1.0, n, 1e-9, "uniform distribution is maximal entropy")
		assert.GreaterOrEqual(t, n, prev)
		prev = n
	}
}

func TestAnalyzeInjectsForeshadowBelowFloor(t *testing.T) {
	g := seedGraph()
	// Two labels, heavily skewed: low entropy.
	for i := 0; i < 30; i++ {
		g.Links = append(g.Links, Link{Source: "maren", Target: "visitor", Label: "watches", Strength: 1})
	}
	assert.Less(t, g.Novelty(), 0.35)

	a := g.Analyze()
	assert.Len(t, a.SuggestedLinks, 1, "exactly one suggestion per analysis call")
	assert.Equal(t, "foreshadow", a.SuggestedLinks[0].Label)
}

func TestAnalyzeSuggestsNothingAtOrAboveFloor(t *testing.T) {
	g := Graph{
		Nodes: seedGraph().Nodes,
		Links: []Link{
			{Source: "maren", Target: "visitor", Label: "watches"},
			{Source: "visitor", Target: "maren", Label: "distrusts"},
			{Source: "maren", Target: "station", Label: "keeps"},
		},
	}
	assert.GreaterOrEqual(t, g.Novelty(), 0.35)
	assert.Empty(t, g.Analyze().SuggestedLinks)
}
