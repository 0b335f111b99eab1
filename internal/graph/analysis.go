package graph

import "math"

// noveltyFloor is the threshold below which the analysis suggests a
// synthetic foreshadowing edge to break narrative stagnation.
const noveltyFloor = 0.35

// emptyNovelty is reported for a graph with no links, where the
// distribution is undefined.
const emptyNovelty = 0.5

// Analysis is the result of a stagnation pass over the graph.
// Dominance chains and speaker priority are extension points and stay
// empty for now.
type Analysis struct {
	Novelty         float64  `json:"novelty"`
	DominanceChains []string `json:"dominance_chains"`
	SpeakerPriority []string `json:"speaker_priority"`
	SuggestedLinks  []Link   `json:"suggested_links"`
}

// Novelty measures how evenly relation labels are spread across the links:
// the Shannon entropy of the label frequency distribution, normalized to
// [0,1]. A single repeated label scores 0; a uniform spread over many
// distinct labels approaches 1. An empty graph scores the 0.5 sentinel.
func (g Graph) Novelty() float64 {
	if len(g.Links) == 0 {
		return emptyNovelty
	}
	counts := make(map[string]int)
	for _, l := range g.Links {
		counts[l.Label]++
	}
	if len(counts) == 1 {
		return 0
	}
	total := float64(len(g.Links))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / total
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(float64(len(counts)))
}

// Analyze runs the stagnation pass. When novelty falls below the floor it
// suggests exactly one foreshadowing edge between the two most connected
// characters; at or above the floor it suggests none.
func (g Graph) Analyze() Analysis {
	a := Analysis{
		Novelty:         g.Novelty(),
		DominanceChains: []string{},
		SpeakerPriority: []string{},
	}
	if a.Novelty >= noveltyFloor {
		return a
	}
	if src, dst, ok := g.foreshadowPair(); ok {
		a.SuggestedLinks = append(a.SuggestedLinks, Link{
			Source:   src,
			Target:   dst,
			Label:    "foreshadow",
			Strength: 0.8,
		})
	}
	return a
}

// foreshadowPair picks the two character nodes with the highest degree,
// preferring a pair that is not already directly linked.
func (g Graph) foreshadowPair() (string, string, bool) {
	degree := make(map[string]int)
	for _, l := range g.Links {
		degree[l.Source]++
		degree[l.Target]++
	}

	var chars []string
	for _, n := range g.Nodes {
		if n.Group == GroupCharacter {
			chars = append(chars, n.ID)
		}
	}
	if len(chars) < 2 {
		return "", "", false
	}

	best := func(exclude string) string {
		id, max := "", -1
		for _, c := range chars {
			if c == exclude {
				continue
			}
			if degree[c] > max {
				id, max = c, degree[c]
			}
		}
		return id
	}

	src := best("")
	dst := best(src)
	if src == "" || dst == "" {
		return "", "", false
	}
	return src, dst, true
}
