package graph

// NodeGroup categorizes a graph node
type NodeGroup string

const (
	GroupCharacter NodeGroup = "character"
	GroupConcept   NodeGroup = "concept"
	GroupEvent     NodeGroup = "event"
	GroupItem      NodeGroup = "item"
)

// Node represents an entity in the world-relationship graph
type Node struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Group NodeGroup `json:"group"`
}

// Link represents a directed, labeled, weighted relationship between nodes.
// Multi-edges are allowed: the same pair may be linked repeatedly with
// different (or identical) labels, since relationships recur.
type Link struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Label    string  `json:"label"`
	Strength float64 `json:"strength"`
}

// Graph is the entity/relationship store shown to the player and fed back
// into the planning stage. Treated as an immutable value; Merge returns a
// new graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Delta holds graph additions produced by scene synthesis.
type Delta struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Merge appends the delta to the graph and returns the result.
// Nodes are deduplicated by id with first-write-wins on label and group.
// Links always append. There is no removal operation.
func Merge(g Graph, d *Delta) Graph {
	next := Graph{
		Nodes: make([]Node, len(g.Nodes), len(g.Nodes)+nodeCount(d)),
		Links: make([]Link, len(g.Links), len(g.Links)+linkCount(d)),
	}
	copy(next.Nodes, g.Nodes)
	copy(next.Links, g.Links)
	if d == nil {
		return next
	}

	seen := make(map[string]bool, len(next.Nodes))
	for _, n := range next.Nodes {
		seen[n.ID] = true
	}
	for _, n := range d.Nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		next.Nodes = append(next.Nodes, n)
	}
	next.Links = append(next.Links, d.Links...)
	return next
}

// HasNode reports whether a node id is present.
func (g Graph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// LinksFor returns every link touching the given node id, in insertion order.
func (g Graph) LinksFor(id string) []Link {
	var out []Link
	for _, l := range g.Links {
		if l.Source == id || l.Target == id {
			out = append(out, l)
		}
	}
	return out
}

func nodeCount(d *Delta) int {
	if d == nil {
		return 0
	}
	return len(d.Nodes)
}

func linkCount(d *Delta) int {
	if d == nil {
		return 0
	}
	return len(d.Links)
}
