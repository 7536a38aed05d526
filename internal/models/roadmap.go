package models

// RoadmapNode represents one learning-concept node as delivered by the
// backend. IndegreeIDs list nodes that should be completed before this one,
// OutdegreeIDs nodes that follow it; both may reference ids missing from the
// result set, which are dropped when building renderable edges.
type RoadmapNode struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	IndegreeIDs  []string `json:"indegree_id,omitempty"`
	OutdegreeIDs []string `json:"outdegree_id,omitempty"`
}

// RoadmapEdge represents a renderable directed edge between two nodes that
// both exist in the roadmap.
type RoadmapEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Roadmap represents a generated learning roadmap held by a session. It is
// replaced wholesale on each generation and dropped on clear; nothing else
// owns it.
type Roadmap struct {
	Nodes []RoadmapNode `json:"nodes"`
	Edges []RoadmapEdge `json:"edges"`
}

// Validate checks that every node carries an identifier and that identifiers
// are unique within the roadmap.
func (r *Roadmap) Validate() error {
	seen := make(map[string]bool, len(r.Nodes))
	for _, n := range r.Nodes {
		if n.ID == "" {
			return &ValidationError{Field: "id", Message: "roadmap node ID is required"}
		}
		if seen[n.ID] {
			return &ValidationError{Field: "id", Message: "duplicate roadmap node ID: " + n.ID}
		}
		seen[n.ID] = true
	}
	return nil
}
