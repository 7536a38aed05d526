package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"reader-gateway/internal/models"
)

// RoadmapGenerator is the slice of the assistant client the roadmap pipeline
// needs.
type RoadmapGenerator interface {
	GenerateRoadmap(ctx context.Context, text string) ([]models.RoadmapNode, error)
}

// RoadmapService turns extracted document text into a renderable learning
// roadmap: node list from the backend, edges assembled here.
type RoadmapService struct {
	client RoadmapGenerator
	logger *log.Logger
}

// NewRoadmapService creates a roadmap service backed by the given generator.
func NewRoadmapService(client RoadmapGenerator, logger *log.Logger) *RoadmapService {
	if logger == nil {
		logger = log.Default()
	}
	return &RoadmapService{client: client, logger: logger}
}

// Generate validates the input, requests the node set from the backend and
// assembles the renderable edge set. Empty or whitespace-only text is
// rejected before any network call.
func (s *RoadmapService) Generate(ctx context.Context, text string) (*models.Roadmap, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &models.ValidationError{Field: "text", Message: "document text is required"}
	}

	nodes, err := s.client.GenerateRoadmap(ctx, text)
	if err != nil {
		return nil, err
	}

	roadmap := &models.Roadmap{Nodes: nodes, Edges: s.buildEdges(nodes)}
	if err := roadmap.Validate(); err != nil {
		return nil, fmt.Errorf("backend returned an invalid roadmap: %w", err)
	}

	s.logger.Printf("✅ Generated roadmap: %d nodes, %d edges", len(roadmap.Nodes), len(roadmap.Edges))
	return roadmap, nil
}

// buildEdges returns the renderable edge set. An edge is included iff both
// its source and target exist in the node set; each ordered (source, target)
// pair appears at most once no matter which direction declared it. Dangling
// references are dropped and counted, never an error.
func (s *RoadmapService) buildEdges(nodes []models.RoadmapNode) []models.RoadmapEdge {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	seen := make(map[[2]string]bool)
	var edges []models.RoadmapEdge
	dangling := 0

	add := func(source, target string) {
		if !known[source] || !known[target] {
			dangling++
			return
		}
		key := [2]string{source, target}
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, models.RoadmapEdge{Source: source, Target: target})
	}

	for _, n := range nodes {
		for _, pred := range n.IndegreeIDs {
			add(pred, n.ID)
		}
		for _, succ := range n.OutdegreeIDs {
			add(n.ID, succ)
		}
	}

	if dangling > 0 {
		s.logger.Printf("⚠️  Dropped %d dangling roadmap edge reference(s)", dangling)
	}
	return edges
}
