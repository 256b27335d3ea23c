// Package graph answers structured questions over the normalized
// entity/relation graph: given a process, what equipment it needs, what
// hazards it produces and how those are mitigated, and which quality
// points it must pass.
package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/buildkb/buildkb/extract"
	"github.com/buildkb/buildkb/store"
)

// Link is one traversal result: a related entity with the confidence and
// evidence of the edge that reached it.
type Link struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// HazardLink is a hazard together with its mitigating measures.
type HazardLink struct {
	Link
	Level    string `json:"level,omitempty"`
	Accident string `json:"accident,omitempty"`
	Measures []Link `json:"measures,omitempty"`
}

// Requirements is the full one-process answer used to draft safety and
// quality chapter content.
type Requirements struct {
	Process       string       `json:"process"`
	ProcessID     string       `json:"process_id,omitempty"`
	Equipment     []Link       `json:"equipment,omitempty"`
	Hazards       []HazardLink `json:"hazards,omitempty"`
	QualityPoints []Link       `json:"quality_points,omitempty"`
}

// Empty reports whether the traversal found nothing for the process.
func (r *Requirements) Empty() bool {
	return r.ProcessID == "" ||
		(len(r.Equipment) == 0 && len(r.Hazards) == 0 && len(r.QualityPoints) == 0)
}

// Reasoner traverses the stored graph. Stateless; safe for concurrent use.
type Reasoner struct {
	store *store.Store
}

// NewReasoner creates a Reasoner over a store.
func NewReasoner(s *store.Store) *Reasoner {
	return &Reasoner{store: s}
}

// Traverse resolves an entity by name or alias and follows its outgoing
// edges of the given relation type, returning target entity names in
// edge-confidence order. An unknown entity yields an empty result, not
// an error: sparse graphs are normal early in curation.
func (g *Reasoner) Traverse(ctx context.Context, entityName, relationType string) ([]string, error) {
	links, err := g.traverseLinks(ctx, entityName, relationType)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

func (g *Reasoner) traverseLinks(ctx context.Context, entityName, relationType string) ([]Link, error) {
	e, err := g.store.ResolveEntity(ctx, entityName)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("graph: entity not found", "name", entityName)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: resolving %q: %w", entityName, err)
	}
	return g.edgesFrom(ctx, e.ID, relationType)
}

func (g *Reasoner) edgesFrom(ctx context.Context, entityID, relationType string) ([]Link, error) {
	edges, err := g.store.Neighbors(ctx, entityID, relationType)
	if err != nil {
		return nil, fmt.Errorf("graph: neighbors of %s: %w", entityID, err)
	}
	links := make([]Link, 0, len(edges))
	for _, edge := range edges {
		links = append(links, Link{
			ID:         edge.Target.ID,
			Name:       edge.Target.Name,
			Confidence: edge.Relation.Confidence,
			Evidence:   edge.Relation.Evidence,
		})
	}
	return links, nil
}

// ProcessChain gathers everything the graph knows about one process: its
// equipment, its hazards with their mitigating measures (a second hop),
// and its quality points.
func (g *Reasoner) ProcessChain(ctx context.Context, process string) (*Requirements, error) {
	req := &Requirements{Process: process}

	e, err := g.store.ResolveEntity(ctx, process)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("graph: process not in graph", "process", process)
		return req, nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: resolving process %q: %w", process, err)
	}
	req.ProcessID = e.ID
	req.Process = e.Name

	if req.Equipment, err = g.edgesFrom(ctx, e.ID, extract.RelRequiresEquipment); err != nil {
		return nil, err
	}
	if req.QualityPoints, err = g.edgesFrom(ctx, e.ID, extract.RelRequiresQualityCheck); err != nil {
		return nil, err
	}

	hazardEdges, err := g.store.Neighbors(ctx, e.ID, extract.RelProducesHazard)
	if err != nil {
		return nil, fmt.Errorf("graph: hazards of %s: %w", e.ID, err)
	}
	for _, edge := range hazardEdges {
		h := HazardLink{
			Link: Link{
				ID:         edge.Target.ID,
				Name:       edge.Target.Name,
				Confidence: edge.Relation.Confidence,
				Evidence:   edge.Relation.Evidence,
			},
			Level:    edge.Target.Attributes["level"],
			Accident: edge.Target.Attributes["accident"],
		}
		if h.Measures, err = g.edgesFrom(ctx, edge.Target.ID, extract.RelMitigatedBy); err != nil {
			return nil, err
		}
		req.Hazards = append(req.Hazards, h)
	}

	return req, nil
}

// Load replaces the stored graph with normalized extraction output.
func Load(ctx context.Context, s *store.Store, g *extract.Graph) error {
	entities := make([]store.Entity, len(g.Entities))
	for i, e := range g.Entities {
		entities[i] = store.Entity{
			ID:         e.ID,
			Name:       e.Name,
			EntityType: e.Type,
			Domain:     e.Domain,
			Aliases:    e.Aliases,
			Attributes: e.Attributes,
			Source:     e.Source,
			Confidence: e.Confidence,
		}
	}
	relations := make([]store.Relation, len(g.Relations))
	for i, r := range g.Relations {
		relations[i] = store.Relation{
			ID:           r.ID,
			SourceID:     r.SourceID,
			TargetID:     r.TargetID,
			RelationType: r.Type,
			Confidence:   r.Confidence,
			Evidence:     r.Evidence,
			SourceDoc:    r.SourceDoc,
		}
	}
	if err := s.ReplaceGraph(ctx, entities, relations); err != nil {
		return fmt.Errorf("graph: loading %d entities, %d relations: %w",
			len(entities), len(relations), err)
	}
	slog.Info("graph: loaded", "entities", len(entities), "relations", len(relations))
	return nil
}
