// Package extract builds the entity/relation layer of the knowledge base
// from curated construction documents. Two extraction paths feed a
// common normalizer: a deterministic rule path over structured tables
// and process flows, and a model path that sends free-form passages
// through an LLM with a fixed vocabulary.
package extract

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entity types. The vocabulary is closed; extraction output with any
// other type is dropped.
const (
	TypeProcess       = "process"
	TypeEquipment     = "equipment"
	TypeHazard        = "hazard"
	TypeSafetyMeasure = "safety_measure"
	TypeQualityPoint  = "quality_point"
)

// Relation types. Closed vocabulary, same policy as entity types.
const (
	RelRequiresEquipment    = "requires_equipment"
	RelProducesHazard       = "produces_hazard"
	RelMitigatedBy          = "mitigated_by"
	RelRequiresQualityCheck = "requires_quality_check"
)

// Extraction sources.
const (
	SourceRule = "rule"
	SourceLLM  = "llm"
)

// EntityTypes lists the closed entity vocabulary.
var EntityTypes = []string{
	TypeProcess, TypeEquipment, TypeHazard, TypeSafetyMeasure, TypeQualityPoint,
}

// RelationTypes lists the closed relation vocabulary.
var RelationTypes = []string{
	RelRequiresEquipment, RelProducesHazard, RelMitigatedBy, RelRequiresQualityCheck,
}

// ValidEntityType reports whether t is in the closed entity vocabulary.
func ValidEntityType(t string) bool {
	switch t {
	case TypeProcess, TypeEquipment, TypeHazard, TypeSafetyMeasure, TypeQualityPoint:
		return true
	}
	return false
}

// ValidRelationType reports whether t is in the closed relation vocabulary.
func ValidRelationType(t string) bool {
	switch t {
	case RelRequiresEquipment, RelProducesHazard, RelMitigatedBy, RelRequiresQualityCheck:
		return true
	}
	return false
}

// Entity is one node of the knowledge graph. Before normalization the ID
// is empty; Normalize assigns stable IDs.
type Entity struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Aliases    []string          `json:"aliases,omitempty"`
	Domain     string            `json:"domain,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Source     string            `json:"source"`
	Confidence float64           `json:"confidence"`
}

// Relation is one edge of the knowledge graph. Endpoints reference
// entity names before normalization and entity IDs after.
type Relation struct {
	ID         string  `json:"id,omitempty"`
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
	SourceDoc  string  `json:"source_doc,omitempty"`
}

// evidenceLimit bounds the evidence snippet carried on a relation.
const evidenceLimit = 80

// clipEvidence truncates s to evidenceLimit runes.
func clipEvidence(s string) string {
	r := []rune(s)
	if len(r) <= evidenceLimit {
		return s
	}
	return string(r[:evidenceLimit])
}

// Graph is the JSON interchange form handed to the graph loader.
type Graph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// WriteFile serializes the graph to path as indented JSON.
func (g *Graph) WriteFile(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing graph file: %w", err)
	}
	return nil
}

// ReadGraph loads a graph interchange file written by WriteFile.
func ReadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decoding graph file %s: %w", path, err)
	}
	return &g, nil
}
