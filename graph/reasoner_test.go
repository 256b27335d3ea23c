package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/buildkb/buildkb/extract"
	"github.com/buildkb/buildkb/store"
)

func seededReasoner(t *testing.T) *Reasoner {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "graph.db"), 4)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	g := &extract.Graph{
		Entities: []extract.Entity{
			{ID: "process_civil_001", Type: extract.TypeProcess, Name: "基坑开挖",
				Aliases: []string{"进行基坑开挖作业"}, Domain: "变电土建", Source: "rule", Confidence: 1.0},
			{ID: "equipment_civil_001", Type: extract.TypeEquipment, Name: "挖掘机",
				Domain: "变电土建", Source: "rule", Confidence: 0.8},
			{ID: "hazard_civil_001", Type: extract.TypeHazard, Name: "土方坍塌",
				Domain: "变电土建", Attributes: map[string]string{"level": "较大", "accident": "坍塌掩埋"},
				Source: "rule", Confidence: 1.0},
			{ID: "safety_measure_civil_001", Type: extract.TypeSafetyMeasure, Name: "放坡开挖",
				Domain: "变电土建", Source: "rule", Confidence: 1.0},
			{ID: "quality_point_civil_001", Type: extract.TypeQualityPoint, Name: "基底标高复核",
				Domain: "变电土建", Source: "rule", Confidence: 1.0},
		},
		Relations: []extract.Relation{
			{ID: "rel_0001", SourceID: "process_civil_001", TargetID: "equipment_civil_001",
				Type: extract.RelRequiresEquipment, Confidence: 0.8},
			{ID: "rel_0002", SourceID: "process_civil_001", TargetID: "hazard_civil_001",
				Type: extract.RelProducesHazard, Confidence: 1.0, Evidence: "开挖可能引起坍塌"},
			{ID: "rel_0003", SourceID: "hazard_civil_001", TargetID: "safety_measure_civil_001",
				Type: extract.RelMitigatedBy, Confidence: 1.0},
			{ID: "rel_0004", SourceID: "process_civil_001", TargetID: "quality_point_civil_001",
				Type: extract.RelRequiresQualityCheck, Confidence: 1.0},
		},
	}
	if err := Load(context.Background(), s, g); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return NewReasoner(s)
}

func TestTraverse(t *testing.T) {
	g := seededReasoner(t)

	names, err := g.Traverse(context.Background(), "基坑开挖", extract.RelProducesHazard)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(names) != 1 || names[0] != "土方坍塌" {
		t.Errorf("Traverse() = %v, want [土方坍塌]", names)
	}
}

func TestTraverseByAlias(t *testing.T) {
	g := seededReasoner(t)

	names, err := g.Traverse(context.Background(), "进行基坑开挖作业", extract.RelRequiresEquipment)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(names) != 1 || names[0] != "挖掘机" {
		t.Errorf("Traverse() = %v, want [挖掘机]", names)
	}
}

func TestTraverseUnknownEntity(t *testing.T) {
	g := seededReasoner(t)

	names, err := g.Traverse(context.Background(), "不存在的工序", extract.RelProducesHazard)
	if err != nil {
		t.Fatalf("Traverse() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("unknown entity returned %v", names)
	}
}

func TestProcessChain(t *testing.T) {
	g := seededReasoner(t)

	req, err := g.ProcessChain(context.Background(), "基坑开挖")
	if err != nil {
		t.Fatalf("ProcessChain() error = %v", err)
	}
	if req.Empty() {
		t.Fatal("ProcessChain() returned empty requirements")
	}
	if req.ProcessID != "process_civil_001" {
		t.Errorf("process id = %q", req.ProcessID)
	}
	if len(req.Equipment) != 1 || req.Equipment[0].Name != "挖掘机" {
		t.Errorf("equipment = %+v", req.Equipment)
	}
	if len(req.QualityPoints) != 1 || req.QualityPoints[0].Name != "基底标高复核" {
		t.Errorf("quality points = %+v", req.QualityPoints)
	}
	if len(req.Hazards) != 1 {
		t.Fatalf("hazards = %+v", req.Hazards)
	}
	h := req.Hazards[0]
	if h.Name != "土方坍塌" || h.Level != "较大" || h.Accident != "坍塌掩埋" {
		t.Errorf("hazard = %+v", h)
	}
	if len(h.Measures) != 1 || h.Measures[0].Name != "放坡开挖" {
		t.Errorf("measures = %+v", h.Measures)
	}
	if h.Evidence != "开挖可能引起坍塌" {
		t.Errorf("evidence = %q", h.Evidence)
	}
}

func TestProcessChainUnknownProcess(t *testing.T) {
	g := seededReasoner(t)

	req, err := g.ProcessChain(context.Background(), "不存在的工序")
	if err != nil {
		t.Fatalf("ProcessChain() error = %v", err)
	}
	if !req.Empty() {
		t.Errorf("requirements = %+v, want empty", req)
	}
	if req.Process != "不存在的工序" {
		t.Errorf("process echo = %q", req.Process)
	}
}
