package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

const testDim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), testDim)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{
		Path:        "/docs/方案A.md",
		Filename:    "方案A.md",
		Format:      "markdown",
		ContentHash: "abc123",
		Domain:      "变电土建",
		Status:      "pending",
	}
	id1, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if id1 == 0 {
		t.Fatal("got id 0")
	}

	// Same path upserts in place.
	doc.Status = "curated"
	id2, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("second UpsertDocument() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("upsert created a new row: %d != %d", id1, id2)
	}

	got, err := s.GetDocumentByPath(ctx, doc.Path)
	if err != nil {
		t.Fatalf("GetDocumentByPath() error = %v", err)
	}
	if got.Status != "curated" || got.Domain != "变电土建" {
		t.Errorf("document = %+v", got)
	}
}

func TestUpsertDocumentKeepsIDAcrossDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docA := Document{Path: "/docs/a.md", Filename: "a.md", Format: "markdown", ContentHash: "hash-a1", Status: "pending"}
	docB := Document{Path: "/docs/b.md", Filename: "b.md", Format: "markdown", ContentHash: "hash-b1", Status: "pending"}

	idA, err := s.UpsertDocument(ctx, docA)
	if err != nil {
		t.Fatalf("UpsertDocument(a) error = %v", err)
	}
	idB, err := s.UpsertDocument(ctx, docB)
	if err != nil {
		t.Fatalf("UpsertDocument(b) error = %v", err)
	}
	if idA == idB {
		t.Fatalf("distinct paths share id %d", idA)
	}

	// Re-upserting a after b must return a's id, not the most recently
	// inserted row's.
	docA.ContentHash = "hash-a2"
	docA.Status = "processing"
	idA2, err := s.UpsertDocument(ctx, docA)
	if err != nil {
		t.Fatalf("re-UpsertDocument(a) error = %v", err)
	}
	if idA2 != idA {
		t.Errorf("re-upsert of a returned id %d, want %d", idA2, idA)
	}

	got, err := s.GetDocumentByPath(ctx, docA.Path)
	if err != nil {
		t.Fatalf("GetDocumentByPath() error = %v", err)
	}
	if got.ID != idA || got.ContentHash != "hash-a2" {
		t.Errorf("document a = %+v, want id %d hash %q", got, idA, "hash-a2")
	}
}

func TestFragmentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, Document{
		Path: "/docs/a.md", Filename: "a.md", Format: "markdown", ContentHash: "h",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	ids, err := s.InsertFragments(ctx, []Fragment{
		{DocumentID: docID, ChapterID: "Ch8", ChapterName: "八、安全文明施工管理",
			Partition: "ch08_safety", Title: "安全检查", Content: "定期开展安全检查。",
			Position: 0, Tier: "variant", Confidence: 0.8},
		{DocumentID: docID, ChapterID: "Ch7", Partition: "ch07_quality",
			Content: "质量控制要求。", Position: 1, Tier: "exact", Confidence: 1.0},
	})
	if err != nil {
		t.Fatalf("InsertFragments() error = %v", err)
	}
	if len(ids) != 2 || ids[0] == 0 || ids[1] == 0 {
		t.Fatalf("ids = %v", ids)
	}

	fragments, err := s.FragmentsByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("FragmentsByDocument() error = %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("got %d fragments, want 2", len(fragments))
	}
	f := fragments[0]
	if f.ChapterID != "Ch8" || f.Partition != "ch08_safety" || f.Tier != "variant" {
		t.Errorf("fragment = %+v", f)
	}
	if f.ContentHash == "" {
		t.Error("content hash not computed")
	}

	safety, err := s.FragmentsByPartition(ctx, "ch08_safety")
	if err != nil {
		t.Fatalf("FragmentsByPartition() error = %v", err)
	}
	if len(safety) != 1 || safety[0].ChapterID != "Ch8" {
		t.Errorf("partition query = %+v", safety)
	}
}

func TestVectorSearchPartitioned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, Document{
		Path: "/docs/a.md", Filename: "a.md", Format: "markdown", ContentHash: "h",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}

	ids, err := s.InsertFragments(ctx, []Fragment{
		{DocumentID: docID, ChapterID: "Ch8", Partition: "ch08_safety", Content: "安全内容"},
		{DocumentID: docID, ChapterID: "Ch7", Partition: "ch07_quality", Content: "质量内容"},
	})
	if err != nil {
		t.Fatalf("InsertFragments() error = %v", err)
	}

	vec := []float32{1, 0, 0, 0}
	for i, id := range ids {
		partition := "ch08_safety"
		if i == 1 {
			partition = "ch07_quality"
		}
		if err := s.InsertEmbedding(ctx, id, partition, vec); err != nil {
			t.Fatalf("InsertEmbedding() error = %v", err)
		}
	}

	hits, err := s.VectorSearch(ctx, vec, "ch08_safety", 5)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1 (partition restricted)", len(hits))
	}
	h := hits[0]
	if h.Partition != "ch08_safety" || h.Content != "安全内容" {
		t.Errorf("hit = %+v", h)
	}
	if h.Score != 1.0 {
		t.Errorf("identical vector score = %v, want 1.0", h.Score)
	}
}

func TestReplaceGraphAndTraversal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entities := []Entity{
		{ID: "process_civil_001", Name: "基坑开挖", EntityType: "process",
			Domain: "变电土建", Aliases: []string{"进行基坑开挖作业"},
			Source: "rule", Confidence: 1.0},
		{ID: "hazard_civil_001", Name: "土方坍塌", EntityType: "hazard",
			Domain: "变电土建", Attributes: map[string]string{"level": "较大"},
			Source: "rule", Confidence: 1.0},
		{ID: "safety_measure_civil_001", Name: "放坡开挖", EntityType: "safety_measure",
			Domain: "变电土建", Source: "rule", Confidence: 1.0},
		{ID: "equipment_civil_001", Name: "挖掘机", EntityType: "equipment",
			Domain: "变电土建", Source: "rule", Confidence: 0.8},
	}
	relations := []Relation{
		{ID: "rel_0001", SourceID: "process_civil_001", TargetID: "hazard_civil_001",
			RelationType: "produces_hazard", Confidence: 1.0, Evidence: "开挖引起坍塌"},
		{ID: "rel_0002", SourceID: "hazard_civil_001", TargetID: "safety_measure_civil_001",
			RelationType: "mitigated_by", Confidence: 1.0},
		{ID: "rel_0003", SourceID: "process_civil_001", TargetID: "equipment_civil_001",
			RelationType: "requires_equipment", Confidence: 0.8},
	}

	if err := s.ReplaceGraph(ctx, entities, relations); err != nil {
		t.Fatalf("ReplaceGraph() error = %v", err)
	}

	// Resolve by canonical name and by alias.
	for _, name := range []string{"基坑开挖", "进行基坑开挖作业"} {
		e, err := s.ResolveEntity(ctx, name)
		if err != nil {
			t.Fatalf("ResolveEntity(%q) error = %v", name, err)
		}
		if e.ID != "process_civil_001" {
			t.Errorf("ResolveEntity(%q) = %s", name, e.ID)
		}
	}

	got, err := s.GetEntity(ctx, "hazard_civil_001")
	if err != nil {
		t.Fatalf("GetEntity() error = %v", err)
	}
	if got.Attributes["level"] != "较大" {
		t.Errorf("attributes = %v", got.Attributes)
	}

	// Type-filtered neighbors.
	edges, err := s.Neighbors(ctx, "process_civil_001", "produces_hazard")
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(edges) != 1 || edges[0].Target.Name != "土方坍塌" {
		t.Errorf("edges = %+v", edges)
	}

	// Unfiltered returns both outgoing relations, highest confidence first.
	edges, err = s.Neighbors(ctx, "process_civil_001", "")
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if edges[0].Relation.Confidence < edges[1].Relation.Confidence {
		t.Error("edges not ordered by confidence")
	}

	// Replacing again wipes the previous graph.
	if err := s.ReplaceGraph(ctx, entities[:1], nil); err != nil {
		t.Fatalf("second ReplaceGraph() error = %v", err)
	}
	if _, err := s.GetEntity(ctx, "hazard_civil_001"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("stale entity survived replace: err = %v", err)
	}
}

func TestResolveEntityMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ResolveEntity(context.Background(), "不存在")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("error = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, Document{
		Path: "/docs/a.md", Filename: "a.md", Format: "markdown", ContentHash: "h",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	ids, err := s.InsertFragments(ctx, []Fragment{
		{DocumentID: docID, ChapterID: "Ch8", Partition: "ch08_safety", Content: "x"},
	})
	if err != nil {
		t.Fatalf("InsertFragments() error = %v", err)
	}
	if err := s.InsertEmbedding(ctx, ids[0], "ch08_safety", []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("InsertEmbedding() error = %v", err)
	}

	if err := s.DeleteDocument(ctx, docID); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	st, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats() error = %v", err)
	}
	if st.Documents != 0 || st.Fragments != 0 || st.Embeddings != 0 {
		t.Errorf("stats after delete = %+v", st)
	}
}

func TestDBStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docID, err := s.UpsertDocument(ctx, Document{
		Path: "/docs/a.md", Filename: "a.md", Format: "markdown", ContentHash: "h",
	})
	if err != nil {
		t.Fatalf("UpsertDocument() error = %v", err)
	}
	if _, err := s.InsertFragments(ctx, []Fragment{
		{DocumentID: docID, ChapterID: "Ch8", Partition: "ch08_safety", Content: "a"},
		{DocumentID: docID, ChapterID: "Ch8", Partition: "ch08_safety", Content: "b"},
		{DocumentID: docID, ChapterID: "Ch7", Partition: "ch07_quality", Content: "c"},
	}); err != nil {
		t.Fatalf("InsertFragments() error = %v", err)
	}
	if err := s.ReplaceGraph(ctx, []Entity{
		{ID: "process_gen_001", Name: "吊装", EntityType: "process", Source: "rule", Confidence: 1.0},
	}, nil); err != nil {
		t.Fatalf("ReplaceGraph() error = %v", err)
	}

	st, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats() error = %v", err)
	}
	if st.Documents != 1 || st.Fragments != 3 || st.Entities != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByChapter["Ch8"] != 2 || st.ByChapter["Ch7"] != 1 {
		t.Errorf("chapter distribution = %v", st.ByChapter)
	}
	if st.ByType["process"] != 1 {
		t.Errorf("type distribution = %v", st.ByType)
	}
}
