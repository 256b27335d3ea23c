// Package retrieve fuses graph reasoning and vector similarity into one
// ranked response for content-generation callers. Graph-derived items are
// authoritative (priority 1), retrieved case fragments come second
// (priority 2), and template fragments last (priority 3).
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/buildkb/buildkb/chapter"
	"github.com/buildkb/buildkb/graph"
)

// Source tags carried on every item so downstream callers can weigh
// provenance without re-deriving priority.
const (
	SourceGraphRule  = "graph-rule"
	SourceVectorCase = "vector-case"
	SourceTemplate   = "template"
)

// Priority ranks. Lower is more authoritative.
const (
	PriorityGraph    = 1
	PriorityCase     = 2
	PriorityTemplate = 3
)

// TemplatePartition holds boilerplate fragments reusable across projects.
const TemplatePartition = "templates"

// graphChapters are the partitions whose content benefits from graph
// traversal (quality, safety, emergency). Other chapters go straight to
// similarity search. Static policy, not a runtime heuristic.
var graphChapters = map[string]bool{
	"ch07_quality":   true,
	"ch08_safety":    true,
	"ch09_emergency": true,
}

// Hit is one vector similarity result.
type Hit struct {
	Content   string            `json:"content"`
	Score     float64           `json:"score"`
	Partition string            `json:"partition"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// GraphReasoner is the graph collaborator. *graph.Reasoner implements it.
type GraphReasoner interface {
	Traverse(ctx context.Context, entityName, relationType string) ([]string, error)
	ProcessChain(ctx context.Context, process string) (*graph.Requirements, error)
}

// VectorSearcher is the similarity collaborator. An empty partition
// searches all partitions.
type VectorSearcher interface {
	Search(ctx context.Context, query, partition string, limit int) ([]Hit, error)
}

// Item is one retrieval result in the uniform shape callers consume.
type Item struct {
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Priority int               `json:"priority"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Query carries the text plus routing hints. Chapter accepts either a
// canonical chapter ID ("Ch8") or a partition name ("ch08_safety").
type Query struct {
	Text      string   `json:"text"`
	Chapter   string   `json:"chapter,omitempty"`
	Domain    string   `json:"domain,omitempty"`
	Processes []string `json:"processes,omitempty"`
}

// Response is the fused result. Regulations and Cases are pre-filtered
// views of Items by source. Partial is set when one path degraded.
type Response struct {
	Items       []Item `json:"items"`
	Regulations []Item `json:"regulations,omitempty"`
	Cases       []Item `json:"cases,omitempty"`
	Context     Query  `json:"context"`
	Partial     bool   `json:"partial,omitempty"`
}

// Config holds fusion engine settings.
type Config struct {
	TopK        int
	PathTimeout time.Duration
}

// Engine queries both collaborators and merges their results.
type Engine struct {
	graph  GraphReasoner
	vector VectorSearcher
	cfg    Config
}

// New creates a fusion engine. Zero config fields get defaults
// (TopK 3, per-path timeout 10s).
func New(g GraphReasoner, v VectorSearcher, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.PathTimeout <= 0 {
		cfg.PathTimeout = 10 * time.Second
	}
	return &Engine{graph: g, vector: v, cfg: cfg}
}

// Retrieve runs the graph and vector paths concurrently, each bounded by
// its own timeout, and fuses the results. A failed or timed-out path
// degrades to the other path with Response.Partial set; an empty result
// from both paths is valid, not an error.
func (e *Engine) Retrieve(ctx context.Context, q Query) (*Response, error) {
	partition := resolvePartition(q.Chapter)

	type pathResult struct {
		items []Item
		err   error
	}
	var graphRes, vectorRes pathResult
	var wg sync.WaitGroup

	if e.useGraph(partition, q) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, e.cfg.PathTimeout)
			defer cancel()
			graphRes.items, graphRes.err = e.graphPath(pctx, q)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pctx, cancel := context.WithTimeout(ctx, e.cfg.PathTimeout)
		defer cancel()
		vectorRes.items, vectorRes.err = e.vectorPath(pctx, q.Text, partition)
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{Context: q}
	if graphRes.err != nil {
		slog.Warn("retrieve: graph path degraded", "query", q.Text, "error", graphRes.err)
		resp.Partial = true
	}
	if vectorRes.err != nil {
		slog.Warn("retrieve: vector path degraded", "query", q.Text, "error", vectorRes.err)
		resp.Partial = true
	}

	// Graph items go in first so equal-rank ties keep them ahead of
	// vector items through the stable sort.
	resp.Items = append(resp.Items, graphRes.items...)
	resp.Items = append(resp.Items, vectorRes.items...)
	sort.SliceStable(resp.Items, func(i, j int) bool {
		if resp.Items[i].Priority != resp.Items[j].Priority {
			return resp.Items[i].Priority < resp.Items[j].Priority
		}
		return resp.Items[i].Score > resp.Items[j].Score
	})

	for _, item := range resp.Items {
		switch item.Source {
		case SourceGraphRule:
			resp.Regulations = append(resp.Regulations, item)
		case SourceVectorCase:
			resp.Cases = append(resp.Cases, item)
		}
	}
	return resp, nil
}

// useGraph applies the static chapter policy: traverse only for
// graph-relevant chapters (or when no chapter hint narrows the query),
// and only when the caller hinted at least one process.
func (e *Engine) useGraph(partition string, q Query) bool {
	if len(q.Processes) == 0 {
		return false
	}
	return partition == "" || graphChapters[partition]
}

func (e *Engine) graphPath(ctx context.Context, q Query) ([]Item, error) {
	var items []Item
	for _, process := range q.Processes {
		req, err := e.graph.ProcessChain(ctx, process)
		if err != nil {
			return nil, fmt.Errorf("retrieve: process %q: %w", process, err)
		}
		items = append(items, requirementItems(req)...)
	}
	return items, nil
}

// requirementItems renders one process's traversal into items. Score is
// the confidence of the edge that produced each linked node.
func requirementItems(req *graph.Requirements) []Item {
	var items []Item
	add := func(content string, score float64, meta map[string]string) {
		meta["process"] = req.Process
		items = append(items, Item{
			Content:  content,
			Source:   SourceGraphRule,
			Priority: PriorityGraph,
			Score:    score,
			Metadata: meta,
		})
	}

	for _, eq := range req.Equipment {
		add(fmt.Sprintf("%s需要使用%s", req.Process, eq.Name), eq.Confidence,
			map[string]string{"relation": "requires_equipment", "entity_id": eq.ID})
	}
	for _, h := range req.Hazards {
		content := fmt.Sprintf("%s存在危险源：%s", req.Process, h.Name)
		if h.Accident != "" {
			content += fmt.Sprintf("，可能导致%s", h.Accident)
		}
		meta := map[string]string{"relation": "produces_hazard", "entity_id": h.ID}
		if h.Level != "" {
			meta["level"] = h.Level
		}
		if h.Evidence != "" {
			meta["evidence"] = h.Evidence
		}
		add(content, h.Confidence, meta)

		for _, m := range h.Measures {
			add(fmt.Sprintf("%s防控措施：%s", h.Name, m.Name), m.Confidence,
				map[string]string{"relation": "mitigated_by", "entity_id": m.ID, "hazard": h.Name})
		}
	}
	for _, qp := range req.QualityPoints {
		add(fmt.Sprintf("%s质量控制点：%s", req.Process, qp.Name), qp.Confidence,
			map[string]string{"relation": "requires_quality_check", "entity_id": qp.ID})
	}
	return items
}

// vectorPath searches the hinted partition (all partitions when no hint)
// plus the template partition. Priority is assigned by partition
// identity, independent of similarity score.
func (e *Engine) vectorPath(ctx context.Context, text, partition string) ([]Item, error) {
	hits, err := e.vector.Search(ctx, text, partition, e.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if partition != "" && partition != TemplatePartition {
		tpl, err := e.vector.Search(ctx, text, TemplatePartition, e.cfg.TopK)
		if err != nil {
			return nil, err
		}
		hits = append(hits, tpl...)
	}

	items := make([]Item, 0, len(hits))
	for _, h := range hits {
		source, priority := SourceVectorCase, PriorityCase
		if h.Partition == TemplatePartition {
			source, priority = SourceTemplate, PriorityTemplate
		}
		meta := map[string]string{"partition": h.Partition}
		for k, v := range h.Metadata {
			meta[k] = v
		}
		items = append(items, Item{
			Content:  h.Content,
			Source:   source,
			Priority: priority,
			Score:    h.Score,
			Metadata: meta,
		})
	}
	return items, nil
}

// resolvePartition accepts canonical chapter IDs or partition names.
func resolvePartition(hint string) string {
	if hint == "" {
		return ""
	}
	if p := chapter.Partition(hint); p != "" {
		return p
	}
	return hint
}
