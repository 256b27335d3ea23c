package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buildkb/buildkb/llm"
)

// llmConfidence is the fixed confidence for model-extracted items; the
// rule path outranks the model path during normalization.
const llmConfidence = 0.8

// Worker pool defaults for the model path.
const (
	defaultWorkers        = 8
	defaultAttempts       = 3
	defaultAttemptTimeout = 60 * time.Second
	retryBackoff          = 2 * time.Second
)

// extractionPrompt fixes the entity and relation vocabulary. Passages
// are in Chinese; the schema is English so the closed vocabulary
// survives model drift.
const extractionPrompt = `你是电力建设施工方案的知识抽取引擎。从给定文本中抽取实体和关系。

实体类型（type 只能取以下值）:
- process        : 施工工序或作业活动
- equipment      : 机具、设备、器材
- hazard         : 危险源或危害因素
- safety_measure : 安全控制措施
- quality_point  : 质量控制点或验收要求

关系类型（type 只能取以下值）:
- requires_equipment     : 工序需要设备
- produces_hazard        : 工序产生危险源
- mitigated_by           : 危险源由措施控制
- requires_quality_check : 工序需要质量控制点

返回一个 JSON 对象，且只返回 JSON:
{"entities": [{"name": string, "type": string}],
 "relations": [{"source": string, "target": string, "type": string, "evidence": string}]}

规则:
- source 和 target 必须是 entities 中出现的 name。
- evidence 为支撑该关系的原文片段，不超过 40 字。
- 文本中没有可抽取内容时返回空数组。

文本:
%s`

// Passage is one tagged fragment queued for model extraction.
type Passage struct {
	ID      string
	Text    string
	Chapter string
	Domain  string
}

// ModelExtractor sends passages through an LLM with a fixed vocabulary
// and collects the structured output. Failed passages are dropped with a
// warning; one bad passage never fails the batch.
type ModelExtractor struct {
	chat           llm.Provider
	workers        int
	attempts       int
	attemptTimeout time.Duration
}

// NewModelExtractor creates a model extractor over a chat provider.
// workers <= 0 selects the default pool size; attempts <= 0 the default
// attempt count per passage.
func NewModelExtractor(chat llm.Provider, workers, attempts int) *ModelExtractor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	return &ModelExtractor{
		chat:           chat,
		workers:        workers,
		attempts:       attempts,
		attemptTimeout: defaultAttemptTimeout,
	}
}

// modelResult is the JSON shape the extraction prompt requests.
type modelResult struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
	Relations []struct {
		Source   string `json:"source"`
		Target   string `json:"target"`
		Type     string `json:"type"`
		Evidence string `json:"evidence"`
	} `json:"relations"`
}

// Extract runs the worker pool over all passages and merges the results.
// Output order is not meaningful; the normalizer makes it deterministic.
// On context cancellation the already-merged output is returned alongside
// the context error.
func (m *ModelExtractor) Extract(ctx context.Context, passages []Passage) ([]Entity, []Relation, error) {
	var (
		mu        sync.Mutex
		entities  []Entity
		relations []Relation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	start := time.Now()
	for _, p := range passages {
		g.Go(func() error {
			res, err := m.extractOne(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("extract: passage dropped",
					"passage", p.ID, "error", err,
					"text", clipEvidence(p.Text))
				return nil
			}
			es, rs := m.convert(p, res)
			mu.Lock()
			entities = append(entities, es...)
			relations = append(relations, rs...)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	slog.Info("extract: model pass complete",
		"passages", len(passages), "entities", len(entities),
		"relations", len(relations), "elapsed", time.Since(start).Round(time.Millisecond))
	return entities, relations, err
}

// extractOne runs one passage with retries and a per-attempt timeout.
func (m *ModelExtractor) extractOne(ctx context.Context, p Passage) (*modelResult, error) {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * retryBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
		res, err := m.attemptExtract(attemptCtx, p)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Debug("extract: attempt failed",
			"passage", p.ID, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", m.attempts, lastErr)
}

func (m *ModelExtractor) attemptExtract(ctx context.Context, p Passage) (*modelResult, error) {
	resp, err := m.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(extractionPrompt, p.Text)},
		},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("llm chat: %w", err)
	}

	var res modelResult
	if err := json.Unmarshal([]byte(resp.Content), &res); err == nil {
		return &res, nil
	}
	jsonStr, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing extraction result: %w", err)
	}
	if err := json.Unmarshal([]byte(jsonStr), &res); err != nil {
		return nil, fmt.Errorf("unmarshalling extraction result: %w", err)
	}
	return &res, nil
}

// convert filters the raw model output against the closed vocabularies
// and stamps passage metadata.
func (m *ModelExtractor) convert(p Passage, res *modelResult) ([]Entity, []Relation) {
	var entities []Entity
	names := make(map[string]bool, len(res.Entities))
	for _, e := range res.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		if !ValidEntityType(e.Type) {
			slog.Warn("extract: dropping entity with unknown type",
				"passage", p.ID, "name", name, "type", e.Type)
			continue
		}
		names[name] = true
		entities = append(entities, Entity{
			Type:       e.Type,
			Name:       name,
			Domain:     p.Domain,
			Source:     SourceLLM,
			Confidence: llmConfidence,
		})
	}

	var relations []Relation
	for _, r := range res.Relations {
		src := strings.TrimSpace(r.Source)
		tgt := strings.TrimSpace(r.Target)
		if src == "" || tgt == "" || !names[src] || !names[tgt] {
			continue
		}
		if !ValidRelationType(r.Type) {
			slog.Warn("extract: dropping relation with unknown type",
				"passage", p.ID, "type", r.Type)
			continue
		}
		relations = append(relations, Relation{
			SourceID:   src,
			TargetID:   tgt,
			Type:       r.Type,
			Confidence: llmConfidence,
			Evidence:   clipEvidence(r.Evidence),
			SourceDoc:  p.ID,
		})
	}
	return entities, relations
}

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds a JSON object in raw LLM output, tolerating code
// fences and stray text around the object.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}
