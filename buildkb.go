// Package buildkb curates construction-plan knowledge bases and serves
// fused retrieval over them. Documents are parsed, their headings mapped
// to canonical chapters, their content fragmented and embedded, and
// their facts extracted into an entity/relation graph. Retrieval fuses
// graph traversal with vector similarity into one ranked response.
package buildkb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/buildkb/buildkb/chapter"
	"github.com/buildkb/buildkb/curate"
	"github.com/buildkb/buildkb/extract"
	"github.com/buildkb/buildkb/graph"
	"github.com/buildkb/buildkb/llm"
	"github.com/buildkb/buildkb/parser"
	"github.com/buildkb/buildkb/retrieve"
	"github.com/buildkb/buildkb/store"
)

// DefaultDomain tags documents whose engineering domain was not given.
const DefaultDomain = "通用"

// Pipeline is the main entry point.
type Pipeline interface {
	// Curate parses, classifies, fragments, embeds, and extracts a
	// document, then rebuilds the knowledge graph. Returns the document
	// ID. Skips unchanged files by content hash.
	Curate(ctx context.Context, path string, opts ...CurateOption) (int64, error)

	// Classify parses a document and reports how its headings map to
	// canonical chapters, without touching the store.
	Classify(ctx context.Context, path string) ([]chapter.Result, chapter.CoverageReport, error)

	// Retrieve runs fused graph + vector retrieval.
	Retrieve(ctx context.Context, q retrieve.Query) (*retrieve.Response, error)

	// ListDocuments returns all curated documents.
	ListDocuments(ctx context.Context) ([]store.Document, error)

	// Delete removes a document and its fragments. The graph keeps any
	// facts already merged from it until the next full re-curation.
	Delete(ctx context.Context, documentID int64) error

	// Stats reports store contents.
	Stats(ctx context.Context) (*store.Stats, error)

	// Store exposes the underlying store for diagnostic access.
	Store() *store.Store

	// Close shuts the pipeline down.
	Close() error
}

// CurateOption configures one curation run.
type CurateOption func(*curateOptions)

type curateOptions struct {
	force     bool
	rulesOnly bool
	domain    string
	metadata  map[string]string
}

// WithForce re-curates even when the content hash is unchanged.
func WithForce() CurateOption {
	return func(o *curateOptions) { o.force = true }
}

// WithRulesOnly skips the model extraction path; only structured tables
// and flow lines feed the graph.
func WithRulesOnly() CurateOption {
	return func(o *curateOptions) { o.rulesOnly = true }
}

// WithDomain tags the document with an engineering domain
// (变电土建, 变电电气, 线路塔基, 特殊作业).
func WithDomain(domain string) CurateOption {
	return func(o *curateOptions) { o.domain = domain }
}

// WithMetadata attaches caller metadata to the document.
func WithMetadata(md map[string]string) CurateOption {
	return func(o *curateOptions) { o.metadata = md }
}

type pipeline struct {
	cfg       Config
	store     *store.Store
	chatLLM   llm.Provider
	embedLLM  llm.Provider
	parsers   *parser.Registry
	table     *chapter.Table
	extractor *extract.ModelExtractor
	reasoner  *graph.Reasoner
	retriever *retrieve.Engine
}

// New builds a Pipeline from configuration.
func New(cfg Config) (Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 768
	}

	s, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider,
		Model:    cfg.Chat.Model,
		BaseURL:  cfg.Chat.BaseURL,
		APIKey:   cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}
	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	table := chapter.DefaultTable()
	if cfg.RulesPath != "" {
		table, err = chapter.LoadRules(cfg.RulesPath)
		if err != nil {
			s.Close()
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrRuleTableNotFound, cfg.RulesPath)
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	reasoner := graph.NewReasoner(s)
	retriever := retrieve.New(reasoner,
		retrieve.NewStoreSearcher(s, embedLLM, cfg.VectorThreshold),
		retrieve.Config{
			TopK:        cfg.VectorTopK,
			PathTimeout: time.Duration(cfg.PathTimeoutSecs) * time.Second,
		})

	return &pipeline{
		cfg:       cfg,
		store:     s,
		chatLLM:   chatLLM,
		embedLLM:  embedLLM,
		parsers:   parser.NewRegistry(),
		table:     table,
		extractor: extract.NewModelExtractor(chatLLM, cfg.ExtractWorkers, cfg.ExtractRetries),
		reasoner:  reasoner,
		retriever: retriever,
	}, nil
}

// modelExtractPartitions are the chapters whose prose is worth a model
// extraction pass: methods supply processes and equipment, the quality,
// safety, and emergency chapters supply the rest of the graph.
var modelExtractPartitions = map[string]bool{
	"ch06_methods":   true,
	"ch07_quality":   true,
	"ch08_safety":    true,
	"ch09_emergency": true,
}

func (p *pipeline) Curate(ctx context.Context, path string, opts ...CurateOption) (int64, error) {
	options := &curateOptions{domain: DefaultDomain}
	for _, o := range opts {
		o(options)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	hash, err := fileHash(absPath)
	if err != nil {
		return 0, fmt.Errorf("hashing file: %w", err)
	}

	if !options.force {
		existing, err := p.store.GetDocumentByPath(ctx, absPath)
		if err == nil && existing.ContentHash == hash {
			slog.Info("curate: unchanged, skipping", "file", existing.Filename, "doc_id", existing.ID)
			return existing.ID, nil
		}
	}

	var metadataJSON string
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		metadataJSON = string(data)
	}

	filename := filepath.Base(absPath)
	docID, err := p.store.UpsertDocument(ctx, store.Document{
		Path:        absPath,
		Filename:    filename,
		Format:      parser.Format(absPath),
		ContentHash: hash,
		Domain:      options.domain,
		Status:      "processing",
		Metadata:    metadataJSON,
	})
	if err != nil {
		return 0, fmt.Errorf("upserting document: %w", err)
	}

	start := time.Now()
	parsed, err := p.parsers.ParseFile(ctx, absPath)
	if err != nil {
		p.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, err
	}
	slog.Info("curate: parsed", "file", filename, "sections", len(parsed.Sections),
		"elapsed", time.Since(start).Round(time.Millisecond))

	curator := curate.New(p.table, options.domain, curate.Config{})
	fragments := curator.Curate(docID, parsed.Sections)

	if err := p.store.DeleteDocumentData(ctx, docID); err != nil {
		return 0, fmt.Errorf("cleaning old fragments: %w", err)
	}
	fragIDs, err := p.store.InsertFragments(ctx, fragments)
	if err != nil {
		p.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("inserting fragments: %w", err)
	}
	slog.Info("curate: fragments stored", "file", filename, "fragments", len(fragments))

	if err := p.embedFragments(ctx, fragments, fragIDs); err != nil {
		p.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	rawEntities, rawRelations, err := p.extractFacts(ctx, filename, options, parsed, fragments)
	if err != nil {
		p.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, err
	}

	if err := p.rebuildGraph(ctx, rawEntities, rawRelations); err != nil {
		p.store.UpdateDocumentStatus(ctx, docID, "error")
		return 0, err
	}

	slog.Info("curate: document ready", "file", filename, "doc_id", docID,
		"total_elapsed", time.Since(start).Round(time.Millisecond))
	p.store.UpdateDocumentStatus(ctx, docID, "curated")
	return docID, nil
}

// extractFacts runs the rule path over structured content and, unless
// disabled, the model path over graph-relevant prose fragments.
func (p *pipeline) extractFacts(ctx context.Context, filename string, options *curateOptions,
	parsed *parser.ParseResult, fragments []store.Fragment) ([]extract.Entity, []extract.Relation, error) {

	ruleX := extract.NewRuleExtractor(options.domain, filename)
	for _, sec := range parsed.Sections {
		if len(sec.Rows) > 0 {
			ruleX.Rows(sec.Rows)
			continue
		}
		ruleX.Markdown(sec.Content)
	}
	entities, relations := ruleX.Result()
	slog.Info("curate: rule extraction", "file", filename,
		"entities", len(entities), "relations", len(relations))

	if options.rulesOnly {
		return entities, relations, nil
	}

	var passages []extract.Passage
	for _, f := range fragments {
		if !modelExtractPartitions[f.Partition] {
			continue
		}
		passages = append(passages, extract.Passage{
			ID:      fmt.Sprintf("%s#%d", filename, f.Position),
			Text:    f.Content,
			Chapter: f.ChapterID,
			Domain:  options.domain,
		})
	}
	if len(passages) == 0 {
		return entities, relations, nil
	}

	mEntities, mRelations, err := p.extractor.Extract(ctx, passages)
	if err != nil {
		return nil, nil, fmt.Errorf("model extraction: %w", err)
	}
	slog.Info("curate: model extraction", "file", filename, "passages", len(passages),
		"entities", len(mEntities), "relations", len(mRelations))
	return append(entities, mEntities...), append(relations, mRelations...), nil
}

// rebuildGraph renormalizes the union of the stored graph and the new
// raw facts, then replaces the stored graph. Stored entities re-enter
// normalization with their aliases so prior merges hold.
func (p *pipeline) rebuildGraph(ctx context.Context, rawEntities []extract.Entity, rawRelations []extract.Relation) error {
	stored, err := p.store.AllEntities(ctx)
	if err != nil {
		return fmt.Errorf("loading stored entities: %w", err)
	}
	storedRels, err := p.store.AllRelations(ctx)
	if err != nil {
		return fmt.Errorf("loading stored relations: %w", err)
	}

	nameByID := make(map[string]string, len(stored))
	for _, e := range stored {
		nameByID[e.ID] = e.Name
		rawEntities = append(rawEntities, extract.Entity{
			Type:       e.EntityType,
			Name:       e.Name,
			Aliases:    e.Aliases,
			Domain:     e.Domain,
			Attributes: e.Attributes,
			Source:     e.Source,
			Confidence: e.Confidence,
		})
	}
	for _, r := range storedRels {
		src, tgt := nameByID[r.SourceID], nameByID[r.TargetID]
		if src == "" || tgt == "" {
			continue
		}
		rawRelations = append(rawRelations, extract.Relation{
			SourceID:   src,
			TargetID:   tgt,
			Type:       r.RelationType,
			Confidence: r.Confidence,
			Evidence:   r.Evidence,
			SourceDoc:  r.SourceDoc,
		})
	}

	entities, relations, _, err := extract.Normalize(rawEntities, rawRelations)
	if err != nil {
		return fmt.Errorf("normalizing: %w", err)
	}
	return graph.Load(ctx, p.store, &extract.Graph{Entities: entities, Relations: relations})
}

func (p *pipeline) Classify(ctx context.Context, path string) ([]chapter.Result, chapter.CoverageReport, error) {
	parsed, err := p.parsers.ParseFile(ctx, path)
	if err != nil {
		return nil, chapter.CoverageReport{}, err
	}
	results := chapter.New(p.table).ClassifyDocument(parsed.Headings())
	return results, chapter.Coverage(results), nil
}

func (p *pipeline) Retrieve(ctx context.Context, q retrieve.Query) (*retrieve.Response, error) {
	return p.retriever.Retrieve(ctx, q)
}

func (p *pipeline) ListDocuments(ctx context.Context) ([]store.Document, error) {
	return p.store.ListDocuments(ctx)
}

func (p *pipeline) Delete(ctx context.Context, documentID int64) error {
	return p.store.DeleteDocument(ctx, documentID)
}

func (p *pipeline) Stats(ctx context.Context) (*store.Stats, error) {
	return p.store.DBStats(ctx)
}

func (p *pipeline) Store() *store.Store {
	return p.store
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

// maxEmbedRunes bounds a single embedding input. Embedding models have
// an 8k-token window; CJK text runs close to one token per rune.
const maxEmbedRunes = 6000

func truncateForEmbed(text string) string {
	runes := []rune(text)
	if len(runes) <= maxEmbedRunes {
		return text
	}
	return string(runes[:maxEmbedRunes])
}

// embedFragments embeds fragments in batches into their partitions.
// A failed batch falls back to per-fragment embedding so one bad text
// does not lose the batch; the run fails only when nothing embedded.
func (p *pipeline) embedFragments(ctx context.Context, fragments []store.Fragment, fragIDs []int64) error {
	const batchSize = 32
	var failed int

	for i := 0; i < len(fragments); i += batchSize {
		end := min(i+batchSize, len(fragments))

		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			prefix := ""
			if fragments[j].Title != "" {
				prefix = fragments[j].Title + "："
			}
			texts[j-i] = truncateForEmbed(prefix + fragments[j].Content)
		}

		embeddings, err := p.embedLLM.Embed(ctx, texts)
		if err != nil {
			slog.Warn("curate: embedding batch failed, retrying individually",
				"batch_start", i, "batch_end", end, "error", err)
			for j, text := range texts {
				single, serr := p.embedLLM.Embed(ctx, []string{text})
				if serr != nil || len(single) == 0 || len(single[0]) == 0 {
					slog.Warn("curate: embedding fragment failed",
						"fragment_id", fragIDs[i+j], "error", serr)
					failed++
					continue
				}
				if serr := p.store.InsertEmbedding(ctx, fragIDs[i+j], fragments[i+j].Partition, single[0]); serr != nil {
					slog.Warn("curate: storing embedding failed",
						"fragment_id", fragIDs[i+j], "error", serr)
					failed++
				}
			}
			continue
		}

		for j, emb := range embeddings {
			if err := p.store.InsertEmbedding(ctx, fragIDs[i+j], fragments[i+j].Partition, emb); err != nil {
				slog.Warn("curate: storing embedding failed",
					"fragment_id", fragIDs[i+j], "error", err)
				failed++
			}
		}
	}

	if len(fragments) > 0 && failed == len(fragments) {
		return fmt.Errorf("all %d fragments failed embedding", len(fragments))
	}
	if failed > 0 {
		slog.Warn("curate: some embeddings failed", "failed", failed, "total", len(fragments))
	}
	return nil
}

// fileHash computes the SHA-256 hash of a file's content.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
