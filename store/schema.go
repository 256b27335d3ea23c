package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Source document registry with hash-based change detection
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    domain TEXT,
    status TEXT DEFAULT 'pending',
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Curated fragments tagged with their canonical chapter
CREATE TABLE IF NOT EXISTS fragments (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    chapter_id TEXT NOT NULL,
    chapter_name TEXT,
    domain TEXT,
    partition_name TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    position INTEGER,
    tier TEXT,
    confidence REAL,
    content_hash TEXT NOT NULL
);

-- Fragment embeddings via sqlite-vec, partitioned so searches stay
-- inside one chapter corpus (or the template corpus)
CREATE VIRTUAL TABLE IF NOT EXISTS vec_fragments USING vec0(
    fragment_id INTEGER PRIMARY KEY,
    partition_name TEXT partition key,
    embedding float[%d]
);

-- Normalized knowledge graph: entities with stable string IDs
CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    domain TEXT,
    attributes JSON,
    source TEXT NOT NULL,
    confidence REAL NOT NULL,
    UNIQUE(name, entity_type, domain)
);

-- Alias lookup for entity resolution
CREATE TABLE IF NOT EXISTS entity_aliases (
    alias TEXT NOT NULL,
    entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (alias, entity_id)
);

-- Normalized knowledge graph: relations
CREATE TABLE IF NOT EXISTS relations (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    target_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL,
    confidence REAL NOT NULL,
    evidence TEXT,
    source_doc TEXT
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(document_id);
CREATE INDEX IF NOT EXISTS idx_fragments_chapter ON fragments(chapter_id);
CREATE INDEX IF NOT EXISTS idx_fragments_partition ON fragments(partition_name);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);
CREATE INDEX IF NOT EXISTS idx_relations_type ON relations(relation_type);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
`, embeddingDim)
}
