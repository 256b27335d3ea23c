// Package store persists the curated knowledge base in SQLite: source
// documents, chapter-tagged fragments with their embeddings (sqlite-vec),
// and the normalized entity/relation graph.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Format      string `json:"format"`
	ContentHash string `json:"content_hash"`
	Domain      string `json:"domain,omitempty"`
	Status      string `json:"status"`
	Metadata    string `json:"metadata,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Fragment is one curated passage tagged with its canonical chapter.
type Fragment struct {
	ID          int64   `json:"id"`
	DocumentID  int64   `json:"document_id"`
	ChapterID   string  `json:"chapter_id"`
	ChapterName string  `json:"chapter_name,omitempty"`
	Domain      string  `json:"domain,omitempty"`
	Partition   string  `json:"partition"`
	Title       string  `json:"title,omitempty"`
	Content     string  `json:"content"`
	Position    int     `json:"position"`
	Tier        string  `json:"tier,omitempty"`
	Confidence  float64 `json:"confidence"`
	ContentHash string  `json:"content_hash"`
}

// Entity is a normalized graph node with a stable string ID.
type Entity struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	EntityType string            `json:"entity_type"`
	Domain     string            `json:"domain,omitempty"`
	Aliases    []string          `json:"aliases,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Source     string            `json:"source"`
	Confidence float64           `json:"confidence"`
}

// Relation is a normalized graph edge.
type Relation struct {
	ID           string  `json:"id"`
	SourceID     string  `json:"source_id"`
	TargetID     string  `json:"target_id"`
	RelationType string  `json:"relation_type"`
	Confidence   float64 `json:"confidence"`
	Evidence     string  `json:"evidence,omitempty"`
	SourceDoc    string  `json:"source_doc,omitempty"`
}

// FragmentHit is one vector search result.
type FragmentHit struct {
	FragmentID int64   `json:"fragment_id"`
	DocumentID int64   `json:"document_id"`
	ChapterID  string  `json:"chapter_id"`
	Partition  string  `json:"partition"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// Edge is one outgoing relation with its resolved target entity.
type Edge struct {
	Relation Relation
	Target   Entity
}

// Stats summarizes the knowledge base contents.
type Stats struct {
	Documents  int64            `json:"documents"`
	Fragments  int64            `json:"fragments"`
	Embeddings int64            `json:"embeddings"`
	Entities   int64            `json:"entities"`
	Relations  int64            `json:"relations"`
	ByChapter  map[string]int64 `json:"fragments_by_chapter"`
	ByType     map[string]int64 `json:"entities_by_type"`
}

// Store wraps the SQLite database for all buildkb persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// UpsertDocument inserts or updates a document record. Returns the document ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) (int64, error) {
	// RETURNING yields the row id on both the insert and the update arm;
	// LastInsertId only tracks inserts and would hand back a stale id
	// when the conflict arm fires.
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (path, filename, format, content_hash, domain, status, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			format = excluded.format,
			content_hash = excluded.content_hash,
			domain = excluded.domain,
			status = excluded.status,
			metadata = excluded.metadata,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`, doc.Path, doc.Filename, doc.Format, doc.ContentHash, doc.Domain, doc.Status, doc.Metadata).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetDocumentByPath retrieves a document by its file path.
func (s *Store) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := &Document{}
	var domain, metadata sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, format, content_hash, domain, status, metadata, created_at, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Format,
		&doc.ContentHash, &domain, &doc.Status,
		&metadata, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Domain = domain.String
	doc.Metadata = metadata.String
	return doc, nil
}

// ListDocuments returns all documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, format, content_hash, domain, status, metadata, created_at, updated_at
		FROM documents ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var domain, metadata sql.NullString
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.Format,
			&d.ContentHash, &domain, &d.Status,
			&metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Domain = domain.String
		d.Metadata = metadata.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus updates just the status field.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return err
}

// DeleteDocumentData removes a document's fragments and embeddings but
// keeps the document row. Used before re-curating a changed file.
func (s *Store) DeleteDocumentData(ctx context.Context, docID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM vec_fragments WHERE fragment_id IN (SELECT id FROM fragments WHERE document_id = ?)",
			docID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE document_id = ?", docID)
		return err
	})
}

// DeleteDocument removes a document, its fragments, and their embeddings.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_fragments WHERE fragment_id IN (
				SELECT id FROM fragments WHERE document_id = ?
			)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM fragments WHERE document_id = ?", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE id = ?", id); err != nil {
			return err
		}
		return nil
	})
}

// --- Fragment operations ---

// InsertFragments stores fragments in one transaction and returns their IDs.
func (s *Store) InsertFragments(ctx context.Context, fragments []Fragment) ([]int64, error) {
	ids := make([]int64, len(fragments))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO fragments (document_id, chapter_id, chapter_name, domain,
				partition_name, title, content, position, tier, confidence, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, f := range fragments {
			hash := sha256.Sum256([]byte(f.Content))
			contentHash := hex.EncodeToString(hash[:])

			res, err := stmt.ExecContext(ctx,
				f.DocumentID, f.ChapterID, f.ChapterName, f.Domain,
				f.Partition, f.Title, f.Content, f.Position,
				f.Tier, f.Confidence, contentHash)
			if err != nil {
				return err
			}
			ids[i], err = res.LastInsertId()
			if err != nil {
				return err
			}
		}
		return nil
	})

	return ids, err
}

// FragmentsByDocument returns all fragments for a document in position order.
func (s *Store) FragmentsByDocument(ctx context.Context, docID int64) ([]Fragment, error) {
	return s.queryFragments(ctx, `
		SELECT id, document_id, chapter_id, chapter_name, domain, partition_name,
			title, content, position, tier, confidence, content_hash
		FROM fragments WHERE document_id = ? ORDER BY position
	`, docID)
}

// FragmentsByPartition returns all fragments in a vector partition.
func (s *Store) FragmentsByPartition(ctx context.Context, partition string) ([]Fragment, error) {
	return s.queryFragments(ctx, `
		SELECT id, document_id, chapter_id, chapter_name, domain, partition_name,
			title, content, position, tier, confidence, content_hash
		FROM fragments WHERE partition_name = ? ORDER BY document_id, position
	`, partition)
}

func (s *Store) queryFragments(ctx context.Context, query string, args ...any) ([]Fragment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fragments []Fragment
	for rows.Next() {
		var f Fragment
		var chapterName, domain, title, tier sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.ChapterID, &chapterName,
			&domain, &f.Partition, &title, &f.Content, &f.Position,
			&tier, &confidence, &f.ContentHash); err != nil {
			return nil, err
		}
		f.ChapterName = chapterName.String
		f.Domain = domain.String
		f.Title = title.String
		f.Tier = tier.String
		f.Confidence = confidence.Float64
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}

// --- Embedding operations ---

// InsertEmbedding stores a vector embedding for a fragment in its partition.
func (s *Store) InsertEmbedding(ctx context.Context, fragmentID int64, partition string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_fragments (fragment_id, partition_name, embedding) VALUES (?, ?, ?)",
		fragmentID, partition, serializeFloat32(embedding))
	return err
}

// VectorSearch performs a KNN search, restricted to one partition when
// partition is non-empty and across all partitions otherwise.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, partition string, k int) ([]FragmentHit, error) {
	query := `
		SELECT v.fragment_id, v.distance,
			f.document_id, f.chapter_id, f.partition_name, f.title, f.content,
			d.filename
		FROM vec_fragments v
		JOIN fragments f ON f.id = v.fragment_id
		JOIN documents d ON d.id = f.document_id
		WHERE v.embedding MATCH ?`
	args := []any{serializeFloat32(queryEmbedding)}
	if partition != "" {
		query += " AND v.partition_name = ?"
		args = append(args, partition)
	}
	query += " AND k = ? ORDER BY v.distance"
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []FragmentHit
	for rows.Next() {
		var h FragmentHit
		var distance float64
		var title sql.NullString
		if err := rows.Scan(&h.FragmentID, &distance,
			&h.DocumentID, &h.ChapterID, &h.Partition, &title, &h.Content,
			&h.Filename); err != nil {
			return nil, err
		}
		h.Title = title.String
		// Convert distance to similarity score (1 - distance for cosine)
		h.Score = 1.0 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// --- Graph operations ---

// ReplaceGraph atomically replaces the stored entity/relation graph with
// the given normalized output. Loading is all-or-nothing.
func (s *Store) ReplaceGraph(ctx context.Context, entities []Entity, relations []Relation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			"DELETE FROM relations",
			"DELETE FROM entity_aliases",
			"DELETE FROM entities",
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}

		entStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entities (id, name, entity_type, domain, attributes, source, confidence)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer entStmt.Close()

		aliasStmt, err := tx.PrepareContext(ctx,
			"INSERT OR IGNORE INTO entity_aliases (alias, entity_id) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer aliasStmt.Close()

		for _, e := range entities {
			var attrs any
			if len(e.Attributes) > 0 {
				data, err := json.Marshal(e.Attributes)
				if err != nil {
					return fmt.Errorf("encoding attributes for %s: %w", e.ID, err)
				}
				attrs = string(data)
			}
			if _, err := entStmt.ExecContext(ctx,
				e.ID, e.Name, e.EntityType, e.Domain, attrs, e.Source, e.Confidence); err != nil {
				return fmt.Errorf("inserting entity %s: %w", e.ID, err)
			}
			if _, err := aliasStmt.ExecContext(ctx, e.Name, e.ID); err != nil {
				return err
			}
			for _, a := range e.Aliases {
				if _, err := aliasStmt.ExecContext(ctx, a, e.ID); err != nil {
					return err
				}
			}
		}

		relStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO relations (id, source_id, target_id, relation_type, confidence, evidence, source_doc)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer relStmt.Close()

		for _, r := range relations {
			if _, err := relStmt.ExecContext(ctx,
				r.ID, r.SourceID, r.TargetID, r.RelationType,
				r.Confidence, r.Evidence, r.SourceDoc); err != nil {
				return fmt.Errorf("inserting relation %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ResolveEntity finds an entity by exact name or alias. Returns
// sql.ErrNoRows when nothing matches.
func (s *Store) ResolveEntity(ctx context.Context, name string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.entity_type, e.domain, e.attributes, e.source, e.confidence
		FROM entities e
		JOIN entity_aliases a ON a.entity_id = e.id
		WHERE a.alias = ?
		ORDER BY e.id
		LIMIT 1
	`, name)
	return scanEntity(row)
}

// GetEntity retrieves an entity by its stable ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, domain, attributes, source, confidence
		FROM entities WHERE id = ?
	`, id)
	return scanEntity(row)
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var domain, attrs sql.NullString
	if err := row.Scan(&e.ID, &e.Name, &e.EntityType, &domain, &attrs,
		&e.Source, &e.Confidence); err != nil {
		return nil, err
	}
	e.Domain = domain.String
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("decoding attributes for %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

// Neighbors returns the outgoing edges of an entity, optionally filtered
// by relation type, highest confidence first.
func (s *Store) Neighbors(ctx context.Context, entityID, relationType string) ([]Edge, error) {
	query := `
		SELECT r.id, r.source_id, r.target_id, r.relation_type, r.confidence, r.evidence, r.source_doc,
			e.id, e.name, e.entity_type, e.domain, e.attributes, e.source, e.confidence
		FROM relations r
		JOIN entities e ON e.id = r.target_id
		WHERE r.source_id = ?`
	args := []any{entityID}
	if relationType != "" {
		query += " AND r.relation_type = ?"
		args = append(args, relationType)
	}
	query += " ORDER BY r.confidence DESC, r.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var edge Edge
		var evidence, sourceDoc, eDomain, eAttrs sql.NullString
		if err := rows.Scan(
			&edge.Relation.ID, &edge.Relation.SourceID, &edge.Relation.TargetID,
			&edge.Relation.RelationType, &edge.Relation.Confidence, &evidence, &sourceDoc,
			&edge.Target.ID, &edge.Target.Name, &edge.Target.EntityType,
			&eDomain, &eAttrs, &edge.Target.Source, &edge.Target.Confidence); err != nil {
			return nil, err
		}
		edge.Relation.Evidence = evidence.String
		edge.Relation.SourceDoc = sourceDoc.String
		edge.Target.Domain = eDomain.String
		if eAttrs.Valid && eAttrs.String != "" {
			if err := json.Unmarshal([]byte(eAttrs.String), &edge.Target.Attributes); err != nil {
				return nil, fmt.Errorf("decoding attributes for %s: %w", edge.Target.ID, err)
			}
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

// AllEntities returns every stored entity ordered by ID.
func (s *Store) AllEntities(ctx context.Context) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_type, domain, attributes, source, confidence
		FROM entities ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var e Entity
		var domain, attrs sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &domain, &attrs,
			&e.Source, &e.Confidence); err != nil {
			return nil, err
		}
		e.Domain = domain.String
		if attrs.Valid && attrs.String != "" {
			if err := json.Unmarshal([]byte(attrs.String), &e.Attributes); err != nil {
				return nil, fmt.Errorf("decoding attributes for %s: %w", e.ID, err)
			}
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*Entity, len(entities))
	for i := range entities {
		byID[entities[i].ID] = &entities[i]
	}
	aliasRows, err := s.db.QueryContext(ctx,
		"SELECT alias, entity_id FROM entity_aliases ORDER BY entity_id, alias")
	if err != nil {
		return nil, err
	}
	defer aliasRows.Close()
	for aliasRows.Next() {
		var alias, entityID string
		if err := aliasRows.Scan(&alias, &entityID); err != nil {
			return nil, err
		}
		if e, ok := byID[entityID]; ok && alias != e.Name {
			e.Aliases = append(e.Aliases, alias)
		}
	}
	return entities, aliasRows.Err()
}

// AllRelations returns every stored relation ordered by ID.
func (s *Store) AllRelations(ctx context.Context) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, relation_type, confidence, evidence, source_doc
		FROM relations ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []Relation
	for rows.Next() {
		var r Relation
		var evidence, sourceDoc sql.NullString
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType,
			&r.Confidence, &evidence, &sourceDoc); err != nil {
			return nil, err
		}
		r.Evidence = evidence.String
		r.SourceDoc = sourceDoc.String
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

// DBStats reports row counts per table plus per-chapter and per-type
// distributions.
func (s *Store) DBStats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByChapter: map[string]int64{}, ByType: map[string]int64{}}

	counts := []struct {
		query string
		dst   *int64
	}{
		{"SELECT COUNT(*) FROM documents", &st.Documents},
		{"SELECT COUNT(*) FROM fragments", &st.Fragments},
		{"SELECT COUNT(*) FROM vec_fragments", &st.Embeddings},
		{"SELECT COUNT(*) FROM entities", &st.Entities},
		{"SELECT COUNT(*) FROM relations", &st.Relations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT chapter_id, COUNT(*) FROM fragments GROUP BY chapter_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var chapter string
		var n int64
		if err := rows.Scan(&chapter, &n); err != nil {
			return nil, err
		}
		st.ByChapter[chapter] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx,
		"SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type")
	if err != nil {
		return nil, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var typ string
		var n int64
		if err := typeRows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		st.ByType[typ] = n
	}
	return st, typeRows.Err()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 encodes a vector in the little-endian format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
