package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// SQLiteCatalog implements Catalog using SQLite in WAL mode via the pure Go
// modernc.org/sqlite driver. Chunks are replaced per document inside one
// transaction, so a document's chunks are either all visible or not at all.
type SQLiteCatalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens (or creates) the catalog at path. An empty path
// creates an in-memory catalog for tests.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// Single writer avoids lock contention; WAL must be set via PRAGMA for
	// modernc.org/sqlite (DSN params are ignored).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &SQLiteCatalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return c, nil
}

// initSchema creates the catalog tables.
func (c *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		filename    TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		doc_type    TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL DEFAULT '',
		ingested_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS enrichments (
		doc_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		generation INTEGER NOT NULL,
		metadata   TEXT NOT NULL,
		scores     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (doc_id, generation)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		doc_id          TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		sequence        INTEGER NOT NULL,
		text            TEXT NOT NULL,
		chunk_type      TEXT NOT NULL,
		section_title   TEXT NOT NULL DEFAULT '',
		parent_sections TEXT NOT NULL DEFAULT '[]',
		speaker         TEXT NOT NULL DEFAULT '',
		token_estimate  INTEGER NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id, sequence);

	CREATE TABLE IF NOT EXISTS gated_documents (
		doc_id     TEXT PRIMARY KEY,
		filename   TEXT NOT NULL,
		title      TEXT NOT NULL DEFAULT '',
		signalness REAL NOT NULL,
		reason     TEXT NOT NULL,
		gated_at   TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := c.db.Exec(schema)
	return err
}

// SaveDocument upserts a document record.
func (c *SQLiteCatalog) SaveDocument(ctx context.Context, doc *Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.StoreError("catalog is closed", nil)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (id, filename, source_path, doc_type, content, created_at, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.SourcePath, string(doc.DocType), doc.Content,
		formatTime(doc.CreatedAt), formatTime(doc.IngestedAt))
	if err != nil {
		return apperr.StoreError(fmt.Sprintf("failed to save document %s", doc.ID), err)
	}
	return nil
}

// GetDocument fetches a document by ID. Returns nil when absent.
func (c *SQLiteCatalog) GetDocument(ctx context.Context, id string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT id, filename, source_path, doc_type, content, created_at, ingested_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// HasDocument reports whether a document with this content hash exists.
func (c *SQLiteCatalog) HasDocument(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false, apperr.StoreError("catalog is closed", nil)
	}

	var n int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE id = ?`, id).Scan(&n); err != nil {
		return false, apperr.StoreError("failed to check for document", err)
	}
	return n > 0, nil
}

// ListDocuments returns documents ordered by ingestion time, newest first.
func (c *SQLiteCatalog) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, filename, source_path, doc_type, content, created_at, ingested_at
		FROM documents ORDER BY ingested_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, apperr.StoreError("failed to list documents", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document. Chunks and enrichments cascade.
func (c *SQLiteCatalog) DeleteDocument(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.StoreError("catalog is closed", nil)
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return apperr.StoreError(fmt.Sprintf("failed to delete document %s", id), err)
	}
	return nil
}

// SaveEnrichment appends the next enrichment generation for a document and
// returns the generation number. Generations are never mutated in place.
func (c *SQLiteCatalog) SaveEnrichment(ctx context.Context, docID string, meta *EnrichedMetadata, scores *QualityScores) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, apperr.StoreError("catalog is closed", nil)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, apperr.StoreError("failed to encode metadata", err)
	}
	if scores == nil {
		scores = &QualityScores{}
	}
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return 0, apperr.StoreError("failed to encode scores", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var generation int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(generation), 0) + 1 FROM enrichments WHERE doc_id = ?`,
		docID).Scan(&generation); err != nil {
		return 0, apperr.StoreError("failed to determine generation", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO enrichments (doc_id, generation, metadata, scores, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		docID, generation, string(metaJSON), string(scoresJSON),
		formatTime(time.Now().UTC())); err != nil {
		return 0, apperr.StoreError("failed to save enrichment", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.StoreError("failed to commit enrichment", err)
	}
	return generation, nil
}

// GetEnrichment returns the latest enrichment generation for a document, or
// nil when the document has none.
func (c *SQLiteCatalog) GetEnrichment(ctx context.Context, docID string) (*EnrichmentRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT doc_id, generation, metadata, scores, created_at
		FROM enrichments WHERE doc_id = ? ORDER BY generation DESC LIMIT 1`, docID)

	var rec EnrichmentRecord
	var metaJSON, scoresJSON, createdAt string
	err := row.Scan(&rec.DocID, &rec.Generation, &metaJSON, &scoresJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreError("failed to load enrichment", err)
	}

	if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
		return nil, apperr.StoreError("failed to decode metadata", err)
	}
	if err := json.Unmarshal([]byte(scoresJSON), &rec.Scores); err != nil {
		return nil, apperr.StoreError("failed to decode scores", err)
	}
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

// SaveChunks replaces a document's chunks in one transaction.
func (c *SQLiteCatalog) SaveChunks(ctx context.Context, docID string, chunks []*Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.StoreError("catalog is closed", nil)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.StoreError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return apperr.StoreError("failed to clear existing chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, doc_id, sequence, text, chunk_type, section_title, parent_sections, speaker, token_estimate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.StoreError("failed to prepare chunk insert", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		parents, err := json.Marshal(ch.ParentSections)
		if err != nil {
			return apperr.StoreError("failed to encode parent sections", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, docID, ch.Sequence, ch.Text, string(ch.ChunkType),
			ch.SectionTitle, string(parents), ch.Speaker, ch.TokenEstimate,
			formatTime(ch.CreatedAt)); err != nil {
			return apperr.StoreError(fmt.Sprintf("failed to save chunk %s", ch.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.StoreError("failed to commit chunks", err)
	}
	return nil
}

// GetChunk fetches a single chunk by ID. Returns nil when absent.
func (c *SQLiteCatalog) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := c.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// GetChunks fetches chunks by ID, preserving the requested order. Missing
// IDs are skipped.
func (c *SQLiteCatalog) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	byID := make(map[string]*Chunk, len(ids))
	// Chunk batches stay small (retrieval candidate sets), so one query
	// per batch with a dynamic IN clause is fine.
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, doc_id, sequence, text, chunk_type, section_title, parent_sections, speaker, token_estimate, created_at
		FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, apperr.StoreError("failed to load chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.StoreError("failed to read chunks", err)
	}

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

// GetChunksByDocument returns a document's chunks in sequence order.
func (c *SQLiteCatalog) GetChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, doc_id, sequence, text, chunk_type, section_title, parent_sections, speaker, token_estimate, created_at
		FROM chunks WHERE doc_id = ? ORDER BY sequence`, docID)
	if err != nil {
		return nil, apperr.StoreError("failed to load document chunks", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// AllChunks returns every chunk in the catalog, used for index rebuild at
// startup.
func (c *SQLiteCatalog) AllChunks(ctx context.Context) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, doc_id, sequence, text, chunk_type, section_title, parent_sections, speaker, token_estimate, created_at
		FROM chunks ORDER BY doc_id, sequence`)
	if err != nil {
		return nil, apperr.StoreError("failed to load chunks", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocument removes all chunks of a document.
func (c *SQLiteCatalog) DeleteChunksByDocument(ctx context.Context, docID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.StoreError("catalog is closed", nil)
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return apperr.StoreError("failed to delete chunks", err)
	}
	return nil
}

// SaveGatedDocument records the minimal trace of a gate rejection.
func (c *SQLiteCatalog) SaveGatedDocument(ctx context.Context, rec *GatedDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return apperr.StoreError("catalog is closed", nil)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO gated_documents (doc_id, filename, title, signalness, reason, gated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.DocID, rec.Filename, rec.Title, rec.Signalness, rec.Reason,
		formatTime(rec.GatedAt))
	if err != nil {
		return apperr.StoreError("failed to save gated document", err)
	}
	return nil
}

// ListGatedDocuments returns gate rejections, newest first.
func (c *SQLiteCatalog) ListGatedDocuments(ctx context.Context, limit int) ([]*GatedDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT doc_id, filename, title, signalness, reason, gated_at
		FROM gated_documents ORDER BY gated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.StoreError("failed to list gated documents", err)
	}
	defer rows.Close()

	var recs []*GatedDocument
	for rows.Next() {
		var rec GatedDocument
		var gatedAt string
		if err := rows.Scan(&rec.DocID, &rec.Filename, &rec.Title,
			&rec.Signalness, &rec.Reason, &gatedAt); err != nil {
			return nil, apperr.StoreError("failed to scan gated document", err)
		}
		rec.GatedAt = parseTime(gatedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Stats summarizes catalog contents.
func (c *SQLiteCatalog) Stats(ctx context.Context) (*CatalogStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, apperr.StoreError("catalog is closed", nil)
	}

	var stats CatalogStats
	var lastIngested sql.NullString
	err := c.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM enrichments),
			(SELECT COUNT(*) FROM gated_documents),
			(SELECT MAX(ingested_at) FROM documents)`).
		Scan(&stats.DocumentCount, &stats.ChunkCount, &stats.EnrichmentCount,
			&stats.GatedCount, &lastIngested)
	if err != nil {
		return nil, apperr.StoreError("failed to compute stats", err)
	}
	if lastIngested.Valid {
		stats.LastIngestedAt = parseTime(lastIngested.String)
	}
	return &stats, nil
}

// Close checkpoints the WAL and closes the database.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.db != nil {
		_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return c.db.Close()
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var docType, createdAt, ingestedAt string
	err := row.Scan(&doc.ID, &doc.Filename, &doc.SourcePath, &docType,
		&doc.Content, &createdAt, &ingestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreError("failed to scan document", err)
	}
	doc.DocType = DocType(docType)
	doc.CreatedAt = parseTime(createdAt)
	doc.IngestedAt = parseTime(ingestedAt)
	return &doc, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var ch Chunk
	var chunkType, parents, createdAt string
	err := row.Scan(&ch.ID, &ch.DocID, &ch.Sequence, &ch.Text, &chunkType,
		&ch.SectionTitle, &parents, &ch.Speaker, &ch.TokenEstimate, &createdAt)
	if err != nil {
		return nil, apperr.StoreError("failed to scan chunk", err)
	}
	ch.ChunkType = ChunkType(chunkType)
	if err := json.Unmarshal([]byte(parents), &ch.ParentSections); err != nil {
		return nil, apperr.StoreError("failed to decode parent sections", err)
	}
	ch.CreatedAt = parseTime(createdAt)
	return &ch, nil
}

// formatTime renders a timestamp as RFC 3339 UTC; zero times become the
// empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reverses formatTime; unparseable strings become the zero time.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
