// Package store provides document persistence (SQLite), the BM25 keyword
// index, and the vector index contract. This is the storage layer for all
// ingested content.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DocType represents the detected format of an ingested document.
type DocType string

const (
	DocTypeEmail    DocType = "email"
	DocTypeMarkdown DocType = "markdown"
	DocTypePDF      DocType = "pdf"
	DocTypeImage    DocType = "image"
	DocTypeChat     DocType = "chat"
	DocTypeGeneric  DocType = "generic"
)

// ChunkType represents the structural role of a chunk within its document.
type ChunkType string

const (
	ChunkTypeHeading   ChunkType = "heading"
	ChunkTypeParagraph ChunkType = "paragraph"
	ChunkTypeList      ChunkType = "list"
	ChunkTypeTable     ChunkType = "table"
	ChunkTypeCode      ChunkType = "code"
	ChunkTypeChatTurn  ChunkType = "chat_turn"
)

// ShortIDLength is the prefix length of the content hash used in chunk IDs.
const ShortIDLength = 12

// Document represents a unit of ingestion. Its ID is the SHA-256 of the raw
// text, so identical content always maps to the same document.
type Document struct {
	ID         string    // SHA256(content), hex
	Filename   string    // Original filename
	SourcePath string    // Origin path, informational
	DocType    DocType   // email, markdown, pdf, image, chat, generic
	Content    string    // Raw text
	CreatedAt  time.Time // Document's own timestamp when known
	IngestedAt time.Time
}

// NewDocument builds a Document whose ID is the content hash.
func NewDocument(filename, sourcePath string, docType DocType, content string) *Document {
	return &Document{
		ID:         HashContent(content),
		Filename:   filename,
		SourcePath: sourcePath,
		DocType:    docType,
		Content:    content,
		IngestedAt: time.Now().UTC(),
	}
}

// HashContent returns the hex SHA-256 of text. Used as the document ID and
// for duplicate detection during triage.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ShortID returns the leading hash prefix used to derive chunk IDs of the
// form "{short_id}_chunk_{sequence}".
func (d *Document) ShortID() string {
	if len(d.ID) < ShortIDLength {
		return d.ID
	}
	return d.ID[:ShortIDLength]
}

// Person is a person entity with an optional role ("Jane Doe", "reviewer").
type Person struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// DatedMention is a date entity with optional surrounding context.
type DatedMention struct {
	Date    string `json:"date"`
	Context string `json:"context,omitempty"`
}

// Entities holds everything extracted from a document that names a concrete
// thing. Every surface form must appear in the source text; enrichment drops
// any that do not.
type Entities struct {
	People        []Person       `json:"people,omitempty"`
	Organizations []string       `json:"organizations,omitempty"`
	Places        []string       `json:"places,omitempty"`
	Technologies  []string       `json:"technologies,omitempty"`
	Dates         []DatedMention `json:"dates,omitempty"`
	Numbers       []string       `json:"numbers,omitempty"`
}

// EnrichedMetadata is the controlled metadata attached to a document by the
// enrichment stage. Topics, projects, and places are restricted to the
// current vocabulary; terms that fail validation are demoted to the
// suggested_* lists and recorded as suggestions, never silently admitted.
type EnrichedMetadata struct {
	Title      string  `json:"title"`
	Summary    string  `json:"summary"`
	DocType    DocType `json:"doc_type"`
	Complexity float64 `json:"complexity"`

	Topics   []string `json:"topics"`
	Projects []string `json:"projects"`
	Places   []string `json:"places"`

	SuggestedTopics   []string `json:"suggested_topics,omitempty"`
	SuggestedProjects []string `json:"suggested_projects,omitempty"`
	SuggestedPlaces   []string `json:"suggested_places,omitempty"`

	Entities Entities `json:"entities"`

	// Reflection is an optional short LLM note about the document.
	Reflection string `json:"reflection,omitempty"`

	// Truncated records that the source text exceeded the prompt window
	// and enrichment saw a clipped version.
	Truncated bool `json:"truncated,omitempty"`

	// Model is the identifier of the model that produced this generation.
	Model string `json:"model,omitempty"`
}

// QualityScores is the quality-gate assessment of a document. All values
// are in [0,1]; Signalness is the weighted composite the gate thresholds on.
type QualityScores struct {
	Quality       float64 `json:"quality"`
	Novelty       float64 `json:"novelty"`
	Actionability float64 `json:"actionability"`
	Recency       float64 `json:"recency"`
	Signalness    float64 `json:"signalness"`
}

// EnrichmentRecord is a persisted enrichment generation. Generations are
// never mutated; re-enriching a document appends the next generation.
type EnrichmentRecord struct {
	DocID      string
	Generation int
	Metadata   EnrichedMetadata
	Scores     QualityScores
	CreatedAt  time.Time
}

// GatedDocument is the minimal record kept for a document the quality gate
// rejected. The content itself is not stored.
type GatedDocument struct {
	DocID      string
	Filename   string
	Title      string
	Signalness float64
	Reason     string
	GatedAt    time.Time
}

// Chunk is the minimal retrievable unit.
type Chunk struct {
	ID             string    // "{doc_short_id}_chunk_{sequence}"
	DocID          string    // Parent document ID
	Sequence       int       // 0-indexed, contiguous per document
	Text           string    // Chunk content
	ChunkType      ChunkType // heading, paragraph, list, table, code, chat_turn
	SectionTitle   string    // Nearest enclosing heading
	ParentSections []string  // Ordered heading path from the document root
	Speaker        string    // Speaker label, chat_turn chunks only
	TokenEstimate  int       // words x 1.3 heuristic
	CreatedAt      time.Time
}

// ChunkID derives the chunk identifier for a document and sequence number.
func ChunkID(docShortID string, sequence int) string {
	return fmt.Sprintf("%s_chunk_%d", docShortID, sequence)
}

// CatalogStats summarizes catalog contents for status reporting.
type CatalogStats struct {
	DocumentCount   int
	ChunkCount      int
	EnrichmentCount int
	GatedCount      int
	LastIngestedAt  time.Time
}

// Catalog persists documents, chunks, and enrichment generations in SQLite.
type Catalog interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	HasDocument(ctx context.Context, id string) (bool, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error // Cascades to chunks and enrichments

	// Enrichment operations. SaveEnrichment assigns the next generation.
	SaveEnrichment(ctx context.Context, docID string, meta *EnrichedMetadata, scores *QualityScores) (int, error)
	GetEnrichment(ctx context.Context, docID string) (*EnrichmentRecord, error) // Latest generation

	// Chunk operations. SaveChunks replaces a document's chunks in one
	// transaction: either all new chunks are visible or none are.
	SaveChunks(ctx context.Context, docID string, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByDocument(ctx context.Context, docID string) ([]*Chunk, error)
	AllChunks(ctx context.Context) ([]*Chunk, error) // For index rebuild at startup
	DeleteChunksByDocument(ctx context.Context, docID string) error

	// Gated documents
	SaveGatedDocument(ctx context.Context, rec *GatedDocument) error
	ListGatedDocuments(ctx context.Context, limit int) ([]*GatedDocument, error)

	// Stats
	Stats(ctx context.Context) (*CatalogStats, error)

	// Lifecycle
	Close() error
}

// IndexEntry is a (chunk id, text) pair submitted to the BM25 index.
type IndexEntry struct {
	ID   string
	Text string
}

// BM25Result is a single keyword search hit.
type BM25Result struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// BM25Stats provides statistics about the BM25 index.
type BM25Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search over chunk text using Okapi BM25.
// Mutations are batched; implementations rebuild lazily before the next
// search that needs them.
type BM25Index interface {
	// Add indexes entries, replacing any with the same ID.
	Add(ctx context.Context, entries []IndexEntry) error

	// Remove deletes entries by chunk ID. Unknown IDs are ignored.
	Remove(ctx context.Context, ids []string) error

	// Search returns the top k entries scored by BM25, best first.
	// Ties are ordered by chunk ID ascending.
	Search(ctx context.Context, query string, k int) ([]*BM25Result, error)

	// AllIDs returns all indexed chunk IDs, sorted (for consistency checks).
	AllIDs() []string

	// Stats returns index statistics.
	Stats() *BM25Stats

	Close() error
}

// BM25Config configures BM25 scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.2)
	K1 float64

	// B is the length normalization parameter (default: 0.75)
	B float64
}

// DefaultBM25Config returns the standard Okapi parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1: 1.2,
		B:  0.75,
	}
}

// VectorHit is a single nearest-neighbor result. Distance is cosine
// distance in [0,2]; callers convert to similarity.
type VectorHit struct {
	ID       string
	Distance float32
}

// VectorIndexConfig configures the HNSW vector index.
type VectorIndexConfig struct {
	// Dimensions is the vector dimension; all vectors must match.
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorIndexConfig returns sensible HNSW defaults.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// VectorIndex provides approximate nearest-neighbor search over embeddings.
type VectorIndex interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorHit, error)

	// Delete removes vectors by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Contains checks whether an ID is present.
	Contains(id string) bool

	// Count returns the number of stored vectors.
	Count() int

	Close() error
}

// ErrDimensionMismatch indicates a vector whose dimension does not match
// the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
