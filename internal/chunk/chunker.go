// Package chunk splits documents into structure-aware retrieval units.
// Markdown is segmented along headings with code, tables, and lists kept
// intact; chat exports are split on speaker turns.
package chunk

import (
	"math"
	"regexp"
	"strings"
	"time"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Default token bounds; overridden by config.
const (
	DefaultTargetTokens = 400
	DefaultMaxTokens    = 800
)

// Chunker splits a document's content into ordered chunks.
type Chunker struct {
	targetTokens int
	maxTokens    int
}

// New creates a chunker with the given token bounds. Non-positive values
// fall back to the defaults.
func New(targetTokens, maxTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = DefaultTargetTokens
	}
	if maxTokens < targetTokens {
		maxTokens = targetTokens * 2
	}
	return &Chunker{targetTokens: targetTokens, maxTokens: maxTokens}
}

// Chunk splits the document. Chunk ids are {doc_short_id}_chunk_{seq}
// with contiguous zero-based sequences.
func (c *Chunker) Chunk(doc *store.Document) ([]*store.Chunk, error) {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return nil, apperr.New(apperr.ErrCodeChunkingFailed, "document has no content", nil)
	}

	content := stripIgnoreRegions(doc.Content)
	if strings.TrimSpace(content) == "" {
		return nil, apperr.New(apperr.ErrCodeChunkingFailed,
			"document content is entirely ignored", nil)
	}

	var pieces []piece
	if doc.DocType == store.DocTypeChat {
		pieces = c.chatPieces(content)
	} else {
		pieces = c.markdownPieces(content)
	}
	if len(pieces) == 0 {
		return nil, apperr.New(apperr.ErrCodeChunkingFailed, "no chunkable content", nil)
	}

	now := time.Now().UTC()
	shortID := doc.ShortID()
	chunks := make([]*store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = &store.Chunk{
			ID:             store.ChunkID(shortID, i),
			DocID:          doc.ID,
			Sequence:       i,
			Text:           p.text,
			ChunkType:      p.chunkType,
			SectionTitle:   p.sectionTitle,
			ParentSections: p.parentSections,
			Speaker:        p.speaker,
			TokenEstimate:  EstimateTokens(p.text),
			CreatedAt:      now,
		}
	}
	return chunks, nil
}

// piece is a chunk before ids and sequences are assigned.
type piece struct {
	text           string
	chunkType      store.ChunkType
	sectionTitle   string
	parentSections []string
	speaker        string
}

// tokensPerWord is the estimation ratio for natural-language text.
const tokensPerWord = 1.3

// EstimateTokens applies the words x 1.3 heuristic.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Round(float64(words) * tokensPerWord))
}

// RAG:IGNORE regions are excluded from chunking and indexing entirely.
var (
	ignoreOpenPattern  = regexp.MustCompile(`<!--\s*RAG:IGNORE\s*-->`)
	ignoreClosePattern = regexp.MustCompile(`<!--\s*/RAG:IGNORE\s*-->`)
)

// stripIgnoreRegions removes everything between an ignore marker and its
// closing marker. An unclosed marker ignores through end of document.
func stripIgnoreRegions(content string) string {
	var b strings.Builder
	rest := content
	for {
		open := ignoreOpenPattern.FindStringIndex(rest)
		if open == nil {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open[0]])

		after := rest[open[1]:]
		closeLoc := ignoreClosePattern.FindStringIndex(after)
		if closeLoc == nil {
			return b.String()
		}
		rest = after[closeLoc[1]:]
	}
}
