// Package quality scores enriched documents and optionally gates low
// signal content out of the index. All component scores live in [0,1];
// signalness is their weighted composite.
package quality

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Signalness weights. Quality dominates; the rest refine.
const (
	WeightQuality       = 0.35
	WeightNovelty       = 0.25
	WeightActionability = 0.20
	WeightRecency       = 0.20
)

// DefaultThreshold is the minimum signalness a document needs to pass
// the gate.
const DefaultThreshold = 0.3

// recencyHalfLife is the age at which the recency score halves.
const recencyHalfLife = 180 * 24 * time.Hour

// CorpusStats feeds novelty scoring with what the corpus already holds.
type CorpusStats struct {
	// DocumentCount is the number of stored documents.
	DocumentCount int
	// TopicCounts maps each assigned topic to the number of documents
	// carrying it.
	TopicCounts map[string]int
}

// Scorer computes quality scores. The zero value uses the wall clock.
type Scorer struct {
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Score assesses md against the corpus. doc supplies timestamps and the
// raw text length.
func (s *Scorer) Score(doc *store.Document, md *store.EnrichedMetadata, stats *CorpusStats) *store.QualityScores {
	scores := &store.QualityScores{
		Quality:       scoreQuality(md),
		Novelty:       scoreNovelty(md, stats),
		Actionability: scoreActionability(md),
		Recency:       s.scoreRecency(doc),
	}
	scores.Signalness = WeightQuality*scores.Quality +
		WeightNovelty*scores.Novelty +
		WeightActionability*scores.Actionability +
		WeightRecency*scores.Recency
	return scores
}

// scoreQuality measures metadata completeness: summary, controlled
// terms, entities, and a non-trivial title each contribute a quarter.
func scoreQuality(md *store.EnrichedMetadata) float64 {
	score := 0.0
	if strings.TrimSpace(md.Summary) != "" {
		score += 0.25
	}
	if len(md.Topics)+len(md.Projects)+len(md.Places) > 0 {
		score += 0.25
	}
	if entityCount(md) > 0 {
		score += 0.25
	}
	if len(strings.Fields(md.Title)) >= 2 {
		score += 0.25
	}
	return score
}

// scoreNovelty rewards topics the corpus has not seen much of. An empty
// corpus or an untagged document reads as neutral.
func scoreNovelty(md *store.EnrichedMetadata, stats *CorpusStats) float64 {
	if stats == nil || stats.DocumentCount == 0 || len(md.Topics) == 0 {
		return 0.5
	}

	sum := 0.0
	for _, topic := range md.Topics {
		freq := float64(stats.TopicCounts[topic]) / float64(stats.DocumentCount)
		sum += 1 - freq
	}
	return clamp01(sum / float64(len(md.Topics)))
}

// scoreActionability counts concrete handles: dates, numbers, and named
// people with roles. Five or more saturates.
func scoreActionability(md *store.EnrichedMetadata) float64 {
	handles := len(md.Entities.Dates) + len(md.Entities.Numbers)
	for _, p := range md.Entities.People {
		if p.Role != "" {
			handles++
		}
	}
	return clamp01(float64(handles) / 5)
}

// scoreRecency decays exponentially with document age. Documents without
// their own timestamp read as neutral.
func (s *Scorer) scoreRecency(doc *store.Document) float64 {
	if doc.CreatedAt.IsZero() {
		return 0.5
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	age := now.Sub(doc.CreatedAt)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age.Hours() / recencyHalfLife.Hours())
}

func entityCount(md *store.EnrichedMetadata) int {
	return len(md.Entities.People) +
		len(md.Entities.Organizations) +
		len(md.Entities.Places) +
		len(md.Entities.Technologies) +
		len(md.Entities.Dates) +
		len(md.Entities.Numbers)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Gate decides whether a scored document enters the index.
type Gate struct {
	// Enabled false means score-only mode: annotate, never reject.
	Enabled   bool
	Threshold float64
}

// NewGate builds a gate. Non-positive thresholds use the default.
func NewGate(enabled bool, threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{Enabled: enabled, Threshold: threshold}
}

// Admit reports whether the document passes. In score-only mode every
// document passes; the scores still ride along as annotations.
func (g *Gate) Admit(docID string, scores *store.QualityScores) bool {
	if !g.Enabled {
		return true
	}
	if scores.Signalness < g.Threshold {
		slog.Info("document gated",
			"doc_id", docID,
			"signalness", scores.Signalness,
			"threshold", g.Threshold)
		return false
	}
	return true
}
