package search

import (
	"sort"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Default fusion weights and MMR balance.
const (
	DefaultBM25Weight  = 0.3
	DefaultDenseWeight = 0.7
	DefaultMMRLambda   = 0.7
)

// scored is a candidate moving through fusion.
type scored struct {
	chunkID      string
	bm25Norm     float64
	denseNorm    float64
	fused        float64
	matchedTerms []string
}

// minMaxNormalize rescales scores to [0,1] per source. All-equal lists
// collapse to 0.5; ids missing from a source read as 0.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	if len(scores) == 0 {
		return map[string]float64{}
	}

	first := true
	var minScore, maxScore float64
	for _, s := range scores {
		if first {
			minScore, maxScore = s, s
			first = false
			continue
		}
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make(map[string]float64, len(scores))
	if maxScore == minScore {
		for id := range scores {
			out[id] = 0.5
		}
		return out
	}
	for id, s := range scores {
		out[id] = (s - minScore) / (maxScore - minScore)
	}
	return out
}

// fuse combines normalized per-source scores with renormalized weights.
// A source with no results drops out and the other takes full weight.
func fuse(bm25, dense map[string]float64, wBM25, wDense float64, matched map[string][]string) []*scored {
	bm25Norm := minMaxNormalize(bm25)
	denseNorm := minMaxNormalize(dense)

	// Degrade to single-source when one side came back empty.
	effBM25, effDense := wBM25, wDense
	if len(bm25Norm) == 0 {
		effBM25, effDense = 0, 1
	} else if len(denseNorm) == 0 {
		effBM25, effDense = 1, 0
	} else if sum := effBM25 + effDense; sum > 0 {
		effBM25 /= sum
		effDense /= sum
	}

	ids := make(map[string]struct{}, len(bm25Norm)+len(denseNorm))
	for id := range bm25Norm {
		ids[id] = struct{}{}
	}
	for id := range denseNorm {
		ids[id] = struct{}{}
	}

	out := make([]*scored, 0, len(ids))
	for id := range ids {
		s := &scored{
			chunkID:      id,
			bm25Norm:     bm25Norm[id],
			denseNorm:    denseNorm[id],
			matchedTerms: matched[id],
		}
		s.fused = effBM25*s.bm25Norm + effDense*s.denseNorm
		out = append(out, s)
	}
	sortScored(out)
	return out
}

// sortScored orders by fused score descending, chunk id ascending on
// ties.
func sortScored(items []*scored) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].fused != items[j].fused {
			return items[i].fused > items[j].fused
		}
		return items[i].chunkID < items[j].chunkID
	})
}

// jaccard computes token-set similarity between two texts.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	intersection := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// mmr selects up to limit candidates balancing fused relevance against
// redundancy with already-selected texts (lambda weights relevance).
func mmr(candidates []*scored, texts map[string]string, lambda float64, limit int) []*scored {
	if len(candidates) <= 1 || limit <= 0 {
		if len(candidates) > limit {
			return candidates[:limit]
		}
		return candidates
	}

	tokens := make(map[string]map[string]struct{}, len(candidates))
	for _, c := range candidates {
		tokens[c.chunkID] = store.TokenSet(texts[c.chunkID])
	}

	remaining := make([]*scored, len(candidates))
	copy(remaining, candidates)
	selected := make([]*scored, 0, limit)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, tokens, lambda)
		for i := 1; i < len(remaining); i++ {
			score := mmrScore(remaining[i], selected, tokens, lambda)
			if score > bestScore ||
				(score == bestScore && remaining[i].chunkID < remaining[bestIdx].chunkID) {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(c *scored, selected []*scored, tokens map[string]map[string]struct{}, lambda float64) float64 {
	maxSim := 0.0
	for _, s := range selected {
		if sim := jaccard(tokens[c.chunkID], tokens[s.chunkID]); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*c.fused - (1-lambda)*maxSim
}
