// Package rag answers questions over the indexed corpus. Retrieval runs
// first; a confidence gate decides whether the question is answerable
// from the retrieved context before any completion tokens are spent.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/llm"
	"github.com/dante4567/rag-provider-sub004/internal/search"
	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Confidence weights and defaults.
const (
	weightRelevance = 0.5
	weightCoverage  = 0.3
	weightQuality   = 0.2

	DefaultConfidenceThreshold = 0.6
	DefaultTopK                = 5
)

// Source is one retrieved chunk cited by an answer.
type Source struct {
	ChunkID        string  `json:"chunk_id"`
	DocID          string  `json:"doc_id"`
	Title          string  `json:"title,omitempty"`
	Filename       string  `json:"filename,omitempty"`
	Text           string  `json:"text"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Answer is the result of one Ask call. Refused answers carry the
// retrieved sources so the caller can judge what was found.
type Answer struct {
	Text       string    `json:"text"`
	Sources    []*Source `json:"sources"`
	CostUSD    float64   `json:"cost_usd"`
	ModelUsed  string    `json:"model_used,omitempty"`
	Confidence float64   `json:"confidence"`
	Refused    bool      `json:"refused"`
}

// Options tune one Ask call.
type Options struct {
	// Model pins the completion to a specific model id.
	Model string
	// TopK overrides the retrieval depth.
	TopK int
}

// Answerer wires retrieval to the completion gateway.
type Answerer struct {
	engine    *search.Engine
	gateway   *llm.Gateway
	threshold float64
	topK      int
}

// New builds an Answerer. Non-positive threshold and topK use defaults.
func New(engine *search.Engine, gateway *llm.Gateway, threshold float64, topK int) (*Answerer, error) {
	if engine == nil {
		return nil, apperr.ValidationError("answerer requires a search engine", nil)
	}
	if gateway == nil {
		return nil, apperr.ValidationError("answerer requires a gateway", nil)
	}
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Answerer{engine: engine, gateway: gateway, threshold: threshold, topK: topK}, nil
}

// Ask retrieves context for the question and either answers with the
// gateway or refuses when confidence falls below the threshold. A
// refusal costs nothing: the completion call is never made.
func (a *Answerer) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperr.ValidationError("question must not be empty", nil)
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = a.topK
	}

	results, err := a.engine.Search(ctx, question, topK, nil, search.ModeHybrid)
	if err != nil {
		return nil, err
	}

	sources := toSources(results)
	confidence := confidenceFor(question, results)

	if confidence < a.threshold {
		slog.Info("question refused on low confidence",
			"confidence", confidence,
			"threshold", a.threshold,
			"sources", len(sources))
		return &Answer{
			Text:       refusalText(confidence, sources),
			Sources:    sources,
			Confidence: confidence,
			Refused:    true,
		}, nil
	}

	result, err := a.gateway.Call(ctx, llm.CallOptions{
		Model:       opts.Model,
		System:      answerSystemPrompt,
		Prompt:      buildAnswerPrompt(question, results),
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("question answered",
		"model", result.ModelUsed,
		"confidence", confidence,
		"sources", len(sources),
		"cost_usd", result.CostUSD)
	return &Answer{
		Text:       result.Text,
		Sources:    sources,
		CostUSD:    result.CostUSD,
		ModelUsed:  result.ModelUsed,
		Confidence: confidence,
	}, nil
}

const answerSystemPrompt = `You answer questions strictly from the provided sources.
Cite sources inline using their [S#] markers. If the sources do not contain
the answer, say so plainly.`

// buildAnswerPrompt interleaves per-source markers with chunk texts.
func buildAnswerPrompt(question string, results []*search.Result) string {
	var b strings.Builder
	b.WriteString("Sources:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[S%d] %s\n\n", i+1, strings.TrimSpace(r.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}

func refusalText(confidence float64, sources []*Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I don't have enough relevant material to answer this confidently (confidence %.2f).", confidence)
	if len(sources) > 0 {
		b.WriteString(" The closest matches were:\n")
		for i, s := range sources {
			label := s.Title
			if label == "" {
				label = s.Filename
			}
			if label == "" {
				label = s.ChunkID
			}
			fmt.Fprintf(&b, "  [S%d] %s (relevance %.2f)\n", i+1, label, s.RelevanceScore)
		}
	}
	return b.String()
}

// confidenceFor blends retrieval relevance, question coverage, and
// source quality into one [0,1] score.
func confidenceFor(question string, results []*search.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	return weightRelevance*meanTopRelevance(results, 3) +
		weightCoverage*questionCoverage(question, results) +
		weightQuality*meanSignalness(results)
}

func meanTopRelevance(results []*search.Result, n int) float64 {
	if len(results) < n {
		n = len(results)
	}
	sum := 0.0
	for _, r := range results[:n] {
		sum += r.RelevanceScore
	}
	return sum / float64(n)
}

// questionCoverage is the fraction of the question's content words that
// appear anywhere in the retrieved text.
func questionCoverage(question string, results []*search.Result) float64 {
	var combined strings.Builder
	for _, r := range results {
		combined.WriteString(r.Text)
		combined.WriteString(" ")
	}
	retrieved := store.TokenSet(combined.String())

	content := contentWords(question)
	if len(content) == 0 {
		return 0
	}
	found := 0
	for _, w := range content {
		if _, ok := retrieved[w]; ok {
			found++
		}
	}
	return float64(found) / float64(len(content))
}

// meanSignalness averages the signalness carried in chunk metadata.
// Chunks without the field count as zero rather than being skipped.
func meanSignalness(results []*search.Result) float64 {
	sum := 0.0
	for _, r := range results {
		if v, err := strconv.ParseFloat(r.Metadata["signalness"], 64); err == nil {
			sum += v
		}
	}
	return sum / float64(len(results))
}

// stopwords excluded from question coverage.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "did": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "had": {}, "has": {}, "have": {}, "how": {}, "i": {}, "if": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "their": {}, "there": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {},
}

func contentWords(question string) []string {
	var out []string
	for _, tok := range store.Tokenize(question) {
		if _, skip := stopwords[tok]; !skip {
			out = append(out, tok)
		}
	}
	return out
}

func toSources(results []*search.Result) []*Source {
	sources := make([]*Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, &Source{
			ChunkID:        r.ChunkID,
			DocID:          r.DocID,
			Title:          r.Metadata["title"],
			Filename:       r.Metadata["filename"],
			Text:           r.Text,
			RelevanceScore: r.RelevanceScore,
		})
	}
	return sources
}
