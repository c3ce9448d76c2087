// Package enrich attaches controlled metadata to documents: an LLM
// structured-output call constrained by the vocabulary, followed by
// post-validation that demotes unknown terms and drops hallucinated
// entities.
package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/chunk"
	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
	"github.com/dante4567/rag-provider-sub004/internal/llm"
	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/vocab"
)

// List bounds on extracted metadata.
const (
	MaxPeople    = 50
	MaxListItems = 20

	MaxTitleLen   = 200
	MaxSummaryLen = 500
)

// complexityChunkCeiling is the estimated chunk count at which the size
// component of complexity saturates.
const complexityChunkCeiling = 20

// Enricher runs the metadata extraction stage.
type Enricher struct {
	gateway *llm.Gateway
	vocab   *vocab.Store
	schema  *llm.SchemaValidator

	windowChars int
	model       string
}

// New builds an Enricher. Model pins enrichment calls to a specific
// model id; empty follows the gateway's provider order.
func New(gateway *llm.Gateway, vocabStore *vocab.Store, windowChars int, model string) (*Enricher, error) {
	if gateway == nil {
		return nil, apperr.ValidationError("enricher requires a gateway", nil)
	}
	if vocabStore == nil {
		return nil, apperr.ValidationError("enricher requires a vocabulary store", nil)
	}
	if windowChars <= 0 {
		windowChars = DefaultPromptWindowChars
	}
	schema, err := Schema()
	if err != nil {
		return nil, err
	}
	return &Enricher{
		gateway:     gateway,
		vocab:       vocabStore,
		schema:      schema,
		windowChars: windowChars,
		model:       model,
	}, nil
}

// llmMetadata mirrors the structured-output schema.
type llmMetadata struct {
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	Topics     []string       `json:"topics"`
	Projects   []string       `json:"projects"`
	Places     []string       `json:"places"`
	Entities   store.Entities `json:"entities"`
	Reflection string         `json:"reflection"`
}

// Enrich extracts metadata for doc. The returned llm.Result carries cost
// and provider attribution for the pipeline's accumulators.
func (e *Enricher) Enrich(ctx context.Context, doc *store.Document) (*store.EnrichedMetadata, *llm.Result, error) {
	prompt, truncated := buildPrompt(doc, e.vocab, e.windowChars)

	result, err := e.gateway.Call(ctx, llm.CallOptions{
		Model:       e.model,
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: 0.0,
		Schema:      e.schema,
	})
	if err != nil {
		return nil, nil, err
	}

	var raw llmMetadata
	if err := reparse(result.Parsed, &raw); err != nil {
		return nil, nil, apperr.New(apperr.ErrCodeSchemaViolation,
			"enrichment output did not match the metadata shape", err)
	}

	md := &store.EnrichedMetadata{
		Title:      clampString(raw.Title, MaxTitleLen),
		Summary:    clampString(raw.Summary, MaxSummaryLen),
		DocType:    doc.DocType,
		Topics:     clampList(raw.Topics, MaxListItems),
		Projects:   clampList(raw.Projects, MaxListItems),
		Places:     clampList(raw.Places, MaxListItems),
		Entities:   raw.Entities,
		Reflection: clampString(raw.Reflection, MaxSummaryLen),
		Truncated:  truncated,
		Model:      result.ModelUsed,
	}
	if len(strings.TrimSpace(md.Title)) < 3 {
		md.Title = fallbackTitle(doc)
	}

	e.verifyEntities(doc, md)

	accepted, demoted := e.vocab.Validate(md, doc.ID)

	md.Complexity = complexity(doc.Content, accepted, demoted)

	slog.Info("document enriched",
		"doc_id", doc.ShortID(),
		"model", result.ModelUsed,
		"accepted_terms", accepted,
		"demoted_terms", demoted,
		"truncated", truncated,
		"cost_usd", result.CostUSD)
	return md, result, nil
}

// verifyEntities drops any entity whose surface form does not appear
// (case-insensitive) in the source text. The model is told to extract
// verbatim; anything that fails this check was invented.
func (e *Enricher) verifyEntities(doc *store.Document, md *store.EnrichedMetadata) {
	haystack := strings.ToLower(doc.Content)
	present := func(s string) bool {
		s = strings.TrimSpace(s)
		return s != "" && strings.Contains(haystack, strings.ToLower(s))
	}
	dropped := 0
	drop := func(kind, surface string) {
		dropped++
		slog.Warn("dropped entity not present in source",
			"event", "HallucinatedEntity",
			"doc_id", doc.ShortID(),
			"entity_kind", kind,
			"surface", surface)
	}

	people := md.Entities.People[:0]
	for _, p := range md.Entities.People {
		if present(p.Name) {
			people = append(people, p)
		} else {
			drop("person", p.Name)
		}
	}
	md.Entities.People = boundPeople(people, MaxPeople)

	keepStrings := func(kind string, in []string) []string {
		out := in[:0]
		for _, s := range in {
			if present(s) {
				out = append(out, s)
			} else {
				drop(kind, s)
			}
		}
		return clampList(out, MaxListItems)
	}
	md.Entities.Organizations = keepStrings("organization", md.Entities.Organizations)
	md.Entities.Places = keepStrings("place", md.Entities.Places)
	md.Entities.Technologies = keepStrings("technology", md.Entities.Technologies)
	md.Entities.Numbers = keepStrings("number", md.Entities.Numbers)

	dates := md.Entities.Dates[:0]
	for _, d := range md.Entities.Dates {
		if present(d.Date) {
			dates = append(dates, d)
		} else {
			drop("date", d.Date)
		}
	}
	if len(dates) > MaxListItems {
		dates = dates[:MaxListItems]
	}
	md.Entities.Dates = dates

	if dropped > 0 {
		slog.Info("entity verification dropped items",
			"doc_id", doc.ShortID(), "dropped", dropped)
	}
}

// complexity blends document size against the controlled-term hit rate:
// 0.6 * min(1, est_chunks/ceiling) + 0.4 * accepted/(accepted+demoted).
func complexity(content string, accepted, demoted int) float64 {
	estChunks := float64(chunk.EstimateTokens(content)) / float64(chunk.DefaultTargetTokens)
	sizePart := estChunks / complexityChunkCeiling
	if sizePart > 1 {
		sizePart = 1
	}

	coverage := 0.0
	if total := accepted + demoted; total > 0 {
		coverage = float64(accepted) / float64(total)
	}
	return 0.6*sizePart + 0.4*coverage
}

func fallbackTitle(doc *store.Document) string {
	name := doc.Filename
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	name = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	if len(name) < 3 {
		return "Untitled document " + doc.ShortID()
	}
	return clampString(name, MaxTitleLen)
}

func clampString(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max]
	}
	return s
}

func clampList(in []string, max int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == max {
			break
		}
	}
	return out
}

func boundPeople(in []store.Person, max int) []store.Person {
	if len(in) > max {
		return in[:max]
	}
	return in
}

// reparse converts the gateway's decoded JSON value into a typed struct.
func reparse(parsed any, out *llmMetadata) error {
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}
