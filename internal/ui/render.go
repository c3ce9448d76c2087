package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dante4567/rag-provider-sub004/internal/ledger"
	"github.com/dante4567/rag-provider-sub004/internal/pipeline"
	"github.com/dante4567/rag-provider-sub004/internal/rag"
	"github.com/dante4567/rag-provider-sub004/internal/search"
	"github.com/dante4567/rag-provider-sub004/internal/vocab"
)

// snippetLen bounds the chunk preview in search output.
const snippetLen = 160

// Renderer writes human-readable command output.
type Renderer struct {
	out    io.Writer
	styles Styles
}

// NewRenderer builds a renderer over out with the given styles.
func NewRenderer(out io.Writer, styles Styles) *Renderer {
	return &Renderer{out: out, styles: styles}
}

// SearchResults prints ranked results, one block per hit.
func (r *Renderer) SearchResults(query string, results []*search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(r.out, r.styles.Dim.Render("no results for: ")+query)
		return
	}

	fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("%d results", len(results))))
	for i, res := range results {
		title := res.Metadata["title"]
		if title == "" {
			title = res.Metadata["filename"]
		}
		fmt.Fprintf(r.out, "%s %s %s\n",
			r.styles.Label.Render(fmt.Sprintf("%2d.", i+1)),
			title,
			r.styles.Score.Render(fmt.Sprintf("(relevance %.2f)", res.RelevanceScore)))
		fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render(res.ChunkID))
		fmt.Fprintf(r.out, "    %s\n", snippet(res.Text))
		if len(res.MatchedTerms) > 0 {
			fmt.Fprintf(r.out, "    %s %s\n",
				r.styles.Label.Render("matched:"),
				strings.Join(res.MatchedTerms, ", "))
		}
	}
}

// Answer prints an answer or a refusal with its sources.
func (r *Renderer) Answer(answer *rag.Answer) {
	if answer.Refused {
		fmt.Fprintln(r.out, r.styles.Warning.Render("refused: ")+answer.Text)
	} else {
		fmt.Fprintln(r.out, answer.Text)
		fmt.Fprintln(r.out)
		fmt.Fprintf(r.out, "%s %.2f   %s %s   %s $%.4f\n",
			r.styles.Label.Render("confidence:"), answer.Confidence,
			r.styles.Label.Render("model:"), answer.ModelUsed,
			r.styles.Label.Render("cost:"), answer.CostUSD)
	}

	if len(answer.Sources) > 0 {
		fmt.Fprintln(r.out, r.styles.Header.Render("sources:"))
		for i, s := range answer.Sources {
			label := s.Title
			if label == "" {
				label = s.Filename
			}
			fmt.Fprintf(r.out, "  [S%d] %s %s\n", i+1, label,
				r.styles.Dim.Render(s.ChunkID))
		}
	}
}

// BatchOutcomes prints one line per ingested file.
func (r *Renderer) BatchOutcomes(results []*pipeline.BatchResult) {
	counts := map[pipeline.Status]int{}
	for _, res := range results {
		switch {
		case res.Err != nil:
			counts[pipeline.StatusFailed]++
			fmt.Fprintf(r.out, "%s %s: %v\n", r.styles.Error.Render("failed"), res.Path, res.Err)
		case res.Outcome.Status == pipeline.StatusFailed:
			counts[pipeline.StatusFailed]++
			fmt.Fprintf(r.out, "%s %s: %v\n", r.styles.Error.Render("failed"), res.Path, res.Outcome.Err)
		default:
			counts[res.Outcome.Status]++
			fmt.Fprintf(r.out, "%s %s %s\n",
				r.statusStyle(res.Outcome.Status).Render(string(res.Outcome.Status)),
				res.Path,
				r.styles.Dim.Render(fmt.Sprintf("(%d chunks, $%.4f)",
					res.Outcome.ChunkCount, res.Outcome.CostUSD)))
		}
	}

	fmt.Fprintf(r.out, "\n%s %d stored, %d duplicate, %d gated, %d failed\n",
		r.styles.Header.Render("done:"),
		counts[pipeline.StatusStored], counts[pipeline.StatusDuplicate],
		counts[pipeline.StatusGated], counts[pipeline.StatusFailed])
}

func (r *Renderer) statusStyle(status pipeline.Status) lipgloss.Style {
	switch status {
	case pipeline.StatusStored:
		return r.styles.Success
	case pipeline.StatusGated:
		return r.styles.Warning
	case pipeline.StatusFailed:
		return r.styles.Error
	default:
		return r.styles.Dim
	}
}

// Costs prints today's and the window's spend per model.
func (r *Renderer) Costs(stats ledger.Stats) {
	fmt.Fprintln(r.out, r.styles.Header.Render("llm spend"))
	fmt.Fprintf(r.out, "  %s $%.4f\n", r.styles.Label.Render("today:"), stats.TodayUSD)
	fmt.Fprintf(r.out, "  %s $%.4f over %d days (%d calls)\n",
		r.styles.Label.Render("window:"), stats.WindowUSD, stats.WindowDays, stats.CallCount)
	if stats.BudgetUSD > 0 {
		fmt.Fprintf(r.out, "  %s $%.2f/day\n", r.styles.Label.Render("budget:"), stats.BudgetUSD)
	}
	models := make([]string, 0, len(stats.ByModel))
	for model := range stats.ByModel {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		fmt.Fprintf(r.out, "    %-40s $%.4f\n", model, stats.ByModel[model])
	}
}

// VocabTerms prints the accepted terms of one vocabulary kind.
func (r *Renderer) VocabTerms(kind vocab.Kind, terms []string) {
	fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("%s (%d)", kind, len(terms))))
	for _, t := range terms {
		fmt.Fprintf(r.out, "  %s\n", t)
	}
}

// Suggestions prints pending out-of-vocabulary terms.
func (r *Renderer) Suggestions(suggestions []vocab.Suggestion) {
	if len(suggestions) == 0 {
		fmt.Fprintln(r.out, r.styles.Dim.Render("no pending suggestions"))
		return
	}
	fmt.Fprintln(r.out, r.styles.Header.Render(fmt.Sprintf("%d suggestions", len(suggestions))))
	for _, s := range suggestions {
		fmt.Fprintf(r.out, "  %-10s %-30s %s\n", s.Kind, s.Term,
			r.styles.Dim.Render("from "+shortID(s.SourceDocID)))
	}
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLen {
		return text[:snippetLen] + "…"
	}
	return text
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
