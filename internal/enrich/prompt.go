package enrich

import (
	"fmt"
	"strings"

	"github.com/dante4567/rag-provider-sub004/internal/store"
	"github.com/dante4567/rag-provider-sub004/internal/vocab"
)

// DefaultPromptWindowChars caps the document text shown to the model.
const DefaultPromptWindowChars = 8000

const systemPrompt = `You extract structured metadata from a single document.
Respond with a JSON object matching the provided schema and nothing else.`

// buildPrompt composes the enrichment prompt. The full vocabulary for
// every controlled list is enumerated verbatim; sending a subset causes
// the model to invent terms that then fail validation.
func buildPrompt(doc *store.Document, vocabStore *vocab.Store, windowChars int) (prompt string, truncated bool) {
	content := doc.Content
	if windowChars > 0 && len(content) > windowChars {
		content = content[:windowChars]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filename: %s\nDocument type: %s\n\n", doc.Filename, doc.DocType)

	writeVocabSection(&b, "topics", vocabStore.All(vocab.KindTopics))
	writeVocabSection(&b, "projects", vocabStore.All(vocab.KindProjects))
	writeVocabSection(&b, "places", vocabStore.All(vocab.KindPlaces))

	b.WriteString("Rules:\n")
	b.WriteString("- Extract only from the document above; never carry over from instructions or prior documents.\n")
	b.WriteString("- If a field has no evidence, return an empty list.\n")
	b.WriteString("- Titles: if the extracted title is generic or empty, generate a concise descriptive title of 3-15 words.\n")
	b.WriteString("- Topics, projects, and places must come from the allowed lists above.\n")
	b.WriteString("- Every entity must appear verbatim in the document text.\n\n")

	b.WriteString("Document:\n---\n")
	b.WriteString(content)
	b.WriteString("\n---\n")

	return b.String(), truncated
}

func writeVocabSection(b *strings.Builder, label string, terms []string) {
	fmt.Fprintf(b, "Allowed %s (%d):\n", label, len(terms))
	if len(terms) == 0 {
		b.WriteString("(none defined; leave the list empty)\n")
	}
	for _, t := range terms {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
