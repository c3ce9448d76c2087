// Package vocab loads controlled vocabularies and records out-of-vocabulary
// suggestions. Accepted term sets are read-mostly and never mutated by the
// enrichment path; unknown terms go to an append-only suggestions log.
package vocab

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

// Kind names a controlled vocabulary.
type Kind string

const (
	KindTopics   Kind = "topics"
	KindProjects Kind = "projects"
	KindPeople   Kind = "people"
	KindPlaces   Kind = "places"
)

// Kinds lists every vocabulary kind in load order.
var Kinds = []Kind{KindTopics, KindProjects, KindPeople, KindPlaces}

// vocabFile is the YAML shape of one vocabulary file: a flat list of
// hierarchical "/"-path terms.
type vocabFile struct {
	Terms []string `yaml:"terms"`
}

// Store holds the accepted term sets for all kinds plus the suggestions
// log. Membership is exact-match on the full hierarchical path.
type Store struct {
	mu    sync.RWMutex
	dir   string
	sets  map[Kind]map[string]struct{}
	order map[Kind][]string

	suggestions *SuggestionLog
}

// Load reads one YAML file per kind from dir. Missing files yield empty
// vocabularies (everything gets demoted to suggestions), not errors.
func Load(dir, suggestionsPath string) (*Store, error) {
	log, err := NewSuggestionLog(suggestionsPath)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:         dir,
		suggestions: log,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every vocabulary file. Called at init and by the watcher;
// never on the per-request path.
func (s *Store) Reload() error {
	sets := make(map[Kind]map[string]struct{}, len(Kinds))
	order := make(map[Kind][]string, len(Kinds))

	for _, kind := range Kinds {
		terms, err := loadKind(s.dir, kind)
		if err != nil {
			return err
		}

		set := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			set[term] = struct{}{}
		}
		sorted := make([]string, 0, len(set))
		for term := range set {
			sorted = append(sorted, term)
		}
		sort.Strings(sorted)

		sets[kind] = set
		order[kind] = sorted
	}

	s.mu.Lock()
	s.sets = sets
	s.order = order
	s.mu.Unlock()

	slog.Debug("vocabulary_loaded",
		slog.String("dir", s.dir),
		slog.Int("topics", len(order[KindTopics])),
		slog.Int("projects", len(order[KindProjects])),
		slog.Int("people", len(order[KindPeople])),
		slog.Int("places", len(order[KindPlaces])))
	return nil
}

// loadKind reads and normalizes one vocabulary file.
func loadKind(dir string, kind Kind) ([]string, error) {
	path := filepath.Join(dir, string(kind)+".yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary %s: %w", path, err)
	}

	var parsed vocabFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary %s: %w", path, err)
	}

	terms := make([]string, 0, len(parsed.Terms))
	for _, t := range parsed.Terms {
		t = NormalizeTerm(t)
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms, nil
}

// NormalizeTerm canonicalizes a term: trimmed, lowercased, single "/"
// separators with no leading or trailing slash.
func NormalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	parts := strings.Split(term, "/")
	cleaned := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}

// IsValid reports exact-match membership of term in the kind's vocabulary.
func (s *Store) IsValid(kind Kind, term string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[kind]
	if !ok {
		return false
	}
	_, ok = set[NormalizeTerm(term)]
	return ok
}

// All returns the kind's terms in deterministic sorted order.
func (s *Store) All(kind Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := s.order[kind]
	out := make([]string, len(terms))
	copy(out, terms)
	return out
}

// Count returns the number of accepted terms for a kind.
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order[kind])
}

// Validate splits the assigned topics, projects, and places of md into
// accepted terms and demotions. Demoted terms move to the suggested_*
// lists and are appended to the suggestions log attributed to docID. The
// accepted sets themselves are never touched.
func (s *Store) Validate(md *store.EnrichedMetadata, docID string) (accepted, demoted int) {
	check := func(kind Kind, assigned []string, suggested *[]string) []string {
		kept := make([]string, 0, len(assigned))
		for _, raw := range assigned {
			term := NormalizeTerm(raw)
			if term == "" {
				continue
			}
			if s.IsValid(kind, term) {
				kept = append(kept, term)
				accepted++
				continue
			}

			demoted++
			*suggested = append(*suggested, term)
			slog.Info("unknown_vocabulary_term",
				slog.String("kind", string(kind)),
				slog.String("term", term),
				slog.String("doc_id", docID))
			if err := s.RecordSuggestion(kind, term, docID); err != nil {
				slog.Warn("suggestion_record_failed",
					slog.String("term", term),
					slog.String("error", err.Error()))
			}
		}
		return kept
	}

	md.Topics = check(KindTopics, md.Topics, &md.SuggestedTopics)
	md.Projects = check(KindProjects, md.Projects, &md.SuggestedProjects)
	md.Places = check(KindPlaces, md.Places, &md.SuggestedPlaces)
	return accepted, demoted
}

// RecordSuggestion appends an out-of-vocabulary term to the suggestions
// log.
func (s *Store) RecordSuggestion(kind Kind, term, sourceDocID string) error {
	return s.suggestions.Append(Suggestion{
		Kind:        string(kind),
		Term:        NormalizeTerm(term),
		SourceDocID: sourceDocID,
	})
}

// Suggestions returns the recorded suggestions, oldest first.
func (s *Store) Suggestions() ([]Suggestion, error) {
	return s.suggestions.List()
}
