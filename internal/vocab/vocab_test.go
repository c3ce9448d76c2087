package vocab

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dante4567/rag-provider-sub004/internal/store"
)

func writeVocabFile(t *testing.T, dir string, kind Kind, terms ...string) {
	t.Helper()
	content := "terms:\n"
	for _, term := range terms {
		content += "  - " + term + "\n"
	}
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, string(kind)+".yaml"), []byte(content), 0o644))
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	writeVocabFile(t, dir, KindTopics, "technology/ai", "school/admin", "health")
	writeVocabFile(t, dir, KindProjects, "house-move-2026")
	writeVocabFile(t, dir, KindPlaces, "berlin")

	s, err := Load(dir, filepath.Join(dir, "suggestions.jsonl"))
	require.NoError(t, err)
	return s, dir
}

func TestStore_IsValidExactPathMatch(t *testing.T) {
	s, _ := newTestStore(t)

	assert.True(t, s.IsValid(KindTopics, "technology/ai"))
	assert.True(t, s.IsValid(KindTopics, "  Technology/AI "), "membership is case-insensitive")
	assert.False(t, s.IsValid(KindTopics, "technology"), "parent path alone is not a member")
	assert.False(t, s.IsValid(KindTopics, "technology/ai/llm"))
	assert.False(t, s.IsValid(KindPeople, "anyone"), "missing file means empty vocabulary")
}

func TestStore_AllIsSortedAndCopied(t *testing.T) {
	s, _ := newTestStore(t)

	all := s.All(KindTopics)
	assert.Equal(t, []string{"health", "school/admin", "technology/ai"}, all)

	all[0] = "mutated"
	assert.Equal(t, "health", s.All(KindTopics)[0])
}

func TestStore_ValidateDemotesUnknownTerms(t *testing.T) {
	s, _ := newTestStore(t)

	md := &store.EnrichedMetadata{
		Topics:   []string{"technology/ai", "quantum-computing"},
		Projects: []string{"house-move-2026"},
		Places:   []string{"atlantis"},
	}

	accepted, demoted := s.Validate(md, "doc123")

	assert.Equal(t, 2, accepted)
	assert.Equal(t, 2, demoted)
	assert.Equal(t, []string{"technology/ai"}, md.Topics)
	assert.Equal(t, []string{"quantum-computing"}, md.SuggestedTopics)
	assert.Equal(t, []string{"house-move-2026"}, md.Projects)
	assert.Equal(t, []string{"atlantis"}, md.SuggestedPlaces)

	// Demoted terms land in the suggestions log with attribution.
	sugs, err := s.Suggestions()
	require.NoError(t, err)
	require.Len(t, sugs, 2)
	assert.Equal(t, "quantum-computing", sugs[0].Term)
	assert.Equal(t, "topics", sugs[0].Kind)
	assert.Equal(t, "doc123", sugs[0].SourceDocID)
	assert.False(t, sugs[0].SeenAt.IsZero())
}

func TestStore_ValidateNeverGrowsAcceptedSet(t *testing.T) {
	s, _ := newTestStore(t)

	md := &store.EnrichedMetadata{Topics: []string{"brand-new-topic"}}
	s.Validate(md, "doc1")

	assert.False(t, s.IsValid(KindTopics, "brand-new-topic"))

	// A second document proposing the same term is demoted again.
	md2 := &store.EnrichedMetadata{Topics: []string{"brand-new-topic"}}
	_, demoted := s.Validate(md2, "doc2")
	assert.Equal(t, 1, demoted)
}

func TestStore_ReloadPicksUpEdits(t *testing.T) {
	s, dir := newTestStore(t)

	require.False(t, s.IsValid(KindTopics, "finance/tax"))
	writeVocabFile(t, dir, KindTopics, "finance/tax")
	require.NoError(t, s.Reload())

	assert.True(t, s.IsValid(KindTopics, "finance/tax"))
	assert.False(t, s.IsValid(KindTopics, "technology/ai"), "removed terms drop out")
}

func TestNormalizeTerm(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Technology/AI", "technology/ai"},
		{"  school / admin ", "school/admin"},
		{"/leading/trailing/", "leading/trailing"},
		{"   ", ""},
		{"///", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTerm(tt.in), "input %q", tt.in)
	}
}

func TestSuggestionLog_AppendAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "suggestions.jsonl")
	log, err := NewSuggestionLog(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(Suggestion{Kind: "topics", Term: "a", SourceDocID: "d1"}))
	require.NoError(t, log.Append(Suggestion{Kind: "places", Term: "b", SourceDocID: "d2"}))

	sugs, err := log.List()
	require.NoError(t, err)
	require.Len(t, sugs, 2)
	assert.Equal(t, "a", sugs[0].Term)
	assert.Equal(t, "b", sugs[1].Term)
}

func TestSuggestionLog_ListMissingFile(t *testing.T) {
	log, err := NewSuggestionLog(filepath.Join(t.TempDir(), "none.jsonl"))
	require.NoError(t, err)

	sugs, err := log.List()
	require.NoError(t, err)
	assert.Empty(t, sugs)
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	s, dir := newTestStore(t)

	w, err := Watch(s)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	writeVocabFile(t, dir, KindTopics, "watched/topic")

	require.Eventually(t, func() bool {
		return s.IsValid(KindTopics, "watched/topic")
	}, 5*time.Second, 50*time.Millisecond)
}
