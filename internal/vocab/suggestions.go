package vocab

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Suggestion is one out-of-vocabulary term proposed by enrichment. Review
// and promotion into the accepted YAML files is a human step.
type Suggestion struct {
	Kind        string    `json:"kind"`
	Term        string    `json:"term"`
	SourceDocID string    `json:"source_doc_id"`
	SeenAt      time.Time `json:"seen_at"`
}

// SuggestionLog is an append-only JSONL file guarded by an advisory file
// lock so concurrent pipeline runs interleave whole lines, never partial
// ones.
type SuggestionLog struct {
	path string
	lock *flock.Flock
}

// NewSuggestionLog prepares the log at path, creating parent directories.
func NewSuggestionLog(path string) (*SuggestionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create suggestions dir: %w", err)
	}
	return &SuggestionLog{
		path: path,
		lock: flock.New(path + ".lock"),
	}, nil
}

// Append writes one suggestion as a JSON line. SeenAt is stamped here if
// the caller left it zero.
func (l *SuggestionLog) Append(s Suggestion) error {
	if s.SeenAt.IsZero() {
		s.SeenAt = time.Now().UTC()
	}

	line, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode suggestion: %w", err)
	}

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock suggestions log: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open suggestions log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append suggestion: %w", err)
	}
	return nil
}

// List reads all recorded suggestions, oldest first. Malformed lines are
// skipped rather than failing the whole read.
func (l *SuggestionLog) List() ([]Suggestion, error) {
	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("failed to lock suggestions log: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open suggestions log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Suggestion
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var s Suggestion
		if err := json.Unmarshal(scanner.Bytes(), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read suggestions log: %w", err)
	}
	return out, nil
}
