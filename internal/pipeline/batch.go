package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	apperr "github.com/dante4567/rag-provider-sub004/internal/errors"
)

// MaxFileBytes caps a single ingested file.
const MaxFileBytes = 10 << 20

// skippedExtensions are binary formats the text pipeline cannot read.
var skippedExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".exe": {}, ".bin": {},
}

// BatchResult pairs a path with its ingestion outcome.
type BatchResult struct {
	Path    string
	Outcome *Outcome
	Err     error
}

// IngestBatch ingests every file under the given paths (files or
// directories, walked recursively). Concurrency matches the pipeline's
// in-flight bound so batch members never trip the busy guard. Results
// come back sorted by path.
func (p *Pipeline) IngestBatch(ctx context.Context, paths []string, opts ...Option) ([]*BatchResult, error) {
	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	results := make([]*BatchResult, 0, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)

	for _, path := range files {
		g.Go(func() error {
			res := p.ingestFile(gctx, path, opts...)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path string, opts ...Option) *BatchResult {
	info, err := os.Stat(path)
	if err != nil {
		return &BatchResult{Path: path, Err: apperr.New(apperr.ErrCodeFileNotFound, "cannot stat file", err)}
	}
	if info.Size() > MaxFileBytes {
		return &BatchResult{Path: path, Err: apperr.New(apperr.ErrCodeFileTooLarge, "file exceeds size limit", nil).
			WithDetail("path", path)}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return &BatchResult{Path: path, Err: apperr.New(apperr.ErrCodeFileNotFound, "cannot read file", err)}
	}

	outcome, err := p.Ingest(ctx, filepath.Base(path), path, string(content), opts...)
	return &BatchResult{Path: path, Outcome: outcome, Err: err}
}

// collectFiles expands files and directories into a sorted file list,
// skipping hidden entries and known binary extensions.
func collectFiles(paths []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(path string) {
		if _, dup := seen[path]; dup {
			return
		}
		if _, skip := skippedExtensions[strings.ToLower(filepath.Ext(path))]; skip {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, apperr.New(apperr.ErrCodeFileNotFound, "path does not exist", err).
				WithDetail("path", root)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if strings.HasPrefix(name, ".") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, apperr.StoreError("directory walk failed", err)
		}
	}

	sort.Strings(files)
	return files, nil
}
