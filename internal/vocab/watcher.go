package vocab

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses editor write bursts (write + chmod + rename)
// into a single reload.
const watchDebounce = 500 * time.Millisecond

// Watcher reloads the vocabulary store when its YAML files change on
// disk. In-flight enrichment keeps whatever snapshot it already read.
type Watcher struct {
	store   *Store
	fsw     *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

// Watch starts watching the store's vocabulary directory. The caller must
// Stop the watcher during shutdown.
func Watch(store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(store.dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:   store,
		fsw:     fsw,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.stopped)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isVocabFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("vocabulary_watch_error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.store.Reload(); err != nil {
				// Keep serving the previous snapshot on a bad edit.
				slog.Warn("vocabulary_reload_failed", slog.String("error", err.Error()))
				continue
			}
			slog.Info("vocabulary_reloaded", slog.String("dir", w.store.dir))
		}
	}
}

// isVocabFile reports whether a changed path is one of the vocabulary
// YAML files, ignoring editor temp files and the suggestions log.
func isVocabFile(path string) bool {
	base := filepath.Base(path)
	for _, kind := range Kinds {
		if base == string(kind)+".yaml" {
			return true
		}
	}
	return strings.HasSuffix(base, ".yaml") && !strings.HasPrefix(base, ".")
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsw.Close()
	<-w.stopped
	return err
}
