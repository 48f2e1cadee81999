package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wethinkt/go-tailt/internal/tuilog"
)

// Watcher monitors transcript roots for JSONL changes and drives the
// ingester. Each root is expected to hold one directory per project
// with session files inside.
type Watcher struct {
	roots    []string
	ingester *Ingester
	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}

	timerMu sync.Mutex
	timers  map[string]*time.Timer

	// inFlight tracks files currently being ingested. If a file is
	// in-flight and another change comes in, we mark it dirty so it
	// re-runs after the current ingest finishes.
	inFlightMu sync.Mutex
	inFlight   map[string]bool
	dirty      map[string]bool
}

// DefaultRoots returns the transcript directories that exist on this
// machine. Currently that is ~/.claude/projects, where agent sessions
// are written one project directory per workspace.
func DefaultRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var roots []string
	dir := filepath.Join(home, ".claude", "projects")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		roots = append(roots, dir)
	}
	return roots
}

// NewWatcher creates a Watcher over the given roots.
// A zero debounce defaults to 2 seconds.
func NewWatcher(roots []string, ingester *Ingester, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	return &Watcher{
		roots:    roots,
		ingester: ingester,
		debounce: debounce,
		watcher:  fw,
		done:     make(chan struct{}),
		timers:   make(map[string]*time.Timer),
		inFlight: make(map[string]bool),
		dirty:    make(map[string]bool),
	}, nil
}

// Start performs the initial scan and begins monitoring for changes.
// Returns the number of session files ingested by the scan.
func (w *Watcher) Start(ctx context.Context) (int, error) {
	ingested := 0
	for _, root := range w.roots {
		n, err := w.scanRoot(ctx, root)
		if err != nil {
			tuilog.Log.Warn("watcher: failed to scan root", "root", root, "error", err)
			continue
		}
		ingested += n
	}

	go w.watchLoop(ctx)
	return ingested, nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)

	w.timerMu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

// scanRoot walks one root, watching project directories and ingesting
// every session file found.
func (w *Watcher) scanRoot(ctx context.Context, root string) (int, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		if err == nil {
			return 0, nil
		}
		return 0, err
	}

	if err := w.watcher.Add(root); err != nil {
		tuilog.Log.Warn("watcher: failed to watch root", "root", root, "error", err)
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if watchErr := w.watcher.Add(path); watchErr != nil {
				tuilog.Log.Warn("watcher: failed to watch directory", "dir", path, "error", watchErr)
			}
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		n, ingErr := w.ingester.IngestFile(ctx, path)
		if ingErr != nil {
			tuilog.Log.Warn("watcher: failed to ingest session", "path", sanitizePathForLogging(path), "error", ingErr)
			return nil
		}
		if n > 0 {
			count++
		}
		return nil
	})
	return count, err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			tuilog.Log.Warn("watcher: fsnotify error", "error", err)

		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	// New project directories join the watch set as they appear.
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(event.Name), ".") {
				if err := w.watcher.Add(event.Name); err != nil {
					tuilog.Log.Warn("watcher: failed to watch new directory", "dir", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}

	if event.Op&fsnotify.Remove == fsnotify.Remove || event.Op&fsnotify.Rename == fsnotify.Rename {
		w.ingester.Forget(event.Name)
		return
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Debounce ingestion so rapid appends trigger one read.
	w.timerMu.Lock()
	if timer, ok := w.timers[event.Name]; ok {
		timer.Stop()
	}
	w.timers[event.Name] = time.AfterFunc(w.debounce, func() {
		w.handleFileChange(ctx, event.Name)
	})
	w.timerMu.Unlock()
}

func (w *Watcher) handleFileChange(ctx context.Context, path string) {
	// Serialize ingestion per file. If already in-flight, mark dirty so
	// it re-runs after the current ingest finishes.
	w.inFlightMu.Lock()
	if w.inFlight[path] {
		w.dirty[path] = true
		w.inFlightMu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.inFlightMu.Unlock()

	w.ingestChanged(ctx, path)
}

// ingestChanged runs ingestion for the file, then re-runs if it was
// modified again during processing.
func (w *Watcher) ingestChanged(ctx context.Context, path string) {
	defer func() {
		w.inFlightMu.Lock()
		delete(w.inFlight, path)
		w.inFlightMu.Unlock()
	}()

	for {
		n, err := w.ingester.IngestFile(ctx, path)
		if err != nil {
			tuilog.Log.Error("watcher: failed to ingest changed file", "path", sanitizePathForLogging(path), "error", err)
		} else if n > 0 {
			tuilog.Log.Info("watcher: ingested changed file", "path", sanitizePathForLogging(path), "entries", n)
		}

		w.inFlightMu.Lock()
		if !w.dirty[path] {
			w.inFlightMu.Unlock()
			return
		}
		delete(w.dirty, path)
		w.inFlightMu.Unlock()
	}
}

// sanitizePathForLogging truncates long paths for log output.
func sanitizePathForLogging(path string) string {
	if len(path) > 100 {
		return path[:50] + "..." + path[len(path)-50:]
	}
	return path
}
