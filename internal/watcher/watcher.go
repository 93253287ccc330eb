// Package watcher keeps project directories indexed: it watches them with fsnotify, debounces
// bursts of writes, and feeds changed files to the indexer under the root's project id.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// FileIndexer is the indexing path watched files go through.
type FileIndexer interface {
	IndexFile(ctx context.Context, path string, allowedExts []string, projectID string) error
	RemoveFile(ctx context.Context, path string) error
}

// Root is a watched directory and the project its files belong to.
type Root struct {
	Path      string `json:"path"`
	ProjectID string `json:"project_id,omitempty"`
}

// Watcher watches root directories and re-indexes files as they change.
type Watcher struct {
	indexer    FileIndexer
	extensions []string
	recursive  bool
	debounce   time.Duration

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	roots   []Root
	watched map[string][]string // root -> directories registered with fsnotify
	pending map[string]*time.Timer
	ctx     context.Context
	started bool

	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger // optional; when set, logs debug events
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is re-indexed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. extensions filter which files are indexed (empty = all).
func New(indexer FileIndexer, roots []Root, extensions []string, recursive bool, opts ...Option) *Watcher {
	w := &Watcher{
		indexer:    indexer,
		extensions: extensions,
		recursive:  recursive,
		debounce:   defaultDebounce,
		roots:      cleanRoots(roots),
		watched:    make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func cleanRoots(roots []Root) []Root {
	out := make([]Root, 0, len(roots))
	for _, r := range roots {
		if abs, err := filepath.Abs(r.Path); err == nil {
			r.Path = abs
		}
		r.Path = filepath.Clean(r.Path)
		out = append(out, r)
	}
	return out
}

// Start registers the roots with fsnotify and processes events until ctx is cancelled or
// Stop is called. Missing roots are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.ctx = ctx
	w.started = true
	for _, root := range w.roots {
		if err := w.watchRootLocked(root.Path); err != nil {
			_ = w.fsw.Close()
			w.fsw = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	if w.logger != nil {
		w.logger.Debug("watcher started", zap.Int("roots", len(w.roots)), zap.Strings("extensions", w.extensions),
			zap.Bool("recursive", w.recursive))
	}
	events, errs := fsw.Events, fsw.Errors
	w.mu.Unlock()
	go w.run(ctx, events, errs)
	return nil
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	root, ok := w.rootFor(ev.Name)
	if !ok {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.watchNewDirectory(ev.Name, root)
			return
		}
		if matchExtension(ev.Name, w.extensions) {
			w.schedule(ev.Name, root.ProjectID)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
		if matchExtension(ev.Name, w.extensions) {
			w.remove(ev.Name)
		}
	}
}

// rootFor returns the innermost root containing path.
func (w *Watcher) rootFor(path string) (Root, bool) {
	clean := filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	var best Root
	found := false
	for _, r := range w.roots {
		if (r.Path == clean || inDir(r.Path, clean)) && len(r.Path) >= len(best.Path) {
			best, found = r, true
		}
	}
	return best, found
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// watchNewDirectory registers a directory created under root and indexes what it already holds.
func (w *Watcher) watchNewDirectory(dir string, root Root) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	if w.recursive {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			w.addLocked(root.Path, path)
			return nil
		})
	} else {
		w.addLocked(root.Path, dir)
	}
	w.mu.Unlock()
	w.sync(dir, root.ProjectID)
}

func (w *Watcher) addLocked(root, dir string) {
	if err := w.fsw.Add(dir); err != nil {
		if w.logger != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		}
		return
	}
	w.watched[root] = append(w.watched[root], dir)
}

// schedule indexes path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path, projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.index(path, projectID)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return context.Background()
	}
	return w.ctx
}

func (w *Watcher) index(path, projectID string) {
	ctx := w.context()
	if ctx.Err() != nil {
		return
	}
	if err := w.indexer.IndexFile(ctx, path, w.extensions, projectID); err != nil && w.logger != nil {
		w.logger.Warn("watcher failed to index file", zap.String("path", path), zap.Error(err))
	} else if w.logger != nil {
		w.logger.Debug("watcher indexed file", zap.String("path", path), zap.String("project_id", projectID))
	}
}

func (w *Watcher) remove(path string) {
	if err := w.indexer.RemoveFile(w.context(), path); err != nil && w.logger != nil {
		w.logger.Warn("watcher failed to remove file", zap.String("path", path), zap.Error(err))
	}
}

// AddDirectory starts watching root for projectID and optionally indexes the files it holds.
func (w *Watcher) AddDirectory(path, projectID string, syncExisting bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return errors.New("watcher not started")
	}
	for _, r := range w.roots {
		if r.Path == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.watchRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, Root{Path: abs, ProjectID: projectID})
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Debug("watcher directory added", zap.String("path", abs), zap.String("project_id", projectID))
	}
	if syncExisting {
		go w.sync(abs, projectID)
	}
	return nil
}

func (w *Watcher) watchRootLocked(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.watched[root] = []string{root}
		return nil
	}
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.watched[root] = dirs
	return nil
}

// sync indexes every matching file below dir.
func (w *Watcher) sync(dir, projectID string) {
	if w.logger != nil {
		w.logger.Debug("watcher syncing directory", zap.String("path", dir))
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.index(path, projectID)
		}
		return nil
	})
}

// RemoveDirectory stops watching root. Indexed documents are kept.
func (w *Watcher) RemoveDirectory(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, r := range w.roots {
		if r.Path != abs {
			continue
		}
		if w.fsw != nil {
			for _, dir := range w.watched[abs] {
				_ = w.fsw.Remove(dir)
			}
		}
		delete(w.watched, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		if w.logger != nil {
			w.logger.Debug("watcher directory removed", zap.String("path", abs))
		}
		return nil
	}
	return nil
}

// Roots returns a copy of the watched roots.
func (w *Watcher) Roots() []Root {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Root(nil), w.roots...)
}

// SyncExistingFiles indexes the files already present in every root. Call it after Start.
func (w *Watcher) SyncExistingFiles() {
	for _, r := range w.Roots() {
		w.sync(r.Path, r.ProjectID)
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
