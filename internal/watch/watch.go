// Package watch feeds file-system changes under a workspace into a
// recording session using fsnotify.
package watch

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of writes to one file.
const DefaultDebounce = 250 * time.Millisecond

// Handler receives file events. recorder.Session implements it.
type Handler interface {
	FileCreated(path string)
	FileDeleted(path string)
	FileSaving(path, text string)
}

// PathFilter answers whether a workspace-relative path is excluded.
type PathFilter interface {
	IsIgnored(relPath string) bool
}

// Options configures a Watcher.
type Options struct {
	// Filter skips ignored paths before any file is read. Nil watches all.
	Filter PathFilter
	// Refresh is called when an ignore file in the root changes.
	Refresh func()
	// IgnoreFiles names the root files whose change triggers Refresh.
	IgnoreFiles []string
	Debounce    time.Duration
	Logger      *zap.Logger
}

// Watcher watches a directory tree recursively. New directories are added
// as they appear.
type Watcher struct {
	root    string
	handler Handler
	opts    Options
	logger  *zap.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	// removed holds deletions waiting out the debounce window. A file
	// recreated within it was replaced by a safe-write save.
	removed map[string]*time.Timer
	closed  bool
}

// New starts watching root. Events are delivered once Run is called.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.IgnoreFiles == nil {
		opts.IgnoreFiles = []string{".gitignore", ".oprecignore"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    abs,
		handler: handler,
		opts:    opts,
		logger:  logger.With(zap.String("mod", "watch")),
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		removed: make(map[string]*time.Timer),
	}
	if err := w.addTree(abs, false); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run delivers events until ctx is cancelled. It closes the watcher on
// return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching and cancels pending content notifications.
// Deletions still in their debounce window are reported.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	var deleted []string
	for path, t := range w.removed {
		// A timer that already fired reports its own deletion.
		if t.Stop() {
			deleted = append(deleted, path)
			delete(w.removed, path)
		}
	}
	w.mu.Unlock()

	for _, path := range deleted {
		w.handler.FileDeleted(path)
	}
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	rel, ok := w.rel(path)
	if !ok {
		return
	}
	if w.isIgnoreFile(rel) && w.opts.Refresh != nil {
		w.logger.Debug("ignore file changed, recompiling rules", zap.String("path", rel))
		w.opts.Refresh()
	}
	if w.ignored(rel) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			// Files may land in the new directory before it is watched.
			if err := w.addTree(path, true); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", rel), zap.Error(err))
			}
			return
		}
		if w.restore(path) {
			w.logger.Debug("file replaced in place", zap.String("path", rel))
			w.schedule(path)
			return
		}
		w.handler.FileCreated(path)
		if info.Size() > 0 {
			w.schedule(path)
		}

	case event.Has(fsnotify.Write):
		w.schedule(path)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(path)
		w.remove(path)
	}
}

// remove reports the deletion of path once the debounce window passes
// without the file coming back.
func (w *Watcher) remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.removed[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.removed[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		_, ok := w.removed[path]
		delete(w.removed, path)
		w.mu.Unlock()
		if ok {
			w.handler.FileDeleted(path)
		}
	})
}

// restore cancels a pending deletion of path and reports whether there
// was one.
func (w *Watcher) restore(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.removed[path]
	if !ok {
		return false
	}
	t.Stop()
	delete(w.removed, path)
	return true
}

// schedule (re)arms the debounce timer of path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Debounce, func() { w.flush(path) })
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("read changed file", zap.String("path", path), zap.Error(err))
		}
		return
	}
	if bytes.IndexByte(data, 0) >= 0 {
		w.logger.Debug("skipping binary file", zap.String("path", path))
		return
	}
	w.handler.FileSaving(path, string(data))
}

// addTree watches dir and every directory below it that is not ignored.
// With report set, files found on the way are reported as created.
func (w *Watcher) addTree(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		rel, ok := w.rel(path)
		if ok && w.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if report && d.Type().IsRegular() {
			w.handler.FileCreated(path)
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	if rel == ".git" {
		return true
	}
	return w.opts.Filter != nil && w.opts.Filter.IsIgnored(rel)
}

func (w *Watcher) isIgnoreFile(rel string) bool {
	for _, name := range w.opts.IgnoreFiles {
		if rel == name {
			return true
		}
	}
	return false
}

// rel returns path relative to the root; the root itself is not relative.
func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
