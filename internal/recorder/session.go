// Package recorder holds the recording session: the armed/disarmed state
// machine that routes file events and detected commands into one ordered
// operation log and persists it on stop.
package recorder

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/classify"
	"github.com/fakeyudi/oprec/internal/detect"
	"github.com/fakeyudi/oprec/internal/oplog"
)

// PathFilter answers whether a workspace-relative path is excluded.
type PathFilter interface {
	IsIgnored(relPath string) bool
}

// Options configures a Session. Only Root is required.
type Options struct {
	// Root is the workspace directory; operation.json is written there.
	Root        string
	Filter      PathFilter
	Diff        classify.DiffProvider
	DiffTimeout time.Duration
	Strategies  []detect.Strategy
	// Exclude lists files never recorded besides operation.json, such as
	// the log file when it lives inside the workspace.
	Exclude []string
	Logger  *zap.Logger
	Now     func() time.Time
}

// Session records the operations of one workspace. All methods are safe
// for concurrent use.
type Session struct {
	root       string
	filter     PathFilter
	exclude    map[string]bool
	classifier *classify.Classifier
	detectors  *detect.Ensemble
	logger     *zap.Logger
	now        func() time.Time

	// mu guards armed and run. AddEntry holds it for reading while
	// appending, so once Stop has flipped armed no further entry can land in
	// the log. run counts Start and Stop calls; background work tagged with
	// an older run is discarded.
	mu     sync.RWMutex
	armed  bool
	run    uint64
	cancel context.CancelFunc
	log    oplog.Log
}

var _ detect.Sink = (*Session)(nil)

// New constructs an idle session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	root := opts.Root
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s := &Session{
		root:    root,
		filter:  opts.Filter,
		exclude: map[string]bool{oplog.FileName: true},
		classifier: &classify.Classifier{
			Provider: opts.Diff,
			Timeout:  opts.DiffTimeout,
			Logger:   logger,
			Now:      now,
		},
		detectors: detect.NewEnsemble(logger, opts.Strategies...),
		logger:    logger.With(zap.String("mod", "recorder")),
		now:       now,
	}
	for _, p := range opts.Exclude {
		if p == "" {
			continue
		}
		if rel, ok := s.relative(p); ok {
			s.exclude[rel] = true
		}
	}
	return s
}

// Root returns the absolute workspace root.
func (s *Session) Root() string { return s.root }

// Start clears the log and arms the session and its detectors. Starting an
// active session restarts it: unsaved entries are discarded.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.logger.Warn("restarting an active session, discarding unsaved entries", zap.Int("entries", s.log.Len()))
		s.cancel()
	}
	s.log.Reset()
	s.run++
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.armed = true
	s.mu.Unlock()

	running := s.detectors.Start(runCtx, s)
	s.logger.Info("recording started", zap.String("root", s.root), zap.Strings("detectors", running))
}

// Stop disarms the session and persists the log. An empty log, or a
// session that was not recording, writes nothing.
func (s *Session) Stop() PersistResult {
	s.mu.Lock()
	wasArmed := s.armed
	s.armed = false
	s.run++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if !wasArmed {
		return PersistResult{Status: NoOp}
	}
	cancel()
	if err := s.detectors.Stop(); err != nil {
		s.logger.Warn("detectors did not stop cleanly", zap.Error(err))
	}

	count := s.log.Len()
	if count == 0 {
		s.logger.Info("recording stopped, nothing to save")
		return PersistResult{Status: NoOp}
	}

	data, err := s.log.Serialize()
	if err != nil {
		s.logger.Error("serialize operation log", zap.Error(err))
		return PersistResult{Status: SaveFailed, Count: count, Err: err}
	}
	path, err := oplog.Persist(s.root, data)
	if err != nil {
		s.logger.Error("persist operation log", zap.Error(err))
		return PersistResult{Status: SaveFailed, Path: path, Count: count, Err: err}
	}
	s.logger.Info("recording saved", zap.String("path", path), zap.Int("entries", count))
	return PersistResult{Status: Saved, Path: path, Count: count}
}

// AddEntry appends e while armed and drops it otherwise.
func (s *Session) AddEntry(e oplog.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.armed {
		s.logger.Debug("discarding entry, not recording", zap.String("type", string(e.Kind)))
		return
	}
	s.log.Append(e)
}

// addEntryFrom appends e only if the session is still in run.
func (s *Session) addEntryFrom(run uint64, e oplog.Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.armed || s.run != run {
		s.logger.Debug("discarding entry from an earlier run", zap.String("type", string(e.Kind)), zap.String("path", e.Path))
		return
	}
	s.log.Append(e)
}

// AddCommand records a command typed or reported by the user. Output is
// sanitized like any detected output.
func (s *Session) AddCommand(command, output string) {
	s.AddEntry(oplog.NewCommand(s.now(), command, output))
}

// IsRecording reports whether the session is armed.
func (s *Session) IsRecording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.armed
}

// EntryCount returns the number of entries in the current log.
func (s *Session) EntryCount() int {
	return s.log.Len()
}

// Entries returns a copy of the current log.
func (s *Session) Entries() []oplog.Entry {
	return s.log.Snapshot()
}

// FileCreated records the creation of path.
func (s *Session) FileCreated(path string) {
	if rel, ok := s.relevant(path); ok {
		s.AddEntry(oplog.NewFileCreate(s.now(), rel))
	}
}

// FileDeleted records the deletion of path.
func (s *Session) FileDeleted(path string) {
	if rel, ok := s.relevant(path); ok {
		s.AddEntry(oplog.NewFileDelete(s.now(), rel))
	}
}

// FileSaving records a content change of path whose new text is text. The
// diff lookup runs in the background; the entry lands when it completes.
func (s *Session) FileSaving(path, text string) {
	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()
	rel, ok := s.relevant(path)
	if !ok {
		return
	}
	// Bounded by the classifier timeout; a result arriving after Stop or a
	// restart is dropped.
	s.classifier.Classify(context.Background(), classify.FileHandle{Path: s.abs(path), RelPath: rel}, text, func(e oplog.Entry) {
		s.addEntryFrom(run, e)
	})
}

// Wait blocks until background classifications have delivered their entries.
func (s *Session) Wait() {
	s.classifier.Wait()
}

// relevant maps path to its workspace-relative form and reports whether
// it should be recorded.
func (s *Session) relevant(path string) (string, bool) {
	if !s.IsRecording() {
		return "", false
	}
	rel, ok := s.relative(path)
	if !ok {
		s.logger.Debug("path outside workspace", zap.String("path", path))
		return "", false
	}
	if s.exclude[rel] {
		return "", false
	}
	if s.filter != nil && s.filter.IsIgnored(rel) {
		s.logger.Debug("ignored path", zap.String("path", rel))
		return "", false
	}
	return rel, true
}

func (s *Session) relative(path string) (string, bool) {
	if s.root == "" {
		return "", false
	}
	rel, err := filepath.Rel(s.root, s.abs(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Session) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}
