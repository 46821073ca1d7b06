// Package classify decides how a file content change is captured: as a
// unified diff against the last tracked revision, or as the full text.
package classify

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// FileHandle identifies a mutated file.
type FileHandle struct {
	Path    string // absolute path on disk
	RelPath string // slash-separated, relative to the workspace root
}

// DiffProvider produces a diff for a file against its last tracked
// revision. It must call done at most once, from any goroutine; ok=false
// means no diff is available (untracked file, no repository, or error).
type DiffProvider interface {
	FileDiff(ctx context.Context, file FileHandle, current string, done func(diff string, ok bool))
}

// DefaultTimeout bounds how long a classification waits for the provider.
const DefaultTimeout = 10 * time.Second

// Classifier turns content changes into FILE_DIFF or FILE_CONTENT entries.
// Each Classify call runs on its own goroutine so the caller never waits on
// the provider.
type Classifier struct {
	Provider DiffProvider
	Timeout  time.Duration
	Logger   *zap.Logger
	Now      func() time.Time

	wg sync.WaitGroup
}

type result struct {
	diff string
	ok   bool
}

// Classify captures one content change of file whose current text is text.
// emit receives exactly one entry, from a background goroutine.
func (c *Classifier) Classify(ctx context.Context, file FileHandle, text string, emit func(oplog.Entry)) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	at := now()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		emit(c.decide(ctx, file, text, at))
	}()
}

// Wait blocks until every in-flight classification has emitted.
func (c *Classifier) Wait() {
	c.wg.Wait()
}

func (c *Classifier) decide(ctx context.Context, file FileHandle, text string, at time.Time) oplog.Entry {
	logger := c.logger()
	if c.Provider == nil {
		return oplog.NewFileContent(at, file.RelPath, text)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan result, 1)
	var once sync.Once
	done := func(diff string, ok bool) {
		once.Do(func() { results <- result{diff: diff, ok: ok} })
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("diff provider panicked", zap.String("path", file.RelPath), zap.Any("panic", r))
				done("", false)
			}
		}()
		c.Provider.FileDiff(ctx, file, text, done)
	}()

	// The fallback is terminal: once content is chosen a late diff is dropped.
	select {
	case r := <-results:
		if r.ok && strings.TrimSpace(r.diff) != "" {
			logger.Debug("captured diff", zap.String("path", file.RelPath))
			return oplog.NewFileDiff(at, file.RelPath, r.diff)
		}
		logger.Debug("no diff available, capturing full content", zap.String("path", file.RelPath))
	case <-ctx.Done():
		logger.Warn("diff provider timed out, capturing full content", zap.String("path", file.RelPath))
	}
	return oplog.NewFileContent(at, file.RelPath, text)
}

func (c *Classifier) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger.With(zap.String("mod", "classify"))
}
