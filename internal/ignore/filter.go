package ignore

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"
)

// Source supplies the raw lines to compile. A missing ignore file is not an
// error: implementations return no lines.
type Source interface {
	Lines() ([]string, error)
}

// FileSource reads ignore lines from a list of files plus extra configured
// patterns. Files that do not exist are skipped.
type FileSource struct {
	Paths []string
	Extra []string
}

// WorkspaceSource returns the FileSource used for a workspace root: the
// root .gitignore and .oprecignore, plus the configured patterns.
func WorkspaceSource(root string, extra []string) *FileSource {
	return &FileSource{
		Paths: []string{
			filepath.Join(root, ".gitignore"),
			filepath.Join(root, ".oprecignore"),
		},
		Extra: extra,
	}
}

// Lines implements Source.
func (s *FileSource) Lines() ([]string, error) {
	lines := make([]string, len(s.Extra))
	copy(lines, s.Extra)

	for _, p := range s.Paths {
		extra, err := readPatternFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return lines, err
		}
		lines = append(lines, extra...)
	}
	return lines, nil
}

// readPatternFile returns every line of an ignore file; Compile drops
// comments and blanks.
func readPatternFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// Filter holds the current RuleSet for a workspace. The set is replaced
// wholesale by Refresh and never patched in place, so readers need no lock.
type Filter struct {
	source Source
	logger *zap.Logger
	rules  atomic.Pointer[RuleSet]
}

// NewFilter compiles source once and returns the filter.
func NewFilter(source Source, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{source: source, logger: logger.With(zap.String("mod", "ignore"))}
	f.Refresh()
	return f
}

// Refresh recompiles the rules from the source. A source that cannot be
// read degrades to an empty rule set; individual bad lines are dropped.
func (f *Filter) Refresh() {
	if f.source == nil {
		f.rules.Store(&RuleSet{})
		return
	}
	lines, err := f.source.Lines()
	if err != nil {
		f.logger.Warn("ignore source unreadable, recording without rules", zap.Error(err))
		f.rules.Store(&RuleSet{})
		return
	}
	rs, err := Compile(lines)
	if err != nil {
		f.logger.Warn("dropped malformed ignore rules", zap.Error(err))
	}
	f.rules.Store(rs)
	f.logger.Debug("ignore rules compiled", zap.Int("rules", rs.Len()))
}

// IsIgnored reports whether relPath is excluded by the current rules.
func (f *Filter) IsIgnored(relPath string) bool {
	return f.rules.Load().IsIgnored(filepath.ToSlash(relPath))
}

// Rules returns the current compiled set.
func (f *Filter) Rules() *RuleSet {
	return f.rules.Load()
}
