// Package gitdiff provides unified diffs of working-tree files against
// their HEAD revision, read directly from the repository with go-git.
package gitdiff

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/classify"
)

// ErrUntracked is returned by Diff when the file has no HEAD revision.
var ErrUntracked = errors.New("file is not tracked at HEAD")

// contextLines matches git's default hunk context.
const contextLines = 3

// Provider implements classify.DiffProvider for the repository containing
// Dir. Repositories are discovered upward from Dir, like git itself does.
type Provider struct {
	Dir    string
	Logger *zap.Logger
}

var _ classify.DiffProvider = (*Provider)(nil)

// FileDiff computes the diff synchronously and reports it through done.
// Any failure, including a missing repository or an untracked file, is
// reported as ok=false.
func (p *Provider) FileDiff(ctx context.Context, file classify.FileHandle, current string, done func(string, bool)) {
	diff, err := p.Diff(ctx, file.Path, current)
	if err != nil {
		p.logger().Debug("diff unavailable", zap.String("path", file.RelPath), zap.Error(err))
		done("", false)
		return
	}
	done(diff, true)
}

// Diff returns the unified diff from the HEAD blob of absPath to current.
// Identical content yields an empty string.
func (p *Provider) Diff(ctx context.Context, absPath, current string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	repo, err := git.PlainOpenWithOptions(p.dir(absPath), &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}

	rel, err := relativeTo(wt.Filesystem.Root(), absPath)
	if err != nil {
		return "", err
	}

	old, err := headContents(repo, rel)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Unified(rel, old, current)
}

// Unified renders a git-style unified diff of one file.
func Unified(rel, old, current string) (string, error) {
	if old == current {
		return "", nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(old),
		B:        splitLines(current),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  contextLines,
	})
	if err != nil {
		return "", fmt.Errorf("render diff for %s: %w", rel, err)
	}
	return diff, nil
}

func headContents(repo *git.Repository, rel string) (string, error) {
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Repository without commits.
			return "", ErrUntracked
		}
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("read HEAD commit: %w", err)
	}
	f, err := commit.File(rel)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", ErrUntracked
		}
		return "", fmt.Errorf("read %s at HEAD: %w", rel, err)
	}
	return f.Contents()
}

func (p *Provider) dir(absPath string) string {
	if p.Dir != "" {
		return p.Dir
	}
	return filepath.Dir(absPath)
}

// relativeTo returns absPath relative to root in slash form. Both sides are
// resolved through symlinks so temp dirs under /var and /private/var agree.
func relativeTo(root, absPath string) (string, error) {
	root = resolve(root)
	target := filepath.Join(resolve(filepath.Dir(absPath)), filepath.Base(absPath))
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("relate %s to %s: %w", absPath, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository at %s", absPath, root)
	}
	return filepath.ToSlash(rel), nil
}

func resolve(path string) string {
	if r, err := filepath.EvalSymlinks(path); err == nil {
		return r
	}
	return path
}

// splitLines keeps line terminators. A missing final newline gets one so
// the last line compares equal to its newline-terminated counterpart.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(strings.TrimSuffix(s, "\n"))
}

func (p *Provider) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.With(zap.String("mod", "gitdiff"))
}
