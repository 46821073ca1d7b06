package ignore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func mustCompile(t *testing.T, lines ...string) *RuleSet {
	t.Helper()
	rs, err := Compile(lines)
	require.NoError(t, err)
	return rs
}

func TestWildcardExtension(t *testing.T) {
	rs := mustCompile(t, "*.log")
	require.True(t, rs.IsIgnored("build/output.log"))
	require.True(t, rs.IsIgnored("output.log"))
	require.False(t, rs.IsIgnored("output.log.txt"))
}

func TestDirectoryRule(t *testing.T) {
	rs := mustCompile(t, "node_modules/")
	require.True(t, rs.IsIgnored("node_modules"))
	require.True(t, rs.IsIgnored("node_modules/left-pad/index.js"))
	require.True(t, rs.IsIgnored("web/node_modules/x.js"))
	require.False(t, rs.IsIgnored("node_modules_backup/x.js"))
}

func TestAnchoredRule(t *testing.T) {
	rs := mustCompile(t, "/build")
	require.True(t, rs.IsIgnored("build"))
	require.False(t, rs.IsIgnored("src/build"))
	// File rules match exactly; the anchored rule has no trailing subpath.
	require.False(t, rs.IsIgnored("build/main.o"))

	rs = mustCompile(t, "/dist/")
	require.True(t, rs.IsIgnored("dist/app.js"))
	require.False(t, rs.IsIgnored("pkg/dist/app.js"))
}

func TestQuestionMarkAndLiteralMetachars(t *testing.T) {
	rs := mustCompile(t, "file?.txt", "a+b(1).md")
	require.True(t, rs.IsIgnored("file1.txt"))
	require.False(t, rs.IsIgnored("file12.txt"))
	require.False(t, rs.IsIgnored("fileX.txtt"))
	require.True(t, rs.IsIgnored("docs/a+b(1).md"))
	require.False(t, rs.IsIgnored("aab1.md"))
}

func TestCommentsAndBlanksSkipped(t *testing.T) {
	rs := mustCompile(t, "", "   ", "# *.go", "*.tmp")
	require.Equal(t, 1, rs.Len())
	require.False(t, rs.IsIgnored("main.go"))
	require.True(t, rs.IsIgnored("x.tmp"))
}

func TestMalformedLineDropped(t *testing.T) {
	rs, err := Compile([]string{`bad\q`, "*.bak"})
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, 1, ce.Line)
	require.Equal(t, 1, rs.Len())
	require.True(t, rs.IsIgnored("old.bak"))
}

func TestNilRuleSetStillIgnoresGit(t *testing.T) {
	var rs *RuleSet
	require.True(t, rs.IsIgnored(".git"))
	require.True(t, rs.IsIgnored(".git/HEAD"))
	require.False(t, rs.IsIgnored(".github/workflows/ci.yml"))
}

// Feature: oprec, Property 2: .git is ignored under any rule set
func TestGitDirAlwaysIgnored(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		lines := make([]string, n)
		for i := range lines {
			lines[i] = rapid.StringMatching(`[!/]?[a-z*?.]{1,8}/?`).Draw(t, "line")
		}
		rs, _ := Compile(lines)
		sub := rapid.StringMatching(`[a-z]{1,8}(/[a-z]{1,8}){0,2}`).Draw(t, "sub")
		if !rs.IsIgnored(".git/" + sub) {
			t.Fatalf("rules %q did not ignore .git/%s", lines, sub)
		}
		if !rs.IsIgnored(".git") {
			t.Fatalf("rules %q did not ignore .git", lines)
		}
	})
}

// Feature: oprec, Property 3: matching is deterministic for a fixed rule set
func TestIsIgnoredDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ext := rapid.StringMatching(`[a-z]{1,4}`).Draw(t, "ext")
		rs, err := Compile([]string{"*." + ext, "tmp/"})
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		path := rapid.StringMatching(`([a-z]{1,6}/){0,3}[a-z]{1,6}\.[a-z]{1,4}`).Draw(t, "path")
		first := rs.IsIgnored(path)
		for i := 0; i < 3; i++ {
			if rs.IsIgnored(path) != first {
				t.Fatalf("IsIgnored(%q) changed between calls", path)
			}
		}
		want := strings.HasSuffix(path, "."+ext) || strings.HasPrefix(path, "tmp/") || strings.Contains(path, "/tmp/")
		if first != want {
			t.Fatalf("IsIgnored(%q) = %v, want %v", path, first, want)
		}
	})
}

func TestFilterRefreshReplacesRules(t *testing.T) {
	root := t.TempDir()
	gi := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(gi, []byte("*.log\n"), 0o644))

	f := NewFilter(WorkspaceSource(root, []string{"secret.txt"}), nil)
	require.True(t, f.IsIgnored("a.log"))
	require.True(t, f.IsIgnored("secret.txt"))
	require.False(t, f.IsIgnored("a.tmp"))

	require.NoError(t, os.WriteFile(gi, []byte("*.tmp\n"), 0o644))
	require.True(t, f.IsIgnored("a.log"), "rules must not change before Refresh")

	f.Refresh()
	require.False(t, f.IsIgnored("a.log"))
	require.True(t, f.IsIgnored("a.tmp"))
	require.True(t, f.IsIgnored("secret.txt"))
}

type failingSource struct{}

func (failingSource) Lines() ([]string, error) { return nil, errors.New("boom") }

func TestFilterDegradesToNoRules(t *testing.T) {
	f := NewFilter(failingSource{}, nil)
	require.Equal(t, 0, f.Rules().Len())
	require.False(t, f.IsIgnored("anything.log"))
	require.True(t, f.IsIgnored(".git/config"))
}

func TestMissingIgnoreFilesAreNotErrors(t *testing.T) {
	src := WorkspaceSource(t.TempDir(), nil)
	lines, err := src.Lines()
	require.NoError(t, err)
	require.Empty(t, lines)
}
