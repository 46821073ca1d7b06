package classify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// stubProvider answers every request with a fixed diff, optionally from a
// separate goroutine, optionally more than once.
type stubProvider struct {
	diff   string
	ok     bool
	async  bool
	repeat int
	calls  int
	mu     sync.Mutex
}

func (s *stubProvider) FileDiff(ctx context.Context, file FileHandle, current string, done func(string, bool)) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	answer := func() {
		for i := 0; i <= s.repeat; i++ {
			done(s.diff, s.ok)
		}
	}
	if s.async {
		go answer()
		return
	}
	answer()
}

type silentProvider struct{}

func (silentProvider) FileDiff(context.Context, FileHandle, string, func(string, bool)) {}

type panicProvider struct{}

func (panicProvider) FileDiff(context.Context, FileHandle, string, func(string, bool)) {
	panic("provider exploded")
}

// collect runs one classification and returns everything emitted.
func collect(t *testing.T, c *Classifier, text string) []oplog.Entry {
	t.Helper()
	var mu sync.Mutex
	var got []oplog.Entry
	c.Classify(context.Background(), FileHandle{Path: "/ws/main.go", RelPath: "main.go"}, text, func(e oplog.Entry) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	c.Wait()
	mu.Lock()
	defer mu.Unlock()
	return got
}

func TestNonBlankDiffYieldsFileDiff(t *testing.T) {
	diff := "--- a/main.go\n+++ b/main.go\n@@ -1 +1 @@\n-old\n+new\n"
	got := collect(t, &Classifier{Provider: &stubProvider{diff: diff, ok: true}}, "new\n")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileDiff, got[0].Kind)
	require.Equal(t, diff, got[0].Data)
	require.Equal(t, "main.go", got[0].Path)
}

func TestUnavailableDiffYieldsFullContent(t *testing.T) {
	got := collect(t, &Classifier{Provider: &stubProvider{ok: false}}, "package main\n")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileContent, got[0].Kind)
	require.Equal(t, "package main\n", got[0].Data)
}

func TestBlankDiffYieldsFullContent(t *testing.T) {
	got := collect(t, &Classifier{Provider: &stubProvider{diff: "  \n\t", ok: true, async: true}}, "text")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileContent, got[0].Kind)
	require.Equal(t, "text", got[0].Data)
}

func TestNoProviderYieldsFullContent(t *testing.T) {
	got := collect(t, &Classifier{}, "hello")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileContent, got[0].Kind)
}

func TestRepeatedCallbacksProduceOneEntry(t *testing.T) {
	p := &stubProvider{diff: "+x", ok: true, async: true, repeat: 3}
	got := collect(t, &Classifier{Provider: p}, "x")
	require.Len(t, got, 1)
	require.Equal(t, 1, p.calls)
}

func TestSilentProviderTimesOutToContent(t *testing.T) {
	c := &Classifier{Provider: silentProvider{}, Timeout: 20 * time.Millisecond}
	got := collect(t, c, "body")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileContent, got[0].Kind)
	require.Equal(t, "body", got[0].Data)
}

func TestPanickingProviderFallsBack(t *testing.T) {
	got := collect(t, &Classifier{Provider: panicProvider{}}, "body")
	require.Len(t, got, 1)
	require.Equal(t, oplog.KindFileContent, got[0].Kind)
}

func TestTimestampTakenAtClassifyCall(t *testing.T) {
	fixed := time.UnixMilli(1_690_000_000_123)
	got := collect(t, &Classifier{Now: func() time.Time { return fixed }}, "x")
	require.Equal(t, fixed.UnixMilli(), got[0].Timestamp)
}

// Feature: oprec, Property 6: diff vs content is decided by the provider answer alone
func TestClassificationDecision(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		diff := rapid.StringMatching(`[ \t\n]{0,3}([-+@a-z ]{1,20}\n){0,3}`).Draw(rt, "diff")
		ok := rapid.Bool().Draw(rt, "ok")
		text := rapid.String().Draw(rt, "text")

		got := collect(t, &Classifier{Provider: &stubProvider{diff: diff, ok: ok}}, text)
		if len(got) != 1 {
			rt.Fatalf("emitted %d entries, want 1", len(got))
		}
		wantDiff := ok && containsNonSpace(diff)
		if wantDiff {
			if got[0].Kind != oplog.KindFileDiff || got[0].Data != diff {
				rt.Fatalf("got %s %q, want FILE_DIFF %q", got[0].Kind, got[0].Data, diff)
			}
			return
		}
		if got[0].Kind != oplog.KindFileContent || got[0].Data != text {
			rt.Fatalf("got %s %q, want FILE_CONTENT %q", got[0].Kind, got[0].Data, text)
		}
	})
}

func containsNonSpace(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}
