package ptyexec

import (
	"bytes"
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/oprec/internal/detect"
	"github.com/fakeyudi/oprec/internal/oplog"
)

func decode(chunks ...string) string {
	var d KeyDecoder
	var out []rune
	for _, c := range chunks {
		d.Feed([]byte(c), func(r rune) { out = append(out, r) })
	}
	return string(out)
}

func TestKeyDecoderDropsEscapeSequences(t *testing.T) {
	require.Equal(t, "ls\r", decode("l\x1b[A", "s\x1b[1;5C\r"))
	require.Equal(t, "ab", decode("a\x1bOPb"))
	require.Equal(t, "x\x7f\b", decode("x\x7f\b\x03\x04"))
	require.Equal(t, "héllo", decode("h\xc3", "\xa9llo"))
	require.Equal(t, "ok", decode("o\x1b[", "200~k"))
}

// Feature: oprec, Property 10: decoded keys never contain escape or stray control bytes
func TestKeyDecoderOutputIsPrintable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		input := rapid.SliceOf(rapid.Byte()).Draw(rt, "input")
		for _, r := range decode(string(input)) {
			if r == 0x1b || (r < 0x20 && r != '\r' && r != '\n' && r != '\b') {
				rt.Fatalf("decoded control rune %q", r)
			}
		}
	})
}

type lifecycle struct {
	mu         sync.Mutex
	started    []detect.RunConfig
	output     strings.Builder
	exitCodes  []int
	handles    map[string]bool
	terminated chan struct{}
}

func newLifecycle() *lifecycle {
	return &lifecycle{handles: map[string]bool{}, terminated: make(chan struct{}, 1)}
}

func (l *lifecycle) ProcessStarted(h string, cfg detect.RunConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, cfg)
	l.handles[h] = true
}

func (l *lifecycle) ProcessOutput(h, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.WriteString(text)
}

func (l *lifecycle) ProcessTerminated(h string, code int) {
	l.mu.Lock()
	l.exitCodes = append(l.exitCodes, code)
	l.mu.Unlock()
	l.terminated <- struct{}{}
}

func skipWithoutPty(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("pty not supported on windows")
	}
}

func TestRunReportsLifecycle(t *testing.T) {
	skipWithoutPty(t)
	var stdout bytes.Buffer
	r := &Runner{Stdout: &stdout}
	l := newLifecycle()
	unsubscribe := r.Subscribe(l)
	defer unsubscribe()

	code, err := r.Run(context.Background(), []string{"sh", "-c", "printf hello; exit 3"})
	require.NoError(t, err)
	require.Equal(t, 3, code)

	<-l.terminated
	require.Len(t, l.started, 1)
	require.Equal(t, "sh -c printf hello; exit 3", l.started[0].CommandLine)
	require.Contains(t, l.output.String(), "hello")
	require.Contains(t, stdout.String(), "hello")
	require.Equal(t, []int{3}, l.exitCodes)
	require.Len(t, l.handles, 1)
}

func TestRunFeedsProcessStrategy(t *testing.T) {
	skipWithoutPty(t)
	r := &Runner{Stdout: &bytes.Buffer{}}
	p := &detect.ProcessStrategy{Source: r}
	var mu sync.Mutex
	var entries []oplog.Entry
	require.NoError(t, p.Start(context.Background(), detect.SinkFunc(func(e oplog.Entry) {
		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
	})))
	defer p.Stop()

	_, err := r.Run(context.Background(), []string{"sh", "-c", "printf '\\033[31mred\\033[0m'"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, entries, 1)
	require.Equal(t, oplog.KindCommand, entries[0].Kind)
	require.Contains(t, entries[0].Output, "red")
	require.NotContains(t, entries[0].Output, "\x1b")
}

func TestRunForwardsTypedKeys(t *testing.T) {
	skipWithoutPty(t)
	r := &Runner{Stdin: strings.NewReader("make\r"), Stdout: &bytes.Buffer{}}
	var mu sync.Mutex
	var keys []rune
	cancel := r.SubscribeKeys(func(k rune) {
		mu.Lock()
		keys = append(keys, k)
		mu.Unlock()
	})
	defer cancel()

	_, err := r.Run(context.Background(), []string{"sh", "-c", "sleep 0.3"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return string(keys) == "make\r"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRunMissingProgram(t *testing.T) {
	skipWithoutPty(t)
	_, err := (&Runner{Stdout: &bytes.Buffer{}}).Run(context.Background(), []string{"definitely-not-a-real-program-oprec"})
	require.Error(t, err)
}
