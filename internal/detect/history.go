package detect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/oplog"
)

const (
	DefaultHistoryDelay    = 2 * time.Second
	DefaultHistoryInterval = 3 * time.Second
	DefaultStopTimeout     = 5 * time.Second
)

// HistoryStrategy polls an append-only history file and records every line
// added after Start. It tracks a line count only: a file that shrinks is
// taken as a new baseline. Output is never captured.
type HistoryStrategy struct {
	// Label names the strategy; "history" when empty.
	Label string
	Path  string
	Clean Cleaner
	// Stamp extracts when a line's command ran. Lines it cannot date, or
	// every line when Stamp is nil, get the poll time.
	Stamp       func(line string) (time.Time, bool)
	Delay       time.Duration
	Interval    time.Duration
	StopTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time

	mu     sync.Mutex
	offset int
	run    uint64
	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *HistoryStrategy) Name() string {
	if h.Label != "" {
		return h.Label
	}
	return "history"
}

func (h *HistoryStrategy) Start(ctx context.Context, sink Sink) error {
	if h.Path == "" {
		return errors.New("no history file")
	}
	baseline, err := countLines(h.Path)
	if err != nil {
		// Keep polling; the file may become readable later.
		report(h.logger(), h.Name(), &oplog.IOError{Op: "read history", Path: h.Path, Err: err})
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.offset = baseline
	h.run++
	h.sink = sink
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	h.logger().Debug("polling history", zap.String("path", h.Path), zap.Int("baseline", baseline))
	go h.loop(ctx, done)
	return nil
}

// Stop cancels future polls and waits for a running one, up to StopTimeout.
// A poll still running after that is abandoned and its results discarded.
func (h *HistoryStrategy) Stop() error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done, h.sink = nil, nil, nil
	h.run++
	h.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	timeout := h.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("history poller still running after %s", timeout)
	}
}

func (h *HistoryStrategy) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay, interval := h.Delay, h.Interval
	if delay <= 0 {
		delay = DefaultHistoryDelay
	}
	if interval <= 0 {
		interval = DefaultHistoryInterval
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		h.Poll()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll reads the file once and records the lines appended since the last
// read. It is called by the polling loop and is safe to call directly.
func (h *HistoryStrategy) Poll() {
	defer recoverTo(h.logger(), h.Name())

	lines, err := readLines(h.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			report(h.logger(), h.Name(), &oplog.IOError{Op: "read history", Path: h.Path, Err: err})
		}
		return
	}

	h.mu.Lock()
	sink := h.sink
	if sink == nil {
		h.mu.Unlock()
		return
	}
	if len(lines) < h.offset {
		h.logger().Debug("history file shrank, resetting baseline", zap.Int("was", h.offset), zap.Int("now", len(lines)))
		h.offset = len(lines)
		h.mu.Unlock()
		return
	}
	fresh := lines[h.offset:]
	h.offset = len(lines)
	run := h.run
	h.mu.Unlock()

	clean := h.Clean
	if clean == nil {
		clean = CleanPlain
	}
	for _, line := range fresh {
		cmd, ok := clean(line)
		cmd = strings.TrimSpace(cmd)
		if !ok || cmd == "" {
			continue
		}
		at := h.now()
		if h.Stamp != nil {
			if t, ok := h.Stamp(line); ok {
				at = t
			}
		}
		if !h.current(run) {
			return
		}
		sink.AddEntry(oplog.NewCommand(at, cmd, ""))
	}
}

// current reports whether the strategy is still in the given run.
func (h *HistoryStrategy) current(run uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run == run
}

// readLines returns the complete lines of path. A trailing line without a
// newline is still being written and is left for the next read.
func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		return nil, nil
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}

func countLines(path string) (int, error) {
	lines, err := readLines(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return len(lines), err
}

func (h *HistoryStrategy) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *HistoryStrategy) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger.With(zap.String("mod", "detect."+h.Name()))
}
