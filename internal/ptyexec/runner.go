// Package ptyexec runs a child program under a pseudo-terminal and reports
// its lifecycle, output and typed keys to command detectors.
package ptyexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/detect"
)

const drainTimeout = time.Second

// Runner owns the terminal while a child runs. It is a detect.ProcessSource
// and a detect.KeySource.
type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Logger *zap.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]detect.ProcessListener
	keys      map[int]func(rune)
}

var (
	_ detect.ProcessSource = (*Runner)(nil)
	_ detect.KeySource     = (*Runner)(nil)
)

// NewRunner returns a Runner wired to the process stdin and stdout.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{Stdin: os.Stdin, Stdout: os.Stdout, Logger: logger}
}

// Subscribe registers l for process notifications.
func (r *Runner) Subscribe(l detect.ProcessListener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[int]detect.ProcessListener)
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// SubscribeKeys registers fn for every key typed into the child.
func (r *Runner) SubscribeKeys(fn func(rune)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys == nil {
		r.keys = make(map[int]func(rune))
	}
	id := r.nextID
	r.nextID++
	r.keys[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.keys, id)
		r.mu.Unlock()
	}
}

// Run starts argv under a pty, forwards input and output until the child
// exits and returns its exit code. Cancelling ctx kills the child.
func (r *Runner) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("no command to run")
	}
	logger := r.logger()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()

	ptmx, err := pty.StartWithSize(cmd, r.windowSize())
	if err != nil {
		return -1, fmt.Errorf("start %s under pty: %w", argv[0], err)
	}
	defer ptmx.Close()

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(f.Fd()) {
		state, err := term.MakeRaw(f.Fd())
		if err != nil {
			logger.Warn("could not enter raw mode", zap.Error(err))
		} else {
			defer term.Restore(f.Fd(), state)
		}
	}

	handle := uuid.NewString()
	r.each(func(l detect.ProcessListener) {
		l.ProcessStarted(handle, detect.RunConfig{Name: "Terminal", CommandLine: strings.Join(argv, " ")})
	})
	logger.Debug("child started", zap.String("handle", handle), zap.Strings("argv", argv))

	// The input copier may stay blocked on stdin after the child exits; it
	// ends with the process.
	go r.copyInput(ptmx)

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		r.copyOutput(handle, ptmx)
	}()

	waitErr := cmd.Wait()
	// Drain whatever the child wrote before exiting. A background process
	// still holding the tty would keep the copier alive, so give up after
	// drainTimeout.
	select {
	case <-outputDone:
	case <-time.After(drainTimeout):
		ptmx.Close()
		<-outputDone
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			code = -1
		} else {
			code = exitErr.ExitCode()
		}
	}
	r.each(func(l detect.ProcessListener) { l.ProcessTerminated(handle, code) })
	logger.Debug("child exited", zap.String("handle", handle), zap.Int("exit_code", code))

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return code, waitErr
	}
	return code, nil
}

func (r *Runner) copyInput(dst io.Writer) {
	if r.Stdin == nil {
		return
	}
	var dec KeyDecoder
	buf := make([]byte, 1024)
	for {
		n, err := r.Stdin.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			dec.Feed(buf[:n], r.key)
		}
		if err != nil {
			return
		}
	}
}

func (r *Runner) copyOutput(handle string, src io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if r.Stdout != nil {
				r.Stdout.Write(chunk)
			}
			text := string(chunk)
			r.each(func(l detect.ProcessListener) { l.ProcessOutput(handle, text) })
		}
		if err != nil {
			// Linux reports EIO once the child side closes.
			return
		}
	}
}

func (r *Runner) key(k rune) {
	r.mu.Lock()
	fns := make([]func(rune), 0, len(r.keys))
	for _, fn := range r.keys {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(k)
	}
}

func (r *Runner) each(fn func(detect.ProcessListener)) {
	r.mu.Lock()
	ls := make([]detect.ProcessListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}
	r.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

func (r *Runner) windowSize() *pty.Winsize {
	if f, ok := r.Stdout.(*os.File); ok && term.IsTerminal(f.Fd()) {
		if w, h, err := term.GetSize(f.Fd()); err == nil && w > 0 && h > 0 {
			return &pty.Winsize{Cols: uint16(w), Rows: uint16(h)}
		}
	}
	return &pty.Winsize{Cols: 80, Rows: 24}
}

// Focused reports whether f is an interactive terminal. The child runs in
// the foreground of that terminal, so keys typed there are meant for it.
func Focused(f *os.File) func() bool {
	return func() bool { return f != nil && term.IsTerminal(f.Fd()) }
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger.With(zap.String("mod", "ptyexec"))
}
