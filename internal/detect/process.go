package detect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// RunConfig identifies what a monitored process was started as.
type RunConfig struct {
	Name        string
	CommandLine string
}

// ProcessListener receives the lifecycle of monitored processes. Output
// may arrive from any goroutine.
type ProcessListener interface {
	ProcessStarted(handle string, cfg RunConfig)
	ProcessOutput(handle string, text string)
	ProcessTerminated(handle string, exitCode int)
}

// ProcessSource delivers process lifecycle notifications.
type ProcessSource interface {
	Subscribe(l ProcessListener) (unsubscribe func())
}

// maxProcessBuffer bounds the raw output kept per process. The stored
// output is capped much lower, so only the head matters.
const maxProcessBuffer = 64 << 10

// ProcessStrategy records one COMMAND entry per monitored process, carrying
// everything the process printed.
type ProcessStrategy struct {
	Source ProcessSource
	Logger *zap.Logger
	Now    func() time.Time

	mu          sync.Mutex
	procs       map[string]*procState
	sink        Sink
	unsubscribe func()
}

type procState struct {
	label   string
	started time.Time
	output  strings.Builder
}

func (p *ProcessStrategy) Name() string { return "process" }

func (p *ProcessStrategy) Start(ctx context.Context, sink Sink) error {
	if p.Source == nil {
		return errors.New("no process source")
	}
	p.mu.Lock()
	p.procs = make(map[string]*procState)
	p.sink = sink
	p.mu.Unlock()

	unsubscribe := p.Source.Subscribe(p)
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()
	return nil
}

func (p *ProcessStrategy) Stop() error {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.sink = nil
	p.procs = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

// ProcessStarted opens an output buffer for handle.
func (p *ProcessStrategy) ProcessStarted(handle string, cfg RunConfig) {
	defer recoverTo(p.logger(), p.Name())
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.procs == nil {
		return
	}
	p.procs[handle] = &procState{label: CommandLabel(cfg), started: p.now()}
}

// ProcessOutput appends text to the buffer of handle.
func (p *ProcessStrategy) ProcessOutput(handle string, text string) {
	defer recoverTo(p.logger(), p.Name())
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.procs[handle]
	if !ok {
		return
	}
	if room := maxProcessBuffer - st.output.Len(); room > 0 {
		if len(text) > room {
			text = text[:room]
		}
		st.output.WriteString(text)
	}
}

// ProcessTerminated emits the buffered command and forgets handle.
func (p *ProcessStrategy) ProcessTerminated(handle string, exitCode int) {
	defer recoverTo(p.logger(), p.Name())
	p.mu.Lock()
	st, ok := p.procs[handle]
	delete(p.procs, handle)
	sink := p.sink
	p.mu.Unlock()

	if !ok || sink == nil {
		return
	}
	p.logger().Debug("process finished", zap.String("command", st.label), zap.Int("exit_code", exitCode))
	sink.AddEntry(oplog.NewCommand(st.started, st.label, st.output.String()))
}

// Tracked returns the number of processes with open buffers.
func (p *ProcessStrategy) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.procs)
}

// CommandLabel derives a best-effort command text from a run configuration.
// Terminal-like configurations are labelled by what they ran.
func CommandLabel(cfg RunConfig) string {
	name := strings.TrimSpace(cfg.Name)
	cmdline := strings.TrimSpace(cfg.CommandLine)
	for _, marker := range []string{"Terminal", "Shell", "Command"} {
		if strings.Contains(name, marker) {
			if cmdline != "" {
				return cmdline
			}
			return "terminal session"
		}
	}
	switch {
	case name != "":
		return name
	case cmdline != "":
		return cmdline
	}
	return "unknown command"
}

func (p *ProcessStrategy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *ProcessStrategy) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger.With(zap.String("mod", "detect.process"))
}
