// Package detect turns noisy terminal signals into COMMAND entries. Each
// Strategy observes one signal source and owns its state exclusively; the
// Ensemble starts and stops them together and keeps their faults apart.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// Sink receives detected entries. The recording session implements it and
// drops entries while disarmed.
type Sink interface {
	AddEntry(e oplog.Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(oplog.Entry)

func (f SinkFunc) AddEntry(e oplog.Entry) { f(e) }

// Strategy is one independent way of detecting executed commands.
type Strategy interface {
	Name() string
	// Start begins observing and returns once subscribed; detected commands
	// go to sink until Stop.
	Start(ctx context.Context, sink Sink) error
	// Stop unsubscribes and waits for in-flight work within a bounded time.
	Stop() error
}

// DetectionError is a fault inside one strategy. It is logged and never
// propagated to the session or to other strategies.
type DetectionError struct {
	Strategy string
	Err      error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Strategy, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// Ensemble runs a set of strategies. It does not deduplicate commands seen
// by more than one strategy.
type Ensemble struct {
	strategies []Strategy
	logger     *zap.Logger

	mu      sync.Mutex
	running []Strategy
}

// NewEnsemble registers strategies in the order they are started.
func NewEnsemble(logger *zap.Logger, strategies ...Strategy) *Ensemble {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensemble{
		strategies: strategies,
		logger:     logger.With(zap.String("mod", "detect")),
	}
}

// Start starts every strategy. A strategy that fails to start is logged and
// skipped; the others still run. The returned slice lists the strategies
// that are now running.
func (e *Ensemble) Start(ctx context.Context, sink Sink) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	var names []string
	for _, s := range e.strategies {
		err := safely(s.Name(), func() error { return s.Start(ctx, guard(s.Name(), sink, e.logger)) })
		if err != nil {
			e.logger.Warn("strategy failed to start", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		e.running = append(e.running, s)
		names = append(names, s.Name())
	}
	return names
}

// Stop stops every running strategy and reports their faults joined. The
// faults have already been logged.
func (e *Ensemble) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Ensemble) stopLocked() error {
	var errs []error
	for _, s := range e.running {
		if err := safely(s.Name(), s.Stop); err != nil {
			e.logger.Warn("strategy failed to stop", zap.String("strategy", s.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	e.running = nil
	return errors.Join(errs...)
}

// safely runs fn and converts an error or a panic into a DetectionError.
func safely(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetectionError{Strategy: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := fn(); err != nil {
		var de *DetectionError
		if errors.As(err, &de) {
			return err
		}
		return &DetectionError{Strategy: name, Err: err}
	}
	return nil
}

// guard shields a strategy from a misbehaving sink.
func guard(name string, sink Sink, logger *zap.Logger) Sink {
	return SinkFunc(func(entry oplog.Entry) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("sink panicked", zap.String("strategy", name), zap.Any("panic", r))
			}
		}()
		sink.AddEntry(entry)
	})
}

// report logs a strategy fault without interrupting the strategy.
func report(logger *zap.Logger, name string, err error) {
	logger.Warn("detection fault", zap.Error(&DetectionError{Strategy: name, Err: err}))
}

// recoverTo logs a panic raised inside a strategy callback.
func recoverTo(logger *zap.Logger, name string) {
	if r := recover(); r != nil {
		report(logger, name, fmt.Errorf("panic: %v", r))
	}
}
