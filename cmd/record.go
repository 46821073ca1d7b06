package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/oprec/internal/detect"
	"github.com/fakeyudi/oprec/internal/gitdiff"
	"github.com/fakeyudi/oprec/internal/ignore"
	"github.com/fakeyudi/oprec/internal/ptyexec"
	"github.com/fakeyudi/oprec/internal/recorder"
	"github.com/fakeyudi/oprec/internal/session"
	"github.com/fakeyudi/oprec/internal/shell"
	"github.com/fakeyudi/oprec/internal/watch"
)

var recordCmd = &cobra.Command{
	Use:   "record [-- command [args...]]",
	Short: "Record commands and file changes in the current directory",
	Long: `Record arms a session in the current directory and watches it until
interrupted. With a command after "--", the command runs under a pseudo
terminal and recording stops when it exits. Operations are written to
operation.json in the workspace root.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecord(cmd, args)
	},
}

func runRecord(cmd *cobra.Command, argv []string) error {
	store, err := session.NewSessionStore()
	if err != nil {
		return err
	}
	if active, err := session.Active(store); err == nil {
		return fmt.Errorf("recording already in progress in %s (pid %d)", active.WorkDir, active.PID)
	} else if !errors.Is(err, session.ErrNoSession) {
		return err
	}

	logger, closeLog, err := openLogger(len(argv) > 0)
	if err != nil {
		return err
	}
	defer closeLog()

	filter := ignore.NewFilter(ignore.WorkspaceSource(workDir, cfg.IgnorePatterns), logger)

	var runner *ptyexec.Runner
	if len(argv) > 0 {
		runner = ptyexec.NewRunner(logger)
	}
	strategies := buildStrategies(runner, logger)

	rec := recorder.New(recorder.Options{
		Root:        workDir,
		Filter:      filter,
		Diff:        &gitdiff.Provider{Dir: workDir, Logger: logger},
		DiffTimeout: cfg.DiffTimeout,
		Strategies:  strategies,
		Exclude:     []string{cfg.LogFile},
		Logger:      logger,
	})

	watcher, err := watch.New(rec.Root(), rec, watch.Options{
		Filter:   filter,
		Refresh:  filter.Refresh,
		Debounce: cfg.WriteDebounce,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", rec.Root(), err)
	}

	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name())
	}
	marker := &session.Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		WorkDir:   rec.Root(),
		PID:       os.Getpid(),
		Detectors: names,
	}
	if err := store.Save(marker); err != nil {
		watcher.Close()
		return fmt.Errorf("saving session marker: %w", err)
	}
	defer func() {
		if err := store.Delete(); err != nil {
			logger.Warn("removing session marker", zap.Error(err))
		}
	}()
	if err := shell.TruncateCommandLog(); err != nil {
		logger.Warn("truncating command log", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	rec.Start(ctx)
	if runner == nil {
		cmd.Printf("Recording in %s. Press Ctrl+C to stop.\n", rec.Root())
	}

	exitCode := 0
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	if runner != nil {
		g.Go(func() error {
			// The recording ends with the child.
			defer cancel()
			code, err := runner.Run(gctx, argv)
			exitCode = code
			return err
		})
	}
	runErr := g.Wait()

	result := rec.Stop()
	rec.Wait()
	cmd.Println(result.String())

	if runErr != nil {
		return runErr
	}
	if result.Status == recorder.SaveFailed {
		return result.Err
	}
	if exitCode != 0 {
		cmd.Printf("%s exited with code %d\n", argv[0], exitCode)
	}
	return nil
}

// buildStrategies assembles the enabled command detection strategies. The
// process and keystroke strategies need a child under a pty.
func buildStrategies(runner *ptyexec.Runner, logger *zap.Logger) []detect.Strategy {
	var strategies []detect.Strategy
	det := cfg.Detectors

	if runner != nil && det.Enabled("process") {
		strategies = append(strategies, &detect.ProcessStrategy{Source: runner, Logger: logger})
	}
	if runner != nil && det.Enabled("keystrokes") {
		strategies = append(strategies, &detect.KeystrokeStrategy{
			Keys:          runner,
			Focused:       ptyexec.Focused(os.Stdin),
			FocusInterval: cfg.FocusCheckInterval,
			BufferLimit:   cfg.KeyBufferLimit,
			Logger:        logger,
		})
	}
	if det.Enabled("history") {
		home, _ := os.UserHomeDir()
		hist := detect.ResolveHistory(cfg.ShellHistoryPath, os.Getenv, home, runtime.GOOS)
		if hist.Path != "" {
			strategies = append(strategies, &detect.HistoryStrategy{
				Path:        hist.Path,
				Clean:       hist.Clean,
				Delay:       cfg.HistoryDelay,
				Interval:    cfg.HistoryInterval,
				StopTimeout: cfg.StopTimeout,
				Logger:      logger,
			})
		}
	}
	if det.Enabled("plugin-log") {
		if path, err := shell.CommandLogPath(); err == nil {
			strategies = append(strategies, &detect.HistoryStrategy{
				Label:       "plugin-log",
				Path:        path,
				Clean:       detect.CleanCommandLog,
				Stamp:       detect.CommandLogTime,
				Delay:       cfg.HistoryDelay,
				Interval:    cfg.HistoryInterval,
				StopTimeout: cfg.StopTimeout,
				Logger:      logger,
			})
		}
	}
	return strategies
}

func init() {
	rootCmd.AddCommand(recordCmd)
}
