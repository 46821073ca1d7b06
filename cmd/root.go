package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/oprec/internal/config"
	"github.com/fakeyudi/oprec/internal/logging"
	"github.com/fakeyudi/oprec/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// workDir is the workspace the command runs against.
var workDir string

var rootCmd = &cobra.Command{
	Use:           "oprec",
	Short:         "Record terminal commands and file changes into operation.json",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		workDir = dir

		loaded, err := config.Load(workDir)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "oprec:", err)
		stop()
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

// openLogger builds the command logger. When a child program owns the
// terminal the log goes to a file so it does not interleave with the
// child's output.
func openLogger(childOwnsTerminal bool) (*zap.Logger, func(), error) {
	path := cfg.LogFile
	if path == "" && childOwnsTerminal {
		dir, err := session.DataDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "oprec.log")
	}
	return logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Path: path})
}
