package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/shell"
)

var setupShell string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install the shell plugin that reports interactive commands",
	// Setup needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		name := setupShell
		if name == "" {
			name = filepath.Base(os.Getenv("SHELL"))
		}
		if name == "" || name == "." {
			return fmt.Errorf("could not detect your shell; pass --shell (%s)", strings.Join(shell.Supported, ", "))
		}
		if shell.IsInstalled(name) {
			cmd.Printf("  Plugin for %s already installed; rewriting it.\n", name)
		}
		if _, err := shell.Install(name, cmd.OutOrStdout()); err != nil {
			return err
		}
		cmd.Println("  Setup complete. Run 'oprec record' to start recording.")
		return nil
	},
}

func init() {
	setupCmd.Flags().StringVar(&setupShell, "shell", "", "shell to install the plugin for (zsh, bash)")
	rootCmd.AddCommand(setupCmd)
}
