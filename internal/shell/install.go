// Package shell installs the shell plugins that report interactive
// commands, and owns the command log they write to.
package shell

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Supported lists the shells a plugin exists for.
var Supported = []string{"zsh", "bash"}

// PluginPath returns the path where the plugin file should be written.
func PluginPath(shell string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	name := "oprec.plugin." + shell
	return filepath.Join(home, ".config", "oprec", name), nil
}

// PluginSource returns the plugin text for shell.
func PluginSource(shell string) (string, error) {
	switch shell {
	case "zsh":
		return ZshPlugin, nil
	case "bash":
		return BashPlugin, nil
	}
	return "", fmt.Errorf("unsupported shell for plugin: %s (supported: zsh, bash)", shell)
}

// Install writes the plugin file for the given shell and prints the source
// instruction the user needs to add to their rc file.
func Install(shell string, out io.Writer) (string, error) {
	content, err := PluginSource(shell)
	if err != nil {
		return "", err
	}
	path, err := PluginPath(shell)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing plugin file: %w", err)
	}

	rcFile := rcFileName(shell)
	fmt.Fprintf(out, "\n  ✓ Plugin written to %s\n", path)
	fmt.Fprintf(out, "\n  Add this line to your %s:\n", rcFile)
	fmt.Fprintf(out, "    source %s\n", path)
	fmt.Fprintf(out, "\n  Then reload: source %s\n\n", rcFile)
	return path, nil
}

// IsInstalled reports whether the plugin file exists on disk.
func IsInstalled(shell string) bool {
	path, err := PluginPath(shell)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func rcFileName(shell string) string {
	switch shell {
	case "zsh":
		return "~/.zshrc"
	case "bash":
		return "~/.bashrc"
	default:
		return "~/." + shell + "rc"
	}
}
