package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakeyudi/oprec/internal/session"
)

// CommandLogPath returns the path of the command log written by the shell
// plugin and by `oprec command`.
func CommandLogPath() (string, error) {
	dir, err := session.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "commands.log"), nil
}

// AppendCommand adds one "<epoch>\t<command>" line to the command log.
// Newlines inside command are flattened so the entry stays on one line.
func AppendCommand(command string, at time.Time) error {
	command = strings.TrimSpace(strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(command))
	if command == "" {
		return fmt.Errorf("empty command")
	}
	path, err := CommandLogPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening command log: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%d\t%s\n", at.Unix(), command); err != nil {
		f.Close()
		return fmt.Errorf("writing command log: %w", err)
	}
	return f.Close()
}

// TruncateCommandLog empties the command log before a recording starts.
func TruncateCommandLog() error {
	path, err := CommandLogPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.WriteFile(path, nil, 0o644)
}
