package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// isolate points every per-user location at temp dirs and runs the test
// from a fresh workspace, which it returns.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HISTFILE", "")
	ws := t.TempDir()
	// Equivalent of t.Chdir (Go 1.24+) for the Go 1.21 toolchain.
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(ws); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Setenv("PWD", ws)
	t.Cleanup(func() { _ = os.Chdir(prev) })
	plainOutput = false
	selfTestDir = ""
	setupShell = ""
	exportFormat = "markdown"
	exportOutput = ""
	return ws
}
