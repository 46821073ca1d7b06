package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/oprec/internal/oplog"
	"github.com/fakeyudi/oprec/internal/session"
	"github.com/fakeyudi/oprec/internal/shell"
)

func TestCommandRequiresRecording(t *testing.T) {
	isolate(t)
	_, err := executeCommand(rootCmd, "command", "make", "test")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no active recording")
}

func TestCommandAppendsToLog(t *testing.T) {
	isolate(t)
	store, err := session.NewSessionStore()
	require.NoError(t, err)
	require.NoError(t, store.Save(&session.Session{ID: "s", StartTime: time.Now(), PID: os.Getpid()}))

	out, err := executeCommand(rootCmd, "command", "make", "test")
	require.NoError(t, err)
	require.Contains(t, out, "Command recorded.")

	path, err := shell.CommandLogPath()
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\tmake test\n"), "log: %q", data)
}

func TestSelfTestWritesOperationLog(t *testing.T) {
	ws := isolate(t)
	out, err := executeCommand(rootCmd, "selftest")
	require.NoError(t, err)
	require.Contains(t, out, "saved 3 operations")

	entries, err := oplog.Load(filepath.Join(ws, oplog.FileName))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "ls -la", entries[0].Command)
	require.Equal(t, oplog.KindFileCreate, entries[1].Kind)
	require.Equal(t, "Hello World!", entries[2].Data)
}

func TestSelfTestDirFlag(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	_, err := executeCommand(rootCmd, "selftest", "--dir", dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, oplog.FileName))
}

func TestSetupInstallsPlugin(t *testing.T) {
	isolate(t)
	out, err := executeCommand(rootCmd, "setup", "--shell", "zsh")
	require.NoError(t, err)
	require.Contains(t, out, "source ")

	path, err := shell.PluginPath("zsh")
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestSetupRejectsUnknownShell(t *testing.T) {
	isolate(t)
	_, err := executeCommand(rootCmd, "setup", "--shell", "tcsh")
	require.Error(t, err)
}
