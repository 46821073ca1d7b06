package detect

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Cleaner strips shell-specific metadata from one history line. ok=false
// means the line carries no command (a timestamp or metadata line).
type Cleaner func(line string) (cmd string, ok bool)

// CleanZsh handles zsh extended history, ": 1690000000:0;git status".
// Lines without the ":" prefix and ";" separator pass through unchanged.
func CleanZsh(line string) (string, bool) {
	if strings.HasPrefix(line, ":") {
		if i := strings.IndexByte(line, ';'); i >= 0 {
			return line[i+1:], true
		}
	}
	return line, true
}

// CleanBash skips the "#<epoch>" lines written with HISTTIMEFORMAT.
func CleanBash(line string) (string, bool) {
	if rest, ok := strings.CutPrefix(line, "#"); ok {
		if _, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return "", false
		}
	}
	return line, true
}

// CleanFish keeps the "- cmd: " lines of fish_history and drops the
// when/paths metadata around them.
func CleanFish(line string) (string, bool) {
	if cmd, ok := strings.CutPrefix(line, "- cmd: "); ok {
		return cmd, true
	}
	return "", false
}

// CleanPlain is for histories with one bare command per line, such as
// PowerShell's PSReadLine.
func CleanPlain(line string) (string, bool) {
	return line, true
}

// CleanCommandLog reads the "<epoch>\t<command>" lines of the shell plugin
// log.
func CleanCommandLog(line string) (string, bool) {
	epoch, cmd, found := strings.Cut(line, "\t")
	if !found || epoch == "" {
		return "", false
	}
	if _, err := strconv.ParseInt(epoch, 10, 64); err != nil {
		return "", false
	}
	return cmd, true
}

// CommandLogTime returns when the command on a command log line ran.
func CommandLogTime(line string) (time.Time, bool) {
	epoch, _, found := strings.Cut(line, "\t")
	if !found {
		return time.Time{}, false
	}
	sec, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// HistoryFile is a resolved shell history location.
type HistoryFile struct {
	Shell string
	Path  string
	Clean Cleaner
}

// Env looks up an environment variable.
type Env func(key string) string

// ResolveHistory picks the history file to poll: an explicit override, then
// $HISTFILE, then the default file of the shell named by $SHELL, then the
// PSReadLine history on Windows, and finally ~/.bash_history.
func ResolveHistory(override string, env Env, home, goos string) HistoryFile {
	shell := filepath.Base(env("SHELL"))
	if shell == "." || shell == string(filepath.Separator) {
		shell = ""
	}

	if override != "" {
		return HistoryFile{Shell: shellFor(override, shell), Path: override, Clean: cleanerFor(shellFor(override, shell))}
	}
	if histfile := env("HISTFILE"); histfile != "" {
		return HistoryFile{Shell: shellFor(histfile, shell), Path: histfile, Clean: cleanerFor(shellFor(histfile, shell))}
	}

	switch shell {
	case "bash":
		return HistoryFile{Shell: "bash", Path: filepath.Join(home, ".bash_history"), Clean: CleanBash}
	case "zsh":
		return HistoryFile{Shell: "zsh", Path: filepath.Join(home, ".zsh_history"), Clean: CleanZsh}
	case "fish":
		return HistoryFile{Shell: "fish", Path: filepath.Join(home, ".local", "share", "fish", "fish_history"), Clean: CleanFish}
	}

	if goos == "windows" {
		base := env("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return HistoryFile{
			Shell: "powershell",
			Path:  filepath.Join(base, "Microsoft", "Windows", "PowerShell", "PSReadLine", "ConsoleHost_history.txt"),
			Clean: CleanPlain,
		}
	}
	return HistoryFile{Shell: "bash", Path: filepath.Join(home, ".bash_history"), Clean: CleanBash}
}

// shellFor guesses the shell owning a history path from its file name,
// falling back to the login shell.
func shellFor(path, loginShell string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, "zsh"):
		return "zsh"
	case strings.Contains(base, "fish"):
		return "fish"
	case strings.Contains(base, "bash"):
		return "bash"
	case strings.HasPrefix(base, "consolehost"):
		return "powershell"
	}
	return loginShell
}

func cleanerFor(shell string) Cleaner {
	switch shell {
	case "zsh":
		return CleanZsh
	case "fish":
		return CleanFish
	case "powershell":
		return CleanPlain
	}
	return CleanBash
}
