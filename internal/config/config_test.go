package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: oprec, Property 12: config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.-]{1,20}`)
	positiveDuration := rapid.Custom(func(t *rapid.T) time.Duration {
		return time.Duration(rapid.Int64Range(1, 60_000).Draw(t, "ms")) * time.Millisecond
	})

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasLogLevel") {
			cfg.LogLevel = nonEmptyString.Draw(t, "logLevel")
		}
		if rapid.Bool().Draw(t, "hasLogFile") {
			cfg.LogFile = nonEmptyString.Draw(t, "logFile")
		}
		if rapid.Bool().Draw(t, "hasShellHistoryPath") {
			cfg.ShellHistoryPath = nonEmptyString.Draw(t, "shellHistoryPath")
		}
		if rapid.Bool().Draw(t, "hasHistoryInterval") {
			cfg.HistoryInterval = positiveDuration.Draw(t, "historyInterval")
		}
		if rapid.Bool().Draw(t, "hasKeystrokes") {
			b := rapid.Bool().Draw(t, "keystrokes")
			cfg.Detectors.Keystrokes = &b
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		checkStringField(t, "LogLevel",
			global.LogLevel, project.LogLevel, defaults.LogLevel, merged.LogLevel)
		checkStringField(t, "LogFile",
			global.LogFile, project.LogFile, defaults.LogFile, merged.LogFile)
		checkStringField(t, "ShellHistoryPath",
			global.ShellHistoryPath, project.ShellHistoryPath, defaults.ShellHistoryPath, merged.ShellHistoryPath)

		switch {
		case project.HistoryInterval > 0:
			if merged.HistoryInterval != project.HistoryInterval {
				t.Fatalf("HistoryInterval: expected project value %v, got %v", project.HistoryInterval, merged.HistoryInterval)
			}
		case global.HistoryInterval > 0:
			if merged.HistoryInterval != global.HistoryInterval {
				t.Fatalf("HistoryInterval: expected global value %v, got %v", global.HistoryInterval, merged.HistoryInterval)
			}
		default:
			if merged.HistoryInterval != defaults.HistoryInterval {
				t.Fatalf("HistoryInterval: expected default %v, got %v", defaults.HistoryInterval, merged.HistoryInterval)
			}
		}

		want := true
		if global.Detectors.Keystrokes != nil {
			want = *global.Detectors.Keystrokes
		}
		if project.Detectors.Keystrokes != nil {
			want = *project.Detectors.Keystrokes
		}
		if got := merged.Detectors.Enabled("keystrokes"); got != want {
			t.Fatalf("keystrokes enabled: expected %v, got %v", want, got)
		}
	})
}

// checkStringField asserts the merge precedence rule for a single string field:
//   - project non-empty  → merged == project
//   - project empty, global non-empty → merged == global
//   - both empty → merged == defaultVal
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: both set: expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: only global set: expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: neither set: expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.HistoryDelay != 2*time.Second || d.HistoryInterval != 3*time.Second {
		t.Errorf("history schedule: want 2s/3s, got %v/%v", d.HistoryDelay, d.HistoryInterval)
	}
	if d.StopTimeout != 5*time.Second {
		t.Errorf("StopTimeout: want 5s, got %v", d.StopTimeout)
	}
	if d.FocusCheckInterval != time.Second {
		t.Errorf("FocusCheckInterval: want 1s, got %v", d.FocusCheckInterval)
	}
	if d.KeyBufferLimit != 1000 {
		t.Errorf("KeyBufferLimit: want 1000, got %d", d.KeyBufferLimit)
	}
	if d.IgnorePatterns == nil || len(d.IgnorePatterns) != 0 {
		t.Errorf("IgnorePatterns: want empty slice, got %v", d.IgnorePatterns)
	}
	for _, name := range []string{"keystrokes", "history", "plugin-log", "process"} {
		if !d.Detectors.Enabled(name) {
			t.Errorf("detector %s disabled by default", name)
		}
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if cfg.LogLevel != Defaults().LogLevel {
		t.Errorf("LogLevel: want %q, got %q", Defaults().LogLevel, cfg.LogLevel)
	}
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	cfg, err := LoadProject(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectYAML(t *testing.T) {
	root := t.TempDir()
	yaml := `ignore_patterns:
  - "*.tmp"
  - dist/
history_interval: 500ms
key_buffer_limit: 200
detectors:
  keystrokes: false
`
	if err := os.WriteFile(filepath.Join(root, ProjectFile), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProject(root)
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if len(cfg.IgnorePatterns) != 2 || cfg.IgnorePatterns[1] != "dist/" {
		t.Errorf("IgnorePatterns: got %v", cfg.IgnorePatterns)
	}
	if cfg.HistoryInterval != 500*time.Millisecond {
		t.Errorf("HistoryInterval: want 500ms, got %v", cfg.HistoryInterval)
	}
	if cfg.KeyBufferLimit != 200 {
		t.Errorf("KeyBufferLimit: want 200, got %d", cfg.KeyBufferLimit)
	}
	merged := Merge(nil, cfg)
	if merged.Detectors.Enabled("keystrokes") {
		t.Error("keystrokes should be disabled by the project file")
	}
	if !merged.Detectors.Enabled("history") {
		t.Error("history should stay enabled")
	}
	if merged.StopTimeout != 5*time.Second {
		t.Errorf("StopTimeout should fall back to the default, got %v", merged.StopTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPREC_LOG_LEVEL", "debug")
	t.Setenv("OPREC_DIFF_TIMEOUT", "2s")
	t.Setenv("OPREC_DETECTORS_PROCESS", "false")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel: want debug, got %q", cfg.LogLevel)
	}
	if cfg.DiffTimeout != 2*time.Second {
		t.Errorf("DiffTimeout: want 2s, got %v", cfg.DiffTimeout)
	}
	if cfg.Detectors.Enabled("process") {
		t.Error("process detector should be disabled by the environment")
	}
	if !cfg.Detectors.Enabled("keystrokes") {
		t.Error("keystrokes detector should stay enabled")
	}
}

func TestLoadGlobalParseError(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfgDir := filepath.Join(tmp, ".config", "oprec")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("log_level: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadGlobal()
	if err == nil {
		t.Fatal("expected an error for invalid YAML, got nil")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected *ParseError, got %T: %v", err, err)
	}
}
