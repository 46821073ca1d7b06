// Package config loads oprec settings from a global file, a per-workspace
// file and OPREC_* environment variables.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configurable oprec settings. Zero values mean unset so
// that Merge can tell a missing key from an explicit one.
type Config struct {
	IgnorePatterns   []string `mapstructure:"ignore_patterns"`
	ShellHistoryPath string   `mapstructure:"shell_history_path"` // override auto-detect

	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // console, json
	LogFile   string `mapstructure:"log_file"`

	HistoryDelay       time.Duration `mapstructure:"history_delay"`
	HistoryInterval    time.Duration `mapstructure:"history_interval"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`
	FocusCheckInterval time.Duration `mapstructure:"focus_check_interval"`
	KeyBufferLimit     int           `mapstructure:"key_buffer_limit"`
	WriteDebounce      time.Duration `mapstructure:"write_debounce"`
	DiffTimeout        time.Duration `mapstructure:"diff_timeout"`

	Detectors Detectors `mapstructure:"detectors"`
}

// Detectors switches command detection strategies on or off.
type Detectors struct {
	Keystrokes *bool `mapstructure:"keystrokes"`
	History    *bool `mapstructure:"history"`
	PluginLog  *bool `mapstructure:"plugin_log"`
	Process    *bool `mapstructure:"process"`
}

// Enabled reports whether the strategy called name is on. Unset means on.
func (d Detectors) Enabled(name string) bool {
	var v *bool
	switch name {
	case "keystrokes":
		v = d.Keystrokes
	case "history":
		v = d.History
	case "plugin-log", "plugin_log":
		v = d.PluginLog
	case "process":
		v = d.Process
	}
	return v == nil || *v
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	on := func() *bool { b := true; return &b }
	return Config{
		IgnorePatterns:     []string{},
		LogLevel:           "info",
		LogFormat:          "console",
		HistoryDelay:       2 * time.Second,
		HistoryInterval:    3 * time.Second,
		StopTimeout:        5 * time.Second,
		FocusCheckInterval: time.Second,
		KeyBufferLimit:     1000,
		WriteDebounce:      250 * time.Millisecond,
		DiffTimeout:        10 * time.Second,
		Detectors:          Detectors{Keystrokes: on(), History: on(), PluginLog: on(), Process: on()},
	}
}

// GlobalPath returns ~/.config/oprec/config.yaml.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "oprec", "config.yaml"), nil
}

// ProjectFile is the per-workspace config file name.
const ProjectFile = ".oprec.yaml"

// LoadGlobal reads ~/.config/oprec/config.yaml.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .oprec.yaml in root.
// Returns nil (no error) if the file is absent.
func LoadProject(root string) (*Config, error) {
	return loadFile(filepath.Join(root, ProjectFile), false)
}

// Load merges the global and project files for root and applies
// environment overrides.
func Load(root string) (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Defaults(), err
	}
	project, err := LoadProject(root)
	if err != nil {
		return Defaults(), err
	}
	cfg := Merge(global, project)
	ApplyEnv(&cfg)
	return cfg, nil
}

// loadFile reads and parses a YAML or JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg with OPREC_<KEY> environment variables, for
// example OPREC_LOG_LEVEL=debug or OPREC_DETECTORS_KEYSTROKES=false.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("oprec")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			if d := v.GetDuration(key); d > 0 {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst **bool) {
		if v.IsSet(key) {
			b := v.GetBool(key)
			*dst = &b
		}
	}

	if v.IsSet("ignore_patterns") {
		cfg.IgnorePatterns = v.GetStringSlice("ignore_patterns")
	}
	setString("shell_history_path", &cfg.ShellHistoryPath)
	setString("log_level", &cfg.LogLevel)
	setString("log_format", &cfg.LogFormat)
	setString("log_file", &cfg.LogFile)
	setDuration("history_delay", &cfg.HistoryDelay)
	setDuration("history_interval", &cfg.HistoryInterval)
	setDuration("stop_timeout", &cfg.StopTimeout)
	setDuration("focus_check_interval", &cfg.FocusCheckInterval)
	setDuration("write_debounce", &cfg.WriteDebounce)
	setDuration("diff_timeout", &cfg.DiffTimeout)
	if v.IsSet("key_buffer_limit") {
		if n := v.GetInt("key_buffer_limit"); n > 0 {
			cfg.KeyBufferLimit = n
		}
	}
	setBool("detectors.keystrokes", &cfg.Detectors.Keystrokes)
	setBool("detectors.history", &cfg.Detectors.History)
	setBool("detectors.plugin_log", &cfg.Detectors.PluginLog)
	setBool("detectors.process", &cfg.Detectors.Process)
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, layer := range []*Config{global, project} {
		if layer != nil {
			result.overlay(layer)
		}
	}
	return result
}

// overlay copies every set field of c onto r.
func (r *Config) overlay(c *Config) {
	if len(c.IgnorePatterns) > 0 {
		r.IgnorePatterns = c.IgnorePatterns
	}
	overlayString(&r.ShellHistoryPath, c.ShellHistoryPath)
	overlayString(&r.LogLevel, c.LogLevel)
	overlayString(&r.LogFormat, c.LogFormat)
	overlayString(&r.LogFile, c.LogFile)
	overlayDuration(&r.HistoryDelay, c.HistoryDelay)
	overlayDuration(&r.HistoryInterval, c.HistoryInterval)
	overlayDuration(&r.StopTimeout, c.StopTimeout)
	overlayDuration(&r.FocusCheckInterval, c.FocusCheckInterval)
	overlayDuration(&r.WriteDebounce, c.WriteDebounce)
	overlayDuration(&r.DiffTimeout, c.DiffTimeout)
	if c.KeyBufferLimit > 0 {
		r.KeyBufferLimit = c.KeyBufferLimit
	}
	overlayBool(&r.Detectors.Keystrokes, c.Detectors.Keystrokes)
	overlayBool(&r.Detectors.History, c.Detectors.History)
	overlayBool(&r.Detectors.PluginLog, c.Detectors.PluginLog)
	overlayBool(&r.Detectors.Process, c.Detectors.Process)
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlayDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func overlayBool(dst **bool, v *bool) {
	if v != nil {
		b := *v
		*dst = &b
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
