package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoSession is returned by Load when no marker exists on disk.
var ErrNoSession = errors.New("no active recording")

// SessionStore persists the marker.
type SessionStore interface {
	Save(s *Session) error
	Load() (*Session, error) // returns ErrNoSession if none exists
	Delete() error
	Path() string
}

// diskStore writes the marker to the XDG data directory.
type diskStore struct {
	path string // full path to session.json
}

// NewSessionStore returns a SessionStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/oprec/session.json or ~/.local/share/oprec/session.json
func NewSessionStore() (SessionStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &diskStore{path: filepath.Join(dir, "session.json")}, nil
}

// DataDir returns the oprec XDG data directory, shared with the shell
// plugin, the command log and the log file.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "oprec"), nil
}

func (d *diskStore) Path() string { return d.path }

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to write recording marker: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to write recording marker: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write recording marker: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write recording marker: %w", err)
	}
	if err = os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("failed to write recording marker: %w", err)
	}
	return nil
}

// Load reads the marker. Returns ErrNoSession if the file does not exist.
func (d *diskStore) Load() (*Session, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read recording marker: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse recording marker: %w", err)
	}
	return &s, nil
}

// Delete removes the marker.
func (d *diskStore) Delete() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete recording marker: %w", err)
	}
	return nil
}

// Active loads the marker and treats a marker left by a dead process as
// absent, removing it.
func Active(store SessionStore) (*Session, error) {
	s, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !s.Alive() {
		_ = store.Delete()
		return nil, ErrNoSession
	}
	return s, nil
}
