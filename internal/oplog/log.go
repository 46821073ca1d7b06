package oplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the log file written to the workspace root.
const FileName = "operation.json"

// ErrNoWorkspace is returned by Persist when the workspace root is unknown.
var ErrNoWorkspace = errors.New("workspace root is unknown")

// IOError wraps a failure to read or write recorder files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Log is an ordered, append-only sequence of entries safe for concurrent
// use. Insertion order is the order of record.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

// Append adds e at the end of the log.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of the entries in insertion order.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset drops every entry.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Serialize renders a consistent snapshot as a pretty-printed JSON array.
func (l *Log) Serialize() ([]byte, error) {
	return Marshal(l.Snapshot())
}

// Marshal renders entries as a pretty-printed JSON array.
func Marshal(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize operation log: %w", err)
	}
	return data, nil
}

// Unmarshal parses a persisted operation log.
func Unmarshal(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse operation log: %w", err)
	}
	return entries, nil
}

// Persist writes data to <root>/operation.json, fully replacing any prior
// file. The bytes go to a temp file in the same directory first so the
// final os.Rename is atomic.
func Persist(root string, data []byte) (string, error) {
	if root == "" {
		return "", &IOError{Op: "persist", Err: ErrNoWorkspace}
	}
	path := filepath.Join(root, FileName)

	tmp, err := os.CreateTemp(root, ".operation-*.json.tmp")
	if err != nil {
		return path, &IOError{Op: "persist", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any error path.
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return path, &IOError{Op: "persist", Path: path, Err: err}
	}
	if err = tmp.Close(); err != nil {
		return path, &IOError{Op: "persist", Path: path, Err: err}
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return path, &IOError{Op: "persist", Path: path, Err: err}
	}
	if err = os.Rename(tmpName, path); err != nil {
		return path, &IOError{Op: "persist", Path: path, Err: err}
	}
	return path, nil
}

// Load reads and parses <root>/operation.json or any explicit file path.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return Unmarshal(data)
}
