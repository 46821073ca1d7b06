// Package oplog holds the recorded operations of a session: the entry type,
// the ordered append-only log and its on-disk form.
package oplog

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fakeyudi/oprec/internal/ansi"
)

// Kind identifies what an Entry records.
type Kind string

const (
	KindCommand     Kind = "COMMAND"
	KindFileCreate  Kind = "FILE_CREATE"
	KindFileDelete  Kind = "FILE_DELETE"
	KindFileDiff    Kind = "FILE_DIFF"
	KindFileContent Kind = "FILE_CONTENT"
)

// IsFile reports whether the kind describes a file event.
func (k Kind) IsFile() bool {
	switch k {
	case KindFileCreate, KindFileDelete, KindFileDiff, KindFileContent:
		return true
	}
	return false
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindCommand || k.IsFile()
}

// MaxOutputRunes caps the captured output stored on a COMMAND entry.
const MaxOutputRunes = 1000

// Entry is one observed operation. Entries are values: the log stores and
// hands out copies, so a recorded entry cannot be changed afterwards.
type Entry struct {
	Timestamp int64 // milliseconds since the Unix epoch
	Kind      Kind
	Path      string // file kinds only
	Command   string // COMMAND only
	Output    string // COMMAND only
	Data      string // diff text or full content, empty for create/delete
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// NewCommand builds a COMMAND entry. Output is stripped of terminal control
// sequences and capped to MaxOutputRunes.
func NewCommand(at time.Time, command, output string) Entry {
	return Entry{
		Timestamp: at.UnixMilli(),
		Kind:      KindCommand,
		Command:   command,
		Output:    capRunes(ansi.Strip(output), MaxOutputRunes),
	}
}

// NewFileCreate builds a FILE_CREATE entry for a workspace-relative path.
func NewFileCreate(at time.Time, path string) Entry {
	return Entry{Timestamp: at.UnixMilli(), Kind: KindFileCreate, Path: path}
}

// NewFileDelete builds a FILE_DELETE entry for a workspace-relative path.
func NewFileDelete(at time.Time, path string) Entry {
	return Entry{Timestamp: at.UnixMilli(), Kind: KindFileDelete, Path: path}
}

// NewFileDiff builds a FILE_DIFF entry carrying a unified diff.
func NewFileDiff(at time.Time, path, diff string) Entry {
	return Entry{Timestamp: at.UnixMilli(), Kind: KindFileDiff, Path: path, Data: diff}
}

// NewFileContent builds a FILE_CONTENT entry carrying the full file text.
func NewFileContent(at time.Time, path, content string) Entry {
	return Entry{Timestamp: at.UnixMilli(), Kind: KindFileContent, Path: path, Data: content}
}

func capRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// wireEntry is the persisted shape. Only the fields meaningful for the
// kind are set, so absent fields are omitted while empty data on file
// entries is still written.
type wireEntry struct {
	Timestamp int64   `json:"timestamp"`
	Type      Kind    `json:"type"`
	Path      *string `json:"path,omitempty"`
	Command   *string `json:"command,omitempty"`
	Output    *string `json:"output,omitempty"`
	Data      *string `json:"data,omitempty"`
}

// MarshalJSON writes the entry with the field set its kind calls for.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{Timestamp: e.Timestamp, Type: e.Kind}
	switch {
	case e.Kind == KindCommand:
		w.Command = &e.Command
		w.Output = &e.Output
	case e.Kind.IsFile():
		w.Path = &e.Path
		w.Data = &e.Data
	default:
		return nil, fmt.Errorf("unknown entry type %q", e.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a persisted entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Type.Valid() {
		return fmt.Errorf("unknown entry type %q", w.Type)
	}
	*e = Entry{Timestamp: w.Timestamp, Kind: w.Type}
	if w.Path != nil {
		e.Path = *w.Path
	}
	if w.Command != nil {
		e.Command = *w.Command
	}
	if w.Output != nil {
		e.Output = *w.Output
	}
	if w.Data != nil {
		e.Data = *w.Data
	}
	return nil
}
