// Package session keeps the marker of the active recording. Its presence
// tells `oprec command`, `oprec status` and the shell plugin that a
// recording is running.
package session

import (
	"os"
	"syscall"
	"time"
)

// Session describes the active recording.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	// WorkDir is the workspace root the log is written to.
	WorkDir string `json:"work_dir"`
	// PID is the process running `oprec record`.
	PID       int      `json:"pid"`
	Detectors []string `json:"detectors,omitempty"`
}

// Alive reports whether the recording process still exists. A marker left
// by a crashed recorder is stale.
func (s *Session) Alive() bool {
	if s.PID <= 0 {
		return false
	}
	p, err := os.FindProcess(s.PID)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
