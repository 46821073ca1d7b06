package recorder

import "fmt"

// Status is the outcome of stopping a session.
type Status int

const (
	// NoOp means nothing was written: the log was empty or the session
	// was not recording.
	NoOp Status = iota
	Saved
	SaveFailed
)

func (s Status) String() string {
	switch s {
	case NoOp:
		return "no-op"
	case Saved:
		return "saved"
	case SaveFailed:
		return "save-failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// PersistResult reports what Stop did with the log.
type PersistResult struct {
	Status Status
	Path   string
	Count  int
	Err    error
}

func (r PersistResult) String() string {
	switch r.Status {
	case Saved:
		return fmt.Sprintf("saved %d operations to %s", r.Count, r.Path)
	case SaveFailed:
		return fmt.Sprintf("failed to save %d operations: %v", r.Count, r.Err)
	}
	return "no operations recorded, nothing saved"
}
