package recorder

import (
	"context"
	"time"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// SelfTestEntries is the fixed sequence recorded by a self-test: one
// command, one created file and its content.
func SelfTestEntries(at time.Time) []oplog.Entry {
	return []oplog.Entry{
		oplog.NewCommand(at, "ls -la", ""),
		oplog.NewFileCreate(at, "test.txt"),
		oplog.NewFileContent(at, "test.txt", "Hello World!"),
	}
}

// SelfTest records the self-test sequence in s and stops it. Any session
// s was running is restarted first.
func SelfTest(ctx context.Context, s *Session) PersistResult {
	s.Start(ctx)
	for _, e := range SelfTestEntries(s.now()) {
		s.AddEntry(e)
	}
	return s.Stop()
}
