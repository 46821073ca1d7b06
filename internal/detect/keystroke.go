package detect

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fakeyudi/oprec/internal/oplog"
)

// KeySource delivers typed keys as runes. Enter arrives as '\r' or '\n',
// Backspace as '\b' or DEL.
type KeySource interface {
	SubscribeKeys(fn func(r rune)) (cancel func())
}

const (
	// DefaultKeyBufferLimit caps the pending keystroke buffer.
	DefaultKeyBufferLimit = 1000
	// DefaultFocusInterval is how long a focus answer is reused.
	DefaultFocusInterval = time.Second

	minCommandRunes = 2
)

// commandPunct lists the non-alphanumeric characters kept in the buffer.
const commandPunct = " .-_/\\:@#$%^&*()+=[]{}|;'\",<>?`~!"

// KeystrokeStrategy reconstructs commands from keys typed while a terminal
// has focus. It is approximate: anything typed into the terminal, such as
// input to an interactive program, looks like a command.
type KeystrokeStrategy struct {
	Keys KeySource
	// Focused reports whether a terminal-like surface has focus. Nil means
	// always focused.
	Focused       func() bool
	FocusInterval time.Duration
	BufferLimit   int
	Logger        *zap.Logger
	Now           func() time.Time

	mu     sync.Mutex
	buf    []rune
	sink   Sink
	cancel func()

	focus     atomic.Pointer[rate.Sometimes]
	focusedAt atomic.Bool
}

func (k *KeystrokeStrategy) Name() string { return "keystrokes" }

func (k *KeystrokeStrategy) Start(ctx context.Context, sink Sink) error {
	if k.Keys == nil {
		return errors.New("no key source")
	}
	interval := k.FocusInterval
	if interval <= 0 {
		interval = DefaultFocusInterval
	}

	k.mu.Lock()
	k.buf = k.buf[:0]
	k.sink = sink
	k.mu.Unlock()
	k.focus.Store(&rate.Sometimes{Interval: interval})

	cancel := k.Keys.SubscribeKeys(k.HandleKey)
	k.mu.Lock()
	k.cancel = cancel
	k.mu.Unlock()
	return nil
}

func (k *KeystrokeStrategy) Stop() error {
	k.mu.Lock()
	cancel := k.cancel
	k.cancel = nil
	k.sink = nil
	k.buf = nil
	k.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// HandleKey feeds one typed key into the buffer.
func (k *KeystrokeStrategy) HandleKey(r rune) {
	defer recoverTo(k.logger(), k.Name())
	if !k.terminalFocused() {
		return
	}

	k.mu.Lock()
	if k.sink == nil {
		k.mu.Unlock()
		return
	}
	var flushed string
	switch {
	case r == '\r' || r == '\n':
		flushed = string(k.buf)
		k.buf = k.buf[:0]
	case r == '\b' || r == 0x7f:
		if len(k.buf) > 0 {
			k.buf = k.buf[:len(k.buf)-1]
		}
	case allowedKey(r):
		k.buf = append(k.buf, r)
		if len(k.buf) > k.limit() {
			k.logger().Debug("key buffer overflow, clearing", zap.Int("limit", k.limit()))
			k.buf = k.buf[:0]
		}
	}
	sink := k.sink
	k.mu.Unlock()

	if cmd, ok := ValidCommand(flushed); ok {
		sink.AddEntry(oplog.NewCommand(k.now(), cmd, ""))
	}
}

// Pending returns the buffered, not yet submitted text.
func (k *KeystrokeStrategy) Pending() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return string(k.buf)
}

// terminalFocused answers from a cache refreshed at most once per interval.
func (k *KeystrokeStrategy) terminalFocused() bool {
	if k.Focused == nil {
		return true
	}
	every := k.focus.Load()
	if every == nil {
		return k.Focused()
	}
	every.Do(func() { k.focusedAt.Store(k.Focused()) })
	return k.focusedAt.Load()
}

// ValidCommand trims a flushed buffer and reports whether it looks like a
// command: at least two characters, something alphanumeric, and no leading
// caret notation such as ^C.
func ValidCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minCommandRunes {
		return "", false
	}
	if strings.HasPrefix(text, "^") {
		return "", false
	}
	if strings.IndexFunc(text, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		return "", false
	}
	return text, true
}

func allowedKey(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(commandPunct, r)
}

func (k *KeystrokeStrategy) limit() int {
	if k.BufferLimit > 0 {
		return k.BufferLimit
	}
	return DefaultKeyBufferLimit
}

func (k *KeystrokeStrategy) now() time.Time {
	if k.Now != nil {
		return k.Now()
	}
	return time.Now()
}

func (k *KeystrokeStrategy) logger() *zap.Logger {
	if k.Logger == nil {
		return zap.NewNop()
	}
	return k.Logger.With(zap.String("mod", "detect.keystrokes"))
}
