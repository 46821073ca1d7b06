package ptyexec

import "unicode/utf8"

// KeyDecoder turns raw terminal input into typed keys. Escape sequences
// (arrows, function keys, bracketed paste markers) are dropped whole, as
// are control bytes other than Enter, Backspace and DEL. The zero value is
// ready to use; it is not safe for concurrent use.
type KeyDecoder struct {
	state   decodeState
	partial []byte
}

type decodeState int

const (
	stateText decodeState = iota
	stateEsc              // after ESC
	stateCSI              // after ESC [
	stateSS3              // after ESC O
)

const esc = 0x1b

// Feed decodes p and calls emit for every typed key. Multi-byte runes and
// escape sequences may span calls.
func (d *KeyDecoder) Feed(p []byte, emit func(rune)) {
	for _, b := range p {
		switch d.state {
		case stateEsc:
			switch b {
			case '[':
				d.state = stateCSI
			case 'O':
				d.state = stateSS3
			default:
				// Alt+key: the key itself is dropped with its prefix.
				d.state = stateText
			}
			continue
		case stateCSI:
			if b >= 0x40 && b <= 0x7e {
				d.state = stateText
			}
			continue
		case stateSS3:
			d.state = stateText
			continue
		}

		if b == esc {
			d.partial = d.partial[:0]
			d.state = stateEsc
			continue
		}
		if b < utf8.RuneSelf {
			d.partial = d.partial[:0]
			switch {
			case b == '\r' || b == '\n' || b == '\b' || b == 0x7f:
				emit(rune(b))
			case b >= 0x20:
				emit(rune(b))
			}
			continue
		}

		d.partial = append(d.partial, b)
		if utf8.FullRune(d.partial) {
			r, _ := utf8.DecodeRune(d.partial)
			d.partial = d.partial[:0]
			if r != utf8.RuneError {
				emit(r)
			}
		}
	}
}
