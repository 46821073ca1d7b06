// Package ansi removes terminal control sequences from captured text.
package ansi

import "regexp"

// escapeSeq matches ESC '[' followed by parameter digits/semicolons and a
// single final letter (colors, cursor movement, erase).
var escapeSeq = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// Strip returns text with every control sequence removed.
func Strip(text string) string {
	return escapeSeq.ReplaceAllString(text, "")
}

// Contains reports whether text holds at least one control sequence.
func Contains(text string) bool {
	return escapeSeq.MatchString(text)
}
