// Package ignore compiles gitignore-style rules and answers whether a
// workspace-relative path should be left out of a recording.
package ignore

import (
	"errors"
	"regexp"
	"strings"
)

// CompileError reports an ignore line that could not be turned into a rule.
type CompileError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return "invalid ignore pattern " + strings.TrimSpace(e.Pattern) + ": " + e.Err.Error()
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RuleSet is an immutable, ordered list of compiled rules.
type RuleSet struct {
	rules []*regexp.Regexp
}

// escaper quotes the regex metacharacters a gitignore line may contain
// literally. '*' and '?' are translated afterwards.
var escaper = strings.NewReplacer(
	".", `\.`,
	"+", `\+`,
	"^", `\^`,
	"$", `\$`,
	"(", `\(`,
	")", `\)`,
	"[", `\[`,
	"]", `\]`,
	"{", `\{`,
	"}", `\}`,
	"|", `\|`,
)

var wildcards = strings.NewReplacer(
	"*", ".*",
	"?", ".",
)

// Compile turns raw ignore-file lines into a RuleSet. Blank lines and
// comments are skipped. A line that fails to compile is dropped and
// reported in the returned error; the remaining rules are still usable.
func Compile(lines []string) (*RuleSet, error) {
	rs := &RuleSet{}
	var errs []error
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		re, err := compileRule(line)
		if err != nil {
			errs = append(errs, &CompileError{Line: i + 1, Pattern: line, Err: err})
			continue
		}
		rs.rules = append(rs.rules, re)
	}
	return rs, errors.Join(errs...)
}

func compileRule(line string) (*regexp.Regexp, error) {
	pattern := line

	dirOnly := strings.HasSuffix(pattern, "/")
	if dirOnly {
		pattern = strings.TrimSuffix(pattern, "/")
	}

	pattern = escaper.Replace(pattern)
	pattern = wildcards.Replace(pattern)

	if strings.HasPrefix(pattern, "/") {
		pattern = pattern[1:]
	} else {
		pattern = "(.*/)?" + pattern
	}

	if dirOnly {
		pattern += "(/.*)?"
	}
	return regexp.Compile("^" + pattern + "$")
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// IsIgnored reports whether relPath (slash-separated, relative to the
// workspace root) is excluded. The .git directory is always excluded.
func (rs *RuleSet) IsIgnored(relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "./")
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}
	if rs == nil {
		return false
	}
	for _, re := range rs.rules {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}
