// Package report renders an operation log as a shareable document and reads
// it back. Markdown reports embed the log so they parse without loss.
package report

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fakeyudi/oprec/internal/oplog"
)

const (
	versionSentinel = "<!-- oprec-report-version: 1 -->"
	dataPrefix      = "<!-- oprec-data: "
	dataSuffix      = " -->"
)

// Renderer serializes an operation log.
type Renderer interface {
	Render(title string, entries []oplog.Entry) ([]byte, error)
}

// Parser reads an operation log back from a rendered document.
type Parser interface {
	Parse(data []byte) ([]oplog.Entry, error)
}

// JSONRenderer writes the operation.json form.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(_ string, entries []oplog.Entry) ([]byte, error) {
	return oplog.Marshal(entries)
}

// JSONParser reads the operation.json form.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) ([]oplog.Entry, error) {
	entries, err := oplog.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operation log: %w", err)
	}
	return entries, nil
}

// MarkdownRenderer renders a human-readable report with an embedded base64
// copy of the log.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(title string, entries []oplog.Entry) ([]byte, error) {
	payload, err := oplog.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal operation log: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, base64.StdEncoding.EncodeToString(payload), dataSuffix)

	fmt.Fprintf(&sb, "# Operations: %s\n\n", title)

	sb.WriteString("## Summary\n\n")
	var commands, files int
	for _, e := range entries {
		if e.Kind == oplog.KindCommand {
			commands++
		} else {
			files++
		}
	}
	fmt.Fprintf(&sb, "- Operations: %d\n", len(entries))
	fmt.Fprintf(&sb, "- Commands: %d\n", commands)
	fmt.Fprintf(&sb, "- File operations: %d\n", files)
	if len(entries) > 0 {
		fmt.Fprintf(&sb, "- From: %s\n", entries[0].Time().Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(&sb, "- To: %s\n", entries[len(entries)-1].Time().Format("2006-01-02 15:04:05 MST"))
	}
	sb.WriteString("\n")

	sb.WriteString("## Timeline\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No operations recorded._\n")
		return []byte(sb.String()), nil
	}
	for i, e := range entries {
		ts := e.Time().Format("15:04:05")
		switch e.Kind {
		case oplog.KindCommand:
			fmt.Fprintf(&sb, "%d. %s `%s`\n", i+1, ts, e.Command)
			if e.Output != "" {
				fence(&sb, "text", e.Output)
			}
		case oplog.KindFileDiff:
			fmt.Fprintf(&sb, "%d. %s changed `%s`\n", i+1, ts, e.Path)
			fence(&sb, "diff", e.Data)
		case oplog.KindFileContent:
			fmt.Fprintf(&sb, "%d. %s saved `%s`\n", i+1, ts, e.Path)
			fence(&sb, language(e.Path), e.Data)
		case oplog.KindFileCreate:
			fmt.Fprintf(&sb, "%d. %s created `%s`\n", i+1, ts, e.Path)
		case oplog.KindFileDelete:
			fmt.Fprintf(&sb, "%d. %s deleted `%s`\n", i+1, ts, e.Path)
		}
	}
	return []byte(sb.String()), nil
}

// fence writes body as an indented code block under a list item.
func fence(sb *strings.Builder, lang, body string) {
	ticks := "```"
	for strings.Contains(body, ticks) {
		ticks += "`"
	}
	sb.WriteString("\n   " + ticks + lang + "\n")
	for _, line := range strings.Split(strings.TrimSuffix(body, "\n"), "\n") {
		sb.WriteString("   " + line + "\n")
	}
	sb.WriteString("   " + ticks + "\n\n")
}

func language(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// MarkdownParser extracts the embedded log from a Markdown report.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) ([]oplog.Entry, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a valid oprec report: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a valid oprec report: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a valid oprec report: malformed data payload")
	}

	payload, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a valid oprec report: corrupted base64 payload: %w", err)
	}
	entries, err := oplog.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("not a valid oprec report: failed to parse embedded log: %w", err)
	}
	return entries, nil
}

// ForFormat picks the renderer for "json" or "markdown".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown report format %q (json, markdown)", format)
}

// ForPath picks the parser from a file extension: .md is a Markdown
// report, anything else an operation log.
func ForPath(path string) Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return &MarkdownParser{}
	}
	return &JSONParser{}
}
