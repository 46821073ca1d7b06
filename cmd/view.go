package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/oplog"
	"github.com/fakeyudi/oprec/internal/report"
	"github.com/fakeyudi/oprec/internal/tui"
)

var plainOutput bool

var viewCmd = &cobra.Command{
	Use:   "view [file]",
	Short: "Browse a recorded operation.json or Markdown report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(workDir, oplog.FileName)
		if len(args) == 1 {
			path = args[0]
		}

		entries, err := loadEntries(path)
		if err != nil {
			return err
		}

		if plainOutput {
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		}
		return tui.Run(entries, path)
	},
}

// loadEntries reads an operation.json or a Markdown report.
func loadEntries(path string) ([]oplog.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	return report.ForPath(path).Parse(data)
}

// printEntries writes a plain-text listing of entries.
func printEntries(w io.Writer, entries []oplog.Entry) {
	counts := tui.Counts(entries)
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  Operations: %d\n", len(entries))
	fmt.Fprintf(w, "  Commands:   %d\n", counts[oplog.KindCommand])
	fmt.Fprintf(w, "  File ops:   %d\n", len(entries)-counts[oplog.KindCommand])
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Operations")
	if len(entries) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for i, e := range entries {
		ts := e.Time().Format("2006-01-02 15:04:05")
		if e.Kind == oplog.KindCommand {
			fmt.Fprintf(w, "  %d. [%s] %s %s\n", i+1, ts, e.Kind, e.Command)
			if e.Output != "" {
				fmt.Fprintln(w, indent(e.Output, "       "))
			}
			continue
		}
		fmt.Fprintf(w, "  %d. [%s] %s %s\n", i+1, ts, e.Kind, e.Path)
		if e.Data != "" {
			fmt.Fprintln(w, indent(strings.TrimSuffix(e.Data, "\n"), "       "))
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func init() {
	viewCmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	rootCmd.AddCommand(viewCmd)
}
