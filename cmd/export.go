package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/oplog"
	"github.com/fakeyudi/oprec/internal/report"
)

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Render a recorded operation log as a shareable report",
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

		renderer, err := report.ForFormat(exportFormat)
		if err != nil {
			return err
		}
		data, err := renderer.Render(filepath.Dir(absPath(path)), entries)
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		cmd.Printf("Report written to %s\n", exportOutput)
		return nil
	},
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "report format (markdown, json)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "file to write (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
