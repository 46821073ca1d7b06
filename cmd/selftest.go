package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/recorder"
)

var selfTestDir string

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Record a fixed sample session and save it",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := selfTestDir
		if dir == "" {
			dir = workDir
		}
		logger, closeLog, err := openLogger(false)
		if err != nil {
			return err
		}
		defer closeLog()

		result := recorder.SelfTest(cmd.Context(), recorder.New(recorder.Options{Root: dir, Logger: logger}))
		cmd.Println(result.String())
		if result.Status == recorder.SaveFailed {
			return result.Err
		}
		return nil
	},
}

func init() {
	selfTestCmd.Flags().StringVar(&selfTestDir, "dir", "", "workspace to write operation.json to (default: current directory)")
	rootCmd.AddCommand(selfTestCmd)
}
