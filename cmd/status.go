package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}

		s, err := session.Active(store)
		if err != nil {
			if errors.Is(err, session.ErrNoSession) {
				cmd.Println("no active recording")
				return nil
			}
			return err
		}

		cmd.Printf("Recording: %s\n", s.ID)
		cmd.Printf("Workspace: %s\n", s.WorkDir)
		cmd.Printf("Started: %s\n", s.StartTime.Format(time.RFC3339))
		cmd.Printf("Duration: %s\n", time.Since(s.StartTime).Round(time.Second).String())
		cmd.Printf("PID: %d\n", s.PID)
		if len(s.Detectors) > 0 {
			cmd.Printf("Detectors: %s\n", strings.Join(s.Detectors, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
