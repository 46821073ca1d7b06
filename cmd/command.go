package cmd

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/oprec/internal/session"
	"github.com/fakeyudi/oprec/internal/shell"
)

var commandCmd = &cobra.Command{
	Use:   "command <text>",
	Short: "Record a command in the active recording",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		if _, err := session.Active(store); err != nil {
			if errors.Is(err, session.ErrNoSession) {
				return errors.New("no active recording; run 'oprec record' first")
			}
			return err
		}

		text := strings.Join(args, " ")
		if err := shell.AppendCommand(text, time.Now()); err != nil {
			return err
		}
		cmd.Println("Command recorded.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandCmd)
}
