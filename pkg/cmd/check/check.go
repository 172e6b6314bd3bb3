package check

import (
	"github.com/spf13/cobra"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "commands to check recorded data",
	}

	cmd.AddCommand(NewCheckPacketsCmd())
	cmd.AddCommand(NewCheckSessionsCmd())

	return cmd
}
