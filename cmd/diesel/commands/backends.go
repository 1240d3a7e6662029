package commands

import (
	"fmt"

	"github.com/andewx/diesel/driver"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the platforms built into this binary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range driver.Platforms() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
