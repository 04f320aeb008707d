package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintf(c.OutOrStdout(), "%s version %s\n", buildinfo.Name, buildinfo.Version)
		},
	}
}
