// Package cmd holds the musicmirror command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/plog"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	quiet      bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "musicmirror",
		Short: "Keep a transcoded mirror of a music library",
		Long: `musicmirror mirrors a music library into a target directory. Lossless files
are transcoded to MP3 and everything else is copied or symlinked. The watch
command keeps the mirror current as the library changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			plog.SetQuiet(g.quiet)
			if c.Flags().Changed("log-level") {
				return applyLogLevel(g.logLevel)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", config.FileName, "path to the configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "logging level: 'debug', 'notice', 'info', 'warn', 'error'")
	root.PersistentFlags().BoolVar(&g.quiet, "quiet", false, "only log warnings and errors")

	root.AddCommand(
		newWatchCmd(g),
		newSyncCmd(g),
		newInitCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and logs a failing command.
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		plog.Error(buildinfo.Name+" failed", "error", err)
		return err
	}
	return nil
}

func applyLogLevel(name string) error {
	lvl, err := plog.LevelFromString(name)
	if err != nil {
		return err
	}
	plog.SetLevel(lvl)
	return nil
}
