package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/plog"
)

func newInitCmd(g *globalFlags) *cobra.Command {
	f := &mirrorFlags{}
	var force bool
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Writes the configuration file named by --config. Settings of an existing file
are kept unless overridden by flags; a new file starts from the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			path := g.configPath
			base, err := config.Load(path)
			if err != nil {
				plog.Warn("Could not load existing configuration, starting with defaults", "reason", err)
				base = config.NewDefault()
			}
			cfg, err := config.MergeFlags(base, f.collect(c))
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("cannot write configuration: %w", err)
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					prompt := fmt.Sprintf("%s already exists. Overwrite it?", path)
					if !confirm(c.InOrStdin(), c.OutOrStdout(), prompt, false) {
						plog.Info("Init canceled")
						return nil
					}
					force = true
				}
			}
			return config.Generate(cfg, path, force)
		},
	}
	f.register(c, true)
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing file without asking")
	return c
}

// confirm asks a yes/no question on out and reads the answer from in. An
// empty answer picks the default.
func confirm(in io.Reader, out io.Writer, prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Fprintf(out, "%s %s: ", prompt, suffix)

	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "" {
		return defaultYes
	}
	return answer == "y" || answer == "yes"
}
