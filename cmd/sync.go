package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/preflight"
)

func newSyncCmd(g *globalFlags) *cobra.Command {
	f := &mirrorFlags{}
	c := &cobra.Command{
		Use:   "sync",
		Short: "Bring the mirror up to date once and exit",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			src := &config.FileSource{Path: g.configPath, Flags: f.collect(c)}
			cfg, err := src.Load()
			if err != nil {
				return err
			}
			if err := applyLogLevel(cfg.Log.Level); err != nil {
				return err
			}
			cfg.LogSummary()

			mirror := cfg.Mirror()
			if err := preflight.Run(preflightPlan(cfg), mirror); err != nil {
				return err
			}

			m, _ := newMetrics("")
			orch, err := newOrchestrator(cfg, config.Static(mirror), m)
			if err != nil {
				return err
			}

			start := time.Now()
			summary, err := orch.SyncOnce(ctx, mirror)
			m.LogSummary(buildinfo.Name + " sync finished")
			plog.Info("Sync complete",
				"files", summary.Total,
				"succeeded", summary.Succeeded,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
				"duration", time.Since(start).Round(time.Millisecond),
			)
			if err != nil {
				return err
			}
			for _, r := range summary.Failures {
				plog.Warn("Failed", "event", r.Event.String(), "error", r.Err)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d file(s) failed to mirror", summary.Failed)
			}
			return nil
		},
	}
	f.register(c, false)
	return c
}
