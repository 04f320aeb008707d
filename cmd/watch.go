package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/lifecycle"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/preflight"
)

func newWatchCmd(g *globalFlags) *cobra.Command {
	f := &mirrorFlags{}
	c := &cobra.Command{
		Use:   "watch",
		Short: "Mirror the library and keep following its changes",
		Long: `Scans the library, brings the mirror up to date, then follows changes until
interrupted. Editing the configuration file restarts the mirror with the new
source and target.`,
		Args: cobra.NoArgs,
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

			m, handler := newMetrics(cfg.Metrics.Addr)
			if handler != nil {
				serveMetrics(ctx, cfg.Metrics.Addr, handler)
			}

			plan := preflightPlan(cfg)
			configs := config.FilterValid(src, func(mc mirrorpath.Configuration) error {
				return preflight.Run(plan, mc)
			})
			orch, err := newOrchestrator(cfg, configs, m)
			if err != nil {
				return err
			}

			controller := lifecycle.NewController(orch)
			enabled, unsubscribe := controller.ObserveEnabled()
			defer unsubscribe()
			go func() {
				for e := range enabled {
					m.SetEnabled(e)
				}
			}()

			if cfg.Metrics.ProgressInterval > 0 {
				m.StartProgress("Mirror progress", cfg.Metrics.ProgressInterval)
				defer m.StopProgress()
			}

			if err := controller.Enable(ctx); err != nil {
				return err
			}
			plog.Info(buildinfo.Name+" is watching", "source", cfg.Source, "target", cfg.Target)

			<-ctx.Done()
			plog.Info("Shutting down")
			controller.Disable()
			m.LogSummary(buildinfo.Name + " stopped")
			return nil
		},
	}
	f.register(c, true)
	return c
}
