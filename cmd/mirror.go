package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Galad/musicmirror/pkg/audioformat"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/fileops"
	"github.com/Galad/musicmirror/pkg/metrics"
	"github.com/Galad/musicmirror/pkg/mirrorops"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/orchestrator"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/preflight"
	"github.com/Galad/musicmirror/pkg/transcoder"
	"github.com/Galad/musicmirror/pkg/watch"
)

// newOrchestrator wires the mirror stack described by cfg. Settings other
// than the roots and behavior are read once, here.
func newOrchestrator(cfg config.Config, configs config.Source, m metrics.Metrics) (*orchestrator.Orchestrator, error) {
	source, err := watch.New(cfg.WatchMode(), cfg.WatchOptions())
	if err != nil {
		return nil, err
	}

	ffmpeg := transcoder.NewFFmpeg(cfg.Transcoder.FFmpeg, cfg.Transcoder.Quality)
	if path, err := ffmpeg.LookPath(); err != nil {
		plog.Warn("ffmpeg not found, lossless files will fail to transcode", "binary", cfg.Transcoder.FFmpeg, "error", err)
	} else {
		plog.Debug("Using ffmpeg", "path", path)
	}

	ops := &mirrorops.Factory{
		FS: fileops.New(fileops.Options{
			RetryCount: cfg.Sync.RetryCount,
			RetryWait:  cfg.Sync.RetryWait,
			BufferSize: cfg.Sync.BufferSizeKB * 1024,
		}),
		Transcoder: transcoder.NewDispatch(nil).Register(audioformat.FLAC, ffmpeg),
		Metrics:    m,
	}
	factory := func(c mirrorpath.Configuration) (orchestrator.Router, func()) {
		return ops.New(c)
	}

	return orchestrator.New(configs, source, factory, orchestrator.Options{
		MaxConcurrency: int64(cfg.Sync.MaxConcurrency),
		LockTarget:     cfg.Sync.LockTarget,
		Metrics:        m,
	}), nil
}

func preflightPlan(cfg config.Config) preflight.Plan {
	plan := preflight.DefaultPlan
	plan.RequireMount = cfg.Sync.RequireMount
	return plan
}

// newMetrics returns the run's metrics and, when addr is set, the HTTP
// handler exporting them.
func newMetrics(addr string) (metrics.Metrics, http.Handler) {
	counters := &metrics.SyncMetrics{}
	if addr == "" {
		return counters, nil
	}
	prom := metrics.NewPrometheus(counters)
	return prom, prom.Handler()
}

// serveMetrics serves h on addr under /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, h http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		plog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			plog.Error("Metrics server stopped", "addr", addr, "error", err)
		}
	}()
}
