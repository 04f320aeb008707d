package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// mirrorFlags override the configuration file for a single run. Only flags
// the user set reach config.MergeFlags.
type mirrorFlags struct {
	source         string
	target         string
	behavior       string
	watchMode      string
	pollInterval   time.Duration
	ffmpeg         string
	quality        int
	maxConcurrency int
	retryCount     int
	retryWait      time.Duration
	lockTarget     bool
	metricsAddr    string
}

func (f *mirrorFlags) register(c *cobra.Command, daemon bool) {
	fs := c.Flags()
	fs.StringVar(&f.source, "source", "", "music library to mirror")
	fs.StringVar(&f.target, "target", "", "directory receiving the mirror")
	fs.StringVar(&f.behavior, "behavior", "", "what to do with files that need no transcoding: 'copy', 'symlink' or 'ignore'")
	fs.StringVar(&f.ffmpeg, "ffmpeg", "", "ffmpeg binary used for transcoding")
	fs.IntVar(&f.quality, "quality", 0, "LAME VBR quality, 0 (best) to 9")
	fs.IntVar(&f.maxConcurrency, "max-concurrency", 0, "number of files processed at once")
	fs.IntVar(&f.retryCount, "retry-count", 0, "retries for a failed copy")
	fs.DurationVar(&f.retryWait, "retry-wait", 0, "wait between copy retries")
	fs.BoolVar(&f.lockTarget, "lock-target", true, "hold a lock file in the target while running")
	if daemon {
		fs.StringVar(&f.watchMode, "watch-mode", "", "change detection: 'native' or 'poll'")
		fs.DurationVar(&f.pollInterval, "poll-interval", 0, "polling period for --watch-mode=poll")
		fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. ':9090'")
	}
}

// collect returns the flags that were set on c, keyed by flag name.
func (f *mirrorFlags) collect(c *cobra.Command) map[string]any {
	set := make(map[string]any)
	add := func(name string, value any) {
		if fl := c.Flags().Lookup(name); fl != nil && fl.Changed {
			set[name] = value
		}
	}
	add("source", f.source)
	add("target", f.target)
	add("behavior", f.behavior)
	add("watch-mode", f.watchMode)
	add("poll-interval", f.pollInterval)
	add("ffmpeg", f.ffmpeg)
	add("quality", f.quality)
	add("max-concurrency", f.maxConcurrency)
	add("retry-count", f.retryCount)
	add("retry-wait", f.retryWait)
	add("lock-target", f.lockTarget)
	add("metrics-addr", f.metricsAddr)
	if lvl, err := c.Flags().GetString("log-level"); err == nil {
		add("log-level", lvl)
	}
	return set
}
