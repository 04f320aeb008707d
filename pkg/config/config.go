// Package config loads the musicmirror YAML file and turns it into a stream
// of mirror configurations.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/transcoder"
	"github.com/Galad/musicmirror/pkg/util"
	"github.com/Galad/musicmirror/pkg/watch"
)

// FileName is the default configuration file name.
const FileName = "musicmirror.yaml"

type WatchConfig struct {
	Mode         string        `yaml:"mode"`
	PollInterval time.Duration `yaml:"poll_interval"`
	RenameWindow time.Duration `yaml:"rename_window"`
	Debounce     time.Duration `yaml:"debounce"`
}

type TranscoderConfig struct {
	FFmpeg  string `yaml:"ffmpeg"`
	Quality int    `yaml:"quality"`
}

type SyncConfig struct {
	MaxConcurrency int           `yaml:"max_concurrency"`
	RetryCount     int           `yaml:"retry_count"`
	RetryWait      time.Duration `yaml:"retry_wait"`
	BufferSizeKB   int           `yaml:"buffer_size_kb"`
	LockTarget     bool          `yaml:"lock_target"`
	RequireMount   bool          `yaml:"require_mount"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics when set, e.g. ":9090".
	Addr             string        `yaml:"addr"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type Config struct {
	Version    string              `yaml:"version"`
	Source     string              `yaml:"source"`
	Target     string              `yaml:"target"`
	Behavior   mirrorpath.Behavior `yaml:"behavior"`
	Watch      WatchConfig         `yaml:"watch"`
	Transcoder TranscoderConfig    `yaml:"transcoder"`
	Sync       SyncConfig          `yaml:"sync"`
	Log        LogConfig           `yaml:"log"`
	Metrics    MetricsConfig       `yaml:"metrics"`
}

// NewDefault returns a Config with every default filled in. Source and
// target are left empty on purpose.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		Behavior: mirrorpath.Copy,
		Watch: WatchConfig{
			Mode:         watch.Native.String(),
			PollInterval: watch.DefaultPollInterval,
			RenameWindow: watch.DefaultRenameWindow,
			Debounce:     watch.DefaultDebounce,
		},
		Transcoder: TranscoderConfig{
			FFmpeg:  "ffmpeg",
			Quality: transcoder.DefaultQuality,
		},
		Sync: SyncConfig{
			MaxConcurrency: 4,
			RetryCount:     3,
			RetryWait:      time.Second,
			BufferSizeKB:   256,
			LockTarget:     true,
		},
		Log: LogConfig{Level: "info"},
		Metrics: MetricsConfig{
			ProgressInterval: time.Minute,
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		plog.Debug("No configuration file, using defaults", "path", path)
		return NewDefault(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	plog.Info("Loaded configuration", "path", path)
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := NewDefault()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	cfg.Version = buildinfo.Version
	return cfg, nil
}

// Generate writes cfg to path. It refuses to overwrite unless force is set.
func Generate(cfg Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	plog.Info("Saved config file", "path", path)
	return nil
}

// Validate checks every field and normalizes the roots to absolute paths.
func (c *Config) Validate() error {
	if c.Source == "" {
		return errors.New("source path cannot be empty")
	}
	if c.Target == "" {
		return errors.New("target path cannot be empty")
	}

	var err error
	if c.Source, err = util.AbsPath(c.Source); err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	if c.Target, err = util.AbsPath(c.Target); err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	if _, ok := behaviorNames[c.Behavior]; !ok {
		return fmt.Errorf("behavior %s is not supported", c.Behavior)
	}
	mode, err := watch.ParseMode(c.Watch.Mode)
	if err != nil {
		return fmt.Errorf("watch.mode: %w", err)
	}
	if mode == watch.Polling && c.Watch.PollInterval <= 0 {
		return errors.New("watch.poll_interval must be positive in poll mode")
	}
	if c.Watch.RenameWindow < 0 || c.Watch.Debounce < 0 {
		return errors.New("watch.rename_window and watch.debounce cannot be negative")
	}

	if c.Transcoder.FFmpeg == "" {
		return errors.New("transcoder.ffmpeg cannot be empty")
	}
	if c.Transcoder.Quality < 0 || c.Transcoder.Quality > 9 {
		return fmt.Errorf("transcoder.quality must be between 0 and 9, got %d", c.Transcoder.Quality)
	}

	if c.Sync.MaxConcurrency < 1 {
		return errors.New("sync.max_concurrency must be at least 1")
	}
	if c.Sync.RetryCount < 0 {
		return errors.New("sync.retry_count cannot be negative")
	}
	if c.Sync.RetryWait < 0 {
		return errors.New("sync.retry_wait cannot be negative")
	}
	if c.Sync.BufferSizeKB <= 0 {
		return errors.New("sync.buffer_size_kb must be greater than 0")
	}
	if _, err := plog.LevelFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

var behaviorNames = map[mirrorpath.Behavior]bool{
	mirrorpath.Copy:    true,
	mirrorpath.Symlink: true,
	mirrorpath.Ignore:  true,
}

// Mirror returns the mirror configuration described by c.
func (c *Config) Mirror() mirrorpath.Configuration {
	return mirrorpath.NewConfiguration(c.Source, c.Target, c.Behavior)
}

// WatchMode returns the parsed watch mode. Call after Validate.
func (c *Config) WatchMode() watch.Mode {
	mode, _ := watch.ParseMode(c.Watch.Mode)
	return mode
}

// WatchOptions returns the watch tuning.
func (c *Config) WatchOptions() watch.Options {
	return watch.Options{
		Debounce:     c.Watch.Debounce,
		RenameWindow: c.Watch.RenameWindow,
		PollInterval: c.Watch.PollInterval,
	}
}

// LogSummary logs the effective configuration.
func (c *Config) LogSummary() {
	plog.Info("Configuration",
		"source", c.Source,
		"target", c.Target,
		"behavior", c.Behavior,
		"watch_mode", c.Watch.Mode,
		"ffmpeg", c.Transcoder.FFmpeg,
		"quality", c.Transcoder.Quality,
		"max_concurrency", c.Sync.MaxConcurrency,
		"retry_count", c.Sync.RetryCount,
		"retry_wait", c.Sync.RetryWait,
		"lock_target", c.Sync.LockTarget,
		"log_level", c.Log.Level,
		"metrics_addr", c.Metrics.Addr,
	)
}

// MergeFlags overlays the flags the user set explicitly, keyed by flag name.
func MergeFlags(base Config, setFlags map[string]any) (Config, error) {
	merged := base
	for name, value := range setFlags {
		switch name {
		case "source":
			merged.Source = value.(string)
		case "target":
			merged.Target = value.(string)
		case "behavior":
			b, err := mirrorpath.ParseBehavior(value.(string))
			if err != nil {
				return Config{}, err
			}
			merged.Behavior = b
		case "watch-mode":
			merged.Watch.Mode = value.(string)
		case "poll-interval":
			merged.Watch.PollInterval = value.(time.Duration)
		case "ffmpeg":
			merged.Transcoder.FFmpeg = value.(string)
		case "quality":
			merged.Transcoder.Quality = value.(int)
		case "max-concurrency":
			merged.Sync.MaxConcurrency = value.(int)
		case "retry-count":
			merged.Sync.RetryCount = value.(int)
		case "retry-wait":
			merged.Sync.RetryWait = value.(time.Duration)
		case "lock-target":
			merged.Sync.LockTarget = value.(bool)
		case "log-level":
			merged.Log.Level = value.(string)
		case "metrics-addr":
			merged.Metrics.Addr = value.(string)
		default:
			plog.Debug("Unhandled flag in MergeFlags", "flag", name)
		}
	}
	return merged, nil
}
