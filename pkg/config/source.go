package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
)

// Source streams mirror configurations. The channel is closed when ctx is
// done or the source has nothing more to say.
type Source interface {
	Configurations(ctx context.Context) <-chan mirrorpath.Configuration
}

// SourceFunc adapts a func to Source.
type SourceFunc func(ctx context.Context) <-chan mirrorpath.Configuration

func (f SourceFunc) Configurations(ctx context.Context) <-chan mirrorpath.Configuration {
	return f(ctx)
}

// Static emits cfg once.
func Static(cfg mirrorpath.Configuration) Source {
	return SourceFunc(func(ctx context.Context) <-chan mirrorpath.Configuration {
		out := make(chan mirrorpath.Configuration, 1)
		out <- cfg
		close(out)
		return out
	})
}

// FileSource emits the configuration in a YAML file, and again every time
// the file changes. Flags holds CLI overrides applied to each reload.
type FileSource struct {
	Path     string
	Flags    map[string]any
	Debounce time.Duration
}

// Load reads, merges and validates the file once.
func (s *FileSource) Load() (Config, error) {
	cfg, err := Load(s.Path)
	if err != nil {
		return Config{}, err
	}
	cfg, err = MergeFlags(cfg, s.Flags)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %s: %w", s.Path, err)
	}
	return cfg, nil
}

func (s *FileSource) Configurations(ctx context.Context) <-chan mirrorpath.Configuration {
	out := make(chan mirrorpath.Configuration, 1)
	go s.run(ctx, out)
	return out
}

func (s *FileSource) emit(ctx context.Context, out chan<- mirrorpath.Configuration) bool {
	cfg, err := s.Load()
	if err != nil {
		plog.Warn("Ignoring configuration", "path", s.Path, "error", err)
		return true
	}
	select {
	case out <- cfg.Mirror():
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *FileSource) run(ctx context.Context, out chan<- mirrorpath.Configuration) {
	defer close(out)
	if !s.emit(ctx, out) {
		return
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		plog.Warn("Configuration reload disabled", "error", err)
		<-ctx.Done()
		return
	}
	defer w.Close()

	// Editors replace files by rename, so the directory is watched.
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		abs = s.Path
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		plog.Warn("Configuration reload disabled", "path", s.Path, "error", err)
		<-ctx.Done()
		return
	}

	debounce := s.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			plog.Warn("Configuration watch error", "error", err)
		case <-timer.C:
			plog.Info("Configuration file changed, reloading", "path", s.Path)
			if !s.emit(ctx, out) {
				return
			}
		}
	}
}

// FilterValid drops configurations that fail check and repeats of the last
// configuration passed on. A change of behavior alone is not a repeat.
func FilterValid(src Source, check func(mirrorpath.Configuration) error) Source {
	return SourceFunc(func(ctx context.Context) <-chan mirrorpath.Configuration {
		in := src.Configurations(ctx)
		out := make(chan mirrorpath.Configuration)
		go func() {
			defer close(out)
			var last mirrorpath.Configuration
			hasLast := false
			for cfg := range in {
				if hasLast && cfg == last {
					plog.Debug("Configuration unchanged", "config", cfg.String())
					continue
				}
				if check != nil {
					if err := check(cfg); err != nil {
						plog.Warn("Rejecting configuration", "config", cfg.String(), "error", err)
						continue
					}
				}
				last, hasLast = cfg, true
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	})
}
