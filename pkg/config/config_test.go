package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/watch"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := NewDefault()
	cfg.Source = t.TempDir()
	cfg.Target = t.TempDir()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty source", func(c *Config) { c.Source = "" }, "source path"},
		{"empty target", func(c *Config) { c.Target = "" }, "target path"},
		{"unknown behavior", func(c *Config) { c.Behavior = mirrorpath.Behavior(42) }, "behavior"},
		{"unknown watch mode", func(c *Config) { c.Watch.Mode = "inotify" }, "watch.mode"},
		{"poll without interval", func(c *Config) { c.Watch.Mode = "poll"; c.Watch.PollInterval = 0 }, "poll_interval"},
		{"quality too high", func(c *Config) { c.Transcoder.Quality = 10 }, "quality"},
		{"empty ffmpeg", func(c *Config) { c.Transcoder.FFmpeg = "" }, "ffmpeg"},
		{"zero concurrency", func(c *Config) { c.Sync.MaxConcurrency = 0 }, "max_concurrency"},
		{"negative retries", func(c *Config) { c.Sync.RetryCount = -1 }, "retry_count"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestConfig_ValidateMakesRootsAbsolute(t *testing.T) {
	cfg := validConfig(t)
	cfg.Source = "relative/library"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(cfg.Source) {
		t.Errorf("source %q is not absolute", cfg.Source)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), FileName))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Sync.MaxConcurrency != 4 || cfg.Behavior != mirrorpath.Copy {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		yamlText := `source: /music
target: /mirror
behavior: symlink
watch:
  mode: poll
  poll_interval: 10s
sync:
  max_concurrency: 2
`
		if err := os.WriteFile(path, []byte(yamlText), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Behavior != mirrorpath.Symlink {
			t.Errorf("behavior = %s", cfg.Behavior)
		}
		if cfg.WatchMode() != watch.Polling || cfg.Watch.PollInterval != 10*time.Second {
			t.Errorf("watch = %+v", cfg.Watch)
		}
		if cfg.Sync.MaxConcurrency != 2 || cfg.Sync.RetryCount != 3 {
			t.Errorf("sync = %+v", cfg.Sync)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("sorce: /music\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected an error for an unknown key")
		}
	})

	t.Run("bad behavior", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), FileName)
		if err := os.WriteFile(path, []byte("behavior: hardlink\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected an error for an unknown behavior")
		}
	})
}

func TestGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := NewDefault()
	cfg.Source = "/music"
	cfg.Behavior = mirrorpath.Ignore
	if err := Generate(cfg, path, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := Generate(cfg, path, false); err == nil {
		t.Error("expected Generate to refuse overwriting")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Source != "/music" || loaded.Behavior != mirrorpath.Ignore || loaded.Watch.RenameWindow != cfg.Watch.RenameWindow {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestMergeFlags(t *testing.T) {
	base := NewDefault()
	base.Source = "/from-file"
	merged, err := MergeFlags(base, map[string]any{
		"target":          "/from-flag",
		"behavior":        "symlink",
		"max-concurrency": 8,
		"retry-wait":      5 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if merged.Source != "/from-file" || merged.Target != "/from-flag" {
		t.Errorf("roots = %s, %s", merged.Source, merged.Target)
	}
	if merged.Behavior != mirrorpath.Symlink || merged.Sync.MaxConcurrency != 8 || merged.Sync.RetryWait != 5*time.Second {
		t.Errorf("merged = %+v", merged)
	}

	if _, err := MergeFlags(base, map[string]any{"behavior": "hardlink"}); err == nil {
		t.Error("expected an error for an unknown behavior flag")
	}
}

func collect(t *testing.T, ch <-chan mirrorpath.Configuration) []mirrorpath.Configuration {
	t.Helper()
	var got []mirrorpath.Configuration
	timeout := time.After(2 * time.Second)
	for {
		select {
		case cfg, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, cfg)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestFilterValid(t *testing.T) {
	a := mirrorpath.NewConfiguration("/music", "/mirror", mirrorpath.Copy)
	aSymlink := mirrorpath.NewConfiguration("/music", "/mirror", mirrorpath.Symlink)
	bad := mirrorpath.NewConfiguration("/missing", "/mirror", mirrorpath.Copy)

	src := SourceFunc(func(ctx context.Context) <-chan mirrorpath.Configuration {
		ch := make(chan mirrorpath.Configuration, 5)
		for _, c := range []mirrorpath.Configuration{a, a, bad, aSymlink, a} {
			ch <- c
		}
		close(ch)
		return ch
	})
	check := func(c mirrorpath.Configuration) error {
		if c.SourceRoot == "/missing" {
			return errors.New("source does not exist")
		}
		return nil
	}

	got := collect(t, FilterValid(src, check).Configurations(context.Background()))
	want := []mirrorpath.Configuration{a, aSymlink, a}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFileSource_Reload(t *testing.T) {
	dir := t.TempDir()
	library := filepath.Join(dir, "library")
	if err := os.Mkdir(library, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, FileName)
	write := func(target string) {
		t.Helper()
		text := "source: " + library + "\ntarget: " + target + "\n"
		if err := os.WriteFile(path, []byte(text), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(dir, "mirror1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &FileSource{Path: path, Debounce: 20 * time.Millisecond}
	ch := src.Configurations(ctx)

	first := <-ch
	if first.TargetRoot != filepath.Join(dir, "mirror1") {
		t.Fatalf("first target = %s", first.TargetRoot)
	}

	// Give the watcher time to start before editing.
	time.Sleep(100 * time.Millisecond)
	write(filepath.Join(dir, "mirror2"))

	select {
	case second := <-ch:
		if second.TargetRoot != filepath.Join(dir, "mirror2") {
			t.Errorf("second target = %s", second.TargetRoot)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after the file changed")
	}

	cancel()
	for range ch {
	}
}

func TestStatic(t *testing.T) {
	cfg := mirrorpath.NewConfiguration("/music", "/mirror", mirrorpath.Copy)
	got := collect(t, Static(cfg).Configurations(context.Background()))
	if len(got) != 1 || got[0] != cfg {
		t.Errorf("got %v", got)
	}
}
