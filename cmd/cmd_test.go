package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
		wantPrompt string
	}{
		{"explicit yes", "y\n", false, true, "Continue? [y/N]: "},
		{"explicit no", "n\n", true, false, "Continue? [Y/n]: "},
		{"empty takes default yes", "\n", true, true, "Continue? [Y/n]: "},
		{"empty takes default no", "\n", false, false, "Continue? [y/N]: "},
		{"full word", "YES\n", false, true, "Continue? [y/N]: "},
		{"no newline", "y", false, true, "Continue? [y/N]: "},
		{"garbage", "maybe\n", true, false, "Continue? [Y/n]: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := confirm(strings.NewReader(tt.input), &out, "Continue?", tt.defaultYes)
			if got != tt.want {
				t.Errorf("confirm() = %v, want %v", got, tt.want)
			}
			if out.String() != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", out.String(), tt.wantPrompt)
			}
		})
	}
}

func TestMirrorFlags_CollectsOnlySetFlags(t *testing.T) {
	f := &mirrorFlags{}
	c := &cobra.Command{Use: "test"}
	f.register(c, true)
	if err := c.ParseFlags([]string{"--source", "/music", "--quality", "5", "--lock-target=false"}); err != nil {
		t.Fatal(err)
	}

	got := f.collect(c)
	want := map[string]any{"source": "/music", "quality": 5, "lock-target": false}
	if len(got) != len(want) {
		t.Fatalf("collect() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("collect()[%q] = %v, want %v", k, got[k], v)
		}
	}
}

func TestMirrorFlags_SyncHasNoDaemonFlags(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	(&mirrorFlags{}).register(c, false)
	for _, name := range []string{"watch-mode", "poll-interval", "metrics-addr"} {
		if c.Flags().Lookup(name) != nil {
			t.Errorf("flag %s registered on a one-shot command", name)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, buildinfo.Version) {
		t.Errorf("output %q does not contain the version", out)
	}
}

func TestInit_WritesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	src, dst := filepath.Join(dir, "library"), filepath.Join(dir, "mirror")

	if _, err := run(t, "", "init", "--config", path, "--source", src, "--target", dst, "--behavior", "symlink", "--quality", "4"); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != src || cfg.Target != dst {
		t.Errorf("roots = %s -> %s, want %s -> %s", cfg.Source, cfg.Target, src, dst)
	}
	if cfg.Behavior != mirrorpath.Symlink {
		t.Errorf("Behavior = %v, want symlink", cfg.Behavior)
	}
	if cfg.Transcoder.Quality != 4 {
		t.Errorf("Quality = %d, want 4", cfg.Transcoder.Quality)
	}
}

func TestInit_RequiresRoots(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	if _, err := run(t, "", "init", "--config", path); err == nil {
		t.Fatal("expected an error without source and target")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("config file written despite the error: %v", err)
	}
}

func TestInit_KeepsExistingFileWhenDeclined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	if _, err := run(t, "", "init", "--config", path, "--source", filepath.Join(dir, "a"), "--target", filepath.Join(dir, "b")); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "n\n", "init", "--config", path, "--quality", "9"); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("declined init changed the file")
	}

	if _, err := run(t, "", "init", "--config", path, "--quality", "9", "--force"); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcoder.Quality != 9 || cfg.Source != filepath.Join(dir, "a") {
		t.Errorf("forced init lost settings: %+v", cfg)
	}
}

func TestSync_MirrorsLibrary(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "library"), filepath.Join(dir, "mirror")
	album := filepath.Join(src, "Artist", "Album")
	if err := os.MkdirAll(album, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"01.mp3", "cover.jpg"} {
		if err := os.WriteFile(filepath.Join(album, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	_, err := run(t, "", "sync",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--source", src,
		"--target", dst,
		"--ffmpeg", filepath.Join(dir, "no-ffmpeg"),
	)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	for _, name := range []string{"01.mp3", "cover.jpg"} {
		data, err := os.ReadFile(filepath.Join(dst, "Artist", "Album", name))
		if err != nil {
			t.Errorf("%s not mirrored: %v", name, err)
			continue
		}
		if string(data) != name {
			t.Errorf("%s content = %q", name, data)
		}
	}
}

func TestSync_RejectsNestedTarget(t *testing.T) {
	src := t.TempDir()
	_, err := run(t, "", "sync",
		"--config", filepath.Join(src, "missing.yaml"),
		"--source", src,
		"--target", filepath.Join(src, "mirror"),
	)
	if err == nil {
		t.Fatal("expected a preflight error for a target inside the source")
	}
}
