package mirrorops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Galad/musicmirror/pkg/audioformat"
	"github.com/Galad/musicmirror/pkg/bookkeeper"
	"github.com/Galad/musicmirror/pkg/fileops"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/transcoder"
)

// recordingTranscoder writes "<name>.mp3" and remembers every call.
type recordingTranscoder struct {
	mu    sync.Mutex
	calls []transcodeCall
	err   error
}

type transcodeCall struct {
	source    string
	format    audioformat.Format
	targetDir string
}

func (r *recordingTranscoder) OutputName(fileName string) string {
	return transcoder.ReplaceExtension(fileName, ".mp3")
}

func (r *recordingTranscoder) Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error {
	r.mu.Lock()
	r.calls = append(r.calls, transcodeCall{source: sourcePath, format: format, targetDir: targetDir})
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	out := filepath.Join(targetDir, r.OutputName(filepath.Base(sourcePath)))
	return os.WriteFile(out, []byte("mp3"), 0644)
}

func (r *recordingTranscoder) Calls() []transcodeCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcodeCall(nil), r.calls...)
}

var errEncoder = errors.New("encoder crashed")

type fixture struct {
	cfg        mirrorpath.Configuration
	fs         *fileops.FS
	transcoder *recordingTranscoder
	books      *bookkeeper.Bookkeeper
	ops        *Transcoding
}

func newFixture(t *testing.T, behavior mirrorpath.Behavior) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := mirrorpath.NewConfiguration(filepath.Join(root, "library"), filepath.Join(root, "mirror"), behavior)
	for _, dir := range []string{cfg.SourceRoot, cfg.TargetRoot} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	fsys := fileops.New(fileops.Options{})
	tr := &recordingTranscoder{}
	books := bookkeeper.New(cfg, tr.OutputName)
	return &fixture{
		cfg:        cfg,
		fs:         fsys,
		transcoder: tr,
		books:      books,
		ops:        NewTranscoding(fsys, tr, books, nil),
	}
}

func (f *fixture) source(rel string) string {
	return filepath.Join(f.cfg.SourceRoot, filepath.FromSlash(rel))
}

func (f *fixture) mirror(rel string) string {
	return filepath.Join(f.cfg.TargetRoot, filepath.FromSlash(rel))
}

// writeFile creates path with content and sets its modification time.
func writeFile(t *testing.T, path, content string, modTime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func assertExists(t *testing.T, path string, want bool) {
	t.Helper()
	_, err := os.Lstat(path)
	got := err == nil
	if got != want {
		t.Errorf("exists(%s) = %v, want %v (err: %v)", path, got, want, err)
	}
}
