package mirrorops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Galad/musicmirror/pkg/audioformat"
	"github.com/Galad/musicmirror/pkg/hints"
	"github.com/Galad/musicmirror/pkg/mirrorerr"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
)

func TestShouldSynchronize(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		last      time.Time
		hasRecord bool
		modified  time.Time
		want      bool
	}{
		{"no record", time.Time{}, false, t0, true},
		{"record older", t0.Add(-time.Second), true, t0, true},
		{"record equal", t0, true, t0, false},
		{"record newer", t0.Add(time.Hour), true, t0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldSynchronize(tc.last, tc.hasRecord, tc.modified); got != tc.want {
				t.Errorf("ShouldSynchronize() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTranscoding_SynchronizeFile(t *testing.T) {
	t0 := time.Now().Add(-time.Hour).Truncate(time.Second)

	t.Run("transcodes when there is no record", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		src := f.source("album/song.flac")
		writeFile(t, src, "fLaC", t0)

		if err := f.ops.SynchronizeFile(context.Background(), src); err != nil {
			t.Fatalf("SynchronizeFile: %v", err)
		}

		calls := f.transcoder.Calls()
		if len(calls) != 1 {
			t.Fatalf("transcoder called %d times, want 1", len(calls))
		}
		if calls[0].targetDir != f.mirror("album") {
			t.Errorf("target dir = %s, want %s", calls[0].targetDir, f.mirror("album"))
		}
		if calls[0].format.ShortName != audioformat.FLAC.ShortName {
			t.Errorf("format = %v, want FLAC", calls[0].format)
		}
		last, ok := f.books.LastSync(src)
		if !ok || last.Before(t0) {
			t.Errorf("record = %v (%v), want a time after %v", last, ok, t0)
		}
		assertExists(t, f.mirror("album/song.mp3"), true)
	})

	t.Run("skips when the record is newer", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		src := f.source("album/song.flac")
		writeFile(t, src, "fLaC", t0)
		f.books.Upsert(src, t0.Add(time.Minute))

		err := f.ops.SynchronizeFile(context.Background(), src)
		if !hints.Is(err, ErrUpToDate) {
			t.Fatalf("SynchronizeFile error = %v, want ErrUpToDate hint", err)
		}
		if n := len(f.transcoder.Calls()); n != 0 {
			t.Errorf("transcoder called %d times, want 0", n)
		}
	})

	t.Run("skips when the record equals the modification time", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		src := f.source("song.flac")
		writeFile(t, src, "fLaC", t0)
		f.books.Upsert(src, t0)

		if err := f.ops.SynchronizeFile(context.Background(), src); !hints.Is(err, ErrUpToDate) {
			t.Fatalf("SynchronizeFile error = %v, want ErrUpToDate hint", err)
		}
	})

	t.Run("existing mirror without a record is transcoded again", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		src := f.source("song.flac")
		writeFile(t, src, "fLaC", t0)
		// A copy left by the other family, newer than the source.
		writeFile(t, f.mirror("song.mp3"), "copied", t0.Add(time.Minute))

		if err := f.ops.SynchronizeFile(context.Background(), src); err != nil {
			t.Fatalf("SynchronizeFile: %v", err)
		}
		if n := len(f.transcoder.Calls()); n != 1 {
			t.Errorf("transcoder called %d times, want 1", n)
		}
		if got := readFile(t, f.mirror("song.mp3")); got != "mp3" {
			t.Errorf("mirror content = %q, want the transcoded output", got)
		}
	})

	t.Run("stale mirror is transcoded again", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		src := f.source("song.flac")
		writeFile(t, src, "fLaC", t0)
		writeFile(t, f.mirror("song.mp3"), "old", t0.Add(-time.Hour))

		if err := f.ops.SynchronizeFile(context.Background(), src); err != nil {
			t.Fatalf("SynchronizeFile: %v", err)
		}
		if n := len(f.transcoder.Calls()); n != 1 {
			t.Errorf("transcoder called %d times, want 1", n)
		}
	})

	t.Run("transcoder failure", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		f.transcoder.err = errEncoder
		src := f.source("song.flac")
		writeFile(t, src, "fLaC", t0)

		err := f.ops.SynchronizeFile(context.Background(), src)
		if !errors.Is(err, mirrorerr.ErrTranscodeFailure) || !errors.Is(err, errEncoder) {
			t.Fatalf("SynchronizeFile error = %v, want transcode failure wrapping the encoder error", err)
		}
		if _, ok := f.books.LastSync(src); ok {
			t.Error("a failed transcode must not be recorded")
		}
	})

	t.Run("path outside the source root", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		outside := filepath.Join(filepath.Dir(f.cfg.SourceRoot), "elsewhere.flac")

		err := f.ops.SynchronizeFile(context.Background(), outside)
		if !errors.Is(err, mirrorerr.ErrInvalidPath) {
			t.Fatalf("SynchronizeFile error = %v, want ErrInvalidPath", err)
		}
	})
}

func TestTranscoding_DeleteFile(t *testing.T) {
	f := newFixture(t, mirrorpath.Copy)
	ctx := context.Background()
	src := f.source("album/song.flac")
	writeFile(t, src, "fLaC", time.Now().Add(-time.Hour))
	if err := f.ops.SynchronizeFile(ctx, src); err != nil {
		t.Fatalf("SynchronizeFile: %v", err)
	}
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}

	if err := f.ops.DeleteFile(ctx, src); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	assertExists(t, f.mirror("album/song.mp3"), false)
	if _, ok := f.books.LastSync(src); ok {
		t.Error("record still present after delete")
	}
	has, err := f.ops.HasMirroredFileForPath(ctx, src)
	if err != nil || has {
		t.Errorf("HasMirroredFileForPath = %v, %v; want false, nil", has, err)
	}

	// Deleting again is not an error.
	if err := f.ops.DeleteFile(ctx, src); err != nil {
		t.Errorf("second DeleteFile: %v", err)
	}
}

func TestTranscoding_RenameFile(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the existing mirror", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		oldSrc := f.source("a/old.flac")
		newSrc := f.source("b/new.flac")
		writeFile(t, oldSrc, "fLaC", time.Now().Add(-time.Hour))
		if err := f.ops.SynchronizeFile(ctx, oldSrc); err != nil {
			t.Fatalf("SynchronizeFile: %v", err)
		}
		if err := os.MkdirAll(filepath.Dir(newSrc), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(oldSrc, newSrc); err != nil {
			t.Fatal(err)
		}

		if err := f.ops.RenameFile(ctx, newSrc, oldSrc); err != nil {
			t.Fatalf("RenameFile: %v", err)
		}

		assertExists(t, f.mirror("a/old.mp3"), false)
		assertExists(t, f.mirror("b/new.mp3"), true)
		if n := len(f.transcoder.Calls()); n != 1 {
			t.Errorf("transcoder called %d times, want 1", n)
		}
		if _, ok := f.books.LastSync(oldSrc); ok {
			t.Error("old record still present")
		}
		if _, ok := f.books.LastSync(newSrc); !ok {
			t.Error("new record missing")
		}
	})

	t.Run("records the source modification time", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		t0 := time.Now().Add(-time.Hour).Truncate(time.Second)
		f.ops.now = func() time.Time { return t0.Add(24 * time.Hour) }
		oldSrc := f.source("old.flac")
		newSrc := f.source("new.flac")
		writeFile(t, oldSrc, "fLaC", t0)
		if err := f.ops.SynchronizeFile(ctx, oldSrc); err != nil {
			t.Fatalf("SynchronizeFile: %v", err)
		}
		if err := os.Rename(oldSrc, newSrc); err != nil {
			t.Fatal(err)
		}
		if err := f.ops.RenameFile(ctx, newSrc, oldSrc); err != nil {
			t.Fatalf("RenameFile: %v", err)
		}
		if last, ok := f.books.LastSync(newSrc); !ok || !last.Equal(t0) {
			t.Fatalf("record = %v (%v), want %v", last, ok, t0)
		}

		writeFile(t, newSrc, "fLaC v2", t0.Add(time.Minute))
		if err := f.ops.SynchronizeFile(ctx, newSrc); err != nil {
			t.Fatalf("SynchronizeFile after write: %v", err)
		}
		if n := len(f.transcoder.Calls()); n != 2 {
			t.Errorf("transcoder called %d times, want 2", n)
		}
	})

	t.Run("synchronizes when there is no old mirror", func(t *testing.T) {
		f := newFixture(t, mirrorpath.Copy)
		newSrc := f.source("new.flac")
		writeFile(t, newSrc, "fLaC", time.Now().Add(-time.Hour))

		if err := f.ops.RenameFile(ctx, newSrc, f.source("old.flac")); err != nil {
			t.Fatalf("RenameFile: %v", err)
		}
		if n := len(f.transcoder.Calls()); n != 1 {
			t.Errorf("transcoder called %d times, want 1", n)
		}
		assertExists(t, f.mirror("new.mp3"), true)
	})
}
