package mirrorops

import (
	"context"
	"time"

	"github.com/Galad/musicmirror/pkg/audioformat"
	"github.com/Galad/musicmirror/pkg/bookkeeper"
	"github.com/Galad/musicmirror/pkg/metrics"
	"github.com/Galad/musicmirror/pkg/mirrorerr"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/transcoder"
)

// Transcoding mirrors files by transcoding them. The bookkeeper must name
// mirror files with the transcoder's OutputName.
type Transcoding struct {
	fs         FileSystem
	transcoder transcoder.Transcoder
	books      *bookkeeper.Bookkeeper
	metrics    metrics.Metrics
	now        func() time.Time
}

// NewTranscoding creates the transcoding operations. A nil m is NoopMetrics.
func NewTranscoding(fsys FileSystem, t transcoder.Transcoder, books *bookkeeper.Bookkeeper, m metrics.Metrics) *Transcoding {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Transcoding{fs: fsys, transcoder: t, books: books, metrics: m, now: time.Now}
}

func (t *Transcoding) SynchronizeFile(ctx context.Context, path string) error {
	mirrored, err := t.books.MirroredPath(path)
	if err != nil {
		return err
	}
	modifiedAt, err := t.fs.ModTime(path)
	if err != nil {
		return mirrorerr.IO("stat", path, err)
	}

	// Only the record counts: a file already at the mirror path may be a copy
	// left by the other family.
	last, ok := t.books.LastSync(path)
	if !ShouldSynchronize(last, ok, modifiedAt) {
		t.metrics.AddFilesUpToDate(1)
		return upToDate(path)
	}

	if err := t.fs.CreateDirectory(mirrored.Dir); err != nil {
		return mirrorerr.IO("mkdir", mirrored.Dir, err)
	}

	format, _ := audioformat.ForPath(path)
	if err := t.transcoder.Transcode(ctx, path, format, mirrored.Dir); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mirrorerr.Transcode("transcode", path, err)
	}

	t.books.Upsert(path, t.now())
	t.metrics.AddFilesTranscoded(1)
	plog.Notice("TRANSCODE", "path", path, "mirror", mirrored.Full())
	return nil
}

func (t *Transcoding) DeleteFile(ctx context.Context, path string) error {
	mirrored, err := t.books.MirroredPath(path)
	if err != nil {
		return err
	}
	existed, err := t.fs.Exists(mirrored.Full())
	if err != nil {
		return mirrorerr.IO("delete", mirrored.Full(), err)
	}
	if existed {
		if err := t.fs.Delete(mirrored.Full()); err != nil {
			return mirrorerr.IO("delete", mirrored.Full(), err)
		}
		t.metrics.AddFilesDeleted(1)
		plog.Notice("DELETE", "path", path, "mirror", mirrored.Full())
	}
	t.books.Remove(path)
	return nil
}

// RenameFile moves the mirror of oldPath to the mirror location of newPath.
// When oldPath has no mirror, newPath is synchronized instead.
func (t *Transcoding) RenameFile(ctx context.Context, newPath, oldPath string) error {
	has, err := t.HasMirroredFileForPath(ctx, oldPath)
	if err != nil {
		return err
	}
	if !has {
		plog.Debug("No mirror to rename, synchronizing instead", "path", newPath, "old", oldPath)
		return t.SynchronizeFile(ctx, newPath)
	}

	oldMirror, err := t.books.MirroredPath(oldPath)
	if err != nil {
		return err
	}
	newMirror, err := t.books.MirroredPath(newPath)
	if err != nil {
		return err
	}
	if err := t.fs.Move(ctx, oldMirror.Full(), newMirror.Full()); err != nil {
		return mirrorerr.IO("rename", oldMirror.Full(), err)
	}

	t.recordMove(oldPath, newPath)
	t.metrics.AddFilesRenamed(1)
	plog.Notice("RENAME", "path", newPath, "old", oldPath, "mirror", newMirror.Full())
	return nil
}

// recordMove carries the record over to newPath, stamped with the source's
// modification time so a later write to newPath is transcoded again.
func (t *Transcoding) recordMove(oldPath, newPath string) {
	modifiedAt, err := t.fs.ModTime(newPath)
	if err != nil {
		t.books.Remove(oldPath)
		return
	}
	t.books.Move(oldPath, newPath, modifiedAt)
}

func (t *Transcoding) MirroredPath(path string) (mirrorpath.MirroredPath, error) {
	return t.books.MirroredPath(path)
}

func (t *Transcoding) Forget(path string) { t.books.Remove(path) }

func (t *Transcoding) ForgetTree(dir string) int { return t.books.RemoveTree(dir) }

func (t *Transcoding) MoveTree(oldDir, newDir string) int { return t.books.MoveTree(oldDir, newDir) }

func (t *Transcoding) HasMirroredFileForPath(ctx context.Context, path string) (bool, error) {
	mirrored, err := t.books.MirroredPath(path)
	if err != nil {
		return false, err
	}
	exists, err := t.fs.Exists(mirrored.Full())
	if err != nil {
		return false, mirrorerr.IO("stat", mirrored.Full(), err)
	}
	return exists, nil
}

var _ Operations = (*Transcoding)(nil)
