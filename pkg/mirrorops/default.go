package mirrorops

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Galad/musicmirror/pkg/bookkeeper"
	"github.com/Galad/musicmirror/pkg/fileops"
	"github.com/Galad/musicmirror/pkg/metrics"
	"github.com/Galad/musicmirror/pkg/mirrorerr"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
)

// Default mirrors files that are not transcoded, according to the configured
// behavior. Its bookkeeper uses the identity namer.
type Default struct {
	behavior mirrorpath.Behavior
	fs       FileSystem
	linker   Linker
	books    *bookkeeper.Bookkeeper
	metrics  metrics.Metrics
	now      func() time.Time
}

// NewDefault creates the default operations. linker may be nil unless the
// behavior is Symlink. A nil m is NoopMetrics.
func NewDefault(behavior mirrorpath.Behavior, fsys FileSystem, linker Linker, books *bookkeeper.Bookkeeper, m metrics.Metrics) *Default {
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	return &Default{behavior: behavior, fs: fsys, linker: linker, books: books, metrics: m, now: time.Now}
}

func (d *Default) SynchronizeFile(ctx context.Context, path string) error {
	if d.behavior == mirrorpath.Ignore {
		return ignored(path)
	}
	mirrored, err := d.books.MirroredPath(path)
	if err != nil {
		return err
	}

	info, err := d.fs.Stat(path)
	if err != nil {
		return mirrorerr.IO("stat", path, err)
	}
	if info.IsDir() {
		// Files inside arrive as their own events; only the directory is created.
		if err := d.fs.CreateDirectory(mirrored.Full()); err != nil {
			return mirrorerr.IO("mkdir", mirrored.Full(), err)
		}
		return nil
	}

	if last, ok := d.books.LastSync(path); ok && !ShouldSynchronize(last, ok, info.ModTime()) {
		d.metrics.AddFilesUpToDate(1)
		return upToDate(path)
	}

	switch d.behavior {
	case mirrorpath.Symlink:
		return d.link(ctx, path, mirrored)
	default:
		return d.copy(ctx, path, mirrored)
	}
}

func (d *Default) copy(ctx context.Context, path string, mirrored mirrorpath.MirroredPath) error {
	current, err := d.fs.IsUpToDate(path, mirrored.Full())
	if err != nil {
		return mirrorerr.IO("stat", mirrored.Full(), err)
	}
	if current {
		d.books.UpsertIfNewer(path, d.now())
		d.metrics.AddFilesUpToDate(1)
		return upToDate(path)
	}

	if err := d.fs.CreateDirectory(mirrored.Dir); err != nil {
		return mirrorerr.IO("mkdir", mirrored.Dir, err)
	}
	written, err := d.fs.CopyFile(ctx, path, mirrored.Full())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mirrorerr.IO("copy", path, err)
	}

	d.books.Upsert(path, d.now())
	d.metrics.AddFilesCopied(1)
	d.metrics.AddBytesWritten(written)
	plog.Notice("COPY", "path", path, "mirror", mirrored.Full())
	return nil
}

func (d *Default) link(ctx context.Context, path string, mirrored mirrorpath.MirroredPath) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return mirrorerr.IO("link", path, err)
	}
	current, err := fileops.LinkPointsTo(mirrored.Full(), target)
	if err != nil {
		return mirrorerr.IO("readlink", mirrored.Full(), err)
	}
	if current {
		d.books.UpsertIfNewer(path, d.now())
		d.metrics.AddFilesUpToDate(1)
		return upToDate(path)
	}

	if err := d.fs.CreateDirectory(mirrored.Dir); err != nil {
		return mirrorerr.IO("mkdir", mirrored.Dir, err)
	}
	if err := d.linker.Link(ctx, target, mirrored.Full()); err != nil {
		var unsupported *fileops.UnsupportedLinkError
		if errors.As(err, &unsupported) {
			return mirrorerr.Unsupported("symlink", mirrored.Full(), err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mirrorerr.IO("symlink", mirrored.Full(), err)
	}

	d.books.Upsert(path, d.now())
	d.metrics.AddFilesLinked(1)
	plog.Notice("LINK", "path", path, "mirror", mirrored.Full())
	return nil
}

// DeleteFile removes the mirror of path. A mirrored directory is removed with
// everything below it, whatever the behavior, since transcoded files share it.
func (d *Default) DeleteFile(ctx context.Context, path string) error {
	mirrored, err := d.books.MirroredPath(path)
	if err != nil {
		return err
	}

	info, err := d.fs.Lstat(mirrored.Full())
	if errors.Is(err, fs.ErrNotExist) {
		d.books.Remove(path)
		if d.behavior == mirrorpath.Ignore {
			return ignored(path)
		}
		return nil
	}
	if err != nil {
		return mirrorerr.IO("stat", mirrored.Full(), err)
	}
	if !info.IsDir() && d.behavior == mirrorpath.Ignore {
		return ignored(path)
	}

	if err := d.fs.Delete(mirrored.Full()); err != nil {
		return mirrorerr.IO("delete", mirrored.Full(), err)
	}
	if info.IsDir() {
		d.books.RemoveTree(path)
	}
	d.books.Remove(path)
	d.metrics.AddFilesDeleted(1)
	plog.Notice("DELETE", "path", path, "mirror", mirrored.Full())
	return nil
}

// RenameFile moves the mirror of oldPath to that of newPath, or synchronizes
// newPath when oldPath has no mirror. Symbolic links are recreated so they
// point at the renamed source. Directories are moved whatever the behavior.
func (d *Default) RenameFile(ctx context.Context, newPath, oldPath string) error {
	oldMirror, err := d.books.MirroredPath(oldPath)
	if err != nil {
		return err
	}
	newMirror, err := d.books.MirroredPath(newPath)
	if err != nil {
		return err
	}

	info, err := d.fs.Lstat(oldMirror.Full())
	if errors.Is(err, fs.ErrNotExist) {
		if d.behavior == mirrorpath.Ignore {
			return ignored(newPath)
		}
		plog.Debug("No mirror to rename, synchronizing instead", "path", newPath, "old", oldPath)
		return d.SynchronizeFile(ctx, newPath)
	}
	if err != nil {
		return mirrorerr.IO("stat", oldMirror.Full(), err)
	}
	if !info.IsDir() && d.behavior == mirrorpath.Ignore {
		return ignored(newPath)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if err := d.fs.Delete(oldMirror.Full()); err != nil {
			return mirrorerr.IO("delete", oldMirror.Full(), err)
		}
		d.books.Remove(oldPath)
		return d.SynchronizeFile(ctx, newPath)
	case info.IsDir():
		if err := d.fs.Move(ctx, oldMirror.Full(), newMirror.Full()); err != nil {
			return mirrorerr.IO("rename", oldMirror.Full(), err)
		}
		d.books.MoveTree(oldPath, newPath)
		if d.behavior == mirrorpath.Symlink {
			if err := d.relinkTree(ctx, newMirror.Full(), oldPath, newPath); err != nil {
				return err
			}
		}
		d.metrics.AddFilesRenamed(1)
		plog.Notice("RENAME", "path", newPath, "old", oldPath, "mirror", newMirror.Full())
		return nil
	}

	if err := d.fs.Move(ctx, oldMirror.Full(), newMirror.Full()); err != nil {
		return mirrorerr.IO("rename", oldMirror.Full(), err)
	}
	d.recordMove(oldPath, newPath)
	d.metrics.AddFilesRenamed(1)
	plog.Notice("RENAME", "path", newPath, "old", oldPath, "mirror", newMirror.Full())

	// A rename paired from unrelated events carries the wrong content.
	if current, err := d.fs.IsUpToDate(newPath, newMirror.Full()); err == nil && !current {
		plog.Debug("Renamed mirror differs from its source, copying", "path", newPath)
		return d.copy(ctx, newPath, newMirror)
	}
	return nil
}

// recordMove carries the record over to newPath, stamped with the source's
// modification time so a later write to newPath is mirrored again.
func (d *Default) recordMove(oldPath, newPath string) {
	modifiedAt, err := d.fs.ModTime(newPath)
	if err != nil {
		d.books.Remove(oldPath)
		return
	}
	d.books.Move(oldPath, newPath, modifiedAt)
}

// relinkTree points every link below mirrorDir that targeted oldSourceDir at
// the same file below newSourceDir.
func (d *Default) relinkTree(ctx context.Context, mirrorDir, oldSourceDir, newSourceDir string) error {
	oldAbs, err := filepath.Abs(oldSourceDir)
	if err != nil {
		return mirrorerr.IO("relink", oldSourceDir, err)
	}
	newAbs, err := filepath.Abs(newSourceDir)
	if err != nil {
		return mirrorerr.IO("relink", newSourceDir, err)
	}

	return filepath.WalkDir(mirrorDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return mirrorerr.IO("relink", p, err)
		}
		if entry.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := fileops.ReadLink(p)
		if err != nil {
			return mirrorerr.IO("readlink", p, err)
		}
		rel, err := mirrorpath.Relative(target, oldAbs)
		if err != nil {
			return nil
		}
		if err := d.linker.Link(ctx, filepath.Join(newAbs, rel), p); err != nil {
			return mirrorerr.IO("symlink", p, err)
		}
		return nil
	})
}

func (d *Default) MirroredPath(path string) (mirrorpath.MirroredPath, error) {
	return d.books.MirroredPath(path)
}

func (d *Default) Forget(path string) { d.books.Remove(path) }

func (d *Default) ForgetTree(dir string) int { return d.books.RemoveTree(dir) }

func (d *Default) MoveTree(oldDir, newDir string) int { return d.books.MoveTree(oldDir, newDir) }

func (d *Default) HasMirroredFileForPath(ctx context.Context, path string) (bool, error) {
	if d.behavior == mirrorpath.Ignore {
		return false, nil
	}
	mirrored, err := d.books.MirroredPath(path)
	if err != nil {
		return false, err
	}
	exists, err := d.fs.Exists(mirrored.Full())
	if err != nil {
		return false, mirrorerr.IO("stat", mirrored.Full(), err)
	}
	return exists, nil
}

var _ Operations = (*Default)(nil)
