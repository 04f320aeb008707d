// Package fileops implements the filesystem primitives the mirror operations
// are built on: existence checks, deletes, moves, safe copies and on-demand
// directory creation.
package fileops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/pool"
	"github.com/Galad/musicmirror/pkg/util"
)

// Options tunes copies.
type Options struct {
	RetryCount int
	RetryWait  time.Duration
	BufferSize int
}

// FS is the OS-backed implementation. It is safe for concurrent use.
type FS struct {
	opts    Options
	buffers *pool.BufferPool
	dirs    singleflight.Group
}

// New creates an FS. A zero BufferSize uses pool.DefaultBufferSize.
func New(opts Options) *FS {
	if opts.BufferSize <= 0 {
		opts.BufferSize = pool.DefaultBufferSize
	}
	return &FS{opts: opts, buffers: pool.NewBufferPool(opts.BufferSize)}
}

// Exists reports whether path exists. Symlinks are not followed, so a dangling
// link still exists.
func (f *FS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns the info of path, following symlinks.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Lstat returns the entry's own info.
func (f *FS) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// ModTime returns the modification time of path, following symlinks.
func (f *FS) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Delete removes path. A missing path is not an error. Directories are
// removed with their content.
func (f *FS) Delete(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if clearErr := ClearReadOnly(path); clearErr == nil {
			return os.Remove(path)
		}
		return err
	}
	return nil
}

// Move renames src to dst, creating dst's directory first. When the rename
// crosses devices the entry is copied and the source removed.
func (f *FS) Move(ctx context.Context, src, dst string) error {
	if err := f.CreateDirectory(filepath.Dir(dst)); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil || !isCrossDevice(err) {
		return err
	}

	info, statErr := os.Lstat(src)
	if statErr != nil {
		return statErr
	}
	plog.Debug("Rename crosses devices, copying instead", "from", src, "to", dst)
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := replaceWithSymlink(target, dst); err != nil {
			return err
		}
	case info.IsDir():
		return fmt.Errorf("cannot move directory %s across devices: %w", src, err)
	default:
		if _, err := f.CopyFile(ctx, src, dst); err != nil {
			return err
		}
	}
	return f.Delete(src)
}

// OpenRead opens path for reading.
func (f *FS) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// OpenWrite creates or truncates path for writing, clearing a read-only flag
// on an existing file first.
func (f *FS) OpenWrite(path string) (io.WriteCloser, error) {
	if err := ClearReadOnly(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.UserWritableFilePerms)
}

// WriteAllBytes replaces path with data through a temporary file in the same directory.
func (f *FS) WriteAllBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".musicmirror-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(util.UserWritableFilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := ClearReadOnly(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}

// DirExists reports whether path is an existing directory.
func (f *FS) DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// CreateDirectory creates path and its parents. Concurrent calls for the same
// path share one MkdirAll.
func (f *FS) CreateDirectory(path string) error {
	_, err, _ := f.dirs.Do(path, func() (any, error) {
		info, err := os.Lstat(path)
		if err == nil {
			if info.IsDir() {
				return nil, nil
			}
			plog.Warn("Mirror path exists but is not a directory, removing", "path", path, "type", info.Mode().String())
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove conflicting entry %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to lstat directory %s: %w", path, err)
		}
		if err := os.MkdirAll(path, util.UserWritableDirPerms); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		plog.Debug("DIR", "path", path)
		return nil, nil
	})
	return err
}
