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

	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
)

// ctxReader stops a copy as soon as its context is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// CopyFile copies src over dst through a temporary file that is renamed into
// place, so readers of the mirror never see a partial file. The copy keeps the
// source permissions plus the owner-write bit and the source modification time.
// It returns the number of bytes written.
func (f *FS) CopyFile(ctx context.Context, src, dst string) (int64, error) {
	var lastErr error
	for i := range f.opts.RetryCount + 1 {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", src, "attempt", fmt.Sprintf("%d/%d", i, f.opts.RetryCount), "after", f.opts.RetryWait)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(f.opts.RetryWait):
			}
		}

		written, err := f.copyOnce(ctx, src, dst)
		if err == nil {
			return written, nil
		}
		if ctx.Err() != nil || errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to copy file from '%s' to '%s' after %d attempts: %w", src, dst, f.opts.RetryCount+1, lastErr)
}

func (f *FS) copyOnce(ctx context.Context, src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat source file %s: %w", src, err)
	}

	dstDir := filepath.Dir(dst)
	out, err := os.CreateTemp(dstDir, ".musicmirror-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}
	defer out.Close()

	tmpPath := out.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if info.Size() > 0 {
		_ = out.Truncate(info.Size())
	}

	bufPtr := f.buffers.Get()
	defer f.buffers.Put(bufPtr)

	written, err := io.CopyBuffer(out, &ctxReader{ctx: ctx, r: in}, *bufPtr)
	if err != nil {
		return 0, fmt.Errorf("failed to copy content from %s to %s: %w", src, tmpPath, err)
	}
	// Truncate again in case the source shrank after the first Truncate.
	if err := out.Truncate(written); err != nil {
		return 0, fmt.Errorf("failed to truncate %s: %w", tmpPath, err)
	}

	if err := out.Chmod(util.WithUserWritePermission(info.Mode().Perm())); err != nil {
		return 0, fmt.Errorf("failed to set permissions on temporary file %s: %w", tmpPath, err)
	}

	// Close before Chtimes: flushing may touch the modification time.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", tmpPath, err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("failed to set timestamps on %s: %w", tmpPath, err)
	}

	if err := ClearReadOnly(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("failed to clear read-only flag on %s: %w", dst, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, err
	}
	tmpPath = ""
	return written, nil
}

// IsUpToDate reports whether dst is a regular file with the same size as src
// and a modification time no older than src's.
func (f *FS) IsUpToDate(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	dstInfo, err := os.Lstat(dst)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !dstInfo.Mode().IsRegular() {
		return false, nil
	}
	return dstInfo.Size() == srcInfo.Size() && !dstInfo.ModTime().Before(srcInfo.ModTime()), nil
}
