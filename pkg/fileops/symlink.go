package fileops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrLinkerClosed is returned by Link after Close.
var ErrLinkerClosed = errors.New("linker is closed")

type linkRequest struct {
	target string
	path   string
	done   chan error
}

// Linker creates symbolic links on a dedicated goroutine, so a slow or stuck
// OS call never holds a caller past its context.
type Linker struct {
	requests  chan linkRequest
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLinker starts the link goroutine. Call Close to stop it.
func NewLinker() *Linker {
	l := &Linker{
		requests: make(chan linkRequest),
		closed:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Linker) run() {
	defer l.wg.Done()
	for {
		select {
		case req := <-l.requests:
			req.done <- replaceWithSymlink(req.target, req.path)
		case <-l.closed:
			return
		}
	}
}

// Link makes path a symbolic link to target, replacing whatever is at path.
func (l *Linker) Link(ctx context.Context, target, path string) error {
	req := linkRequest{target: target, path: path, done: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.closed:
		return ErrLinkerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the link goroutine and waits for an in-progress link to finish.
func (l *Linker) Close() {
	l.closeOnce.Do(func() { close(l.closed) })
	l.wg.Wait()
}

// ReadLink returns the target of the link at path.
func ReadLink(path string) (string, error) {
	return os.Readlink(path)
}

// LinkPointsTo reports whether path is a symbolic link whose target is target.
func LinkPointsTo(path, target string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	current, err := os.Readlink(path)
	if err != nil {
		return false, err
	}
	return filepath.Clean(current) == filepath.Clean(target), nil
}

// replaceWithSymlink creates the link under a temporary name and renames it
// over path.
func replaceWithSymlink(target, path string) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".musicmirror-link-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to generate temp name for symlink: %w", err)
	}
	tmpName := f.Name()
	f.Close()
	// Only the unique name is needed; the link takes the file's place.
	os.Remove(tmpName)
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if err := os.Symlink(target, tmpName); err != nil {
		if isSymlinkUnsupported(err) {
			return &UnsupportedLinkError{Path: path, Err: err}
		}
		return fmt.Errorf("failed to create symlink %s -> %s: %w", tmpName, target, err)
	}

	// Renaming over a directory fails; a directory in the way is replaced.
	if info, err := os.Lstat(path); err == nil && info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove directory in the way of %s: %w", path, err)
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp symlink to %s: %w", path, err)
	}
	tmpName = ""
	return nil
}

// UnsupportedLinkError means the platform refused to create a symbolic link,
// for lack of privilege or filesystem support.
type UnsupportedLinkError struct {
	Path string
	Err  error
}

func (e *UnsupportedLinkError) Error() string {
	return fmt.Sprintf("symbolic links are not supported for %s: %v", e.Path, e.Err)
}

func (e *UnsupportedLinkError) Unwrap() error { return e.Err }
