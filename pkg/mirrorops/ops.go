// Package mirrorops applies source changes to the mirror. Transcoding handles
// files the policy selects; Default copies, links or ignores everything else;
// Router picks between them for each change event.
package mirrorops

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/Galad/musicmirror/pkg/hints"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
)

// Operations mirrors one family of files.
type Operations interface {
	SynchronizeFile(ctx context.Context, path string) error
	DeleteFile(ctx context.Context, path string) error
	RenameFile(ctx context.Context, newPath, oldPath string) error
	HasMirroredFileForPath(ctx context.Context, path string) (bool, error)

	// MirroredPath resolves where this family mirrors path.
	MirroredPath(path string) (mirrorpath.MirroredPath, error)
	// Forget drops the record of path and leaves the mirror alone.
	Forget(path string)
	// ForgetTree and MoveTree keep the records below a deleted or renamed
	// source directory in step. They return how many records they touched.
	ForgetTree(dir string) int
	MoveTree(oldDir, newDir string) int
}

// FileSystem is the filesystem surface the operations use.
type FileSystem interface {
	Exists(path string) (bool, error)
	Stat(path string) (fs.FileInfo, error)
	Lstat(path string) (fs.FileInfo, error)
	ModTime(path string) (time.Time, error)
	Delete(path string) error
	Move(ctx context.Context, src, dst string) error
	CopyFile(ctx context.Context, src, dst string) (int64, error)
	IsUpToDate(src, dst string) (bool, error)
	CreateDirectory(path string) error
}

// Linker creates symbolic links.
type Linker interface {
	Link(ctx context.Context, target, path string) error
}

var (
	// ErrUpToDate means the mirror already reflects the source. Returned as a hint.
	ErrUpToDate = errors.New("mirror is up to date")
	// ErrIgnored means the behavior is ignore. Returned as a hint.
	ErrIgnored = errors.New("non-transcoded files are ignored")
)

func upToDate(path string) error {
	return hints.Newf("%s: %w", path, ErrUpToDate)
}

func ignored(path string) error {
	return hints.Newf("%s: %w", path, ErrIgnored)
}

// ShouldSynchronize decides whether a source modified at modifiedAt needs to
// be mirrored again. Without a record it always does; with one, only when the
// record is strictly older than the modification.
func ShouldSynchronize(lastSync time.Time, hasRecord bool, modifiedAt time.Time) bool {
	if !hasRecord {
		return true
	}
	return lastSync.Before(modifiedAt)
}
