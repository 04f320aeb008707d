//go:build !windows

package fileops

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/Galad/musicmirror/pkg/util"
)

// ClearReadOnly adds the owner-write bit to path. Symlinks are left alone.
func ClearReadOnly(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 || info.Mode().Perm()&util.PermUserWrite != 0 {
		return nil
	}
	return os.Chmod(path, util.WithUserWritePermission(info.Mode().Perm()))
}

func isCrossDevice(err error) bool {
	var le *os.LinkError
	if errors.As(err, &le) {
		return errors.Is(le.Err, unix.EXDEV)
	}
	return errors.Is(err, unix.EXDEV)
}

// Filesystems without symlink support (FAT, some network shares) answer EPERM.
func isSymlinkUnsupported(err error) bool {
	return errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}
