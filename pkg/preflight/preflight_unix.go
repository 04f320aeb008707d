//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

func checkReadable(path string) error {
	return unix.Access(path, unix.R_OK|unix.X_OK)
}

func checkVolume(path string) error { return nil }

// checkMounted rejects paths on the root filesystem, which is where a
// directory ends up when the drive meant to be mounted there is not.
// The home directory is always accepted.
func checkMounted(path string) error {
	if home, err := os.UserHomeDir(); err == nil && (path == home || strings.HasPrefix(path, home+string(filepath.Separator))) {
		return nil
	}

	var root, target unix.Stat_t
	if err := unix.Stat("/", &root); err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	if err := unix.Stat(path, &target); err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if target.Dev == root.Dev && path != "/" {
		return fmt.Errorf("path %s is on the root filesystem; ensure the mirror drive is mounted", path)
	}
	return nil
}
