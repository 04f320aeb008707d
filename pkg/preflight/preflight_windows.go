//go:build windows

package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func volumeRoot(path string) string {
	vol := filepath.VolumeName(path)
	if vol == "" {
		return ""
	}
	if !strings.HasSuffix(vol, string(filepath.Separator)) {
		vol += string(filepath.Separator)
	}
	return vol
}

// checkVolume verifies that the drive or share of path is present.
func checkVolume(path string) error {
	root := volumeRoot(path)
	if root == "" {
		return nil
	}
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("volume %s is not available; ensure the drive is connected: %w", root, err)
	}
	return nil
}

// checkMounted rejects targets on the system drive.
func checkMounted(path string) error {
	root := volumeRoot(path)
	if root == "" {
		return nil
	}
	p, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return err
	}
	if windows.GetDriveType(p) == windows.DRIVE_NO_ROOT_DIR {
		return fmt.Errorf("volume %s is not mounted", root)
	}
	if sys := os.Getenv("SystemDrive"); sys != "" && strings.EqualFold(filepath.VolumeName(path), sys) {
		return fmt.Errorf("path %s is on the system drive; ensure the mirror drive is connected", path)
	}
	return nil
}
