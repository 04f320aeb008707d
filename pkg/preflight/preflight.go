// Package preflight checks that a mirror configuration can run before any
// file is touched. The checks do not change the filesystem, except for
// CheckTargetWritable which creates the target directory.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
)

// Plan selects which checks Run performs.
type Plan struct {
	SourceAccessible bool
	PathNesting      bool
	TargetAccessible bool
	TargetWritable   bool
	// RequireMount rejects a target that sits on the system disk.
	RequireMount bool
}

// DefaultPlan is what the daemon runs for every configuration.
var DefaultPlan = Plan{
	SourceAccessible: true,
	PathNesting:      true,
	TargetAccessible: true,
	TargetWritable:   true,
}

// Run performs the checks of p against cfg and returns the first failure.
func Run(p Plan, cfg mirrorpath.Configuration) error {
	if p.SourceAccessible {
		if err := CheckSourceAccessible(cfg.SourceRoot); err != nil {
			return err
		}
	}
	if p.PathNesting {
		if err := CheckPathNesting(cfg.SourceRoot, cfg.TargetRoot); err != nil {
			return err
		}
	}
	if p.TargetAccessible {
		if err := CheckTargetAccessible(cfg.TargetRoot, p.RequireMount); err != nil {
			return err
		}
	}
	if p.TargetWritable {
		if err := CheckTargetWritable(cfg.TargetRoot); err != nil {
			return err
		}
	}
	plog.Debug("Preflight checks passed", "source", cfg.SourceRoot, "target", cfg.TargetRoot)
	return nil
}

// CheckSourceAccessible verifies that path is a directory this process can list.
func CheckSourceAccessible(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("source directory %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("cannot stat source directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", path)
	}
	if err := checkReadable(path); err != nil {
		return fmt.Errorf("source directory %s is not readable: %w", path, err)
	}
	return nil
}

// CheckPathNesting rejects a target inside the source, which would mirror
// the mirror, and a source inside the target.
func CheckPathNesting(source, target string) error {
	src, dst := filepath.Clean(source), filepath.Clean(target)
	if util.IsHostCaseInsensitiveFS() {
		src, dst = strings.ToLower(src), strings.ToLower(dst)
	}
	switch {
	case src == dst:
		return fmt.Errorf("source and target are the same directory: %s", source)
	case within(dst, src):
		return fmt.Errorf("target %s is inside the source %s", target, source)
	case within(src, dst):
		return fmt.Errorf("source %s is inside the target %s", source, target)
	}
	return nil
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// CheckTargetAccessible verifies that the target, or the parent it will be
// created in, is a reachable directory. With requireMount the target must
// live on a mounted volume rather than the system disk.
func CheckTargetAccessible(path string, requireMount bool) error {
	if err := checkVolume(path); err != nil {
		return err
	}

	existing := path
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		parent := filepath.Dir(path)
		parentInfo, err := os.Stat(parent)
		if err != nil {
			return fmt.Errorf("cannot access parent directory %s of target: %w", parent, err)
		}
		if !parentInfo.IsDir() {
			return fmt.Errorf("parent of target %s is not a directory", parent)
		}
		existing = parent
	case err != nil:
		return fmt.Errorf("cannot access target path %s: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("target path %s exists but is not a directory", path)
	}

	if requireMount {
		return checkMounted(existing)
	}
	return nil
}

// CheckTargetWritable creates the target if needed and writes a probe file.
func CheckTargetWritable(path string) error {
	if err := os.MkdirAll(path, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", path, err)
	}
	f, err := os.CreateTemp(path, ".~musicmirror-writetest-*")
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", path, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		plog.Warn("Failed to remove write test file", "path", name, "error", err)
	}
	return nil
}
