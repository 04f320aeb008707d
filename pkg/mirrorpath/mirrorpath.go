// Package mirrorpath maps a source file to its location in the mirror.
package mirrorpath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Galad/musicmirror/pkg/mirrorerr"
)

// Namer maps a source file name to the name of its mirror file.
type Namer func(fileName string) string

// Identity keeps the file name.
func Identity(fileName string) string { return fileName }

// MirroredPath is the directory and file name of a mirror entry.
type MirroredPath struct {
	Dir  string
	File string
}

// Full returns the joined path.
func (m MirroredPath) Full() string {
	return filepath.Join(m.Dir, m.File)
}

// Equal reports whether both name the same mirror entry.
func (m MirroredPath) Equal(other MirroredPath) bool {
	return samePath(m.Full(), other.Full())
}

// Resolve re-roots sourcePath from cfg.SourceRoot to cfg.TargetRoot and names
// the file with namer. A nil namer is Identity.
func Resolve(sourcePath string, cfg Configuration, namer Namer) (MirroredPath, error) {
	if namer == nil {
		namer = Identity
	}
	rel, err := Relative(sourcePath, cfg.SourceRoot)
	if err != nil {
		return MirroredPath{}, err
	}

	return MirroredPath{
		Dir:  filepath.Join(cfg.TargetRoot, filepath.Dir(rel)),
		File: namer(filepath.Base(rel)),
	}, nil
}

// Relative returns sourcePath relative to root, rejecting paths outside it.
func Relative(sourcePath, root string) (string, error) {
	cleaned := filepath.Clean(sourcePath)
	rel, err := filepath.Rel(filepath.Clean(root), cleaned)
	if err != nil {
		return "", mirrorerr.InvalidPath("resolve", sourcePath, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", mirrorerr.InvalidPath("resolve", sourcePath, fmt.Errorf("not inside source root %s", root))
	}
	return rel, nil
}

// ResolveDir re-roots a source directory. The root itself maps to the target root.
func ResolveDir(sourceDir string, cfg Configuration) (string, error) {
	if filepath.Clean(sourceDir) == filepath.Clean(cfg.SourceRoot) {
		return cfg.TargetRoot, nil
	}
	rel, err := Relative(sourceDir, cfg.SourceRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.TargetRoot, rel), nil
}
