// Package bookkeeper remembers when each source file was last mirrored.
package bookkeeper

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/sharded"
	"github.com/Galad/musicmirror/pkg/util"
)

// Bookkeeper is safe for concurrent use. Updates to one path are serialized;
// updates to unrelated paths proceed in parallel.
type Bookkeeper struct {
	cfg             mirrorpath.Configuration
	namer           mirrorpath.Namer
	records         *sharded.Map[time.Time]
	caseInsensitive bool
}

// New creates an empty Bookkeeper for cfg. namer names mirror files.
func New(cfg mirrorpath.Configuration, namer mirrorpath.Namer) *Bookkeeper {
	return &Bookkeeper{
		cfg:             cfg,
		namer:           namer,
		records:         sharded.NewMap[time.Time](sharded.DefaultShards),
		caseInsensitive: util.IsHostCaseInsensitiveFS(),
	}
}

func (b *Bookkeeper) key(path string) string {
	k := filepath.Clean(path)
	if b.caseInsensitive {
		k = strings.ToLower(k)
	}
	return k
}

// LastSync returns the time path was last mirrored.
func (b *Bookkeeper) LastSync(path string) (time.Time, bool) {
	return b.records.Load(b.key(path))
}

// Upsert records t as the last sync time of path.
func (b *Bookkeeper) Upsert(path string, t time.Time) {
	b.records.Store(b.key(path), t)
}

// UpsertIfNewer records t unless a later time is already recorded, and
// reports whether it stored t.
func (b *Bookkeeper) UpsertIfNewer(path string, t time.Time) bool {
	stored := false
	b.records.Update(b.key(path), func(current time.Time, exists bool) (time.Time, bool) {
		if exists && !current.Before(t) {
			return current, true
		}
		stored = true
		return t, true
	})
	return stored
}

// Remove forgets path.
func (b *Bookkeeper) Remove(path string) {
	b.records.Delete(b.key(path))
}

// Move forgets oldPath and records t for newPath in one step.
func (b *Bookkeeper) Move(oldPath, newPath string, t time.Time) {
	b.records.Move(b.key(oldPath), b.key(newPath), t)
}

// RemoveTree forgets every path below dir and returns how many were removed.
func (b *Bookkeeper) RemoveTree(dir string) int {
	prefix := b.key(dir) + string(filepath.Separator)
	return b.records.DeleteFunc(func(key string, _ time.Time) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// MoveTree re-keys every path below oldDir to the same relative path below newDir.
func (b *Bookkeeper) MoveTree(oldDir, newDir string) int {
	oldPrefix := b.key(oldDir) + string(filepath.Separator)
	newPrefix := b.key(newDir) + string(filepath.Separator)

	moved := 0
	for _, key := range b.records.Keys() {
		if !strings.HasPrefix(key, oldPrefix) {
			continue
		}
		t, ok := b.records.Load(key)
		if !ok {
			continue
		}
		b.records.Move(key, newPrefix+strings.TrimPrefix(key, oldPrefix), t)
		moved++
	}
	return moved
}

// Count returns the number of tracked paths.
func (b *Bookkeeper) Count() int {
	return b.records.Count()
}

// MirroredPath resolves the mirror location of path.
func (b *Bookkeeper) MirroredPath(path string) (mirrorpath.MirroredPath, error) {
	return mirrorpath.Resolve(path, b.cfg, b.namer)
}

// Configuration returns the configuration the Bookkeeper resolves against.
func (b *Bookkeeper) Configuration() mirrorpath.Configuration {
	return b.cfg
}
