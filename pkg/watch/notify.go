package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/plog"
)

// Notify watches through OS notifications. New directories are watched as
// they appear. A rename followed by a create within RenameWindow becomes one
// Renamed event; a rename with no create is reported as Deleted. Writes are
// reported once the file has been quiet for Debounce.
type Notify struct {
	opts Options
}

func NewNotify(opts Options) *Notify {
	return &Notify{opts: opts.withDefaults()}
}

func (n *Notify) Scan(ctx context.Context, root string) ([]string, error) {
	return Scan(ctx, root)
}

func (n *Notify) Watch(ctx context.Context, root string) (<-chan filechange.Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := addTree(w, root); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	out := make(chan filechange.Event, 64)
	l := &notifyLoop{
		opts:   n.opts,
		w:      w,
		out:    out,
		writes: make(map[string]pendingWrite),
	}
	go l.run(ctx)
	plog.Debug("Watching source", "root", root, "mode", Native)
	return out, nil
}

// addTree watches dir and every directory below it.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			plog.Warn("Cannot watch directory", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			if path == dir {
				return err
			}
			plog.Warn("Cannot watch directory", "path", path, "error", err)
		}
		return nil
	})
}

type pendingWrite struct {
	kind filechange.Kind
	at   time.Time
}

type pendingRename struct {
	path string
	at   time.Time
}

type notifyLoop struct {
	opts    Options
	w       *fsnotify.Watcher
	out     chan filechange.Event
	ctx     context.Context
	writes  map[string]pendingWrite
	renames []pendingRename
}

func (l *notifyLoop) run(ctx context.Context) {
	l.ctx = ctx
	defer close(l.out)
	defer l.w.Close()

	tick := time.NewTicker(max(min(l.opts.Debounce, l.opts.RenameWindow)/2, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-l.w.Events:
			if !ok {
				return
			}
			if !l.handle(ev, time.Now()) {
				return
			}
		case err, ok := <-l.w.Errors:
			if !ok {
				return
			}
			plog.Warn("Watch error", "error", err)
		case now := <-tick.C:
			if !l.flush(now) {
				return
			}
		}
	}
}

// handle applies one notification. It returns false once ctx is done.
func (l *notifyLoop) handle(ev fsnotify.Event, now time.Time) bool {
	path := ev.Name
	switch {
	case ev.Has(fsnotify.Create):
		return l.created(path, now)
	case ev.Has(fsnotify.Write):
		if p, ok := l.writes[path]; ok {
			p.at = now
			l.writes[path] = p
		} else {
			l.writes[path] = pendingWrite{kind: filechange.Modified, at: now}
		}
	case ev.Has(fsnotify.Remove):
		delete(l.writes, path)
		return send(l.ctx, l.out, filechange.NewDeleted(path, now))
	case ev.Has(fsnotify.Rename):
		delete(l.writes, path)
		l.renames = append(l.renames, pendingRename{path: path, at: now})
	}
	return true
}

func (l *notifyLoop) created(path string, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}

	if len(l.renames) > 0 {
		old := l.renames[0]
		l.renames = l.renames[1:]
		if info.IsDir() {
			_ = l.w.Remove(old.path)
			if err := addTree(l.w, path); err != nil {
				plog.Warn("Cannot watch directory", "path", path, "error", err)
			}
		}
		return send(l.ctx, l.out, filechange.NewRenamed(path, old.path, info.ModTime()))
	}

	if !info.IsDir() {
		l.writes[path] = pendingWrite{kind: filechange.Added, at: now}
		return true
	}

	// Files may land in a new directory before it is watched.
	if err := addTree(l.w, path); err != nil {
		plog.Warn("Cannot watch directory", "path", path, "error", err)
		return true
	}
	files, err := Scan(l.ctx, path)
	if err != nil {
		plog.Warn("Cannot scan new directory", "path", path, "error", err)
		return true
	}
	for _, f := range files {
		l.writes[f] = pendingWrite{kind: filechange.Added, at: now}
	}
	return true
}

// flush reports renames whose window expired and writes that settled.
func (l *notifyLoop) flush(now time.Time) bool {
	for len(l.renames) > 0 && now.Sub(l.renames[0].at) >= l.opts.RenameWindow {
		old := l.renames[0]
		l.renames = l.renames[1:]
		_ = l.w.Remove(old.path)
		if !send(l.ctx, l.out, filechange.NewDeleted(old.path, old.at)) {
			return false
		}
	}

	for path, p := range l.writes {
		if now.Sub(p.at) < l.opts.Debounce {
			continue
		}
		delete(l.writes, path)
		ev, ok := eventFor(p.kind, path)
		if !ok {
			continue
		}
		if !send(l.ctx, l.out, ev) {
			return false
		}
	}
	return true
}
