package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/radovskyb/watcher"

	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/plog"
)

// Poll watches by comparing directory listings every PollInterval. It works
// on network shares that deliver no notifications, and it detects renames
// natively.
type Poll struct {
	opts Options
}

func NewPoll(opts Options) *Poll {
	return &Poll{opts: opts.withDefaults()}
}

func (p *Poll) Scan(ctx context.Context, root string) ([]string, error) {
	return Scan(ctx, root)
}

func (p *Poll) Watch(ctx context.Context, root string) (<-chan filechange.Event, error) {
	w := watcher.New()
	w.FilterOps(watcher.Create, watcher.Write, watcher.Remove, watcher.Rename, watcher.Move)
	if err := w.AddRecursive(root); err != nil {
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	go func() {
		if err := w.Start(p.opts.PollInterval); err != nil {
			plog.Warn("Polling watcher stopped", "root", root, "error", err)
		}
	}()
	w.Wait()

	out := make(chan filechange.Event, 64)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.Closed:
				return
			case err := <-w.Error:
				plog.Warn("Watch error", "root", root, "error", err)
			case ev := <-w.Event:
				fe, ok := translate(ev)
				if !ok {
					continue
				}
				if !send(ctx, out, fe) {
					return
				}
			}
		}
	}()
	plog.Debug("Watching source", "root", root, "mode", Polling, "interval", p.opts.PollInterval)
	return out, nil
}

// translate maps a polling event. Creates and writes of directories are
// dropped; files inside a new directory arrive as their own creates.
func translate(ev watcher.Event) (filechange.Event, bool) {
	if ev.FileInfo == nil {
		return filechange.Event{}, false
	}
	switch ev.Op {
	case watcher.Create:
		if ev.IsDir() {
			return filechange.Event{}, false
		}
		return filechange.NewAdded(ev.Path, ev.ModTime()), true
	case watcher.Write:
		if ev.IsDir() {
			return filechange.Event{}, false
		}
		return filechange.NewModified(ev.Path, ev.ModTime()), true
	case watcher.Remove:
		return filechange.NewDeleted(ev.Path, time.Now()), true
	case watcher.Rename, watcher.Move:
		return filechange.NewRenamed(ev.Path, ev.OldPath, ev.ModTime()), true
	default:
		return filechange.Event{}, false
	}
}
