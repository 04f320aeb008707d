// Package watch turns a source library into file change events: a one-shot
// scan at startup and a live stream afterwards.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/util"
)

// Source lists and watches a library root.
type Source interface {
	// Scan returns every regular file below root.
	Scan(ctx context.Context, root string) ([]string, error)
	// Watch streams changes below root until ctx is done. The channel is
	// closed when watching stops.
	Watch(ctx context.Context, root string) (<-chan filechange.Event, error)
}

// Mode selects the watch backend.
type Mode int

const (
	// Native uses OS notifications.
	Native Mode = iota + 1
	// Polling compares directory listings on an interval.
	Polling
)

var modeToString = map[Mode]string{
	Native:  "native",
	Polling: "poll",
}

var stringToMode = util.InvertMap(modeToString)

func (m Mode) String() string {
	if s, ok := modeToString[m]; ok {
		return s
	}
	return fmt.Sprintf("unknown_mode(%d)", m)
}

// ParseMode parses "native" or "poll".
func ParseMode(s string) (Mode, error) {
	if m, ok := stringToMode[strings.ToLower(s)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("invalid watch mode %q: must be 'native' or 'poll'", s)
}

// Options tunes the watch backends.
type Options struct {
	// Debounce is how long a file must stay quiet before a write is reported.
	Debounce time.Duration
	// RenameWindow is how long a native rename waits for its matching create.
	RenameWindow time.Duration
	// PollInterval is the polling period.
	PollInterval time.Duration
}

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultRenameWindow = 250 * time.Millisecond
	DefaultPollInterval = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.RenameWindow <= 0 {
		o.RenameWindow = DefaultRenameWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// New returns the Source for mode.
func New(mode Mode, opts Options) (Source, error) {
	switch mode {
	case Native:
		return NewNotify(opts), nil
	case Polling:
		return NewPoll(opts), nil
	default:
		return nil, fmt.Errorf("unsupported watch mode %s", mode)
	}
}

// Scan walks root and returns its regular files in lexical order.
// Unreadable subdirectories are skipped; an unreadable root is an error.
func Scan(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

// eventFor builds an Added or Modified event stamped with the file's
// modification time. ok is false for directories and vanished files.
func eventFor(kind filechange.Kind, path string) (filechange.Event, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return filechange.Event{}, false
	}
	return filechange.Event{Kind: kind, Path: path, ModifiedAt: info.ModTime()}, true
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- filechange.Event, ev filechange.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
