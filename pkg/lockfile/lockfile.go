// Package lockfile keeps two mirror daemons from writing into the same target
// directory. The holder refreshes a heartbeat in the lock file; a lock whose
// heartbeat is older than StaleAfter may be taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
)

// FileName is created in the locked directory.
const FileName = ".~musicmirror.lock"

// Holder is what the lock file records about its owner.
type Holder struct {
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	AppID     string    `json:"appId"`
	Heartbeat time.Time `json:"heartbeat"`
	Token     string    `json:"token"`
}

// ActiveError is returned by Acquire when a live holder owns the lock.
type ActiveError struct {
	Holder Holder
	Age    time.Duration
}

func (e *ActiveError) Error() string {
	return fmt.Sprintf("target is locked by %s (pid %d on %s), last heartbeat %s ago",
		e.Holder.AppID, e.Holder.PID, e.Holder.Host, e.Age.Truncate(time.Second))
}

// ErrTakeoverLost means another process replaced a stale lock first.
var ErrTakeoverLost = errors.New("another process took over the stale lock")

// Overridable in tests.
var (
	HeartbeatInterval = 30 * time.Second
	StaleAfter        = 3 * HeartbeatInterval
)

// Lock is a held lock. Release it when done.
type Lock struct {
	path   string
	holder Holder
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Acquire locks dir for appID.
func Acquire(ctx context.Context, dir, appID string) (*Lock, error) {
	path := filepath.Join(dir, FileName)
	const attempts = 3

	for range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		holder, err := newHolder(appID)
		if err != nil {
			return nil, err
		}
		err = create(path, holder)
		if err == nil {
			return start(path, holder), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file %s: %w", path, err)
		}

		current, err := read(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			plog.Warn("Lock file is unreadable, treating it as stale", "path", path, "error", err)
		default:
			if age := time.Since(current.Heartbeat); age < StaleAfter {
				return nil, &ActiveError{Holder: current, Age: age}
			}
			plog.Warn("Taking over stale lock", "path", path, "pid", current.PID, "host", current.Host)
		}

		if err := takeOver(path, holder); err != nil {
			plog.Debug("Lock takeover failed, retrying", "path", path, "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		return start(path, holder), nil
	}
	return nil, fmt.Errorf("could not acquire %s after %d attempts", path, attempts)
}

func newHolder(appID string) (Holder, error) {
	host, err := os.Hostname()
	if err != nil {
		return Holder{}, err
	}
	return Holder{
		PID:       os.Getpid(),
		Host:      host,
		AppID:     appID,
		Heartbeat: time.Now().UTC(),
		Token:     rand.Text(),
	}, nil
}

// create writes the lock only if it does not exist yet.
func create(path string, h Holder) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// write replaces the lock atomically through a temp file.
func write(path string, h Holder) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func read(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return Holder{}, fmt.Errorf("corrupt lock file: %w", err)
	}
	return h, nil
}

// takeOver overwrites a stale lock and reads it back to detect a racing
// process that did the same.
func takeOver(path string, h Holder) error {
	if err := write(path, h); err != nil {
		return err
	}
	back, err := read(path)
	if err != nil {
		return err
	}
	if back.Token != h.Token {
		return ErrTakeoverLost
	}
	return nil
}

func start(path string, h Holder) *Lock {
	l := &Lock{path: path, holder: h, stop: make(chan struct{})}
	l.wg.Add(1)
	go l.heartbeat()
	plog.Debug("Lock acquired", "path", path)
	return l
}

func (l *Lock) heartbeat() {
	defer l.wg.Done()
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.holder.Heartbeat = time.Now().UTC()
			if err := write(l.path, l.holder); err != nil {
				plog.Warn("Failed to refresh lock heartbeat", "path", l.path, "error", err)
			}
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release stops the heartbeat and removes the lock file. It is idempotent.
func (l *Lock) Release() {
	l.once.Do(func() {
		close(l.stop)
		l.wg.Wait()
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
			return
		}
		plog.Debug("Lock released", "path", l.path)
	})
}
