// Package orchestrator runs the mirror. For each configuration it scans the
// source once, follows live changes, and routes every change event to the
// mirror operations under a global concurrency bound. A new configuration
// replaces the running pipeline.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Galad/musicmirror/pkg/broadcast"
	"github.com/Galad/musicmirror/pkg/buildinfo"
	"github.com/Galad/musicmirror/pkg/config"
	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/lifecycle"
	"github.com/Galad/musicmirror/pkg/lockfile"
	"github.com/Galad/musicmirror/pkg/metrics"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
	"github.com/Galad/musicmirror/pkg/watch"
)

// DefaultMaxConcurrency bounds how many events are processed at once.
const DefaultMaxConcurrency = 4

// Router applies one change event to the mirror.
type Router interface {
	Route(ctx context.Context, ev filechange.Event) error
}

// RouterFactory builds the Router for a configuration. The returned func
// releases it once the pipeline is done with it.
type RouterFactory func(cfg mirrorpath.Configuration) (Router, func())

type Options struct {
	// MaxConcurrency defaults to DefaultMaxConcurrency.
	MaxConcurrency int64
	// LockTarget holds a lock file in the target root while a pipeline runs.
	LockTarget bool
	// Metrics defaults to NoopMetrics.
	Metrics metrics.Metrics
}

// ErrAlreadyStarted is returned by Start while a previous run is active.
var ErrAlreadyStarted = errors.New("orchestrator is already started")

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	configs config.Source
	source  watch.Source
	factory RouterFactory
	opts    Options
	sem     *semaphore.Weighted

	// inFlight counts the pipeline's events only; SyncOnce keeps its own.
	inFlight *counter
	running  *broadcast.State[bool]
	batches   *broadcast.Broadcaster[[]filechange.Event]
	results   *broadcast.Broadcaster[Result]

	mu   sync.Mutex
	stop func()
}

func New(configs config.Source, source watch.Source, factory RouterFactory, opts Options) *Orchestrator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopMetrics{}
	}
	o := &Orchestrator{
		configs: configs,
		source:  source,
		factory: factory,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrency),
		running: broadcast.NewState(false),
		batches: broadcast.New[[]filechange.Event](),
		results: broadcast.New[Result](),
	}
	o.inFlight = &counter{onChange: func(n int64) {
		o.opts.Metrics.SetInFlight(n)
		o.running.Set(n > 0)
	}}
	return o
}

// ObserveBatches delivers every batch of events before it is processed: the
// initial scan as one batch, live changes as batches of one. Call the
// returned func to stop observing.
func (o *Orchestrator) ObserveBatches() (<-chan []filechange.Event, func()) {
	ch := o.batches.Subscribe()
	return ch, func() { o.batches.Unsubscribe(ch) }
}

// ObserveResults delivers the result of every processed event, in the order
// they resolved. Nothing is dropped for a slow observer. Events cancelled by
// a restart produce no result.
func (o *Orchestrator) ObserveResults() (<-chan Result, func()) {
	ch := o.results.Subscribe()
	return ch, func() { o.results.Unsubscribe(ch) }
}

// ObserveIsRunning delivers whether events are in flight, starting with the
// current state.
func (o *Orchestrator) ObserveIsRunning() (<-chan bool, func()) {
	ch := o.running.Subscribe()
	return ch, func() { o.running.Unsubscribe(ch) }
}

// InFlight returns the number of pipeline events published but not yet
// resolved. SyncOnce runs are not counted.
func (o *Orchestrator) InFlight() int64 {
	return o.inFlight.get()
}

// Start follows the configuration source until the returned handle is
// stopped or ctx is done.
func (o *Orchestrator) Start(ctx context.Context) (lifecycle.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stop != nil {
		return nil, ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.supervise(runCtx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
			o.mu.Lock()
			o.stop = nil
			o.mu.Unlock()
		})
	}
	o.stop = stop
	return lifecycle.HandleFunc(stop), nil
}

// Stop cancels the current run and waits for it.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	stop := o.stop
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
}

type pipeline struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *Orchestrator) supervise(ctx context.Context) {
	configs := o.configs.Configurations(ctx)
	var current *pipeline
	for {
		select {
		case <-ctx.Done():
			o.stopPipeline(current)
			return
		case cfg, ok := <-configs:
			if !ok {
				configs = nil
				continue
			}
			o.stopPipeline(current)
			current = o.startPipeline(ctx, cfg)
		}
	}
}

func (o *Orchestrator) startPipeline(ctx context.Context, cfg mirrorpath.Configuration) *pipeline {
	pctx, cancel := context.WithCancel(ctx)
	p := &pipeline{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if err := o.run(pctx, cfg); err != nil && !cancelled(pctx, err) {
			plog.Error("Mirror pipeline stopped", "config", cfg.String(), "error", err)
		}
	}()
	return p
}

// stopPipeline cancels p, waits for every event it started and resets the
// in-flight counter.
func (o *Orchestrator) stopPipeline(p *pipeline) {
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
	o.inFlight.reset()
}

func (o *Orchestrator) run(ctx context.Context, cfg mirrorpath.Configuration) error {
	plog.Info("Starting mirror", "source", cfg.SourceRoot, "target", cfg.TargetRoot, "behavior", cfg.Behavior)
	unlock, err := o.lockTarget(ctx, cfg)
	if err != nil {
		return err
	}
	defer unlock()

	router, release := o.factory(cfg)
	defer release()

	// Watch before scanning so nothing changing in between is missed.
	events, err := o.source.Watch(ctx, cfg.SourceRoot)
	if err != nil {
		return fmt.Errorf("watching %s: %w", cfg.SourceRoot, err)
	}

	var work sync.WaitGroup
	defer work.Wait()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		files, err := o.source.Scan(gctx, cfg.SourceRoot)
		if err != nil {
			if !cancelled(gctx, err) {
				plog.Warn("Initial scan failed", "source", cfg.SourceRoot, "error", err)
			}
			return nil
		}
		batch := initialEvents(files)
		plog.Info("Initial scan complete", "source", cfg.SourceRoot, "files", len(batch))
		o.dispatch(gctx, router, batch, o.inFlight, &work, nil)
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					if gctx.Err() != nil {
						return nil
					}
					return errors.New("watch stream closed")
				}
				o.dispatch(gctx, router, []filechange.Event{ev}, o.inFlight, &work, nil)
			}
		}
	})
	return g.Wait()
}

func (o *Orchestrator) lockTarget(ctx context.Context, cfg mirrorpath.Configuration) (func(), error) {
	if !o.opts.LockTarget {
		return func() {}, nil
	}
	if err := os.MkdirAll(cfg.TargetRoot, util.UserWritableDirPerms); err != nil {
		return nil, fmt.Errorf("creating target %s: %w", cfg.TargetRoot, err)
	}
	lock, err := lockfile.Acquire(ctx, cfg.TargetRoot, buildinfo.AppID)
	if err != nil {
		return nil, fmt.Errorf("locking target %s: %w", cfg.TargetRoot, err)
	}
	return lock.Release, nil
}

// initialEvents stamps each scanned file with its modification time. Files
// that vanished since the scan are left out.
func initialEvents(files []string) []filechange.Event {
	batch := make([]filechange.Event, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		batch = append(batch, filechange.NewInitial(f, info.ModTime()))
	}
	return batch
}

// dispatch publishes batch and processes its events under the semaphore,
// which pipeline and SyncOnce events share. It returns once every event has
// started; wg tracks their completion and pending their count.
func (o *Orchestrator) dispatch(ctx context.Context, router Router, batch []filechange.Event, pending *counter, wg *sync.WaitGroup, collect func(Result)) {
	if len(batch) == 0 {
		return
	}
	o.batches.Publish(batch)
	pending.add(int64(len(batch)))

	for i, ev := range batch {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			pending.add(-int64(len(batch) - i))
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.sem.Release(1)
			o.process(ctx, router, ev, pending, collect)
		}()
	}
}

func (o *Orchestrator) process(ctx context.Context, router Router, ev filechange.Event, pending *counter, collect func(Result)) {
	start := time.Now()
	err := router.Route(ctx, ev)
	if err != nil && cancelled(ctx, err) {
		plog.Debug("Event cancelled", "event", ev.String())
		pending.add(-1)
		return
	}

	res := newResult(ev, err, time.Since(start))
	o.opts.Metrics.ObserveEvent(ev.Kind.String(), res.Status == Failure, res.Duration)
	logResult(res)
	if collect != nil {
		collect(res)
	}
	o.results.Publish(res)
	pending.add(-1)
}

func logResult(r Result) {
	switch {
	case r.Status == Failure:
		plog.Warn("Event failed", "event", r.Event.String(), "error", r.Err)
	case r.Note != nil:
		plog.Debug("Event skipped", "event", r.Event.String(), "reason", r.Note)
	default:
		plog.Debug("Event processed", "event", r.Event.String(), "duration", r.Duration)
	}
}

// SyncOnce scans cfg's source and processes the result as one batch. It
// returns when every event has been resolved. It may run beside a started
// pipeline: both share the concurrency bound, but its events are not part
// of InFlight or ObserveIsRunning.
func (o *Orchestrator) SyncOnce(ctx context.Context, cfg mirrorpath.Configuration) (Summary, error) {
	unlock, err := o.lockTarget(ctx, cfg)
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	router, release := o.factory(cfg)
	defer release()

	files, err := o.source.Scan(ctx, cfg.SourceRoot)
	if err != nil {
		return Summary{}, err
	}

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	o.dispatch(ctx, router, initialEvents(files), &counter{}, &wg, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		summary.add(r)
	})
	wg.Wait()
	return summary, ctx.Err()
}
