package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/hints"
)

// Status is the outcome of one event.
type Status int

const (
	Success Status = iota + 1
	Failure
)

var statusToString = map[Status]string{
	Success: "success",
	Failure: "failure",
}

func (s Status) String() string {
	if str, ok := statusToString[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_status(%d)", s)
}

// Result reports how one event was processed. On Success, Note holds the
// soft outcome (up to date, ignored) if there was one. On Failure, Err holds
// the cause.
type Result struct {
	Event    filechange.Event
	Status   Status
	Err      error
	Note     error
	Duration time.Duration
}

func newResult(ev filechange.Event, err error, d time.Duration) Result {
	switch {
	case err == nil:
		return Result{Event: ev, Status: Success, Duration: d}
	case hints.IsHint(err):
		return Result{Event: ev, Status: Success, Note: err, Duration: d}
	default:
		return Result{Event: ev, Status: Failure, Err: err, Duration: d}
	}
}

func (r Result) String() string {
	if r.Status == Failure {
		return fmt.Sprintf("%s: %s: %v", r.Event, r.Status, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Event, r.Status)
}

// cancelled reports whether err only says that ctx was cancelled.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// Summary counts the results of a one-shot synchronization.
type Summary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []Result
}

func (s *Summary) add(r Result) {
	s.Total++
	switch {
	case r.Status == Failure:
		s.Failed++
		s.Failures = append(s.Failures, r)
	case r.Note != nil:
		s.Skipped++
		s.Succeeded++
	default:
		s.Succeeded++
	}
}
