package hints_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Galad/musicmirror/pkg/hints"
)

func TestHint(t *testing.T) {
	var (
		errUpToDate = errors.New("mirror is up to date")
		errDisk     = errors.New("disk full")
		errHinted   = hints.Wrap(errUpToDate)
	)

	t.Run("Wrap nil", func(t *testing.T) {
		if hints.Wrap(nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("New keeps the message", func(t *testing.T) {
		err := hints.New("behavior is ignore")
		if err.Error() != "behavior is ignore" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("Newf wraps its cause", func(t *testing.T) {
		err := hints.Newf("album/01.flac: %w", errUpToDate)
		if !hints.Is(err, errUpToDate) {
			t.Error("expected Newf result to match the wrapped cause")
		}
	})

	t.Run("IsHint", func(t *testing.T) {
		testCases := []struct {
			name     string
			err      error
			expected bool
		}{
			{"NilError", nil, false},
			{"StandardError", errDisk, false},
			{"HintedError", errHinted, true},
			{"WrappedHint", fmt.Errorf("sync: %w", errHinted), true},
			{"WrappedStandardError", fmt.Errorf("sync: %w", errDisk), false},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				if got := hints.IsHint(tc.err); got != tc.expected {
					t.Errorf("IsHint() = %v, want %v", got, tc.expected)
				}
			})
		}
	})

	t.Run("Is", func(t *testing.T) {
		if !hints.Is(errHinted, errUpToDate) {
			t.Error("Is(hinted, cause) should be true")
		}
		if hints.Is(errUpToDate, errUpToDate) {
			t.Error("Is(cause, cause) should be false because it is not a hint")
		}
		if hints.Is(errHinted, errDisk) {
			t.Error("Is(hinted, unrelated) should be false")
		}
		if errors.Unwrap(errHinted) != errUpToDate {
			t.Error("Unwrap should return the original error")
		}
	})
}
