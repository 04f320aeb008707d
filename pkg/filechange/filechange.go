// Package filechange describes a single change observed in the source library.
package filechange

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Galad/musicmirror/pkg/util"
)

// Kind is the type of change a file went through.
type Kind int

const (
	// Added is a file that appeared in the source.
	Added Kind = iota + 1
	// Modified is a file whose content changed.
	Modified
	// Deleted is a file that disappeared from the source.
	Deleted
	// Renamed is a file that moved from OldPath to Path.
	Renamed
	// Initial is a file found by the startup scan. It is synchronized if needed,
	// exactly like Added and Modified.
	Initial
)

var kindToString = map[Kind]string{
	Added:    "added",
	Modified: "modified",
	Deleted:  "deleted",
	Renamed:  "renamed",
	Initial:  "initial",
}

var stringToKind = util.InvertMap(kindToString)

func (k Kind) String() string {
	if s, ok := kindToString[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown_kind(%d)", int(k))
}

// ParseKind parses the string form of a Kind.
func ParseKind(s string) (Kind, error) {
	if k, ok := stringToKind[strings.ToLower(s)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("invalid change kind: %q", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("Kind should be a string, got %s", data)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is one change to one source file. OldPath is set only for Renamed.
type Event struct {
	Kind       Kind      `json:"kind"`
	Path       string    `json:"path"`
	OldPath    string    `json:"oldPath,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ErrInvalidEvent is returned by Validate.
var ErrInvalidEvent = errors.New("invalid file change event")

func NewAdded(path string, modifiedAt time.Time) Event {
	return Event{Kind: Added, Path: path, ModifiedAt: modifiedAt}
}

func NewModified(path string, modifiedAt time.Time) Event {
	return Event{Kind: Modified, Path: path, ModifiedAt: modifiedAt}
}

func NewDeleted(path string, at time.Time) Event {
	return Event{Kind: Deleted, Path: path, ModifiedAt: at}
}

func NewInitial(path string, modifiedAt time.Time) Event {
	return Event{Kind: Initial, Path: path, ModifiedAt: modifiedAt}
}

func NewRenamed(path, oldPath string, modifiedAt time.Time) Event {
	return Event{Kind: Renamed, Path: path, OldPath: oldPath, ModifiedAt: modifiedAt}
}

// Validate checks that the kind is known, the path is set and that OldPath is
// present exactly when the event is a rename.
func (e Event) Validate() error {
	if _, ok := kindToString[e.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidEvent, int(e.Kind))
	}
	if e.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEvent)
	}
	if e.Kind == Renamed && e.OldPath == "" {
		return fmt.Errorf("%w: rename of %s has no old path", ErrInvalidEvent, e.Path)
	}
	if e.Kind != Renamed && e.OldPath != "" {
		return fmt.Errorf("%w: %s event for %s carries an old path", ErrInvalidEvent, e.Kind, e.Path)
	}
	return nil
}

func (e Event) String() string {
	if e.Kind == Renamed {
		return fmt.Sprintf("%s %s -> %s", e.Kind, e.OldPath, e.Path)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
