package mirrorpath

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Galad/musicmirror/pkg/util"
)

// Behavior decides what happens to files that are not transcoded.
type Behavior int

const (
	// Copy copies the file into the mirror.
	Copy Behavior = iota
	// Symlink links the mirror entry to the source file.
	Symlink
	// Ignore leaves the file out of the mirror.
	Ignore
)

var behaviorToString = map[Behavior]string{
	Copy:    "copy",
	Symlink: "symlink",
	Ignore:  "ignore",
}

var stringToBehavior = util.InvertMap(behaviorToString)

func (b Behavior) String() string {
	if s, ok := behaviorToString[b]; ok {
		return s
	}
	return fmt.Sprintf("unknown_behavior(%d)", int(b))
}

// ParseBehavior parses "copy", "symlink" or "ignore".
func ParseBehavior(s string) (Behavior, error) {
	if b, ok := stringToBehavior[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b, nil
	}
	return Copy, fmt.Errorf("invalid non-transcoding behavior: %q. Must be 'copy', 'symlink' or 'ignore'", s)
}

// MarshalJSON implements the json.Marshaler interface.
func (b Behavior) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalYAML implements the yaml.Marshaler interface.
func (b Behavior) MarshalYAML() (any, error) {
	return b.String(), nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (b *Behavior) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("behavior should be a string: %w", err)
	}
	parsed, err := ParseBehavior(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Configuration is the immutable description of one mirror run.
type Configuration struct {
	SourceRoot string
	TargetRoot string
	Behavior   Behavior
}

// NewConfiguration cleans both roots.
func NewConfiguration(sourceRoot, targetRoot string, behavior Behavior) Configuration {
	return Configuration{
		SourceRoot: filepath.Clean(sourceRoot),
		TargetRoot: filepath.Clean(targetRoot),
		Behavior:   behavior,
	}
}

// Equal compares the resolved roots only.
func (c Configuration) Equal(other Configuration) bool {
	return samePath(c.SourceRoot, other.SourceRoot) && samePath(c.TargetRoot, other.TargetRoot)
}

func (c Configuration) String() string {
	return fmt.Sprintf("%s -> %s (%s)", c.SourceRoot, c.TargetRoot, c.Behavior)
}

func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if util.IsHostCaseInsensitiveFS() {
		return strings.EqualFold(a, b)
	}
	return a == b
}
