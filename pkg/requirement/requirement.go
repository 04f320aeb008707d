// Package requirement decides whether a source file must be transcoded before
// it is mirrored.
package requirement

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/Galad/musicmirror/pkg/audioformat"
)

// Policy answers whether path needs transcoding. An error is only returned
// when an additional probe of the file failed.
type Policy interface {
	RequiresTranscoding(ctx context.Context, path string) (bool, error)
}

// Probe inspects a file whose extension already matched.
type Probe func(ctx context.Context, path string) (bool, error)

// Extension is a leaf policy. Paths whose extension is not in the set never
// require transcoding. For matching paths the answer is Probe's, or Match when
// no probe is set.
type Extension struct {
	extensions []string
	Match      bool
	Probe      Probe
}

// NewExtension creates a leaf policy answering match for the given extensions.
func NewExtension(match bool, extensions ...string) *Extension {
	return &Extension{extensions: extensions, Match: match}
}

// ForFormat creates a leaf policy for all extensions of f.
func ForFormat(f audioformat.Format, match bool) *Extension {
	return NewExtension(match, f.Extensions()...)
}

func (e *Extension) RequiresTranscoding(ctx context.Context, path string) (bool, error) {
	ext := filepath.Ext(path)
	matched := false
	for _, candidate := range e.extensions {
		if strings.EqualFold(candidate, ext) {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	if e.Probe != nil {
		return e.Probe(ctx, path)
	}
	return e.Match, nil
}

// Any is the ordered OR of its policies. It stops at the first policy that
// answers true, or at the first error. An empty Any answers false.
type Any []Policy

func (a Any) RequiresTranscoding(ctx context.Context, path string) (bool, error) {
	for _, p := range a {
		required, err := p.RequiresTranscoding(ctx, path)
		if err != nil {
			return false, err
		}
		if required {
			return true, nil
		}
	}
	return false, nil
}

// Default keeps MP3 files as they are and transcodes FLAC files.
func Default() Policy {
	return Any{
		ForFormat(audioformat.MP3, false),
		ForFormat(audioformat.FLAC, true),
	}
}
