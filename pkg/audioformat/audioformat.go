// Package audioformat lists the audio formats the mirror knows how to recognize.
package audioformat

import (
	"path/filepath"
	"slices"
	"strings"
)

// Format describes an audio container by its extensions.
type Format struct {
	ShortName        string
	FullName         string
	DefaultExtension string
	Lossless         bool
	aliases          []string
}

var (
	MP3  = Format{ShortName: "MP3", FullName: "MPEG-1/2 Audio Layer 3", DefaultExtension: ".mp3"}
	FLAC = Format{ShortName: "FLAC", FullName: "Free Lossless Audio Codec", DefaultExtension: ".flac", Lossless: true, aliases: []string{".fla"}}
)

// Known is every format recognized by ForPath, in lookup order.
var Known = []Format{MP3, FLAC}

// Extensions returns the default extension followed by any aliases.
func (f Format) Extensions() []string {
	return append([]string{f.DefaultExtension}, f.aliases...)
}

// SupportsExtension reports whether ext (with its leading dot) belongs to f,
// ignoring case.
func (f Format) SupportsExtension(ext string) bool {
	return slices.ContainsFunc(f.Extensions(), func(e string) bool {
		return strings.EqualFold(e, ext)
	})
}

// IsZero reports whether f is the zero Format.
func (f Format) IsZero() bool { return f.ShortName == "" }

func (f Format) String() string { return f.ShortName }

// ForPath returns the known format for path's extension.
func ForPath(path string) (Format, bool) {
	ext := filepath.Ext(path)
	if ext == "" {
		return Format{}, false
	}
	for _, f := range Known {
		if f.SupportsExtension(ext) {
			return f, true
		}
	}
	return Format{}, false
}
