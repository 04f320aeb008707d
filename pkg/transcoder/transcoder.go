// Package transcoder turns source audio files into mirror files.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Galad/musicmirror/pkg/audioformat"
)

// Transcoder writes the transcoded form of a source file into a target directory.
type Transcoder interface {
	// OutputName returns the mirror file name for a source file name.
	OutputName(fileName string) string
	// Transcode writes targetDir/OutputName(base(sourcePath)). targetDir exists.
	Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error
}

// ErrUnsupportedFormat is returned by Unsupported.
var ErrUnsupportedFormat = errors.New("no transcoder for this format")

// ReplaceExtension swaps the extension of fileName for ext.
func ReplaceExtension(fileName, ext string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ext
}

// Unsupported rejects every file. It is the fallback of a Dispatch that has
// no transcoder for a format.
type Unsupported struct{}

func (Unsupported) OutputName(fileName string) string { return fileName }

func (Unsupported) Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error {
	name := format.String()
	if format.IsZero() {
		name = filepath.Ext(sourcePath)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Debug writes a small text file named "<source name>.debug" instead of audio.
// It exercises the full mirror pipeline without an encoder.
type Debug struct{}

func (Debug) OutputName(fileName string) string { return fileName + ".debug" }

func (d Debug) Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := filepath.Join(targetDir, d.OutputName(filepath.Base(sourcePath)))
	content := fmt.Sprintf("transcoded %s (%s)\n", sourcePath, format)
	return os.WriteFile(out, []byte(content), 0644)
}

var (
	_ Transcoder = Unsupported{}
	_ Transcoder = Debug{}
)
