package transcoder

import (
	"context"
	"strings"

	"github.com/Galad/musicmirror/pkg/audioformat"
)

// Dispatch routes each format to its own transcoder, falling back to a
// default one for formats it has no entry for.
type Dispatch struct {
	byFormat map[string]Transcoder
	fallback Transcoder
}

// NewDispatch creates a Dispatch. A nil fallback is Unsupported.
func NewDispatch(fallback Transcoder) *Dispatch {
	if fallback == nil {
		fallback = Unsupported{}
	}
	return &Dispatch{byFormat: make(map[string]Transcoder), fallback: fallback}
}

// Register assigns t to format. It is not safe to call concurrently with use.
func (d *Dispatch) Register(format audioformat.Format, t Transcoder) *Dispatch {
	d.byFormat[strings.ToUpper(format.ShortName)] = t
	return d
}

func (d *Dispatch) pick(format audioformat.Format) Transcoder {
	if t, ok := d.byFormat[strings.ToUpper(format.ShortName)]; ok {
		return t
	}
	return d.fallback
}

func (d *Dispatch) OutputName(fileName string) string {
	format, _ := audioformat.ForPath(fileName)
	return d.pick(format).OutputName(fileName)
}

func (d *Dispatch) Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error {
	return d.pick(format).Transcode(ctx, sourcePath, format, targetDir)
}

var _ Transcoder = (*Dispatch)(nil)
