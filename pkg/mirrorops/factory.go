package mirrorops

import (
	"github.com/Galad/musicmirror/pkg/bookkeeper"
	"github.com/Galad/musicmirror/pkg/fileops"
	"github.com/Galad/musicmirror/pkg/metrics"
	"github.com/Galad/musicmirror/pkg/mirrorpath"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/requirement"
	"github.com/Galad/musicmirror/pkg/transcoder"
)

// Factory builds a fresh Router for each configuration. Bookkeeping starts
// empty with every new Router.
type Factory struct {
	FS         FileSystem
	Transcoder transcoder.Transcoder
	Policy     requirement.Policy
	Metrics    metrics.Metrics
}

// New returns the Router for cfg and a func releasing its resources. The
// release func must be called once no more events are routed.
func (f *Factory) New(cfg mirrorpath.Configuration) (*Router, func()) {
	policy := f.Policy
	if policy == nil {
		policy = requirement.Default()
	}

	var linker *fileops.Linker
	release := func() {}
	if cfg.Behavior == mirrorpath.Symlink {
		linker = fileops.NewLinker()
		release = linker.Close
	}

	transcodingBooks := bookkeeper.New(cfg, f.Transcoder.OutputName)
	defaultBooks := bookkeeper.New(cfg, mirrorpath.Identity)

	var l Linker
	if linker != nil {
		l = linker
	}

	plog.Debug("Created mirror operations", "config", cfg.String())
	return &Router{
		Policy:      policy,
		Transcoding: NewTranscoding(f.FS, f.Transcoder, transcodingBooks, f.Metrics),
		Default:     NewDefault(cfg.Behavior, f.FS, l, defaultBooks, f.Metrics),
	}, release
}
