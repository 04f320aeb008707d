package mirrorops

import (
	"context"
	"fmt"

	"github.com/Galad/musicmirror/pkg/filechange"
	"github.com/Galad/musicmirror/pkg/hints"
	"github.com/Galad/musicmirror/pkg/requirement"
)

// Router sends each change event to the operations family that owns the
// path. It holds no mutable state of its own and is safe for concurrent use.
type Router struct {
	Policy      requirement.Policy
	Transcoding Operations
	Default     Operations
}

func (r *Router) ops(ctx context.Context, path string) (Operations, bool, error) {
	transcode, err := r.Policy.RequiresTranscoding(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("checking transcoding requirement for %s: %w", path, err)
	}
	if transcode {
		return r.Transcoding, true, nil
	}
	return r.Default, false, nil
}

// Route applies ev to the mirror.
func (r *Router) Route(ctx context.Context, ev filechange.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Kind {
	case filechange.Added, filechange.Modified, filechange.Initial:
		ops, _, err := r.ops(ctx, ev.Path)
		if err != nil {
			return err
		}
		return ops.SynchronizeFile(ctx, ev.Path)
	case filechange.Deleted:
		ops, _, err := r.ops(ctx, ev.Path)
		if err != nil {
			return err
		}
		err = ops.DeleteFile(ctx, ev.Path)
		if err == nil || hints.IsHint(err) {
			// A deleted directory takes the other family's files with it.
			r.other(ops).ForgetTree(ev.Path)
		}
		return err
	case filechange.Renamed:
		return r.rename(ctx, ev.Path, ev.OldPath)
	default:
		return fmt.Errorf("%w: unknown kind %d", filechange.ErrInvalidEvent, ev.Kind)
	}
}

func (r *Router) rename(ctx context.Context, newPath, oldPath string) error {
	oldOps, oldTranscoded, err := r.ops(ctx, oldPath)
	if err != nil {
		return err
	}
	newOps, newTranscoded, err := r.ops(ctx, newPath)
	if err != nil {
		return err
	}
	if oldTranscoded == newTranscoded {
		err := newOps.RenameFile(ctx, newPath, oldPath)
		if err == nil || hints.IsHint(err) {
			r.other(newOps).MoveTree(oldPath, newPath)
		}
		return err
	}

	// The file changes family: mirror it under the new family first, and drop
	// the old mirror only once that worked.
	syncErr := newOps.SynchronizeFile(ctx, newPath)
	if syncErr != nil && !hints.IsHint(syncErr) {
		return syncErr
	}
	if sameMirror(oldOps, oldPath, newOps, newPath) {
		// track.mp3 renamed to track.flac: the old mirror is the one just written.
		oldOps.Forget(oldPath)
		return syncErr
	}
	return oldOps.DeleteFile(ctx, oldPath)
}

func (r *Router) other(ops Operations) Operations {
	if ops == r.Transcoding {
		return r.Default
	}
	return r.Transcoding
}

func sameMirror(oldOps Operations, oldPath string, newOps Operations, newPath string) bool {
	oldMirror, err := oldOps.MirroredPath(oldPath)
	if err != nil {
		return false
	}
	newMirror, err := newOps.MirroredPath(newPath)
	if err != nil {
		return false
	}
	return oldMirror.Equal(newMirror)
}
