//go:build windows

package transcoder

import (
	"context"
	"os/exec"

	"golang.org/x/sys/windows"
)

// createCommand starts ffmpeg in a new process group so that console signals
// sent to musicmirror do not reach it directly; cancellation kills it.
func (f *FFmpeg) createCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := f.commandContext(ctx, f.Binary, args...)
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	return cmd
}
