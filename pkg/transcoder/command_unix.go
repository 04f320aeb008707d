//go:build !windows

package transcoder

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"
)

// createCommand puts ffmpeg into a new process group so cancellation can
// signal the whole group, not just the direct child.
func (f *FFmpeg) createCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := f.commandContext(ctx, f.Binary, args...)
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	return cmd
}
