package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Galad/musicmirror/pkg/audioformat"
	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
)

// DefaultQuality is the LAME VBR quality passed as -q:a (0 best, 9 smallest).
const DefaultQuality = 2

// FFmpeg encodes to MP3 with an external ffmpeg binary. The binary runs in
// its own process group and is killed together with its children when the
// context is cancelled.
type FFmpeg struct {
	Binary  string
	Quality int

	// commandContext is swapped in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewFFmpeg creates an FFmpeg transcoder. An empty binary means "ffmpeg" on PATH.
func NewFFmpeg(binary string, quality int) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if quality < 0 || quality > 9 {
		quality = DefaultQuality
	}
	return &FFmpeg{Binary: binary, Quality: quality, commandContext: exec.CommandContext}
}

// LookPath checks that the binary can be found.
func (f *FFmpeg) LookPath() (string, error) {
	return exec.LookPath(f.Binary)
}

func (f *FFmpeg) OutputName(fileName string) string {
	return ReplaceExtension(fileName, audioformat.MP3.DefaultExtension)
}

func (f *FFmpeg) args(sourcePath, outPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", sourcePath,
		"-map", "0:a:0",
		"-map_metadata", "0",
		"-id3v2_version", "3",
		"-codec:a", "libmp3lame",
		"-q:a", strconv.Itoa(f.Quality),
		"-f", "mp3",
		outPath,
	}
}

// Transcode encodes into a temporary file next to the final one and renames
// it into place once ffmpeg succeeded.
func (f *FFmpeg) Transcode(ctx context.Context, sourcePath string, format audioformat.Format, targetDir string) error {
	outPath := filepath.Join(targetDir, f.OutputName(filepath.Base(sourcePath)))

	tmp, err := os.CreateTemp(targetDir, ".musicmirror-*.mp3")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", targetDir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	var stderr bytes.Buffer
	cmd := f.createCommand(ctx, f.args(sourcePath, tmpPath)...)
	cmd.Stderr = &stderr

	start := time.Now()
	plog.Debug("Running ffmpeg", "source", sourcePath, "format", format.String(), "output", outPath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg failed on %s: %w", sourcePath, err)
		}
		return fmt.Errorf("ffmpeg failed on %s: %w: %s", sourcePath, err, lastLine(msg))
	}

	if err := os.Chmod(tmpPath, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("failed to move transcoded file to %s: %w", outPath, err)
	}
	tmpPath = ""
	plog.Debug("ffmpeg finished", "output", outPath, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

var _ Transcoder = (*FFmpeg)(nil)
