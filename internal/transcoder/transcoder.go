// SPDX-License-Identifier: MIT

// Package transcoder builds the ffmpeg invocation that turns the raw
// extractor audio on stdin into an mp3 stream on stdout while teeing the
// same bytes into the capture file. Process lifecycle is owned by the
// ingest supervisor, not by this package.
package transcoder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tubescribe/tubescribe/internal/procgroup"
)

// DefaultQuality is the libmp3lame VBR quality (0 best, 9 worst).
const DefaultQuality = 5

// Transcoder holds the ffmpeg binary path and encoding settings.
type Transcoder struct {
	binary  string
	quality int
}

// New returns a Transcoder. Quality outside [0,9] falls back to the
// default.
func New(binary string, quality int) *Transcoder {
	if quality < 0 || quality > 9 {
		quality = DefaultQuality
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Transcoder{binary: binary, quality: quality}
}

// Args returns the ffmpeg argument list for transcoding stdin to mp3 on
// stdout with a tee into capturePath. The tee muxer writes both outputs
// from a single encode.
func (t *Transcoder) Args(capturePath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", fmt.Sprintf("%d", t.quality),
		"-map", "0:a",
		"-f", "tee",
		fmt.Sprintf("[f=mp3]pipe:1|[f=mp3]%s", teeEscape(capturePath)),
	}
}

// Command builds the ffmpeg command for a capture path. The command is
// placed in its own process group; stdin, stdout and stderr wiring is the
// caller's job, as is Start/Wait/termination.
func (t *Transcoder) Command(ctx context.Context, capturePath string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, t.binary, t.Args(capturePath)...)
	procgroup.Set(cmd)
	return cmd
}

// CaptureArgs returns the argument list for a capture-only run: stdin to
// the capture file, no broadcast output. Used by the pre-fetch warmer.
func (t *Transcoder) CaptureArgs(capturePath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", fmt.Sprintf("%d", t.quality),
		"-f", "mp3",
		"-y",
		capturePath,
	}
}

// CaptureCommand builds the capture-only ffmpeg command.
func (t *Transcoder) CaptureCommand(ctx context.Context, capturePath string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, t.binary, t.CaptureArgs(capturePath)...)
	procgroup.Set(cmd)
	return cmd
}

// teeEscape quotes the characters the tee muxer treats as separators.
func teeEscape(path string) string {
	r := strings.NewReplacer(`|`, `\|`, `[`, `\[`, `]`, `\]`, `:`, `\:`)
	return r.Replace(path)
}
