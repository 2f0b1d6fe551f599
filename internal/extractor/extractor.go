// SPDX-License-Identifier: MIT

// Package extractor wraps the yt-dlp binary: metadata lookup via
// --dump-json and raw audio streaming via stdout. Callers own the
// returned process handle and are responsible for terminating it.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/tubescribe/tubescribe/internal/cache"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/procgroup"
)

// metadataTTL bounds how long a cached metadata record is trusted.
const metadataTTL = 30 * time.Minute

// Metadata describes a remote video.
type Metadata struct {
	VideoID   string  `json:"video_id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration_seconds"`
}

// Extractor runs yt-dlp. Metadata lookups go through the cache; stream
// opens always spawn a fresh process.
type Extractor struct {
	binary string
	cache  cache.Cache
}

// New returns an Extractor using the given yt-dlp binary path.
// A nil cache disables metadata caching.
func New(binary string, c cache.Cache) *Extractor {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Extractor{binary: binary, cache: c}
}

// Metadata resolves title, channel, thumbnail and duration for an
// identifier via `yt-dlp --dump-json`.
func (e *Extractor) Metadata(ctx context.Context, id string) (Metadata, error) {
	if _, err := ParseID(id); err != nil {
		return Metadata{}, err
	}

	key := "meta:" + id
	if v, ok := e.cache.Get(key); ok {
		if m, ok := v.(Metadata); ok {
			return m, nil
		}
	}

	cmd := exec.CommandContext(ctx, e.binary,
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		WatchURL(id),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Metadata{}, fmt.Errorf("yt-dlp metadata for %s: %w (%s)", id, err, firstLine(stderr.Bytes()))
	}

	m, err := parseMetadata(id, stdout.Bytes())
	if err != nil {
		return Metadata{}, err
	}

	e.cache.Set(key, m, metadataTTL)
	return m, nil
}

// OpenStream spawns yt-dlp streaming the best audio format to stdout and
// returns the pipe plus the started command. The process runs in its own
// group so the whole tree can be terminated.
func (e *Extractor) OpenStream(ctx context.Context, id string) (io.ReadCloser, *exec.Cmd, error) {
	if _, err := ParseID(id); err != nil {
		return nil, nil, err
	}

	cmd := exec.CommandContext(ctx, e.binary,
		"-f", "bestaudio",
		"-o", "-",
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		WatchURL(id),
	)
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("yt-dlp stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start yt-dlp for %s: %w", id, err)
	}

	logger := log.WithComponent("extractor")
	logger.Debug().
		Str("video_id", id).
		Int("pid", cmd.Process.Pid).
		Msg("extractor started")

	return stdout, cmd, nil
}

// ytdlpInfo is the subset of yt-dlp's --dump-json output we read.
type ytdlpInfo struct {
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	Uploader  string  `json:"uploader"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
}

func parseMetadata(id string, data []byte) (Metadata, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return Metadata{}, fmt.Errorf("parse yt-dlp output for %s: %w", id, err)
	}

	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}

	return Metadata{
		VideoID:   id,
		Title:     info.Title,
		Channel:   channel,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
	}, nil
}

func firstLine(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimSpace(b))
}
