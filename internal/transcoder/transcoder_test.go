// SPDX-License-Identifier: MIT

package transcoder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubescribe/tubescribe/internal/cache"
)

func TestArgs(t *testing.T) {
	tr := New("ffmpeg", 3)
	args := tr.Args("/data/captures/abc12345678.mp3")

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i pipe:0")
	assert.Contains(t, joined, "-q:a 3")
	assert.Contains(t, joined, "-f tee")
	assert.Contains(t, joined, "[f=mp3]pipe:1|[f=mp3]/data/captures/abc12345678.mp3")
}

func TestArgsQualityBounds(t *testing.T) {
	assert.Contains(t, strings.Join(New("ffmpeg", -1).Args("x"), " "), "-q:a 5")
	assert.Contains(t, strings.Join(New("ffmpeg", 10).Args("x"), " "), "-q:a 5")
	assert.Contains(t, strings.Join(New("ffmpeg", 0).Args("x"), " "), "-q:a 0")
}

func TestTeeEscape(t *testing.T) {
	assert.Equal(t, `/a\:b`, teeEscape(`/a:b`))
	assert.Equal(t, `a\|b`, teeEscape("a|b"))
}

func TestCommandUsesBinary(t *testing.T) {
	tr := New("/opt/bin/ffmpeg", 5)
	cmd := tr.Command(context.Background(), "/tmp/x.mp3")
	assert.Equal(t, "/opt/bin/ffmpeg", cmd.Path)
}

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)

	_, err := r.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("three\nfour\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"two", "three", "four"}, r.LastN(10))
	assert.Equal(t, []string{"four"}, r.LastN(1))
}

func TestLineRingEmpty(t *testing.T) {
	r := NewLineRing(5)
	assert.Empty(t, r.LastN(3))
}

func fakeFFprobe(t *testing.T, stdout string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub binary requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\nprintf '%s\\n' '" + stdout + "'\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProberDuration(t *testing.T) {
	bin := fakeFFprobe(t, "215.433333")
	p := NewProber(bin, cache.NewMemoryCache(0))

	d, err := p.Duration(context.Background(), "/tmp/whatever.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 215.433, d, 0.001)

	// Cached: works even after the binary is gone.
	require.NoError(t, os.Remove(bin))
	d2, err := p.Duration(context.Background(), "/tmp/whatever.mp3")
	require.NoError(t, err)
	assert.Equal(t, d, d2)
}

func TestProberBadOutput(t *testing.T) {
	bin := fakeFFprobe(t, "N/A")
	p := NewProber(bin, nil)

	_, err := p.Duration(context.Background(), "/tmp/whatever.mp3")
	assert.Error(t, err)
}
