// SPDX-License-Identifier: MIT

package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tubescribe/tubescribe/internal/cache"
)

// probeTTL bounds how long a cached duration is trusted. Capture files
// are immutable once complete, so this is generous.
const probeTTL = time.Hour

// Prober reads media durations via ffprobe, with a cache so the pre-fetch
// controller can poll cheaply.
type Prober struct {
	binary string
	cache  cache.Cache
}

// NewProber returns a Prober. A nil cache disables caching.
func NewProber(binary string, c cache.Cache) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Prober{binary: binary, cache: c}
}

// Duration returns the media duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	key := "probe:" + path
	if v, ok := p.cache.Get(key); ok {
		if d, ok := v.(float64); ok {
			return d, nil
		}
	}

	cmd := exec.CommandContext(ctx, p.binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	d, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", stdout.String(), err)
	}

	p.cache.Set(key, d, probeTTL)
	return d, nil
}
