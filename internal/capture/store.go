// SPDX-License-Identifier: MIT

// Package capture manages the on-disk artifacts of ingest sessions: the
// captured audio files under capture_dir, the transcript/summary JSON
// caches under cache_dir, and the readiness probe used by clients and the
// pre-fetch controller.
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
)

// AudioExt is the container extension of captured audio files.
const AudioExt = ".mp3"

// partSuffix marks a capture that is still being written.
const partSuffix = ".part"

// Store manages captured audio files rooted at a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory must exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the capture root.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the capture file path for an identifier. Identifiers
// containing path separators are rejected to keep all captures confined
// to the root.
func (s *Store) Path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid capture identifier %q", id)
	}
	return filepath.Join(s.dir, id+AudioExt), nil
}

// PartPath returns the in-progress marker path for an identifier.
func (s *Store) PartPath(id string) (string, error) {
	p, err := s.Path(id)
	if err != nil {
		return "", err
	}
	return p + partSuffix, nil
}

// Ready reports whether a complete capture exists for the identifier:
// the file exists with nonzero size and no in-progress marker is present.
func (s *Store) Ready(id string) bool {
	p, err := s.Path(id)
	if err != nil {
		return false
	}

	if _, err := os.Stat(p + partSuffix); err == nil {
		return false
	}

	info, err := os.Stat(p)
	return err == nil && info.Size() > 0
}

// Remove deletes the capture file for an identifier. Missing files are
// not an error.
func (s *Store) Remove(id string) error {
	p, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(p + partSuffix)
	return nil
}

// Retain asynchronously deletes all but the most recent keep capture
// files, ordered by mtime. Runs on its own goroutine so the caller is
// never blocked by filesystem stalls. Errors are logged, not fatal.
func (s *Store) Retain(keep int) {
	if keep < 1 {
		keep = 1
	}
	go s.retain(keep)
}

func (s *Store) retain(keep int) {
	logger := log.WithComponent("capture")

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", s.dir).Msg("retention scan failed")
		return
	}

	type captureFile struct {
		path  string
		mtime int64
	}

	var files []captureFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), AudioExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, captureFile{
			path:  filepath.Join(s.dir, e.Name()),
			mtime: info.ModTime().UnixNano(),
		})
	}

	if len(files) <= keep {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].mtime > files[j].mtime
	})

	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			logger.Warn().Err(err).Str("path", f.path).Msg("retention delete failed")
			continue
		}
		metrics.RetentionDeletesTotal.Inc()
		logger.Debug().Str("path", f.path).Msg("capture evicted by retention")
	}
}
