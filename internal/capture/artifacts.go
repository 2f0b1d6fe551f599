// SPDX-License-Identifier: MIT

package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// Transcript is the persisted result of a transcription call.
type Transcript struct {
	VideoID      string    `json:"video_id"`
	Text         string    `json:"text"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	AudioSeconds float64   `json:"audio_seconds"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the persisted result of a summarization call.
type Summary struct {
	VideoID        string    `json:"video_id"`
	Text           string    `json:"text"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	PromptTokens   int       `json:"prompt_tokens"`
	ResponseTokens int       `json:"response_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// Artifacts persists transcript and summary JSON records under cache_dir.
// Writes are atomic (temp file + fsync + rename); reads are serialized by
// a per-store mutex so a concurrent writer is never observed half-way.
type Artifacts struct {
	mu  sync.Mutex
	dir string
}

// NewArtifacts returns an artifact store rooted at cacheDir. The
// transcripts/ and summaries/ subdirectories are created if missing.
func NewArtifacts(cacheDir string) (*Artifacts, error) {
	for _, sub := range []string{"transcripts", "summaries"} {
		if err := os.MkdirAll(filepath.Join(cacheDir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return &Artifacts{dir: cacheDir}, nil
}

// SaveTranscript atomically writes a transcript record.
func (a *Artifacts) SaveTranscript(t Transcript) error {
	return a.writeJSON(a.transcriptPath(t.VideoID), t)
}

// Transcript loads a transcript record. The second return is false when
// no record exists.
func (a *Artifacts) Transcript(videoID string) (Transcript, bool, error) {
	var t Transcript
	ok, err := a.readJSON(a.transcriptPath(videoID), &t)
	return t, ok, err
}

// SaveSummary atomically writes a summary record.
func (a *Artifacts) SaveSummary(s Summary) error {
	return a.writeJSON(a.summaryPath(s.VideoID), s)
}

// Summary loads a summary record. The second return is false when no
// record exists.
func (a *Artifacts) Summary(videoID string) (Summary, bool, error) {
	var s Summary
	ok, err := a.readJSON(a.summaryPath(videoID), &s)
	return s, ok, err
}

func (a *Artifacts) transcriptPath(videoID string) string {
	return filepath.Join(a.dir, "transcripts", videoID+".json")
}

func (a *Artifacts) summaryPath(videoID string) string {
	return filepath.Join(a.dir, "summaries", videoID+".json")
}

// writeJSON writes payload atomically: renameio handles temp file
// creation, fsync and the rename, so a reader sees either the full
// previous content or the full new content, never a truncation.
func (a *Artifacts) writeJSON(path string, payload any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending artifact: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace artifact: %w", err)
	}
	return nil
}

func (a *Artifacts) readJSON(path string, into any) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, into); err != nil {
		return false, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
