// SPDX-License-Identifier: MIT

// Package jobs runs the post-capture pipeline: a FIFO of identifiers
// drained by exactly one worker, with a state machine per job,
// deduplication against non-terminal jobs, and retries around provider
// calls.
package jobs

import (
	"errors"
	"time"
)

// State is a job's position in the state machine.
type State string

const (
	StatePending       State = "pending"
	StateCheckingDedup State = "checking_dedup"
	StateTranscribing  State = "transcribing"
	StateSummarizing   State = "summarizing"
	StatePublishing    State = "publishing"
	StateCompleted     State = "completed"
	StateSkipped       State = "skipped"
	StateFailed        State = "failed"
)

// Terminal reports whether a state is final.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateSkipped, StateFailed:
		return true
	}
	return false
}

// ErrSkipped is returned by a run function when the dedup check found an
// existing note; the engine records state skipped instead of failed.
var ErrSkipped = errors.New("job skipped: duplicate found")

// Options carries per-job settings from the enqueue call.
type Options struct {
	Title   string
	Channel string
}

// Job is the engine's record for one identifier. Snapshots are returned
// by value; the engine owns the canonical copy.
type Job struct {
	VideoID    string     `json:"video_id"`
	Title      string     `json:"title,omitempty"`
	Channel    string     `json:"channel,omitempty"`
	State      State      `json:"state"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	NoteURL    string     `json:"note_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Reporter lets the run function publish progress on its job.
type Reporter interface {
	// SetState records an intermediate (non-terminal) state.
	SetState(s State)
	// SetNoteURL records the external note URL (created or pre-existing).
	SetNoteURL(url string)
	// SetAttempts records the attempt count of the latest retried call.
	SetAttempts(n int)
}
