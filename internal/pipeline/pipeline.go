// SPDX-License-Identifier: MIT

// Package pipeline drives one job through the post-capture stages:
// dedup check, transcribe, summarize, publish, cleanup. Each stage is a
// pure function over the job and the collaborator bundle; state and
// errors are reported back to the job engine, which owns retries'
// terminal outcomes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tubescribe/tubescribe/internal/capture"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/notes"
	"github.com/tubescribe/tubescribe/internal/providers"
)

// captureWait bounds how long a job waits for its capture file to become
// ready before transcription.
const captureWait = 2 * time.Minute

// NoteStore is the slice of the notes client the pipeline needs.
type NoteStore interface {
	FindByLabel(ctx context.Context, name, value string) (*notes.NoteRef, error)
	CreateNote(ctx context.Context, parentID, title, content, mime string) (string, error)
	AddLabel(ctx context.Context, noteID, name, value string) error
	NoteURL(noteID string) string
}

// Transcriber converts an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, videoID string) (providers.Transcription, error)
}

// Summarizer condenses a prompt into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, prompt, videoID string) (providers.Summary, error)
}

// BackupWriter catches publish payloads when the note store fails.
type BackupWriter interface {
	WriteJSON(id string, payload any) error
}

// TitleSource resolves a display title when the job carries none.
type TitleSource interface {
	TitleFor(ctx context.Context, videoID string) string
}

// Deps bundles the pipeline collaborators. Notes may be nil when no note
// store is configured; publishing then goes straight to the backup sink.
type Deps struct {
	Notes        NoteStore
	Backup       BackupWriter
	Transcriber  Transcriber
	Summarizer   Summarizer
	Artifacts    *capture.Artifacts
	Capture      *capture.Store
	Waiter       *capture.Waiter
	Titles       TitleSource
	ParentNoteID string

	// PublishTimeout bounds a single note-create call. Zero means 30s.
	PublishTimeout time.Duration
}

// Runner executes the stage sequence. Its Run method matches
// jobs.RunFunc.
type Runner struct {
	deps Deps
}

// NewRunner returns a Runner over the given collaborators.
func NewRunner(deps Deps) *Runner {
	if deps.PublishTimeout <= 0 {
		deps.PublishTimeout = 30 * time.Second
	}
	return &Runner{deps: deps}
}

// Run drives a single job. Returning jobs.ErrSkipped marks the job
// skipped; any other error fails it.
func (r *Runner) Run(ctx context.Context, job jobs.Job, rep jobs.Reporter) error {
	logger := log.WithComponentFromContext(ctx, "pipeline")

	if err := r.dedup(ctx, job, rep); err != nil {
		return err
	}

	transcript, err := r.transcribe(ctx, job, rep)
	if err != nil {
		return err
	}

	summary, err := r.summarize(ctx, job, rep, transcript)
	if err != nil {
		return err
	}

	if err := r.publish(ctx, job, rep, transcript, summary); err != nil {
		return err
	}

	// Cleanup is best-effort; a stuck filesystem must not fail the job.
	if err := r.deps.Capture.Remove(job.VideoID); err != nil {
		logger.Warn().Err(err).Str("video_id", job.VideoID).Msg("capture cleanup failed")
	}

	return nil
}

// dedup asks the note store for an existing note labelled with the
// identifier. Transport errors fail open: a duplicate note is preferable
// to a lost summary.
func (r *Runner) dedup(ctx context.Context, job jobs.Job, rep jobs.Reporter) error {
	rep.SetState(jobs.StateCheckingDedup)

	if r.deps.Notes == nil {
		return nil
	}

	ref, err := r.deps.Notes.FindByLabel(ctx, notes.LabelName, job.VideoID)
	if err != nil {
		logger := log.WithComponentFromContext(ctx, "pipeline")
		logger.Warn().
			Err(err).
			Str("video_id", job.VideoID).
			Msg("dedup check failed, proceeding as not found")
		return nil
	}

	if ref != nil {
		rep.SetNoteURL(r.deps.Notes.NoteURL(ref.NoteID))
		return jobs.ErrSkipped
	}
	return nil
}

// transcribe waits for the capture file and produces the transcript
// artifact. An existing artifact is reused: artifacts are idempotent
// caches.
func (r *Runner) transcribe(ctx context.Context, job jobs.Job, rep jobs.Reporter) (capture.Transcript, error) {
	rep.SetState(jobs.StateTranscribing)

	if cached, ok, err := r.deps.Artifacts.Transcript(job.VideoID); err == nil && ok {
		return cached, nil
	}

	if err := r.deps.Waiter.Wait(ctx, job.VideoID, captureWait); err != nil {
		return capture.Transcript{}, fmt.Errorf("capture not ready: %w", err)
	}

	audioPath, err := r.deps.Capture.Path(job.VideoID)
	if err != nil {
		return capture.Transcript{}, err
	}

	var result providers.Transcription
	attempts, err := jobs.Retry(ctx, "transcribe", providers.Retriable, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.deps.Transcriber.Transcribe(ctx, audioPath, job.VideoID)
		return callErr
	})
	rep.SetAttempts(attempts)
	if err != nil {
		return capture.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}

	artifact := capture.Transcript{
		VideoID:      job.VideoID,
		Text:         result.Text,
		Provider:     "openai",
		Model:        result.Model,
		AudioSeconds: result.AudioSeconds,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.deps.Artifacts.SaveTranscript(artifact); err != nil {
		return capture.Transcript{}, fmt.Errorf("persist transcript: %w", err)
	}

	return artifact, nil
}

// summarize produces the summary artifact from the transcript.
func (r *Runner) summarize(ctx context.Context, job jobs.Job, rep jobs.Reporter, transcript capture.Transcript) (capture.Summary, error) {
	rep.SetState(jobs.StateSummarizing)

	if cached, ok, err := r.deps.Artifacts.Summary(job.VideoID); err == nil && ok {
		return cached, nil
	}

	prompt := providers.SummaryPrompt(transcript.Text, r.title(ctx, job), job.Channel)

	var result providers.Summary
	attempts, err := jobs.Retry(ctx, "summarize", providers.Retriable, func(ctx context.Context) error {
		var callErr error
		result, callErr = r.deps.Summarizer.Summarize(ctx, prompt, job.VideoID)
		return callErr
	})
	rep.SetAttempts(attempts)
	if err != nil {
		return capture.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	artifact := capture.Summary{
		VideoID:        job.VideoID,
		Text:           result.Text,
		Provider:       "openai",
		Model:          result.Model,
		PromptTokens:   result.PromptTokens,
		ResponseTokens: result.ResponseTokens,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.deps.Artifacts.SaveSummary(artifact); err != nil {
		return capture.Summary{}, fmt.Errorf("persist summary: %w", err)
	}

	return artifact, nil
}

// publish creates the note and attaches the dedup label. A failed create
// writes the payload to the backup sink and fails the job; a failed
// label attach only falls back to the backup sink, since the note itself
// exists.
func (r *Runner) publish(ctx context.Context, job jobs.Job, rep jobs.Reporter, transcript capture.Transcript, summary capture.Summary) error {
	rep.SetState(jobs.StatePublishing)

	logger := log.WithComponentFromContext(ctx, "pipeline")
	title := notes.NormalizeTitle(r.title(ctx, job))
	payload := backupPayload(job, title, transcript, summary)

	if r.deps.Notes == nil {
		// No note store configured: the backup sink is the publish target.
		return r.deps.Backup.WriteJSON(job.VideoID, payload)
	}

	body := notes.RenderMarkdown(summary.Text)

	var noteID string
	_, err := jobs.Retry(ctx, "publish", providers.Retriable, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.deps.PublishTimeout)
		defer cancel()
		var callErr error
		noteID, callErr = r.deps.Notes.CreateNote(ctx, r.deps.ParentNoteID, title, body, "text/html")
		return callErr
	})
	if err != nil {
		if backupErr := r.deps.Backup.WriteJSON(job.VideoID, payload); backupErr != nil {
			logger.Error().Err(backupErr).Str("video_id", job.VideoID).Msg("backup sink write failed")
		}
		return fmt.Errorf("publish: %w", err)
	}

	rep.SetNoteURL(r.deps.Notes.NoteURL(noteID))

	if err := r.deps.Notes.AddLabel(ctx, noteID, notes.LabelName, job.VideoID); err != nil {
		logger.Warn().Err(err).
			Str("video_id", job.VideoID).
			Str("note_id", noteID).
			Msg("label attach failed, writing backup payload")
		if backupErr := r.deps.Backup.WriteJSON(job.VideoID, payload); backupErr != nil {
			logger.Error().Err(backupErr).Str("video_id", job.VideoID).Msg("backup sink write failed")
		}
	}

	return nil
}

func (r *Runner) title(ctx context.Context, job jobs.Job) string {
	if job.Title != "" {
		return job.Title
	}
	if r.deps.Titles != nil {
		return r.deps.Titles.TitleFor(ctx, job.VideoID)
	}
	return "YouTube Video " + job.VideoID
}

func backupPayload(job jobs.Job, title string, transcript capture.Transcript, summary capture.Summary) map[string]any {
	return map[string]any{
		"video_id":   job.VideoID,
		"title":      title,
		"channel":    job.Channel,
		"transcript": transcript.Text,
		"summary":    summary.Text,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
}
