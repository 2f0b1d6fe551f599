// SPDX-License-Identifier: MIT

// Package ingest owns the active streaming session: spawning the
// extractor and transcoder, pumping chunks into the broadcaster, the
// single-active invariant, auto-advance over the persistent queue, and
// pre-fetch warming of the next item's capture.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tubescribe/tubescribe/internal/broadcast"
	"github.com/tubescribe/tubescribe/internal/capture"
	"github.com/tubescribe/tubescribe/internal/extractor"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/log"
	"github.com/tubescribe/tubescribe/internal/metrics"
	"github.com/tubescribe/tubescribe/internal/store"
	"github.com/tubescribe/tubescribe/internal/transcoder"
)

// ErrNotStreaming is returned by Subscribe when no session is active.
var ErrNotStreaming = errors.New("no active stream")

// ErrClosed is returned after the supervisor has been shut down.
var ErrClosed = errors.New("ingest supervisor closed")

// Config holds the tunables of the ingest loop.
type Config struct {
	ChunkSize            int
	KillGrace            time.Duration
	PrefetchThreshold    time.Duration
	CaptureMaxFiles      int
	ReplayChunks         int
	ClientQueueChunks    int
	TranscriptionEnabled bool
}

// Engine is the slice of the job engine the supervisor uses.
type Engine interface {
	Enqueue(videoID string, opts jobs.Options) bool
	ShouldSkip(videoID string) bool
}

// Supervisor coordinates at most one active ingest session.
type Supervisor struct {
	cfg        Config
	extractor  *extractor.Extractor
	transcoder *transcoder.Transcoder
	captures   *capture.Store
	store      *store.Store
	engine     Engine

	// startMu serializes the terminate-spawn-register sequence of Start.
	// It is distinct from mu, which the run goroutine needs while a Start
	// holds startMu.
	startMu sync.Mutex

	mu      sync.Mutex
	session *session
	closed  bool

	warm singleflight.Group
}

// StartOptions modifies a single Start call.
type StartOptions struct {
	// SkipProcessing suppresses the post-capture job for this session.
	SkipProcessing bool
}

// Status is a snapshot of the supervisor state.
type Status struct {
	Streaming bool   `json:"streaming"`
	VideoID   string `json:"video_id,omitempty"`
	Title     string `json:"title,omitempty"`
}

// New returns a Supervisor. engine may be nil when post-processing is
// disabled entirely.
func New(cfg Config, ex *extractor.Extractor, tc *transcoder.Transcoder, caps *capture.Store, st *store.Store, engine Engine) *Supervisor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 5 * time.Second
	}
	if cfg.CaptureMaxFiles <= 0 {
		cfg.CaptureMaxFiles = 10
	}

	return &Supervisor{
		cfg:        cfg,
		extractor:  ex,
		transcoder: tc,
		captures:   caps,
		store:      st,
		engine:     engine,
	}
}

// Start begins streaming an identifier, terminating any active session
// first. It returns the resolved title.
func (s *Supervisor) Start(ctx context.Context, videoID string, opts StartOptions) (string, error) {
	id, err := extractor.ParseID(videoID)
	if err != nil {
		metrics.IngestStartTotal.WithLabelValues("invalid_id").Inc()
		return "", err
	}

	// One Start at a time: without this, two callers can both observe no
	// active session and the second registration would orphan the first
	// session's process pair.
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	prev := s.session
	s.session = nil
	s.mu.Unlock()

	if prev != nil {
		prev.terminate()
	}

	logger := log.WithComponent("ingest")

	// Metadata is best-effort: a failed lookup still plays the stream
	// with a placeholder title.
	title, channel, thumbnail := "", "", ""
	duration := 0.0
	meta, err := s.extractor.Metadata(ctx, id)
	if err != nil {
		logger.Warn().Err(err).Str("video_id", id).Msg("metadata lookup failed")
		title = s.store.TitleFor(ctx, id)
	} else {
		title, channel, thumbnail = meta.Title, meta.Channel, meta.Thumbnail
		duration = meta.Duration
	}

	// History is upserted eagerly, before the first byte flows.
	if err := s.store.RecordPlay(ctx, id, title, channel, thumbnail); err != nil {
		logger.Warn().Err(err).Str("video_id", id).Msg("history upsert failed")
	}

	if s.engine != nil && s.cfg.TranscriptionEnabled && !opts.SkipProcessing {
		if s.engine.ShouldSkip(id) {
			logger.Debug().Str("video_id", id).Msg("job already in progress, not enqueued")
		} else if !s.engine.Enqueue(id, jobs.Options{Title: title, Channel: channel}) {
			logger.Warn().Str("video_id", id).Msg("job enqueue refused")
		}
	}

	sess, err := s.spawn(id, title, duration)
	if err != nil {
		metrics.IngestStartTotal.WithLabelValues("spawn_error").Inc()
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.terminate()
		return "", ErrClosed
	}
	s.session = sess
	s.mu.Unlock()

	go s.run(sess)

	metrics.IngestStartTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("video_id", id).Str("title", title).Msg("ingest started")
	return title, nil
}

// Stop terminates the active session without auto-advance. Stopping an
// idle supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.terminate()
	}
}

// Status returns the current supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Status{}
	}
	return Status{Streaming: true, VideoID: s.session.videoID, Title: s.session.title}
}

// Subscribe attaches a consumer to the active session's broadcaster.
func (s *Supervisor) Subscribe() (*broadcast.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrNotStreaming
	}
	return s.session.broadcaster.Subscribe(), nil
}

// Unsubscribe detaches a consumer. Safe after the session ended.
func (s *Supervisor) Unsubscribe(sub *broadcast.Subscription) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess != nil {
		sess.broadcaster.Unsubscribe(sub)
	}
}

// Next stops the current session and starts the next queue entry.
// Returns the started entry, or nil when the queue is empty.
func (s *Supervisor) Next(ctx context.Context) (*store.QueueEntry, error) {
	s.mu.Lock()
	current := ""
	if s.session != nil {
		current = s.session.videoID
	}
	s.mu.Unlock()

	s.Stop()

	// The head of the queue is the currently playing item; drop it
	// before picking the next one.
	if current != "" {
		if err := s.popIfHead(ctx, current); err != nil {
			return nil, err
		}
	}

	return s.startHead(ctx)
}

// Close terminates the active session and refuses further starts.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess != nil {
		sess.terminate()
	}
}

// popIfHead removes the queue head when it matches the given identifier.
func (s *Supervisor) popIfHead(ctx context.Context, videoID string) error {
	entries, err := s.store.Queue(ctx)
	if err != nil {
		return err
	}
	if len(entries) > 0 && entries[0].VideoID == videoID {
		_, err = s.store.PopCurrent(ctx)
	}
	return err
}

// startHead starts ingest for the queue head, if any. The entry stays at
// position 0 while it plays.
func (s *Supervisor) startHead(ctx context.Context) (*store.QueueEntry, error) {
	entries, err := s.store.Queue(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	head := entries[0]
	if _, err := s.Start(ctx, head.VideoID, StartOptions{SkipProcessing: head.SkipProcessing}); err != nil {
		return nil, fmt.Errorf("start next queue entry %s: %w", head.VideoID, err)
	}
	return &head, nil
}

// autoAdvance runs after a natural end of stream: pop the finished head
// and start the new head.
func (s *Supervisor) autoAdvance(videoID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := log.WithComponent("ingest")

	if err := s.popIfHead(ctx, videoID); err != nil {
		logger.Error().Err(err).Str("video_id", videoID).Msg("auto-advance pop failed")
		return
	}

	entry, err := s.startHead(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("auto-advance start failed")
		return
	}
	if entry == nil {
		logger.Info().Msg("queue empty after stream end")
		return
	}
	logger.Info().Str("video_id", entry.VideoID).Msg("auto-advanced to next queue entry")
}
