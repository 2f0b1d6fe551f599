// SPDX-License-Identifier: MIT

// Package api exposes the daemon over HTTP: stream control, live audio,
// capture downloads, queue and history management, job status and the
// usage report.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tubescribe/tubescribe/internal/broadcast"
	"github.com/tubescribe/tubescribe/internal/capture"
	"github.com/tubescribe/tubescribe/internal/ingest"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/store"
)

// Streamer is the slice of the ingest supervisor the handlers use.
type Streamer interface {
	Start(ctx context.Context, videoID string, opts ingest.StartOptions) (string, error)
	Stop()
	Status() ingest.Status
	Subscribe() (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
	Next(ctx context.Context) (*store.QueueEntry, error)
	Warm(ctx context.Context, videoID string) error
}

// JobTracker reports post-processing job snapshots.
type JobTracker interface {
	Status(videoID string) (jobs.Job, bool)
}

// DurationProber measures the playable length of a capture file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Server holds the handler dependencies.
type Server struct {
	streamer Streamer
	store    *store.Store
	captures *capture.Store
	tracker  JobTracker
	prober   DurationProber
	version  string
}

// New returns a Server. tracker and prober may be nil when
// post-processing or probing is disabled.
func New(streamer Streamer, st *store.Store, captures *capture.Store, tracker JobTracker, prober DurationProber, version string) *Server {
	return &Server{
		streamer: streamer,
		store:    st,
		captures: captures,
		tracker:  tracker,
		prober:   prober,
		version:  version,
	}
}

// Router builds the chi router with the canonical middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(AccessLog)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/stream", s.handleStreamStart)
		r.Post("/stop", s.handleStreamStop)
		r.Get("/status", s.handleStatus)

		r.Get("/audio/live", s.handleAudioLive)
		r.Head("/audio/live", s.handleAudioLive)
		r.Get("/audio/{videoID}", s.handleAudioFile)
		r.Head("/audio/{videoID}", s.handleAudioFile)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueueList)
			r.Post("/", s.handleQueueAdd)
			r.Delete("/", s.handleQueueClear)
			r.Delete("/{entryID}", s.handleQueueRemove)
			r.Post("/next", s.handleQueueNext)
			r.Post("/reorder", s.handleQueueReorder)
			r.Post("/prefetch/{videoID}", s.handleQueuePrefetch)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleHistoryList)
			r.Delete("/", s.handleHistoryClear)
		})

		r.Get("/jobs/{videoID}", s.handleJobStatus)
		r.Get("/usage", s.handleUsage)
	})

	return otelHandler(r, "tubescribe-api")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
