// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"

	"github.com/tubescribe/tubescribe/internal/ingest"
	"github.com/tubescribe/tubescribe/internal/log"
)

type streamRequest struct {
	URL            string `json:"url"`
	SkipProcessing bool   `json:"skip_processing,omitempty"`
}

type streamResponse struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}

	title, err := s.streamer.Start(r.Context(), req.URL, ingest.StartOptions{SkipProcessing: req.SkipProcessing})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	st := s.streamer.Status()
	writeJSON(w, http.StatusOK, streamResponse{VideoID: st.VideoID, Title: title})
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	s.streamer.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.streamer.Status())
}

// handleAudioLive streams the active session as mp3. Late joiners get
// the replay window first, then follow the live edge; a slow reader
// skips ahead rather than stalling the ingest.
func (s *Server) handleAudioLive(w http.ResponseWriter, r *http.Request) {
	sub, err := s.streamer.Subscribe()
	if err != nil {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusNotFound, err)
		return
	}
	defer s.streamer.Unsubscribe(sub)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	flusher, _ := w.(http.Flusher)
	logger := log.WithComponentFromContext(r.Context(), "api")

	for {
		chunk, ok := sub.Next(r.Context())
		if !ok {
			break
		}
		if _, err := w.Write(chunk); err != nil {
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if n := sub.Dropped(); n > 0 {
		logger.Debug().Int64("dropped_chunks", n).Msg("listener lagged behind live edge")
	}
}
