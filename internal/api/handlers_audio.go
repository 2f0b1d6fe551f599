// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tubescribe/tubescribe/internal/extractor"
)

// handleAudioFile serves a finished capture with full Range support. A
// capture still being written answers 404 with a Retry-After hint, so
// clients poll instead of downloading a truncated file.
func (s *Server) handleAudioFile(w http.ResponseWriter, r *http.Request) {
	id, err := extractor.ParseID(chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	path, err := s.captures.Path(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !s.captures.Ready(id) {
		if s.captureInProgress(id) {
			w.Header().Set("Retry-After", "30")
		}
		writeNotFound(w)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeNotFound(w)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	if s.prober != nil {
		if seconds, err := s.prober.Duration(r.Context(), path); err == nil && seconds > 0 {
			w.Header().Set("X-Audio-Duration", strconv.FormatFloat(seconds, 'f', 3, 64))
		}
	}
	http.ServeContent(w, r, id+".mp3", info.ModTime(), f)
}

// captureInProgress reports whether the identifier is actively being
// captured: either it is the playing session or its marker file exists.
func (s *Server) captureInProgress(id string) bool {
	if st := s.streamer.Status(); st.Streaming && st.VideoID == id {
		return true
	}
	part, err := s.captures.PartPath(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(part)
	return err == nil
}
