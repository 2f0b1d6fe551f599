// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tubescribe/tubescribe/internal/extractor"
)

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := extractor.ParseID(chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.tracker == nil {
		writeError(w, http.StatusNotImplemented, errors.New("post-processing is disabled"))
		return
	}

	job, ok := s.tracker.Status(id)
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	since := now.AddDate(0, -1, 0)
	until := now

	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be RFC 3339"))
			return
		}
		since = t
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("until must be RFC 3339"))
			return
		}
		until = t
	}

	report, err := s.store.UsageSummary(r.Context(), since, until)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
