// SPDX-License-Identifier: MIT

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tubescribe/tubescribe/internal/extractor"
	"github.com/tubescribe/tubescribe/internal/jobs"
	"github.com/tubescribe/tubescribe/internal/store"
)

type queueAddRequest struct {
	URL            string `json:"url"`
	Title          string `json:"title,omitempty"`
	Kind           string `json:"kind,omitempty"`
	WeekTag        string `json:"week_tag,omitempty"`
	SkipProcessing bool   `json:"skip_processing,omitempty"`
}

type queueAddResponse struct {
	Added    bool              `json:"added"`
	Entry    *store.QueueEntry `json:"entry,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	JobState jobs.State        `json:"job_state,omitempty"`
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var req queueAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := extractor.ParseID(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Kind != "" && req.Kind != store.KindPrimary && req.Kind != store.KindSummary {
		writeError(w, http.StatusBadRequest, errors.New("kind must be primary or summary"))
		return
	}

	// A non-terminal job means this identifier is already being worked
	// on; adding it again would only produce a duplicate note.
	if s.tracker != nil {
		if job, ok := s.tracker.Status(id); ok && !job.State.Terminal() {
			writeJSON(w, http.StatusConflict, queueAddResponse{
				Reason:   "already_in_progress",
				JobState: job.State,
			})
			return
		}
	}

	entry, err := s.store.Append(r.Context(), store.QueueItem{
		VideoID:        id,
		Title:          req.Title,
		Kind:           req.Kind,
		WeekTag:        req.WeekTag,
		SkipProcessing: req.SkipProcessing,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, queueAddResponse{Added: true, Entry: &entry})
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid entry id"))
		return
	}

	if err := s.store.Remove(r.Context(), entryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeNotFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearQueue(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleQueueNext skips to the next queue entry: the playing head is
// dropped and the following entry starts.
func (s *Server) handleQueueNext(w http.ResponseWriter, r *http.Request) {
	entry, err := s.streamer.Next(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "queue empty"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type reorderRequest struct {
	EntryIDs []int64 `json:"entry_ids"`
}

func (s *Server) handleQueueReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.Reorder(r.Context(), req.EntryIDs); err != nil {
		if errors.Is(err, store.ErrQueueMismatch) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	entries, err := s.store.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleQueuePrefetch warms the capture for a queue entry so playback
// and transcription start instantly later.
func (s *Server) handleQueuePrefetch(w http.ResponseWriter, r *http.Request) {
	id, err := extractor.ParseID(chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.streamer.Warm(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "warmed", "video_id": id})
}
