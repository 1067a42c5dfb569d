package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/service"
	"github.com/cwrk-planet/music-room/pkg/httputil"
)

// GET /api/queue/{roomID}
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := h.queue.Queue(r.Context(), chi.URLParam(r, "roomID"), who(r).ID)
	if err != nil {
		fail(w, r, "GetQueue", err)
		return
	}
	httputil.OK(w, QueueResponse{Queue: q})
}

// POST /api/queue/{roomID}/add
// Answers 202 right away; the stream is resolved in the background.
func (h *Handler) AddSong(w http.ResponseWriter, r *http.Request) {
	var req AddSongRequest
	if err := httputil.Decode(r, &req); err != nil || req.Song == nil {
		fail(w, r, "AddSong.Decode", domain.ErrInvalidTrack)
		return
	}

	acc, err := h.queue.AddSong(r.Context(), chi.URLParam(r, "roomID"), who(r), service.FromProtocolTrack(*req.Song))
	if err != nil {
		fail(w, r, "AddSong", err)
		return
	}
	httputil.Data(w, http.StatusAccepted, acc)
}

// DELETE /api/queue/{roomID}/{songID}
func (h *Handler) RemoveSong(w http.ResponseWriter, r *http.Request) {
	err := h.queue.RemoveSong(r.Context(), chi.URLParam(r, "roomID"), who(r).ID, chi.URLParam(r, "songID"))
	if err != nil {
		fail(w, r, "RemoveSong", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/queue/{roomID}
func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.ClearQueue(r.Context(), chi.URLParam(r, "roomID"), who(r).ID); err != nil {
		fail(w, r, "ClearQueue", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/queue/{roomID}/reorder
func (h *Handler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := httputil.Decode(r, &req); err != nil || req.From == nil || req.To == nil {
		fail(w, r, "Reorder.Decode", domain.ErrInvalidIndex)
		return
	}
	if err := h.queue.Reorder(r.Context(), chi.URLParam(r, "roomID"), who(r).ID, *req.From, *req.To); err != nil {
		fail(w, r, "Reorder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/queue/{roomID}/shuffle
func (h *Handler) Shuffle(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Shuffle(r.Context(), chi.URLParam(r, "roomID"), who(r).ID); err != nil {
		fail(w, r, "Shuffle", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
