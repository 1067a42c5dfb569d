package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/pkg/httputil"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type playbackOp func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error)

// command wraps the body-less transport commands.
func (h *Handler) command(op string, fn playbackOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sync, err := fn(r, chi.URLParam(r, "roomID"), who(r).ID)
		if err != nil {
			fail(w, r, op, err)
			return
		}
		httputil.OK(w, sync)
	}
}

func (h *Handler) Toggle() http.HandlerFunc {
	return h.command("Toggle", func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error) {
		return h.playback.Toggle(r.Context(), roomID, userID)
	})
}

func (h *Handler) Play() http.HandlerFunc {
	return h.command("Play", func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error) {
		return h.playback.Play(r.Context(), roomID, userID)
	})
}

func (h *Handler) Next() http.HandlerFunc {
	return h.command("Next", func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error) {
		return h.playback.Next(r.Context(), roomID, userID)
	})
}

func (h *Handler) Previous() http.HandlerFunc {
	return h.command("Previous", func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error) {
		return h.playback.Previous(r.Context(), roomID, userID)
	})
}

func (h *Handler) PlaySong() http.HandlerFunc {
	return h.command("PlaySong", func(r *http.Request, roomID, userID string) (*protocol.PlaybackSync, error) {
		return h.playback.PlaySong(r.Context(), roomID, userID, chi.URLParam(r, "songID"))
	})
}

// POST /api/playback/{roomID}/pause {position?}
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if err := httputil.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		fail(w, r, "Pause.Decode", domain.ErrInvalidPosition)
		return
	}
	sync, err := h.playback.Pause(r.Context(), chi.URLParam(r, "roomID"), who(r).ID, req.Position)
	if err != nil {
		fail(w, r, "Pause", err)
		return
	}
	httputil.OK(w, sync)
}

// POST /api/playback/{roomID}/seek {position}
func (h *Handler) Seek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := httputil.Decode(r, &req); err != nil || req.Position == nil {
		fail(w, r, "Seek.Decode", domain.ErrInvalidPosition)
		return
	}
	sync, err := h.playback.Seek(r.Context(), chi.URLParam(r, "roomID"), who(r).ID, *req.Position)
	if err != nil {
		fail(w, r, "Seek", err)
		return
	}
	httputil.OK(w, sync)
}

// POST /api/playback/{roomID}/skip
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	res, err := h.playback.Skip(r.Context(), chi.URLParam(r, "roomID"), who(r).ID)
	if err != nil {
		fail(w, r, "Skip", err)
		return
	}
	httputil.OK(w, res)
}

