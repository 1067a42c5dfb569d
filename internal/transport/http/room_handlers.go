package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/music-room/pkg/errs"
	"github.com/cwrk-planet/music-room/pkg/httputil"
)

// GET /api/rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.rooms.ListRooms(r.Context()))
}

// GET /api/rooms/{roomID}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	st, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "roomID"), who(r).ID)
	if err != nil {
		fail(w, r, "GetRoom", err)
		return
	}
	httputil.OK(w, st)
}

// POST /api/rooms/{roomID}/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	// the body is optional; it only overrides display fields
	if err := httputil.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		fail(w, r, "JoinRoom.Decode", errs.Kind(errs.ErrInvalidInput, err))
		return
	}
	id := who(r)
	if req.User != nil {
		if req.User.Name != "" {
			id.Name = req.User.Name
		}
		if req.User.Avatar != "" {
			id.AvatarURL = req.User.Avatar
		}
	}

	st, err := h.members.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), id)
	if err != nil {
		fail(w, r, "JoinRoom", err)
		return
	}
	httputil.OK(w, JoinResponse{Room: st})
}

// POST /api/rooms/{roomID}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.members.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), who(r).ID); err != nil {
		fail(w, r, "LeaveRoom", err)
		return
	}
	httputil.OK(w, map[string]bool{"left": true})
}

// GET /api/rooms/{roomID}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.members.ListParticipants(r.Context(), chi.URLParam(r, "roomID"), who(r).ID)
	if err != nil {
		fail(w, r, "GetParticipants", err)
		return
	}
	httputil.OK(w, ParticipantsResponse{Participants: ps})
}
