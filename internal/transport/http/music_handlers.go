package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cwrk-planet/music-room/internal/audio"
	"github.com/cwrk-planet/music-room/pkg/errs"
	"github.com/cwrk-planet/music-room/pkg/httputil"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

// GET /api/music/search?q=
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "query is required", nil)
		return
	}
	if h.search == nil {
		fail(w, r, "Search", audio.ErrSearchDisabled)
		return
	}

	tracks, err := h.search.Search(r.Context(), q)
	if err != nil {
		if !errors.Is(err, audio.ErrSearchDisabled) {
			err = errs.Kind(errs.ErrUpstream, err)
		}
		fail(w, r, "Search", err)
		return
	}
	items := make([]protocol.Track, 0, len(tracks))
	for _, t := range tracks {
		items = append(items, protocol.Track{
			ID:        t.ID,
			Title:     t.Title,
			Artist:    t.Artist,
			Duration:  t.Duration,
			Thumbnail: t.Thumbnail,
		})
	}
	httputil.OK(w, SearchResponse{Items: items})
}
