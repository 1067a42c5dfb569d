package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/music-room/internal/identity"
	httpmw "github.com/cwrk-planet/music-room/internal/transport/http/middleware"
	"github.com/cwrk-planet/music-room/pkg/httputil"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	Debug          bool
}

// NewRouter mounts the REST API under /api plus /ws, /healthz and /metrics.
// ws and metrics may be nil.
func NewRouter(cfg RouterConfig, h *Handler, v identity.Verifier, presence httpmw.HeartbeatToucher, ws http.HandlerFunc, metrics http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.WithRequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if ws != nil {
		r.Get("/ws", ws)
	}
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(httputil.RequestLogger(cfg.Debug))
		api.Use(middlewareChi.Compress(5))
		api.Use(httpmw.AuthMiddleware(v))
		api.Use(httpmw.HeartbeatMiddleware(presence))
		api.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		api.Get("/rooms", h.ListRooms)
		api.Route("/rooms/{roomID}", func(rr chi.Router) {
			rr.Get("/", h.GetRoom)
			rr.Post("/join", h.JoinRoom)
			rr.Post("/leave", h.LeaveRoom)
			rr.Get("/participants", h.GetParticipants)
		})

		api.Route("/queue/{roomID}", func(q chi.Router) {
			q.Get("/", h.GetQueue)
			q.Delete("/", h.ClearQueue)
			q.Post("/add", h.AddSong)
			q.Post("/reorder", h.Reorder)
			q.Post("/shuffle", h.Shuffle)
			q.Delete("/{songID}", h.RemoveSong)
		})

		api.Route("/playback/{roomID}", func(p chi.Router) {
			p.Post("/toggle", h.Toggle())
			p.Post("/play", h.Play())
			p.Post("/pause", h.Pause)
			p.Post("/next", h.Next())
			p.Post("/previous", h.Previous())
			p.Post("/skip", h.Skip)
			p.Post("/seek", h.Seek)
			p.Post("/songs/{songID}/play", h.PlaySong())
		})

		api.Get("/music/search", h.Search)
	})

	return r
}
