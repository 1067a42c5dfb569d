package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/identity"
	"github.com/cwrk-planet/music-room/internal/service"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type RoomSvc interface {
	GetRoom(ctx context.Context, roomID, userID string) (protocol.RoomState, error)
}

type PlaybackSvc interface {
	Sync(ctx context.Context, roomID, userID string, clientTime int64) (*protocol.PlaybackSync, error)
	HandleTrackEnded(ctx context.Context, userID string, ev *protocol.ClientEvent) service.TrackEndedResult
}

type MemberSvc interface {
	RoomOf(userID string) string
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	presence *Presence
	verifier identity.Verifier

	members  MemberSvc
	rooms    RoomSvc
	playback PlaybackSvc

	pingEvery time.Duration
}

func NewServer(hub *Hub, presence *Presence, v identity.Verifier, members MemberSvc, rooms RoomSvc, playback PlaybackSvc, pingEvery time.Duration) *Server {
	if pingEvery <= 0 {
		pingEvery = 15 * time.Second
	}
	return &Server{
		hub:      hub,
		presence: presence,
		verifier: v,
		members:  members,
		rooms:    rooms,
		playback: playback,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: pingEvery,
	}
}

// HandleWS: GET /ws?access_token=... (or Authorization: Bearer ...)
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("access_token"))
	if token == "" {
		token = bearer(r.Header.Get("Authorization"))
	}
	who, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		slog.Debug("ws: auth rejected", slog.Any("err", err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := s.hub.Register(who.ID)
	s.presence.Connected(who.ID)
	log := slog.With(slog.String("user_id", who.ID), slog.Uint64("conn_id", c.id))
	log.Debug("ws: connected")

	// the socket outlives the upgrade request
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	s.greet(ctx, c)

	go s.writeLoop(c, conn)
	s.readLoop(ctx, c, conn)

	if s.hub.Unregister(c) == 0 {
		s.presence.Disconnected(who.ID)
	}
	if err := conn.Close(); err != nil {
		log.Debug("ws close failed", "err", err)
	}
	log.Debug("ws: disconnected")
}

// greet attaches a socket whose user already sits in a room and sends the
// room state plus the current playback.
func (s *Server) greet(ctx context.Context, c *Conn) {
	roomID := s.members.RoomOf(c.userID)
	if roomID == "" {
		return
	}
	s.hub.Attach(c.userID, roomID)

	st, err := s.rooms.GetRoom(ctx, roomID, c.userID)
	if err != nil {
		slog.Debug("ws: greet", slog.String("room_id", roomID), slog.Any("err", err))
		return
	}
	_ = c.Send(&protocol.RoomJoined{Room: st})
	if st.CurrentSong == nil {
		return
	}
	if sync, err := s.playback.Sync(ctx, roomID, c.userID, 0); err == nil {
		_ = c.Send(sync)
	}
}

func (s *Server) readLoop(ctx context.Context, c *Conn, conn *websocket.Conn) {
	defer c.close()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		ev, err := decodeFrame(data)
		if err != nil {
			slog.Debug("ws: dropping message", slog.String("user_id", c.userID), slog.Any("err", err))
			continue
		}
		s.dispatch(ctx, c, ev)
	}
}

func (s *Server) dispatch(ctx context.Context, c *Conn, ev protocol.Event) {
	switch e := ev.(type) {
	case *protocol.Heartbeat:
		s.presence.Touch(c.userID)

	case *protocol.RequestSync:
		sync, err := s.playback.Sync(ctx, e.RoomID, c.userID, e.ClientTime)
		if err != nil {
			msg := "sync failed"
			switch {
			case errors.Is(err, domain.ErrRoomNotFound):
				msg = "room not found"
			case errors.Is(err, domain.ErrNotParticipant):
				msg = "not a participant"
			}
			_ = c.Send(&protocol.Error{Message: msg})
			return
		}
		_ = c.Send(sync)

	case *protocol.ClientEvent:
		res := s.playback.HandleTrackEnded(ctx, c.userID, e)
		_ = c.Send(&res.Ack)
		if res.Correction != nil {
			_ = c.Send(res.Correction)
		}

	default:
		// server-bound types only
	}
}

func (s *Server) writeLoop(c *Conn, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			// unblocks the reader if the hub dropped us
			_ = conn.Close()
			return
		}
	}
}

func bearer(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
