package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/music-room/internal/audio"
	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/identity"
	"github.com/cwrk-planet/music-room/internal/service"
	httpmw "github.com/cwrk-planet/music-room/internal/transport/http/middleware"
	"github.com/cwrk-planet/music-room/pkg/errs"
	"github.com/cwrk-planet/music-room/pkg/httputil"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type RoomSvc interface {
	GetRoom(ctx context.Context, roomID, userID string) (protocol.RoomState, error)
	ListRooms(ctx context.Context) []service.RoomSummary
}

type MemberSvc interface {
	JoinRoom(ctx context.Context, roomID string, who domain.Identity) (protocol.RoomState, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	ListParticipants(ctx context.Context, roomID, userID string) ([]protocol.Participant, error)
}

type QueueSvc interface {
	AddSong(ctx context.Context, roomID string, who domain.Identity, t domain.Track) (service.Accepted, error)
	RemoveSong(ctx context.Context, roomID, userID, songID string) error
	ClearQueue(ctx context.Context, roomID, userID string) error
	Reorder(ctx context.Context, roomID, userID string, from, to int) error
	Shuffle(ctx context.Context, roomID, userID string) error
	Queue(ctx context.Context, roomID, userID string) ([]protocol.Track, error)
}

type PlaybackSvc interface {
	Play(ctx context.Context, roomID, userID string) (*protocol.PlaybackSync, error)
	Pause(ctx context.Context, roomID, userID string, position *float64) (*protocol.PlaybackSync, error)
	Toggle(ctx context.Context, roomID, userID string) (*protocol.PlaybackSync, error)
	Seek(ctx context.Context, roomID, userID string, position float64) (*protocol.PlaybackSync, error)
	Next(ctx context.Context, roomID, userID string) (*protocol.PlaybackSync, error)
	Previous(ctx context.Context, roomID, userID string) (*protocol.PlaybackSync, error)
	PlaySong(ctx context.Context, roomID, userID, songID string) (*protocol.PlaybackSync, error)
	Skip(ctx context.Context, roomID, userID string) (service.SkipResponse, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]domain.Track, error)
}

type Handler struct {
	rooms    RoomSvc
	members  MemberSvc
	queue    QueueSvc
	playback PlaybackSvc
	search   Searcher
}

func NewHandler(rooms RoomSvc, members MemberSvc, queue QueueSvc, playback PlaybackSvc, search Searcher) *Handler {
	return &Handler{
		rooms:    rooms,
		members:  members,
		queue:    queue,
		playback: playback,
		search:   search,
	}
}

// fail logs err under op and writes the error envelope.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := errs.ToHTTP(classify(err))
	log := httputil.L(r.Context())
	if status >= 500 {
		log.Error("handler."+op+":", "err", err)
	} else {
		log.Debug("handler."+op+":", "err", err)
	}
	httputil.Error(r.Context(), w, status, err.Error(), nil)
}

// classify tags domain errors with the transport-neutral kinds.
func classify(err error) error {
	var kind error
	switch {
	case errors.Is(err, domain.ErrInvalidRoomID),
		errors.Is(err, domain.ErrInvalidTrack),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidIndex):
		kind = errs.ErrInvalidInput
	case errors.Is(err, domain.ErrNotParticipant):
		kind = errs.ErrForbidden
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrTrackNotFound),
		errors.Is(err, domain.ErrNoPreviousTrack):
		kind = errs.ErrNotFound
	case errors.Is(err, domain.ErrDuplicateTrack),
		errors.Is(err, domain.ErrNoCurrentTrack),
		errors.Is(err, domain.ErrRoomClosed):
		kind = errs.ErrConflict
	case errors.Is(err, domain.ErrQueueLimit):
		kind = errs.ErrTooMany
	case errors.Is(err, identity.ErrUpstream),
		errors.Is(err, audio.ErrResolveTimeout):
		kind = errs.ErrUpstream
	case errors.Is(err, audio.ErrSearchDisabled):
		kind = errs.ErrUnavailable
	default:
		return err
	}
	return errs.Kind(kind, err)
}

func who(r *http.Request) domain.Identity {
	return httpmw.IdentityFromCtx(r.Context())
}
