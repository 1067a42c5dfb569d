package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cwrk-planet/music-room/internal/audio"
	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"
	"github.com/cwrk-planet/music-room/pkg/retry"
)

// StreamResolver turns a track id into a playable stream.
type StreamResolver interface {
	Resolve(ctx context.Context, trackID string) (audio.Stream, error)
}

type QueueConfig struct {
	// UserLimit caps how many queued songs one participant may own.
	UserLimit   int
	MaxAttempts int
	BaseDelay   time.Duration
	Clock       clock.Clock
}

func (c *QueueConfig) withDefaults() {
	if c.UserLimit <= 0 {
		c.UserLimit = 20
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

type QueueService struct {
	registry *room.Registry
	announce announcer
	resolver StreamResolver
	metrics  *metrics.Metrics
	cfg      QueueConfig

	base context.Context
	wg   sync.WaitGroup

	mu sync.Mutex
	// pending counts adds still resolving, per room and user.
	pending map[string]map[string]int
}

// NewQueueService resolves streams in background goroutines bound to ctx.
func NewQueueService(ctx context.Context, reg *room.Registry, bc Broadcaster, resolver StreamResolver, m *metrics.Metrics, cfg QueueConfig) *QueueService {
	cfg.withDefaults()
	return &QueueService{
		registry: reg,
		announce: announcer{bc: bc, metrics: m},
		resolver: resolver,
		metrics:  m,
		cfg:      cfg,
		base:     ctx,
		pending:  make(map[string]map[string]int),
	}
}

// Accepted is the immediate answer to an add request; the outcome arrives
// later as queueProcessing events.
type Accepted struct {
	SongID  string `json:"songId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AddSong validates the request and starts resolving the stream.
func (s *QueueService) AddSong(_ context.Context, roomID string, who domain.Identity, track domain.Track) (Accepted, error) {
	if err := track.Validate(); err != nil {
		return Accepted{}, err
	}
	t := track
	t.StreamURL = ""
	t.AddedBy = who.ID
	t.AddedByName = who.Name

	err := withMember(s.registry, roomID, who.ID, func(r *room.Room) error {
		if r.QueueContains(t.ID) {
			return domain.ErrDuplicateTrack
		}
		if !s.reserve(roomID, who.ID, r.QueuedBy(who.ID)) {
			return domain.ErrQueueLimit
		}
		t.AddedAt = r.Now()
		return nil
	})
	if err != nil {
		return Accepted{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(roomID, who.ID)
		s.process(roomID, who.ID, &t)
	}()

	return Accepted{SongID: t.ID, Status: "processing", Message: "Processing song request"}, nil
}

// reserve takes a pending slot for userID unless queued songs plus adds in
// flight already reach the cap.
func (s *QueueService) reserve(roomID, userID string, queued int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := s.pending[roomID]
	if queued+byUser[userID] >= s.cfg.UserLimit {
		return false
	}
	if byUser == nil {
		byUser = make(map[string]int)
		s.pending[roomID] = byUser
	}
	byUser[userID]++
	return true
}

func (s *QueueService) release(roomID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := s.pending[roomID]
	if byUser[userID] <= 1 {
		delete(byUser, userID)
	} else {
		byUser[userID]--
	}
	if len(byUser) == 0 {
		delete(s.pending, roomID)
	}
}

// Wait blocks until every pending resolution has finished.
func (s *QueueService) Wait() {
	s.wg.Wait()
}

func (s *QueueService) notify(roomID, userID, songID string, status protocol.ProcessingStatus, msg string, attempt int) {
	s.announce.toUser(userID, &protocol.QueueProcessing{
		RoomID:  roomID,
		SongID:  songID,
		Status:  status,
		Message: msg,
		Attempt: attempt,
	})
}

func (s *QueueService) process(roomID, userID string, t *domain.Track) {
	log := slog.With(slog.String("room_id", roomID), slog.String("song_id", t.ID))

	policy := retry.Policy{
		MaxAttempts: s.cfg.MaxAttempts,
		BaseDelay:   s.cfg.BaseDelay,
		Backoff:     retry.Constant,
		Clock:       s.cfg.Clock,
		Retryable: func(err error) bool {
			return !errors.Is(err, audio.ErrResolverBinary)
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Warn("queue: stream resolution failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("err", err))
		},
	}

	var stream audio.Stream
	started := s.cfg.Clock.Now()
	err := retry.Do(s.base, policy, func(ctx context.Context, attempt int) error {
		if attempt == 1 {
			s.notify(roomID, userID, t.ID, protocol.StatusFetching, "Fetching stream URL", attempt)
		} else {
			s.notify(roomID, userID, t.ID, protocol.StatusRetrying,
				fmt.Sprintf("Retrying (%d/%d)", attempt-1, s.cfg.MaxAttempts-1), attempt)
		}
		var err error
		stream, err = s.resolver.Resolve(ctx, t.ID)
		return err
	})
	if err != nil {
		s.metrics.StreamResolved("error", s.cfg.Clock.Since(started))
		log.Error("queue: stream resolution gave up", slog.Any("err", err))
		s.notify(roomID, userID, t.ID, protocol.StatusError, "Error adding song: "+err.Error(), 0)
		return
	}
	s.metrics.StreamResolved("success", s.cfg.Clock.Since(started))

	t.StreamURL = stream.URL
	if t.Duration <= 0 && stream.Duration > 0 {
		t.Duration = stream.Duration
	}
	if t.Title == "" {
		t.Title = stream.Title
	}

	if err := s.commit(roomID, userID, t); err != nil {
		msg := "Error adding song: " + err.Error()
		if errors.Is(err, domain.ErrRoomNotFound) {
			msg = "Room no longer exists"
		}
		log.Info("queue: song dropped", slog.Any("err", err))
		s.notify(roomID, userID, t.ID, protocol.StatusError, msg, 0)
		return
	}
	s.notify(roomID, userID, t.ID, protocol.StatusSuccess, "Song added to queue", 0)
}

func (s *QueueService) commit(roomID, userID string, t *domain.Track) error {
	r, err := s.registry.Get(roomID)
	if err != nil {
		return err
	}
	var cerr error
	err = r.Do(func(r *room.Room) {
		// another request may have queued the same song while we resolved
		if r.QueueContains(t.ID) {
			cerr = domain.ErrDuplicateTrack
			return
		}
		if r.QueuedBy(userID) >= s.cfg.UserLimit {
			cerr = domain.ErrQueueLimit
			return
		}
		prev := r.Current()
		if r.AddToQueue(t) {
			s.metrics.TrackAdvanced(string(room.CauseQueue))
			s.announce.sync(r, protocol.ActionPlay)
			if prev == nil {
				s.announce.toRoom(r.ID(), &protocol.TrackChange{
					RoomID:     r.ID(),
					NewID:      t.ID,
					ServerTime: protocol.Millis(r.Now()),
				})
			}
		}
		s.announce.queue(r)
		if r.IncrementSongsAdded(userID) {
			s.announce.participants(r)
		}
	})
	if err != nil {
		return domain.ErrRoomNotFound
	}
	return cerr
}

func (s *QueueService) RemoveSong(_ context.Context, roomID, userID, songID string) error {
	return withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if !r.RemoveSong(songID) {
			return domain.ErrTrackNotFound
		}
		s.announce.queue(r)
		return nil
	})
}

func (s *QueueService) ClearQueue(_ context.Context, roomID, userID string) error {
	return withMember(s.registry, roomID, userID, func(r *room.Room) error {
		r.ClearQueue()
		s.announce.queue(r)
		return nil
	})
}

func (s *QueueService) Reorder(_ context.Context, roomID, userID string, from, to int) error {
	return withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if !r.ReorderQueue(from, to) {
			return domain.ErrInvalidIndex
		}
		s.announce.queue(r)
		return nil
	})
}

func (s *QueueService) Shuffle(_ context.Context, roomID, userID string) error {
	return withMember(s.registry, roomID, userID, func(r *room.Room) error {
		r.ShuffleQueue()
		s.announce.queue(r)
		return nil
	})
}

func (s *QueueService) Queue(_ context.Context, roomID, userID string) ([]protocol.Track, error) {
	var out []protocol.Track
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		out = toTracks(r.Queue())
		return nil
	})
	return out, err
}
