package service

import (
	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"

	"github.com/google/uuid"
)

// Broadcaster delivers realtime events. Implementations must not block:
// the calls are made while a room is held.
type Broadcaster interface {
	ToRoom(roomID string, ev protocol.Event)
	ToUser(userID string, ev protocol.Event)
}

// Channels binds a user's live connections to a room's broadcast channel.
type Channels interface {
	Attach(userID, roomID string)
	Detach(userID, roomID string)
}

// announcer builds events from a room held inside Do and emits them.
type announcer struct {
	bc      Broadcaster
	metrics *metrics.Metrics
}

func (a announcer) toRoom(roomID string, ev protocol.Event) {
	a.metrics.EventEmitted(string(ev.Type()))
	a.bc.ToRoom(roomID, ev)
}

func (a announcer) toUser(userID string, ev protocol.Event) {
	a.metrics.EventEmitted(string(ev.Type()))
	a.bc.ToUser(userID, ev)
}

func (a announcer) sync(r *room.Room, action protocol.Action) *protocol.PlaybackSync {
	ev := buildSync(r.Snapshot(), action)
	a.toRoom(r.ID(), ev)
	return ev
}

func (a announcer) queue(r *room.Room) {
	a.toRoom(r.ID(), &protocol.QueueUpdate{RoomID: r.ID(), Queue: toTracks(r.Queue())})
}

func (a announcer) participants(r *room.Room) {
	a.toRoom(r.ID(), &protocol.ParticipantsUpdate{RoomID: r.ID(), Participants: toParticipants(r.Participants())})
}

func (a announcer) skipVotes(r *room.Room) {
	a.toRoom(r.ID(), &protocol.SkipVoteUpdate{
		RoomID:       r.ID(),
		CurrentVotes: r.SkipVotes(),
		VotesNeeded:  r.VotesNeeded(),
	})
}

type changeFlags struct {
	skipped        bool
	automatic      bool
	clientReported bool
}

// transition is the single routine for every change of the current track,
// whether a user, a skip vote, a client report or the auto-next timer caused it.
func (a announcer) transition(r *room.Room, t room.Transition, flags changeFlags) *protocol.PlaybackSync {
	if !t.Advanced && !t.Ended {
		return nil
	}
	a.metrics.TrackAdvanced(string(t.Cause))
	now := protocol.Millis(r.Now())

	if t.Ended {
		a.toRoom(r.ID(), &protocol.PlaybackEnded{RoomID: r.ID(), ServerTime: now})
		sync := a.sync(r, protocol.ActionNone)
		if t.Previous != nil {
			a.toRoom(r.ID(), &protocol.TrackChange{
				RoomID:         r.ID(),
				PreviousID:     t.Previous.ID,
				Skipped:        flags.skipped,
				Automatic:      flags.automatic,
				ClientReported: flags.clientReported,
				ServerTime:     now,
			})
		}
		return sync
	}

	sync := a.sync(r, protocol.ActionNext)
	change := &protocol.TrackChange{
		RoomID:         r.ID(),
		Skipped:        flags.skipped,
		Automatic:      flags.automatic,
		ClientReported: flags.clientReported,
		ServerTime:     now,
	}
	if t.Previous != nil {
		change.PreviousID = t.Previous.ID
	}
	if t.Current != nil {
		change.NewID = t.Current.ID
	}
	a.toRoom(r.ID(), change)
	a.queue(r)
	return sync
}

func buildSync(s room.Snapshot, action protocol.Action) *protocol.PlaybackSync {
	ev := &protocol.PlaybackSync{
		RoomID:          s.ID,
		IsPlaying:       s.Playing,
		CurrentPosition: s.Position,
		AccumulatedTime: s.Accumulated,
		PauseTimestamp:  protocol.Millis(s.PausedAt),
		ServerTime:      protocol.Millis(s.ServerTime),
		Action:          action,
		SyncID:          uuid.NewString(),
	}
	if s.Playing {
		ev.StartTimestamp = protocol.Millis(s.StartedAt)
	}
	if s.Current != nil {
		t := toTrack(s.Current)
		ev.CurrentSong = &t
		ev.StreamURL = s.Current.StreamURL
	}
	return ev
}

func toRoomState(s room.Snapshot) protocol.RoomState {
	st := protocol.RoomState{
		ID:              s.ID,
		Participants:    toParticipants(s.Participants),
		Queue:           toTracks(s.Queue),
		IsPlaying:       s.Playing,
		CurrentPosition: s.Position,
		PauseTimestamp:  protocol.Millis(s.PausedAt),
		AccumulatedTime: s.Accumulated,
		PlaybackHistory: toTracks(s.History),
		SkipVotes:       s.SkipVotes,
		VotesNeeded:     s.VotesNeeded,
		ServerTime:      protocol.Millis(s.ServerTime),
	}
	if s.Playing {
		st.StartTimestamp = protocol.Millis(s.StartedAt)
	}
	if s.Current != nil {
		t := toTrack(s.Current)
		st.CurrentSong = &t
	}
	return st
}

func toTrack(t *domain.Track) protocol.Track {
	return protocol.Track{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		Duration:    t.Duration,
		Thumbnail:   t.Thumbnail,
		StreamURL:   t.StreamURL,
		AddedBy:     t.AddedBy,
		AddedByName: t.AddedByName,
		AddedAt:     protocol.Millis(t.AddedAt),
	}
}

func toTracks(in []*domain.Track) []protocol.Track {
	out := make([]protocol.Track, 0, len(in))
	for _, t := range in {
		out = append(out, toTrack(t))
	}
	return out
}

func toParticipants(in []domain.Participant) []protocol.Participant {
	out := make([]protocol.Participant, 0, len(in))
	for _, p := range in {
		out = append(out, protocol.Participant{
			ID:         p.ID,
			Name:       p.Name,
			Avatar:     p.AvatarURL,
			JoinedAt:   protocol.Millis(p.JoinedAt),
			SongsAdded: p.SongsAdded,
		})
	}
	return out
}

// FromProtocolTrack converts a client-submitted track.
func FromProtocolTrack(t protocol.Track) domain.Track {
	return domain.Track{
		ID:        t.ID,
		Title:     t.Title,
		Artist:    t.Artist,
		Duration:  t.Duration,
		Thumbnail: t.Thumbnail,
	}
}

// withMember runs fn inside the room after checking that userID is in it.
func withMember(reg *room.Registry, roomID, userID string, fn func(r *room.Room) error) error {
	r, err := reg.Get(roomID)
	if err != nil {
		return err
	}
	var ferr error
	err = r.Do(func(r *room.Room) {
		if !r.HasParticipant(userID) {
			ferr = domain.ErrNotParticipant
			return
		}
		ferr = fn(r)
	})
	if err != nil {
		return domain.ErrRoomNotFound
	}
	return ferr
}
