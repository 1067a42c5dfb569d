package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type PlaybackService struct {
	registry *room.Registry
	announce announcer
}

// NewPlaybackService also installs the auto-next hook on the registry, so
// timer-driven transitions go through the same broadcast routine as user ones.
func NewPlaybackService(reg *room.Registry, bc Broadcaster, m *metrics.Metrics) *PlaybackService {
	s := &PlaybackService{
		registry: reg,
		announce: announcer{bc: bc, metrics: m},
	}
	reg.SetAutoAdvance(s.onAutoAdvance)
	return s
}

func (s *PlaybackService) onAutoAdvance(r *room.Room, t room.Transition) {
	slog.Info("playback: auto-next",
		slog.String("room_id", r.ID()),
		slog.Bool("advanced", t.Advanced),
		slog.Bool("ended", t.Ended))
	s.announce.transition(r, t, changeFlags{automatic: true})
}

// Play resumes a paused room. Resuming a playing room is a no-op.
func (s *PlaybackService) Play(_ context.Context, roomID, userID string) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if err := r.Resume(); err != nil && !errors.Is(err, domain.ErrAlreadyPlaying) {
			return err
		}
		out = s.announce.sync(r, protocol.ActionPlay)
		return nil
	})
	return out, err
}

// Pause freezes the room at position, or at the server position when nil.
func (s *PlaybackService) Pause(_ context.Context, roomID, userID string, position *float64) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if err := r.Pause(position); err != nil && !errors.Is(err, domain.ErrNotPlaying) {
			return err
		}
		out = s.announce.sync(r, protocol.ActionPause)
		return nil
	})
	return out, err
}

func (s *PlaybackService) Toggle(_ context.Context, roomID, userID string) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		playing, err := r.Toggle()
		if err != nil {
			return err
		}
		action := protocol.ActionPause
		if playing {
			action = protocol.ActionPlay
		}
		out = s.announce.sync(r, action)
		return nil
	})
	return out, err
}

func (s *PlaybackService) Seek(_ context.Context, roomID, userID string, position float64) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if err := r.Seek(position); err != nil {
			return err
		}
		out = s.announce.sync(r, protocol.ActionSeek)
		return nil
	})
	return out, err
}

// Next advances the queue. With nothing queued the room is emptied and
// playbackEnded is broadcast.
func (s *PlaybackService) Next(_ context.Context, roomID, userID string) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		if r.Current() == nil && r.QueueLen() == 0 {
			return domain.ErrNoCurrentTrack
		}
		t := r.Advance(room.ClearCurrent, room.CauseManual)
		out = s.announce.transition(r, t, changeFlags{skipped: true})
		return nil
	})
	return out, err
}

func (s *PlaybackService) Previous(_ context.Context, roomID, userID string) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		prev := r.Current()
		if !r.PlayPrevious() {
			return domain.ErrNoPreviousTrack
		}
		out = s.announce.transition(r, room.Transition{
			Previous: prev,
			Current:  r.Current(),
			Advanced: true,
			Cause:    room.CauseBack,
		}, changeFlags{})
		return nil
	})
	return out, err
}

// PlaySong jumps to a queued song.
func (s *PlaybackService) PlaySong(_ context.Context, roomID, userID, songID string) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		prev := r.Current()
		if !r.PlayFromQueue(songID) {
			return domain.ErrTrackNotFound
		}
		out = s.announce.transition(r, room.Transition{
			Previous: prev,
			Current:  r.Current(),
			Advanced: true,
			Cause:    room.CauseJump,
		}, changeFlags{skipped: prev != nil})
		return nil
	})
	return out, err
}

type SkipResponse struct {
	Outcome      room.SkipOutcome       `json:"outcome"`
	Success      bool                   `json:"success"`
	CurrentVotes int                    `json:"currentVotes"`
	VotesNeeded  int                    `json:"votesNeeded"`
	Sync         *protocol.PlaybackSync `json:"sync,omitempty"`
}

// Skip records userID's vote and skips once a majority agrees.
func (s *PlaybackService) Skip(_ context.Context, roomID, userID string) (SkipResponse, error) {
	var out SkipResponse
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		res := r.AddSkipVote(userID)
		out = SkipResponse{
			Outcome:      res.Outcome,
			Success:      res.Success(),
			CurrentVotes: res.CurrentVotes,
			VotesNeeded:  res.VotesNeeded,
		}

		switch res.Outcome {
		case room.SkipSkipped:
			out.Sync = s.announce.transition(r, res.Transition, changeFlags{skipped: true})
			s.announce.skipVotes(r)
		case room.SkipVoteRecorded, room.SkipNoMoreSongs:
			s.announce.skipVotes(r)
		case room.SkipNothingPlaying:
			return domain.ErrNoCurrentTrack
		}
		return nil
	})
	return out, err
}

// Sync answers a client's requestSync. clientTime is echoed with the
// server-client offset so the caller can correct its clock.
func (s *PlaybackService) Sync(_ context.Context, roomID, userID string, clientTime int64) (*protocol.PlaybackSync, error) {
	var out *protocol.PlaybackSync
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		out = buildSync(r.Snapshot(), protocol.ActionNone)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if clientTime > 0 {
		out.ClientTime = clientTime
		out.TimeOffset = out.ServerTime - clientTime
	}
	return out, nil
}

// TrackEndedResult tells the realtime layer what to send back to the reporter.
type TrackEndedResult struct {
	Ack        protocol.EventProcessed
	Correction *protocol.PlaybackSync
}

// HandleTrackEnded reconciles a client's end-of-track report with the room.
func (s *PlaybackService) HandleTrackEnded(_ context.Context, userID string, ev *protocol.ClientEvent) TrackEndedResult {
	res := TrackEndedResult{Ack: protocol.EventProcessed{
		EventType: protocol.ClientEventTrackEnded,
		SongID:    ev.SongID,
	}}

	r, err := s.registry.Get(ev.RoomID)
	if err != nil {
		res.Ack.Reason = "room-not-found"
		return res
	}

	err = r.Do(func(r *room.Room) {
		if !r.HasParticipant(userID) {
			res.Ack.Reason = "not-in-room"
			return
		}
		if !r.AcceptEndedReport(ev.SongID) {
			res.Ack.Reason = "duplicate"
			return
		}

		cur := r.Current()
		switch {
		case cur != nil && cur.ID == ev.SongID:
			t := r.Advance(room.ClearCurrent, room.CauseClient)
			s.announce.transition(r, t, changeFlags{automatic: true, clientReported: true})
			res.Ack.Processed = true

		case cur != nil:
			// stale report: the room already moved on
			res.Ack.Reason = "song-mismatch"
			res.Correction = buildSync(r.Snapshot(), protocol.ActionNone)

		case r.QueueLen() > 0:
			// the room stalled between tracks; a report is enough to move it
			t := r.Advance(room.KeepCurrent, room.CauseClient)
			s.announce.transition(r, t, changeFlags{automatic: true, clientReported: true})
			res.Ack.Processed = true

		default:
			res.Ack.Reason = "nothing-playing"
		}
	})
	if err != nil {
		res.Ack.Reason = "room-not-found"
	}

	slog.Debug("playback: trackEnded",
		slog.String("room_id", ev.RoomID),
		slog.String("user_id", userID),
		slog.String("song_id", ev.SongID),
		slog.Bool("processed", res.Ack.Processed),
		slog.String("reason", res.Ack.Reason))

	return res
}
