package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

const maxJoinAttempts = 3

// MemberService owns room membership. A user is in at most one room.
type MemberService struct {
	registry *room.Registry
	announce announcer
	channels Channels

	mu       sync.RWMutex
	userRoom map[string]string
}

func NewMemberService(reg *room.Registry, bc Broadcaster, m *metrics.Metrics) *MemberService {
	return &MemberService{
		registry: reg,
		announce: announcer{bc: bc, metrics: m},
		userRoom: make(map[string]string),
	}
}

// SetChannels wires the realtime layer in once it exists.
func (s *MemberService) SetChannels(c Channels) {
	s.channels = c
}

// JoinRoom creates the room on first join and returns its snapshot.
func (s *MemberService) JoinRoom(ctx context.Context, roomID string, id domain.Identity) (protocol.RoomState, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return protocol.RoomState{}, domain.ErrInvalidRoomID
	}
	if prev := s.RoomOf(id.ID); prev != "" && prev != roomID {
		if err := s.LeaveRoom(ctx, prev, id.ID); err != nil && !errors.Is(err, domain.ErrNotParticipant) {
			slog.Warn("member: leave previous room failed", slog.String("room_id", prev), slog.Any("err", err))
		}
	}

	var state protocol.RoomState
	for attempt := 1; ; attempt++ {
		r, created := s.registry.GetOrCreate(roomID)
		err := r.Do(func(r *room.Room) {
			added := r.AddParticipant(domain.Participant{ID: id.ID, Name: id.Name, AvatarURL: id.AvatarURL})
			snap := r.Snapshot()
			state = toRoomState(snap)
			s.announce.participants(r)

			s.announce.toUser(id.ID, &protocol.RoomJoined{Room: state})
			if snap.Current != nil {
				s.announce.toUser(id.ID, buildSync(snap, protocol.ActionNone))
			}
			if added {
				slog.Info("member: joined",
					slog.String("room_id", roomID),
					slog.String("user_id", id.ID),
					slog.Bool("room_created", created))
			}
		})
		if err == nil {
			break
		}
		// lost a race with the room being torn down; a fresh one will be created
		if errors.Is(err, domain.ErrRoomClosed) && attempt < maxJoinAttempts {
			continue
		}
		return protocol.RoomState{}, fmt.Errorf("join %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.userRoom[id.ID] = roomID
	s.mu.Unlock()
	if s.channels != nil {
		s.channels.Attach(id.ID, roomID)
	}

	return state, nil
}

func (s *MemberService) LeaveRoom(_ context.Context, roomID, userID string) error {
	r, err := s.registry.Get(roomID)
	if err != nil {
		s.unbind(userID, roomID)
		return err
	}

	var removed bool
	err = r.Do(func(r *room.Room) {
		removed = r.RemoveParticipant(userID)
		if !removed {
			return
		}
		s.announce.participants(r)
		if r.ParticipantCount() == 0 || r.Current() == nil {
			return
		}
		// the majority threshold moved with the head count
		if res := r.RecheckSkipVotes(); res.Outcome == room.SkipSkipped {
			s.announce.transition(r, res.Transition, changeFlags{skipped: true})
		}
		s.announce.skipVotes(r)
	})
	s.unbind(userID, roomID)
	if s.channels != nil {
		s.channels.Detach(userID, roomID)
	}
	if err != nil {
		return domain.ErrRoomNotFound
	}
	if !removed {
		return domain.ErrNotParticipant
	}

	if s.registry.RemoveIfEmpty(roomID) {
		slog.Info("member: room closed", slog.String("room_id", roomID))
	}
	slog.Info("member: left", slog.String("room_id", roomID), slog.String("user_id", userID))
	return nil
}

// Expire removes a user whose connections have been gone for the grace period.
func (s *MemberService) Expire(ctx context.Context, userID string) {
	roomID := s.RoomOf(userID)
	if roomID == "" {
		return
	}
	if err := s.LeaveRoom(ctx, roomID, userID); err != nil {
		slog.Debug("member: expire", slog.String("user_id", userID), slog.Any("err", err))
		return
	}
	slog.Info("member: removed after inactivity", slog.String("room_id", roomID), slog.String("user_id", userID))
}

func (s *MemberService) ListParticipants(_ context.Context, roomID, userID string) ([]protocol.Participant, error) {
	var out []protocol.Participant
	err := withMember(s.registry, roomID, userID, func(r *room.Room) error {
		out = toParticipants(r.Participants())
		return nil
	})
	return out, err
}

// RoomOf returns the room the user is in, or "".
func (s *MemberService) RoomOf(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userRoom[userID]
}

func (s *MemberService) unbind(userID, roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userRoom[userID] == roomID {
		delete(s.userRoom, userID)
	}
}
