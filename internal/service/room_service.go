package service

import (
	"context"

	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type RoomService struct {
	registry *room.Registry
}

func NewRoomService(reg *room.Registry) *RoomService {
	return &RoomService{registry: reg}
}

// GetRoom returns the full snapshot of a live room to one of its participants.
func (s *RoomService) GetRoom(_ context.Context, id, userID string) (protocol.RoomState, error) {
	var st protocol.RoomState
	err := withMember(s.registry, id, userID, func(r *room.Room) error {
		st = toRoomState(r.Snapshot())
		return nil
	})
	if err != nil {
		return protocol.RoomState{}, err
	}
	return st, nil
}

type RoomSummary struct {
	ID           string          `json:"id"`
	Participants int             `json:"participants"`
	Queued       int             `json:"queued"`
	IsPlaying    bool            `json:"isPlaying"`
	CurrentSong  *protocol.Track `json:"currentSong"`
}

// ListRooms summarizes every live room, ordered by id.
func (s *RoomService) ListRooms(_ context.Context) []RoomSummary {
	ids := s.registry.IDs()
	out := make([]RoomSummary, 0, len(ids))
	for _, id := range ids {
		r, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		var sum RoomSummary
		if err := r.Do(func(r *room.Room) {
			sum = RoomSummary{
				ID:           r.ID(),
				Participants: r.ParticipantCount(),
				Queued:       r.QueueLen(),
				IsPlaying:    r.Playing(),
			}
			if cur := r.Current(); cur != nil {
				t := toTrack(cur)
				sum.CurrentSong = &t
			}
		}); err != nil {
			continue
		}
		out = append(out, sum)
	}
	return out
}
