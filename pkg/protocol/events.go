// Package protocol defines the realtime messages exchanged between the room
// server and its clients. Every message travels as an Envelope whose payload
// shape is fixed by its type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type EventType string

// Server -> client.
const (
	TypePlaybackSync       EventType = "playbackSync"
	TypeQueueUpdate        EventType = "queueUpdate"
	TypeParticipantsUpdate EventType = "participantsUpdate"
	TypeTrackChange        EventType = "trackChange"
	TypePlaybackEnded      EventType = "playbackEnded"
	TypeSkipVoteUpdate     EventType = "skipVoteUpdate"
	TypeRoomJoined         EventType = "roomJoined"
	TypeQueueProcessing    EventType = "queueProcessing"
	TypeEventProcessed     EventType = "eventProcessed"
	TypeError              EventType = "error"
)

// Client -> server.
const (
	TypeHeartbeat   EventType = "heartbeat"
	TypeRequestSync EventType = "requestSync"
	TypeClientEvent EventType = "clientEvent"
)

var ErrMalformed = errors.New("malformed event")

type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Event interface {
	Type() EventType
	Validate() error
}

func Encode(ev Event) (Envelope, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: ev.Type(), Payload: b}, nil
}

// Decode turns an envelope into its typed event and rejects payloads that
// miss required fields.
func Decode(env Envelope) (Event, error) {
	var ev Event
	switch env.Type {
	case TypePlaybackSync:
		ev = &PlaybackSync{}
	case TypeQueueUpdate:
		ev = &QueueUpdate{}
	case TypeParticipantsUpdate:
		ev = &ParticipantsUpdate{}
	case TypeTrackChange:
		ev = &TrackChange{}
	case TypePlaybackEnded:
		ev = &PlaybackEnded{}
	case TypeSkipVoteUpdate:
		ev = &SkipVoteUpdate{}
	case TypeRoomJoined:
		ev = &RoomJoined{}
	case TypeQueueProcessing:
		ev = &QueueProcessing{}
	case TypeEventProcessed:
		ev = &EventProcessed{}
	case TypeError:
		ev = &Error{}
	case TypeHeartbeat:
		ev = &Heartbeat{}
	case TypeRequestSync:
		ev = &RequestSync{}
	case TypeClientEvent:
		ev = &ClientEvent{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func malformed(t EventType, why string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, t, why)
}

// Millis converts t to unix milliseconds; the zero time becomes 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
