package protocol

type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
	ActionNext  Action = "next"
	ActionNone  Action = "none"
)

func (a Action) valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek, ActionNext, ActionNone:
		return true
	}
	return false
}

// PlaybackSync carries everything a client needs to recompute the room position.
type PlaybackSync struct {
	RoomID          string  `json:"roomId"`
	CurrentSong     *Track  `json:"currentSong"`
	IsPlaying       bool    `json:"isPlaying"`
	CurrentPosition float64 `json:"currentPosition"`
	StreamURL       string  `json:"streamUrl,omitempty"`
	StartTimestamp  int64   `json:"startTimestamp"`
	PauseTimestamp  int64   `json:"pauseTimestamp"`
	AccumulatedTime float64 `json:"accumulatedTime"`
	ServerTime      int64   `json:"serverTime"`
	Action          Action  `json:"action"`
	SyncID          string  `json:"syncId"`

	// Set only on replies to requestSync.
	ClientTime int64 `json:"clientTime,omitempty"`
	TimeOffset int64 `json:"timeOffset,omitempty"`
}

func (*PlaybackSync) Type() EventType { return TypePlaybackSync }

func (e *PlaybackSync) Validate() error {
	switch {
	case e.SyncID == "":
		return malformed(TypePlaybackSync, "syncId is required")
	case e.ServerTime <= 0:
		return malformed(TypePlaybackSync, "serverTime is required")
	case !e.Action.valid():
		return malformed(TypePlaybackSync, "unknown action "+string(e.Action))
	case e.CurrentPosition < 0:
		return malformed(TypePlaybackSync, "negative position")
	case e.IsPlaying && e.CurrentSong == nil:
		return malformed(TypePlaybackSync, "playing without a song")
	case e.CurrentSong != nil && e.CurrentSong.ID == "":
		return malformed(TypePlaybackSync, "song without id")
	}
	return nil
}

type QueueUpdate struct {
	RoomID string  `json:"roomId"`
	Queue  []Track `json:"queue"`
}

func (*QueueUpdate) Type() EventType { return TypeQueueUpdate }

func (e *QueueUpdate) Validate() error {
	for _, t := range e.Queue {
		if t.ID == "" {
			return malformed(TypeQueueUpdate, "queued song without id")
		}
	}
	return nil
}

type ParticipantsUpdate struct {
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
}

func (*ParticipantsUpdate) Type() EventType { return TypeParticipantsUpdate }

func (e *ParticipantsUpdate) Validate() error {
	for _, p := range e.Participants {
		if p.ID == "" {
			return malformed(TypeParticipantsUpdate, "participant without id")
		}
	}
	return nil
}

// TrackChange flags are informational; clients must not derive state from them.
type TrackChange struct {
	RoomID         string `json:"roomId"`
	PreviousID     string `json:"previousId,omitempty"`
	NewID          string `json:"newId,omitempty"`
	Skipped        bool   `json:"skipped"`
	Automatic      bool   `json:"automatic"`
	ClientReported bool   `json:"clientReported"`
	ServerTime     int64  `json:"serverTime"`
}

func (*TrackChange) Type() EventType { return TypeTrackChange }

func (e *TrackChange) Validate() error {
	if e.PreviousID == "" && e.NewID == "" {
		return malformed(TypeTrackChange, "previousId or newId is required")
	}
	return nil
}

type PlaybackEnded struct {
	RoomID     string `json:"roomId"`
	NextSong   *Track `json:"nextSong"`
	ServerTime int64  `json:"serverTime"`
}

func (*PlaybackEnded) Type() EventType { return TypePlaybackEnded }

func (e *PlaybackEnded) Validate() error { return nil }

type SkipVoteUpdate struct {
	RoomID       string `json:"roomId"`
	CurrentVotes int    `json:"currentVotes"`
	VotesNeeded  int    `json:"votesNeeded"`
}

func (*SkipVoteUpdate) Type() EventType { return TypeSkipVoteUpdate }

func (e *SkipVoteUpdate) Validate() error {
	if e.VotesNeeded < 1 || e.CurrentVotes < 0 {
		return malformed(TypeSkipVoteUpdate, "vote counts out of range")
	}
	return nil
}

type RoomJoined struct {
	Room RoomState `json:"room"`
}

func (*RoomJoined) Type() EventType { return TypeRoomJoined }

func (e *RoomJoined) Validate() error {
	if e.Room.ID == "" {
		return malformed(TypeRoomJoined, "room id is required")
	}
	return nil
}

type ProcessingStatus string

const (
	StatusFetching ProcessingStatus = "fetchingStreamUrl"
	StatusRetrying ProcessingStatus = "retrying"
	StatusSuccess  ProcessingStatus = "success"
	StatusError    ProcessingStatus = "error"
)

// QueueProcessing is only ever sent to the user who asked for the song.
type QueueProcessing struct {
	RoomID  string           `json:"roomId"`
	SongID  string           `json:"songId"`
	Status  ProcessingStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	Attempt int              `json:"attempt,omitempty"`
}

func (*QueueProcessing) Type() EventType { return TypeQueueProcessing }

func (e *QueueProcessing) Validate() error {
	if e.SongID == "" {
		return malformed(TypeQueueProcessing, "songId is required")
	}
	switch e.Status {
	case StatusFetching, StatusRetrying, StatusSuccess, StatusError:
		return nil
	}
	return malformed(TypeQueueProcessing, "unknown status "+string(e.Status))
}

// EventProcessed acknowledges a client event to the socket that sent it.
type EventProcessed struct {
	EventType string `json:"type"`
	SongID    string `json:"songId,omitempty"`
	Processed bool   `json:"processed"`
	Reason    string `json:"reason,omitempty"`
}

func (*EventProcessed) Type() EventType { return TypeEventProcessed }

func (e *EventProcessed) Validate() error {
	if e.EventType == "" {
		return malformed(TypeEventProcessed, "type is required")
	}
	return nil
}

type Error struct {
	Message string `json:"message"`
}

func (*Error) Type() EventType { return TypeError }

func (e *Error) Validate() error { return nil }
