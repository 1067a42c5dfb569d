package protocol

const ClientEventTrackEnded = "trackEnded"

type Heartbeat struct {
	ClientTime int64 `json:"clientTime,omitempty"`
}

func (*Heartbeat) Type() EventType { return TypeHeartbeat }

func (e *Heartbeat) Validate() error { return nil }

type RequestSync struct {
	RoomID       string `json:"roomId"`
	ClientTime   int64  `json:"clientTime"`
	LastSyncTime int64  `json:"lastSyncTime,omitempty"`
}

func (*RequestSync) Type() EventType { return TypeRequestSync }

func (e *RequestSync) Validate() error {
	if e.RoomID == "" {
		return malformed(TypeRequestSync, "roomId is required")
	}
	return nil
}

type ClientEvent struct {
	Kind      string `json:"type"`
	SongID    string `json:"songId"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

func (*ClientEvent) Type() EventType { return TypeClientEvent }

func (e *ClientEvent) Validate() error {
	switch {
	case e.Kind != ClientEventTrackEnded:
		return malformed(TypeClientEvent, "unsupported client event "+e.Kind)
	case e.SongID == "":
		return malformed(TypeClientEvent, "songId is required")
	case e.RoomID == "":
		return malformed(TypeClientEvent, "roomId is required")
	}
	return nil
}
