package http

import "github.com/cwrk-planet/music-room/pkg/protocol"

type JoinRequest struct {
	User *struct {
		Name   string `json:"name"`
		Avatar string `json:"avatar"`
	} `json:"user,omitempty"`
}

type JoinResponse struct {
	Room protocol.RoomState `json:"room"`
}

type AddSongRequest struct {
	Song *protocol.Track `json:"song"`
}

type SeekRequest struct {
	Position *float64 `json:"position"`
}

type PauseRequest struct {
	Position *float64 `json:"position,omitempty"`
}

type ReorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

type QueueResponse struct {
	Queue []protocol.Track `json:"queue"`
}

type ParticipantsResponse struct {
	Participants []protocol.Participant `json:"participants"`
}

type SearchResponse struct {
	Items []protocol.Track `json:"items"`
}
