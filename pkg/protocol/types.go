package protocol

type Track struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Artist      string  `json:"artist,omitempty"`
	Duration    float64 `json:"duration"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	StreamURL   string  `json:"streamUrl,omitempty"`
	AddedBy     string  `json:"addedBy,omitempty"`
	AddedByName string  `json:"addedByName,omitempty"`
	AddedAt     int64   `json:"addedAt,omitempty"`
}

type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	JoinedAt   int64  `json:"joinedAt"`
	SongsAdded int    `json:"songsAdded"`
}

// RoomState is the full snapshot sent on join and on demand.
type RoomState struct {
	ID              string        `json:"id"`
	Participants    []Participant `json:"participants"`
	Queue           []Track       `json:"queue"`
	CurrentSong     *Track        `json:"currentSong"`
	IsPlaying       bool          `json:"isPlaying"`
	CurrentPosition float64       `json:"currentPosition"`
	StartTimestamp  int64         `json:"startTimestamp"`
	PauseTimestamp  int64         `json:"pauseTimestamp"`
	AccumulatedTime float64       `json:"accumulatedTime"`
	PlaybackHistory []Track       `json:"playbackHistory"`
	SkipVotes       int           `json:"skipVotes"`
	VotesNeeded     int           `json:"votesNeeded"`
	ServerTime      int64         `json:"serverTime"`
}
