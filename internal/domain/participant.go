package domain

import "time"

type Participant struct {
	ID         string
	Name       string
	AvatarURL  string
	JoinedAt   time.Time
	SongsAdded int
}

// Identity is the verified caller behind a bearer token.
type Identity struct {
	ID        string
	Name      string
	AvatarURL string
}
