package domain

import (
	"strings"
	"time"
)

// Track is a queued or playing song. Duration is in seconds and becomes
// authoritative once the stream has been resolved.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Duration    float64
	Thumbnail   string
	StreamURL   string
	AddedBy     string
	AddedByName string
	AddedAt     time.Time
}

// Validate checks the shape of a track submitted by a client.
func (t *Track) Validate() error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return ErrInvalidTrack
	}
	if t.Duration < 0 {
		return ErrInvalidTrack
	}

	return nil
}

func (t *Track) Clone() *Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func CloneTracks(in []*Track) []*Track {
	out := make([]*Track, 0, len(in))
	for _, t := range in {
		out = append(out, t.Clone())
	}

	return out
}
