package audio

import (
	"context"
	"errors"
	"strings"

	"github.com/cwrk-planet/music-room/internal/domain"

	"github.com/sosodev/duration"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var ErrSearchDisabled = errors.New("music search is not configured")

var (
	partID             = "id"
	partSnippet        = "snippet"
	partContentDetails = "contentDetails"
)

// Searcher looks tracks up through the YouTube Data API.
type Searcher struct {
	youtube *youtube.Service
	limit   int64
}

func NewSearcher(ctx context.Context, apiKey string, limit int64, opts ...option.ClientOption) (*Searcher, error) {
	if limit <= 0 {
		limit = 10
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return &Searcher{youtube: svc, limit: limit}, nil
}

func (s *Searcher) Search(ctx context.Context, query string) ([]domain.Track, error) {
	if s == nil {
		return nil, ErrSearchDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidTrack
	}

	found, err := s.youtube.Search.List([]string{partID, partSnippet}).
		Q(query).Type("video").MaxResults(s.limit).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(found.Items))
	for _, item := range found.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return []domain.Track{}, nil
	}

	// durations are only available from the videos endpoint
	videos, err := s.youtube.Videos.List([]string{partContentDetails}).
		Id(strings.Join(ids, ",")).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	durations := make(map[string]float64, len(videos.Items))
	for _, v := range videos.Items {
		if v.ContentDetails == nil {
			continue
		}
		d, err := duration.Parse(v.ContentDetails.Duration)
		if err != nil {
			continue
		}
		durations[v.Id] = d.ToTimeDuration().Seconds()
	}

	out := make([]domain.Track, 0, len(ids))
	for _, item := range found.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		t := domain.Track{
			ID:       item.Id.VideoId,
			Title:    item.Snippet.Title,
			Artist:   item.Snippet.ChannelTitle,
			Duration: durations[item.Id.VideoId],
		}
		if th := item.Snippet.Thumbnails; th != nil {
			switch {
			case th.High != nil:
				t.Thumbnail = th.High.Url
			case th.Default != nil:
				t.Thumbnail = th.Default.Url
			}
		}
		out = append(out, t)
	}
	return out, nil
}
