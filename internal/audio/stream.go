package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrResolveTimeout = errors.New("timed out getting stream url")
	ErrEmptyStream    = errors.New("failed to get stream url: empty response")
	ErrResolverBinary = errors.New("stream resolver binary not available")
)

type Stream struct {
	URL      string
	Duration float64
	Title    string
}

type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// YTDLP resolves playable audio URLs by shelling out to yt-dlp.
// Concurrent lookups of the same track share one process.
type YTDLP struct {
	binary  string
	timeout time.Duration
	run     Runner
	group   singleflight.Group
}

func NewYTDLP(binary string, timeout time.Duration) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YTDLP{binary: binary, timeout: timeout, run: execRunner}
}

// WithRunner swaps the process runner, for tests.
func (y *YTDLP) WithRunner(run Runner) *YTDLP {
	y.run = run
	return y
}

type ytdlpInfo struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
	Title    string  `json:"title"`
}

func (y *YTDLP) Resolve(ctx context.Context, trackID string) (Stream, error) {
	v, err, shared := y.group.Do(trackID, func() (any, error) {
		return y.resolve(ctx, trackID)
	})
	if err != nil {
		return Stream{}, err
	}
	if shared {
		slog.Debug("audio.Resolve: shared lookup", slog.String("track_id", trackID))
	}
	return v.(Stream), nil
}

func (y *YTDLP) resolve(ctx context.Context, trackID string) (Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	start := time.Now()
	out, err := y.run(ctx, y.binary, "-j", "-f", "bestaudio", "--no-playlist", "--no-warnings", "--", watchURL(trackID))
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return Stream{}, ErrResolveTimeout
		case errors.Is(err, exec.ErrNotFound):
			return Stream{}, fmt.Errorf("%w: %v", ErrResolverBinary, err)
		}
		return Stream{}, fmt.Errorf("yt-dlp %s: %w", trackID, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return Stream{}, fmt.Errorf("yt-dlp %s: decode: %w", trackID, err)
	}
	if info.URL == "" {
		return Stream{}, ErrEmptyStream
	}

	slog.Debug("audio.Resolve",
		slog.String("track_id", trackID),
		slog.Duration("took", time.Since(start)))

	return Stream{URL: info.URL, Duration: info.Duration, Title: info.Title}, nil
}

func watchURL(trackID string) string {
	if strings.HasPrefix(trackID, "http://") || strings.HasPrefix(trackID, "https://") {
		return trackID
	}
	return "https://www.youtube.com/watch?v=" + trackID
}
