// Command listener joins a room's realtime channel without audio and keeps a
// virtual player on the shared timeline. It reports track ends like a browser
// client would, which makes it handy for smoke-testing a deployment.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cwrk-planet/music-room/pkg/logger"
	"github.com/cwrk-planet/music-room/pkg/protocol"
	"github.com/cwrk-planet/music-room/pkg/syncclient"
)

type settings struct {
	URL            string        `envconfig:"URL" default:"ws://localhost:8080/ws"`
	Token          string        `envconfig:"TOKEN" required:"true"`
	RoomID         string        `envconfig:"ROOM_ID"`
	HeartbeatEvery time.Duration `envconfig:"HEARTBEAT_EVERY" default:"30s"`
	Debug          bool          `envconfig:"DEBUG"`
}

func main() {
	_ = godotenv.Load()

	var s settings
	if err := envconfig.Process("LISTENER", &s); err != nil {
		log.Fatalf("settings: %v", err)
	}

	logger.Init(logger.Config{
		Service: "music-room-listener",
		Env:     logger.DetectEnv(),
		Backend: logger.BackendStd,
		Debug:   s.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player := syncclient.NewVirtualPlayer(nil)
	client := syncclient.New(syncclient.Config{
		URL:            s.URL,
		Token:          s.Token,
		RoomID:         s.RoomID,
		HeartbeatEvery: s.HeartbeatEvery,
		OnEvent: func(ev protocol.Event) {
			switch e := ev.(type) {
			case *protocol.TrackChange:
				slog.Info("track changed",
					slog.String("from", e.PreviousID),
					slog.String("to", e.NewID),
					slog.Bool("automatic", e.Automatic))
			case *protocol.PlaybackEnded:
				slog.Info("queue ended")
			case *protocol.ParticipantsUpdate:
				slog.Info("participants", slog.Int("count", len(e.Participants)))
			}
		},
	}, player)

	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tr, ok := player.Track()
				if !ok {
					continue
				}
				slog.Info("now playing",
					slog.String("room_id", client.RoomID()),
					slog.String("song_id", tr.ID),
					slog.String("title", tr.Title),
					slog.Float64("position", player.Position()),
					slog.Bool("playing", player.Playing()))
			}
		}
	}()

	if err := client.Run(ctx); err != nil {
		log.Fatalf("listener: %v", err)
	}
}
