package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/music-room/config"
	"github.com/cwrk-planet/music-room/internal/audio"
	"github.com/cwrk-planet/music-room/internal/identity"
	"github.com/cwrk-planet/music-room/internal/metrics"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/internal/service"
	grpcx "github.com/cwrk-planet/music-room/internal/transport/grpc"
	httpx "github.com/cwrk-planet/music-room/internal/transport/http"
	"github.com/cwrk-planet/music-room/internal/transport/ws"
	"github.com/cwrk-planet/music-room/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting music-room",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "auth", cfg.Auth.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- rooms ---
	registry := room.NewRegistry(room.Options{
		AutoNextBuffer:   cfg.Room.AutoNextBuffer,
		HistoryLimit:     cfg.Room.HistoryLimit,
		TrackEndedWindow: cfg.Room.TrackEndedWindow,
	})
	m := metrics.New(registry.Len)

	// --- auth ---
	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- audio ---
	resolver := audio.NewYTDLP(cfg.Resolver.Binary, cfg.Resolver.Timeout)
	var search httpx.Searcher
	if cfg.YouTube.APIKey != "" {
		s, err := audio.NewSearcher(ctx, cfg.YouTube.APIKey, cfg.YouTube.Limit)
		if err != nil {
			log.Fatalf("youtube: %v", err)
		}
		search = s
	} else {
		slog.Info("youtube api key not set, search disabled")
	}

	// --- services ---
	hub := ws.NewHub(cfg.Realtime.SendBuffer, m)
	roomSvc := service.NewRoomService(registry)
	memberSvc := service.NewMemberService(registry, hub, m)
	memberSvc.SetChannels(hub)
	playbackSvc := service.NewPlaybackService(registry, hub, m)
	queueSvc := service.NewQueueService(ctx, registry, hub, resolver, m, service.QueueConfig{
		UserLimit:   cfg.Room.UserQueueLimit,
		MaxAttempts: cfg.Resolver.MaxAttempts,
		BaseDelay:   cfg.Resolver.BaseDelay,
	})

	// --- WS ---
	presence := ws.NewPresence(nil, cfg.Room.InactivityGrace, hub.Connections, memberSvc.Expire)
	wsServer := ws.NewServer(hub, presence, verifier, memberSvc, roomSvc, playbackSvc, cfg.Realtime.PingEvery)

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, memberSvc, queueSvc, playbackSvc, search)
	router := httpx.NewRouter(httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Debug:          cfg.Logging.Debug,
	}, handler, verifier, presence, wsServer.HandleWS, m.Handler())
	httpSrv := httpx.New(httpx.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, router)

	// --- gRPC ---
	grpcSrv := grpcx.New(grpcx.Config{Addr: cfg.GRPC.Addr})

	// --- run both servers ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Run(gctx) })
	g.Go(func() error { return grpcSrv.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("server error", slog.Any("err", err))
	}

	// --- graceful shutdown ---
	stop()
	queueSvc.Wait()
	presence.Stop()
	registry.Close()
	slog.Info("stopped")
}

func newVerifier(cfg config.Auth) (identity.Verifier, error) {
	if cfg.Mode == "jwt" {
		pub, err := identity.LoadRSAPublicKeyFromPEM(cfg.JWT.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		return identity.NewJWTVerifier(pub, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.ClockSkew), nil
	}
	return identity.NewRemoteVerifier(identity.RemoteConfig{
		BaseURL:   cfg.Identity.BaseURL,
		Timeout:   cfg.Identity.Timeout,
		CacheTTL:  cfg.Identity.CacheTTL,
		CacheSize: cfg.Identity.CacheSize,
	}, nil), nil
}
