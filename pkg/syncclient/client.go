package syncclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/music-room/pkg/protocol"
	"github.com/cwrk-planet/music-room/pkg/retry"
)

const (
	DefaultTickEvery      = time.Second
	DefaultHeartbeatEvery = 30 * time.Second
	DefaultAckTimeout     = 2 * time.Second
)

var errNoAck = errors.New("syncclient: trackEnded not acknowledged")

// DefaultReportPolicy retries an unacknowledged trackEnded report after
// 800ms, 1.6s, 2.4s and then every 3s, five attempts in all.
func DefaultReportPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 5,
		BaseDelay:   800 * time.Millisecond,
		MaxDelay:    3 * time.Second,
		Backoff:     retry.Linear,
	}
}

type Config struct {
	// URL of the room socket, e.g. ws://localhost:8080/ws.
	URL   string
	Token string
	// RoomID may be left empty; the server announces it on connect.
	RoomID string

	TickEvery      time.Duration
	HeartbeatEvery time.Duration
	AckTimeout     time.Duration
	Report         retry.Policy
	Reconciler     ReconcilerConfig
	Clock          clock.Clock

	// OnEvent sees every decoded server event after the client handled it.
	OnEvent func(protocol.Event)
}

type Client struct {
	cfg  Config
	rec  *Reconciler
	conn *websocket.Conn

	mu     sync.Mutex
	roomID string
	acks   chan string
}

func New(cfg Config, p Player) *Client {
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = DefaultTickEvery
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = DefaultHeartbeatEvery
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.Report.MaxAttempts <= 0 {
		cfg.Report = DefaultReportPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Report.Clock == nil {
		cfg.Report.Clock = cfg.Clock
	}
	if cfg.Reconciler.Clock == nil {
		cfg.Reconciler.Clock = cfg.Clock
	}

	return &Client{
		cfg:    cfg,
		rec:    NewReconciler(p, cfg.Reconciler),
		roomID: cfg.RoomID,
		acks:   make(chan string, 8),
	}
}

func (c *Client) Reconciler() *Reconciler { return c.rec }

func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Run dials the socket and keeps the player in sync until ctx ends or the
// connection drops.
func (c *Client) Run(ctx context.Context) error {
	h := http.Header{}
	if c.cfg.Token != "" {
		h.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{HTTPHeader: h})
	cancel()
	if err != nil {
		return fmt.Errorf("syncclient: dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	c.conn = conn
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.tickLoop(ctx) })
	g.Go(func() error { return c.heartbeatLoop(ctx) })

	if c.RoomID() != "" {
		_ = c.requestSync(ctx)
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		var env protocol.Envelope
		if err := wsjson.Read(ctx, c.conn, &env); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("syncclient: read: %w", err)
		}
		ev, err := protocol.Decode(env)
		if err != nil {
			slog.Warn("syncclient: bad frame", slog.Any("err", err))
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev protocol.Event) {
	switch e := ev.(type) {
	case *protocol.RoomJoined:
		c.setRoom(e.Room.ID)
		c.rec.ApplyRoom(e.Room)

	case *protocol.PlaybackSync:
		c.setRoom(e.RoomID)
		out := c.rec.Apply(e)
		slog.Debug("syncclient: sync applied",
			slog.String("sync_id", e.SyncID),
			slog.String("action", string(e.Action)),
			slog.String("outcome", string(out)))

	case *protocol.EventProcessed:
		if e.EventType == protocol.ClientEventTrackEnded {
			select {
			case c.acks <- e.SongID:
			default:
			}
		}

	case *protocol.Error:
		slog.Warn("syncclient: server error", slog.String("message", e.Message))
	}

	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(ev)
	}
}

func (c *Client) tickLoop(ctx context.Context) error {
	t := c.cfg.Clock.Ticker(c.cfg.TickEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if id, ended := c.rec.Tick(); ended {
				go c.reportEnded(ctx, id)
			}
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) error {
	t := c.cfg.Clock.Ticker(c.cfg.HeartbeatEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			hb := &protocol.Heartbeat{ClientTime: c.cfg.Clock.Now().UnixMilli()}
			if err := c.send(ctx, hb); err != nil {
				return err
			}
		}
	}
}

// reportEnded tells the server the track ran out and repeats itself until an
// ack for that song comes back, then asks for a fresh sync either way.
func (c *Client) reportEnded(ctx context.Context, songID string) {
	roomID := c.RoomID()
	if roomID == "" {
		return
	}
	log := slog.With(slog.String("room_id", roomID), slog.String("song_id", songID))

	policy := c.cfg.Report
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		log.Debug("syncclient: retrying trackEnded", slog.Int("attempt", attempt), slog.Duration("wait", wait))
	}

	err := retry.Do(ctx, policy, func(ctx context.Context, _ int) error {
		ev := &protocol.ClientEvent{
			Kind:      protocol.ClientEventTrackEnded,
			SongID:    songID,
			RoomID:    roomID,
			Timestamp: c.cfg.Clock.Now().UnixMilli(),
		}
		if err := c.send(ctx, ev); err != nil {
			return retry.Permanent(err)
		}
		return c.awaitAck(ctx, songID)
	})
	if err != nil {
		log.Warn("syncclient: trackEnded report failed", slog.Any("err", err))
	}
	_ = c.requestSync(ctx)
}

func (c *Client) awaitAck(ctx context.Context, songID string) error {
	t := c.cfg.Clock.Timer(c.cfg.AckTimeout)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return errNoAck
		case id := <-c.acks:
			if id == songID {
				return nil
			}
		}
	}
}

func (c *Client) requestSync(ctx context.Context) error {
	return c.send(ctx, &protocol.RequestSync{
		RoomID:       c.RoomID(),
		ClientTime:   c.cfg.Clock.Now().UnixMilli(),
		LastSyncTime: c.rec.LastServerTime(),
	})
}

func (c *Client) send(ctx context.Context, ev protocol.Event) error {
	env, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.conn, env)
}

func (c *Client) setRoom(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.roomID = id
	c.mu.Unlock()
}
