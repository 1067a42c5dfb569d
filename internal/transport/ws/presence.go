package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const DefaultGrace = 5 * time.Minute

// Presence removes users from their room once they have had no socket and no
// heartbeat for the grace period.
type Presence struct {
	clock  clock.Clock
	grace  time.Duration
	conns  func(userID string) int
	expire func(ctx context.Context, userID string)

	mu     sync.Mutex
	timers map[string]*clock.Timer
}

func NewPresence(clk clock.Clock, grace time.Duration, conns func(string) int, expire func(context.Context, string)) *Presence {
	if clk == nil {
		clk = clock.New()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Presence{
		clock:  clk,
		grace:  grace,
		conns:  conns,
		expire: expire,
		timers: make(map[string]*clock.Timer),
	}
}

// Connected cancels any pending removal.
func (p *Presence) Connected(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[userID]; ok {
		t.Stop()
		delete(p.timers, userID)
	}
}

// Disconnected starts the grace timer after the user's last socket closed.
func (p *Presence) Disconnected(userID string) {
	p.arm(userID)
}

// Touch records activity. A user with live sockets needs nothing; one without
// gets the grace period restarted.
func (p *Presence) Touch(userID string) {
	if p.conns(userID) > 0 {
		return
	}
	p.arm(userID)
}

func (p *Presence) arm(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.timers[userID]; ok {
		t.Stop()
	}
	var t *clock.Timer
	t = p.clock.AfterFunc(p.grace, func() {
		p.mu.Lock()
		current := p.timers[userID] == t
		if current {
			delete(p.timers, userID)
		}
		p.mu.Unlock()

		if !current || p.conns(userID) > 0 {
			return
		}
		slog.Debug("presence: grace period over", slog.String("user_id", userID))
		p.expire(context.Background(), userID)
	})
	p.timers[userID] = t
}

func (p *Presence) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}

// Stop cancels every pending removal.
func (p *Presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
