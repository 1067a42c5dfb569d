package syncclient

import (
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/cwrk-planet/music-room/pkg/protocol"
)

// Player is the local media element the reconciler drives. Positions are in
// seconds.
type Player interface {
	Load(t protocol.Track)
	Unload()
	Play()
	Pause()
	Seek(pos float64)
	Position() float64
	Duration() float64
	Playing() bool
}

// VirtualPlayer plays nothing; it only keeps a position that advances with
// its clock. The headless listener and tests use it in place of real audio.
type VirtualPlayer struct {
	mu      sync.Mutex
	clock   clock.Clock
	track   *protocol.Track
	playing bool
	base    float64
	since   int64 // unix ms the current playing stretch began
}

func NewVirtualPlayer(clk clock.Clock) *VirtualPlayer {
	if clk == nil {
		clk = clock.New()
	}
	return &VirtualPlayer{clock: clk}
}

func (p *VirtualPlayer) Load(t protocol.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = &t
	p.playing = false
	p.base = 0
}

func (p *VirtualPlayer) Unload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = nil
	p.playing = false
	p.base = 0
}

func (p *VirtualPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil || p.playing {
		return
	}
	p.playing = true
	p.since = p.clock.Now().UnixMilli()
}

func (p *VirtualPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return
	}
	p.base = p.position()
	p.playing = false
}

func (p *VirtualPlayer) Seek(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return
	}
	p.base = p.clamp(pos)
	p.since = p.clock.Now().UnixMilli()
}

func (p *VirtualPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *VirtualPlayer) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return 0
	}
	return p.track.Duration
}

func (p *VirtualPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Track returns the loaded track, if any.
func (p *VirtualPlayer) Track() (protocol.Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return protocol.Track{}, false
	}
	return *p.track, true
}

func (p *VirtualPlayer) position() float64 {
	if p.track == nil {
		return 0
	}
	pos := p.base
	if p.playing {
		pos += float64(p.clock.Now().UnixMilli()-p.since) / 1000
	}
	return p.clamp(pos)
}

func (p *VirtualPlayer) clamp(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if d := p.track.Duration; d > 0 && pos > d {
		return d
	}
	return pos
}
