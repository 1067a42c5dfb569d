package room

import (
	"sort"
	"sync"

	"github.com/cwrk-planet/music-room/internal/domain"
)

// Registry maps room ids to live rooms. It is the only process-wide room state.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  Options
}

func NewRegistry(opts Options) *Registry {
	opts.withDefaults()
	return &Registry{
		rooms: make(map[string]*Room),
		opts:  opts,
	}
}

// SetAutoAdvance installs the hook used by rooms created from now on.
func (g *Registry) SetAutoAdvance(fn func(r *Room, t Transition)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opts.OnAutoAdvance = fn
}

func (g *Registry) GetOrCreate(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r := New(id, g.opts)
	g.rooms[id] = r
	return r, true
}

func (g *Registry) Get(id string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r, nil
}

// Holds reports whether r is still the registered room for its id.
func (g *Registry) Holds(r *Room) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[r.ID()] == r
}

// RemoveIfEmpty tears down the room when nobody is left in it.
func (g *Registry) RemoveIfEmpty(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[id]
	if !ok {
		return false
	}
	removed := false
	_ = r.Do(func(r *Room) {
		if r.ParticipantCount() == 0 {
			r.Shutdown()
			removed = true
		}
	})
	if removed {
		delete(g.rooms, id)
	}
	return removed
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Registry) IDs() []string {
	g.mu.RLock()
	ids := make([]string, 0, len(g.rooms))
	for id := range g.rooms {
		ids = append(ids, id)
	}
	g.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Close shuts down every room.
func (g *Registry) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, r := range g.rooms {
		_ = r.Do(func(r *Room) { r.Shutdown() })
		delete(g.rooms, id)
	}
}
