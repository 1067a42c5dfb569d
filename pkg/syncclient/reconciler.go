// Package syncclient keeps a local player in step with a room's shared
// timeline. The Reconciler turns playbackSync events into player commands and
// Client carries them over the room websocket.
package syncclient

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cwrk-planet/music-room/pkg/protocol"
)

const (
	DefaultDriftTolerance = time.Second
	DefaultEndThreshold   = 500 * time.Millisecond
	seenSyncIDs           = 128
)

// Outcome says what Apply did with an event.
type Outcome string

const (
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeSwitched  Outcome = "switched"
	OutcomeSnapped   Outcome = "snapped"
	OutcomeCorrected Outcome = "corrected"
	OutcomeAbsorbed  Outcome = "absorbed"
	OutcomeStopped   Outcome = "stopped"
)

type ReconcilerConfig struct {
	// Drift below this is left alone to avoid audible stutter.
	DriftTolerance time.Duration
	// Remaining time under which the track counts as ended.
	EndThreshold time.Duration
	Clock        clock.Clock
}

type Reconciler struct {
	mu        sync.Mutex
	player    Player
	clock     clock.Clock
	tolerance float64
	endAt     float64

	seen       *lru.Cache[string, struct{}]
	songID     string
	lastServer int64
	offset     int64 // server ms minus local ms
	reported   bool
}

func NewReconciler(p Player, cfg ReconcilerConfig) *Reconciler {
	if cfg.DriftTolerance <= 0 {
		cfg.DriftTolerance = DefaultDriftTolerance
	}
	if cfg.EndThreshold <= 0 {
		cfg.EndThreshold = DefaultEndThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	// only fails for a non-positive size
	seen, _ := lru.New[string, struct{}](seenSyncIDs)

	return &Reconciler{
		player:    p,
		clock:     cfg.Clock,
		tolerance: cfg.DriftTolerance.Seconds(),
		endAt:     cfg.EndThreshold.Seconds(),
		seen:      seen,
	}
}

// Apply brings the player in line with ev.
func (r *Reconciler) Apply(ev *protocol.PlaybackSync) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.SyncID != "" {
		if ok, _ := r.seen.ContainsOrAdd(ev.SyncID, struct{}{}); ok {
			return OutcomeDuplicate
		}
	}
	if ev.ServerTime < r.lastServer {
		return OutcomeStale
	}
	r.lastServer = ev.ServerTime
	r.offset = ev.ServerTime - r.clock.Now().UnixMilli()

	if ev.CurrentSong == nil {
		if r.songID != "" {
			r.player.Unload()
		}
		r.songID = ""
		r.reported = false
		return OutcomeStopped
	}

	pos := r.impliedPosition(ev)

	// a next event always starts a fresh play, even of a re-queued song
	if ev.CurrentSong.ID != r.songID || ev.Action == protocol.ActionNext {
		t := *ev.CurrentSong
		if t.StreamURL == "" {
			t.StreamURL = ev.StreamURL
		}
		r.player.Load(t)
		r.player.Seek(pos)
		r.songID = t.ID
		r.reported = false
		r.setPlaying(ev.IsPlaying)
		return OutcomeSwitched
	}

	switch ev.Action {
	case protocol.ActionPause:
		r.player.Seek(pos)
		r.player.Pause()
		return OutcomeSnapped
	case protocol.ActionPlay:
		r.player.Seek(pos)
		r.player.Play()
		return OutcomeSnapped
	}

	out := OutcomeAbsorbed
	if math.Abs(r.player.Position()-pos) > r.tolerance {
		r.player.Seek(pos)
		out = OutcomeCorrected
	}
	r.setPlaying(ev.IsPlaying)
	return out
}

// ApplyRoom applies a full room snapshot, as received on join.
func (r *Reconciler) ApplyRoom(st protocol.RoomState) Outcome {
	ev := &protocol.PlaybackSync{
		RoomID:          st.ID,
		CurrentSong:     st.CurrentSong,
		IsPlaying:       st.IsPlaying,
		CurrentPosition: st.CurrentPosition,
		StartTimestamp:  st.StartTimestamp,
		PauseTimestamp:  st.PauseTimestamp,
		AccumulatedTime: st.AccumulatedTime,
		ServerTime:      st.ServerTime,
		Action:          protocol.ActionNone,
	}
	if st.CurrentSong != nil {
		ev.StreamURL = st.CurrentSong.StreamURL
	}
	return r.Apply(ev)
}

// Tick checks whether the loaded track has run out. It returns the song id
// the first time that happens for a given load and never again until the
// next one.
func (r *Reconciler) Tick() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.songID == "" || r.reported || !r.player.Playing() {
		return "", false
	}
	d := r.player.Duration()
	if d <= 0 || d-r.player.Position() >= r.endAt {
		return "", false
	}
	r.reported = true
	slog.Debug("syncclient: track ended locally",
		slog.String("song_id", r.songID),
		slog.Float64("position", r.player.Position()))
	return r.songID, true
}

func (r *Reconciler) SongID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.songID
}

// Offset is the last observed server clock minus the local clock.
func (r *Reconciler) Offset() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.offset) * time.Millisecond
}

// LastServerTime is the serverTime of the newest sync applied.
func (r *Reconciler) LastServerTime() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastServer
}

// ServerNow is the local clock shifted onto the server's timeline.
func (r *Reconciler) ServerNow() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Now().UnixMilli() + r.offset
}

// impliedPosition is where the server says the track is right now. A playing
// event is projected forward from its start timestamp when it carries one.
func (r *Reconciler) impliedPosition(ev *protocol.PlaybackSync) float64 {
	pos := ev.CurrentPosition
	if ev.IsPlaying {
		now := r.clock.Now().UnixMilli() + r.offset
		if ev.StartTimestamp > 0 {
			pos = ev.AccumulatedTime + float64(now-ev.StartTimestamp)/1000
		} else {
			pos += float64(now-ev.ServerTime) / 1000
		}
	}
	if pos < 0 {
		pos = 0
	}
	if d := ev.CurrentSong.Duration; d > 0 && pos > d {
		pos = d
	}
	return pos
}

func (r *Reconciler) setPlaying(on bool) {
	switch {
	case on && !r.player.Playing():
		r.player.Play()
	case !on && r.player.Playing():
		r.player.Pause()
	}
}
