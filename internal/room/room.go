package room

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cwrk-planet/music-room/internal/domain"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

const (
	DefaultAutoNextBuffer   = 500 * time.Millisecond
	DefaultHistoryLimit     = 20
	DefaultTrackEndedWindow = 5 * time.Second
)

// ExhaustPolicy tells Advance what to do when the queue is empty.
type ExhaustPolicy int

const (
	// KeepCurrent leaves the current track loaded and reports that nothing followed.
	KeepCurrent ExhaustPolicy = iota
	// ClearCurrent moves the current track to history and stops playback.
	ClearCurrent
)

type Cause string

const (
	CauseManual Cause = "manual"
	CauseSkip   Cause = "skip"
	CauseAuto   Cause = "auto"
	CauseClient Cause = "client"
	CauseQueue  Cause = "queue"
	CauseJump   Cause = "jump"
	CauseBack   Cause = "previous"
)

// Transition describes what happened to the current track.
type Transition struct {
	Previous *domain.Track
	Current  *domain.Track
	Advanced bool
	Ended    bool
	Cause    Cause
}

type Options struct {
	Clock            clock.Clock
	AutoNextBuffer   time.Duration
	HistoryLimit     int
	TrackEndedWindow time.Duration

	// OnAutoAdvance runs inside Do after the auto-next timer moved the timeline.
	// It must not call Do on the same room.
	OnAutoAdvance func(r *Room, t Transition)
}

func (o *Options) withDefaults() {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.AutoNextBuffer <= 0 {
		o.AutoNextBuffer = DefaultAutoNextBuffer
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.TrackEndedWindow <= 0 {
		o.TrackEndedWindow = DefaultTrackEndedWindow
	}
}

type endedReport struct {
	songID string
	at     time.Time
}

// Room is the authoritative playback state of one listening room.
//
// All methods except ID and Do are unsynchronized and must be called from
// inside Do. The auto-next timer goes through Do as well, so cancelling and
// re-arming it is atomic with the state change that caused it.
type Room struct {
	mu     sync.Mutex
	id     string
	opts   Options
	clock  clock.Clock
	log    *slog.Logger
	closed bool

	createdAt    time.Time
	participants []*domain.Participant
	queue        []*domain.Track
	current      *domain.Track
	playing      bool
	startedAt    time.Time
	pausedAt     time.Time
	accumulated  float64
	history      []*domain.Track
	skipVotes    map[string]struct{}
	lastCommand  time.Time
	lastEnded    endedReport

	autoNext   *clock.Timer
	autoNextAt time.Time
	timerGen   uint64
}

func New(id string, opts Options) *Room {
	opts.withDefaults()
	return &Room{
		id:        id,
		opts:      opts,
		clock:     opts.Clock,
		log:       slog.Default().With(slog.String("room_id", id)),
		createdAt: opts.Clock.Now(),
		skipVotes: make(map[string]struct{}),
	}
}

func (r *Room) ID() string { return r.id }

// Do runs fn with exclusive access to the room.
func (r *Room) Do(fn func(r *Room)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return domain.ErrRoomClosed
	}
	fn(r)
	return nil
}

// Shutdown cancels the timer and rejects further commands.
func (r *Room) Shutdown() {
	r.cancelAutoNext()
	r.closed = true
}

func (r *Room) Now() time.Time { return r.clock.Now() }

// --- participants ---

// AddParticipant appends p, or refreshes name and avatar when the user is already in.
func (r *Room) AddParticipant(p domain.Participant) bool {
	if existing := r.participant(p.ID); existing != nil {
		if p.Name != "" {
			existing.Name = p.Name
		}
		if p.AvatarURL != "" {
			existing.AvatarURL = p.AvatarURL
		}
		return false
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = r.clock.Now()
	}
	r.participants = append(r.participants, &p)
	return true
}

func (r *Room) RemoveParticipant(userID string) bool {
	_, idx, ok := lo.FindIndexOf(r.participants, func(p *domain.Participant) bool { return p.ID == userID })
	if !ok {
		return false
	}
	r.participants = append(r.participants[:idx], r.participants[idx+1:]...)
	delete(r.skipVotes, userID)
	return true
}

func (r *Room) HasParticipant(userID string) bool { return r.participant(userID) != nil }

func (r *Room) ParticipantCount() int { return len(r.participants) }

func (r *Room) IncrementSongsAdded(userID string) bool {
	p := r.participant(userID)
	if p == nil {
		return false
	}
	p.SongsAdded++
	return true
}

func (r *Room) Participants() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	return out
}

func (r *Room) participant(userID string) *domain.Participant {
	p, ok := lo.Find(r.participants, func(p *domain.Participant) bool { return p.ID == userID })
	if !ok {
		return nil
	}
	return p
}

// --- timeline ---

// Position is the authoritative playback position in seconds.
func (r *Room) Position() float64 {
	if r.current == nil {
		return 0
	}
	pos := r.accumulated
	if r.playing && !r.startedAt.IsZero() {
		pos += r.clock.Now().Sub(r.startedAt).Seconds()
	}
	return clampPosition(pos, r.current.Duration)
}

func clampPosition(pos, duration float64) float64 {
	if pos < 0 {
		return 0
	}
	if duration > 0 && pos > duration {
		return duration
	}
	return pos
}

func (r *Room) Current() *domain.Track { return r.current.Clone() }

func (r *Room) Playing() bool { return r.playing }

// StartPlayback loads t at position 0 and starts the clock.
func (r *Room) StartPlayback(t *domain.Track) {
	now := r.clock.Now()
	r.current = t
	r.playing = true
	r.accumulated = 0
	r.startedAt = now
	r.pausedAt = time.Time{}
	clear(r.skipVotes)
	r.lastCommand = now
	r.armAutoNext()
}

// PlayNext promotes the queue head. It returns false and leaves the timeline
// untouched when the queue is empty; see Advance for the exhaustion policy.
func (r *Room) PlayNext() bool {
	if len(r.queue) == 0 {
		return false
	}
	r.cancelAutoNext()
	r.pushHistory(r.current)
	next := r.queue[0]
	r.queue = append(r.queue[:0:0], r.queue[1:]...)
	r.StartPlayback(next)
	return true
}

func (r *Room) Advance(policy ExhaustPolicy, cause Cause) Transition {
	prev := r.current
	if r.PlayNext() {
		return Transition{Previous: prev, Current: r.current, Advanced: true, Cause: cause}
	}
	if policy == ClearCurrent && prev != nil {
		r.EndPlayback()
		return Transition{Previous: prev, Ended: true, Cause: cause}
	}
	return Transition{Previous: prev, Current: prev, Cause: cause}
}

// EndPlayback retires the current track and leaves the room empty.
func (r *Room) EndPlayback() {
	now := r.clock.Now()
	r.cancelAutoNext()
	r.pushHistory(r.current)
	r.current = nil
	r.playing = false
	r.accumulated = 0
	r.startedAt = time.Time{}
	r.pausedAt = now
	clear(r.skipVotes)
	r.lastCommand = now
}

// PlayPrevious restores the most recent history entry. The current track
// goes back to the head of the queue.
func (r *Room) PlayPrevious() bool {
	if len(r.history) == 0 {
		return false
	}
	prev := r.history[0]
	r.history = append(r.history[:0:0], r.history[1:]...)
	if r.current != nil {
		r.queue = append([]*domain.Track{r.current}, r.queue...)
	}
	r.StartPlayback(prev)
	return true
}

// PlayFromQueue jumps to a queued track, removing it from the queue.
func (r *Room) PlayFromQueue(trackID string) bool {
	_, idx, ok := lo.FindIndexOf(r.queue, func(t *domain.Track) bool { return t.ID == trackID })
	if !ok {
		return false
	}
	t := r.queue[idx]
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	r.cancelAutoNext()
	r.pushHistory(r.current)
	r.StartPlayback(t)
	return true
}

// Pause freezes the timeline. A nil position means "where the clock says".
func (r *Room) Pause(position *float64) error {
	if r.current == nil {
		return domain.ErrNoCurrentTrack
	}
	if !r.playing {
		return domain.ErrNotPlaying
	}
	pos := r.Position()
	if position != nil {
		pos = clampPosition(*position, r.current.Duration)
	}
	now := r.clock.Now()
	r.cancelAutoNext()
	r.accumulated = pos
	r.playing = false
	r.pausedAt = now
	r.lastCommand = now
	return nil
}

// Resume restarts the clock from the frozen position and re-arms auto-next.
func (r *Room) Resume() error {
	if r.current == nil {
		return domain.ErrNoCurrentTrack
	}
	if r.playing {
		return domain.ErrAlreadyPlaying
	}
	now := r.clock.Now()
	r.startedAt = now
	r.playing = true
	r.lastCommand = now
	r.armAutoNext()
	return nil
}

// Toggle flips the transport state and reports whether the room is now playing.
func (r *Room) Toggle() (bool, error) {
	if r.current == nil {
		return false, domain.ErrNoCurrentTrack
	}
	if r.playing {
		return false, r.Pause(nil)
	}
	return true, r.Resume()
}

func (r *Room) Seek(position float64) error {
	if r.current == nil {
		return domain.ErrNoCurrentTrack
	}
	if position < 0 || (r.current.Duration > 0 && position > r.current.Duration) {
		return domain.ErrInvalidPosition
	}
	now := r.clock.Now()
	r.accumulated = position
	r.lastCommand = now
	if r.playing {
		r.startedAt = now
		r.armAutoNext()
	}
	return nil
}

// --- auto-next timer ---

func (r *Room) armAutoNext() {
	r.cancelAutoNext()
	if r.current == nil || !r.playing {
		return
	}
	if r.current.Duration <= 0 {
		r.log.Warn("auto-next not armed: unknown duration", slog.String("track_id", r.current.ID))
		return
	}

	remaining := r.current.Duration - r.Position()
	if remaining < 0 {
		remaining = 0
	}
	delay := time.Duration(remaining*float64(time.Second)) + r.opts.AutoNextBuffer
	gen := r.timerGen
	r.autoNextAt = r.clock.Now().Add(delay)
	r.autoNext = r.clock.AfterFunc(delay, func() { r.fireAutoNext(gen) })

	r.log.Debug("auto-next armed",
		slog.String("track_id", r.current.ID),
		slog.Duration("in", delay))
}

func (r *Room) cancelAutoNext() {
	r.timerGen++
	if r.autoNext != nil {
		r.autoNext.Stop()
		r.autoNext = nil
	}
	r.autoNextAt = time.Time{}
}

func (r *Room) fireAutoNext(gen uint64) {
	_ = r.Do(func(r *Room) {
		if gen != r.timerGen {
			return
		}
		r.autoNext = nil
		r.autoNextAt = time.Time{}

		t := r.Advance(ClearCurrent, CauseAuto)
		if r.opts.OnAutoAdvance != nil && (t.Advanced || t.Ended) {
			r.opts.OnAutoAdvance(r, t)
		}
	})
}

// AutoNextAt reports when the armed timer fires; zero when disarmed.
func (r *Room) AutoNextAt() time.Time { return r.autoNextAt }

// --- skip votes ---

type SkipOutcome string

const (
	SkipVoteRecorded   SkipOutcome = "vote-recorded"
	SkipSkipped        SkipOutcome = "skipped"
	SkipNoMoreSongs    SkipOutcome = "no-more-songs"
	SkipAlreadyVoted   SkipOutcome = "already-voted"
	SkipNothingPlaying SkipOutcome = "nothing-playing"
)

type SkipResult struct {
	Outcome      SkipOutcome
	CurrentVotes int
	VotesNeeded  int
	Transition   Transition
}

func (s SkipResult) Success() bool {
	return s.Outcome == SkipVoteRecorded || s.Outcome == SkipSkipped
}

// VotesNeeded is a simple majority of the participants, at least one.
func (r *Room) VotesNeeded() int {
	n := len(r.participants)
	if n <= 1 {
		return 1
	}
	return (n + 1) / 2
}

func (r *Room) SkipVotes() int { return len(r.skipVotes) }

func (r *Room) AddSkipVote(userID string) SkipResult {
	if r.current == nil {
		return SkipResult{Outcome: SkipNothingPlaying}
	}
	needed := r.VotesNeeded()
	if _, ok := r.skipVotes[userID]; ok {
		return SkipResult{Outcome: SkipAlreadyVoted, CurrentVotes: len(r.skipVotes), VotesNeeded: needed}
	}
	r.skipVotes[userID] = struct{}{}
	votes := len(r.skipVotes)

	if votes < needed {
		return SkipResult{Outcome: SkipVoteRecorded, CurrentVotes: votes, VotesNeeded: needed}
	}

	t := r.Advance(KeepCurrent, CauseSkip)
	if !t.Advanced {
		return SkipResult{Outcome: SkipNoMoreSongs, CurrentVotes: votes, VotesNeeded: needed, Transition: t}
	}
	return SkipResult{Outcome: SkipSkipped, VotesNeeded: needed, Transition: t}
}

// RecheckSkipVotes skips the current track when votes already cast meet a
// threshold that dropped because someone left.
func (r *Room) RecheckSkipVotes() SkipResult {
	if r.current == nil {
		return SkipResult{Outcome: SkipNothingPlaying}
	}
	needed := r.VotesNeeded()
	votes := len(r.skipVotes)
	if votes == 0 || votes < needed {
		return SkipResult{Outcome: SkipVoteRecorded, CurrentVotes: votes, VotesNeeded: needed}
	}
	t := r.Advance(KeepCurrent, CauseSkip)
	if !t.Advanced {
		return SkipResult{Outcome: SkipNoMoreSongs, CurrentVotes: votes, VotesNeeded: needed, Transition: t}
	}
	return SkipResult{Outcome: SkipSkipped, VotesNeeded: needed, Transition: t}
}

// --- queue ---

// AddToQueue appends t and, when nothing is loaded, starts the queue head.
// It reports whether playback was started.
func (r *Room) AddToQueue(t *domain.Track) bool {
	if t.AddedAt.IsZero() {
		t.AddedAt = r.clock.Now()
	}
	r.queue = append(r.queue, t)
	if r.current != nil {
		return false
	}
	return r.PlayNext()
}

func (r *Room) Queue() []*domain.Track { return domain.CloneTracks(r.queue) }

func (r *Room) QueueLen() int { return len(r.queue) }

func (r *Room) QueueContains(trackID string) bool {
	return lo.ContainsBy(r.queue, func(t *domain.Track) bool { return t.ID == trackID })
}

func (r *Room) QueuedBy(userID string) int {
	return lo.CountBy(r.queue, func(t *domain.Track) bool { return t.AddedBy == userID })
}

func (r *Room) RemoveSong(trackID string) bool {
	_, idx, ok := lo.FindIndexOf(r.queue, func(t *domain.Track) bool { return t.ID == trackID })
	if !ok {
		return false
	}
	r.queue = append(r.queue[:idx], r.queue[idx+1:]...)
	return true
}

func (r *Room) ClearQueue() int {
	n := len(r.queue)
	r.queue = nil
	return n
}

func (r *Room) ReorderQueue(from, to int) bool {
	n := len(r.queue)
	if from < 0 || from >= n || to < 0 || to >= n {
		return false
	}
	if from == to {
		return true
	}
	t := r.queue[from]
	r.queue = append(r.queue[:from], r.queue[from+1:]...)
	r.queue = append(r.queue[:to], append([]*domain.Track{t}, r.queue[to:]...)...)
	return true
}

func (r *Room) ShuffleQueue() {
	rand.Shuffle(len(r.queue), func(i, j int) {
		r.queue[i], r.queue[j] = r.queue[j], r.queue[i]
	})
}

func (r *Room) History() []*domain.Track { return domain.CloneTracks(r.history) }

func (r *Room) pushHistory(t *domain.Track) {
	if t == nil {
		return
	}
	r.history = append([]*domain.Track{t}, r.history...)
	if len(r.history) > r.opts.HistoryLimit {
		r.history = r.history[:r.opts.HistoryLimit]
	}
}

// --- track-ended reports ---

// AcceptEndedReport returns false for a repeat report of the same track
// inside the dedup window.
func (r *Room) AcceptEndedReport(songID string) bool {
	now := r.clock.Now()
	if r.lastEnded.songID == songID && now.Sub(r.lastEnded.at) < r.opts.TrackEndedWindow {
		return false
	}
	r.lastEnded = endedReport{songID: songID, at: now}
	return true
}

// --- snapshot ---

type Snapshot struct {
	ID           string
	Participants []domain.Participant
	Queue        []*domain.Track
	Current      *domain.Track
	Playing      bool
	Position     float64
	StartedAt    time.Time
	PausedAt     time.Time
	Accumulated  float64
	History      []*domain.Track
	SkipVotes    int
	VotesNeeded  int
	LastCommand  time.Time
	CreatedAt    time.Time
	ServerTime   time.Time
}

func (r *Room) Snapshot() Snapshot {
	return Snapshot{
		ID:           r.id,
		Participants: r.Participants(),
		Queue:        r.Queue(),
		Current:      r.Current(),
		Playing:      r.playing,
		Position:     r.Position(),
		StartedAt:    r.startedAt,
		PausedAt:     r.pausedAt,
		Accumulated:  r.accumulated,
		History:      r.History(),
		SkipVotes:    len(r.skipVotes),
		VotesNeeded:  r.VotesNeeded(),
		LastCommand:  r.lastCommand,
		CreatedAt:    r.createdAt,
		ServerTime:   r.clock.Now(),
	}
}
