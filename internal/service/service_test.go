package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/music-room/internal/audio"
	"github.com/cwrk-planet/music-room/internal/domain"
	"github.com/cwrk-planet/music-room/internal/room"
	"github.com/cwrk-planet/music-room/pkg/protocol"
)

type sent struct {
	room string
	user string
	ev   protocol.Event
}

type recorder struct {
	mu     sync.Mutex
	events []sent
}

func (r *recorder) ToRoom(roomID string, ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{room: roomID, ev: ev})
}

func (r *recorder) ToUser(userID string, ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{user: userID, ev: ev})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) ofType(typ protocol.EventType) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.events {
		if s.ev.Type() == typ {
			out = append(out, s)
		}
	}
	return out
}

type resolverFunc func(ctx context.Context, id string) (audio.Stream, error)

func (f resolverFunc) Resolve(ctx context.Context, id string) (audio.Stream, error) { return f(ctx, id) }

func okResolver(_ context.Context, id string) (audio.Stream, error) {
	return audio.Stream{URL: "https://cdn.test/" + id, Duration: 180, Title: "resolved " + id}, nil
}

type fixture struct {
	clock    *clock.Mock
	registry *room.Registry
	rec      *recorder
	members  *MemberService
	playback *PlaybackService
	queue    *QueueService
	rooms    *RoomService
}

func newFixture(t *testing.T, resolver StreamResolver) *fixture {
	t.Helper()
	mock := clock.NewMock()
	reg := room.NewRegistry(room.Options{Clock: mock})
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		clock:    mock,
		registry: reg,
		rec:      rec,
		members:  NewMemberService(reg, rec, nil),
		playback: NewPlaybackService(reg, rec, nil),
		rooms:    NewRoomService(reg),
	}
	if resolver == nil {
		resolver = resolverFunc(okResolver)
	}
	f.queue = NewQueueService(ctx, reg, rec, resolver, nil, QueueConfig{
		UserLimit:   3,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Clock:       clock.New(),
	})
	t.Cleanup(func() {
		cancel()
		f.queue.Wait()
		reg.Close()
	})
	return f
}

func (f *fixture) join(t *testing.T, roomID string, users ...string) {
	t.Helper()
	for _, u := range users {
		_, err := f.members.JoinRoom(context.Background(), roomID, domain.Identity{ID: u, Name: "name-" + u})
		require.NoError(t, err)
	}
}

// add queues a song and waits for the background resolution to land.
func (f *fixture) add(t *testing.T, roomID, userID, songID string, dur float64) {
	t.Helper()
	_, err := f.queue.AddSong(context.Background(), roomID, domain.Identity{ID: userID}, domain.Track{ID: songID, Title: songID, Duration: dur})
	require.NoError(t, err)
	f.queue.Wait()
}

func (f *fixture) state(t *testing.T, roomID string) protocol.RoomState {
	t.Helper()
	r, err := f.registry.Get(roomID)
	require.NoError(t, err)
	var st protocol.RoomState
	require.NoError(t, r.Do(func(r *room.Room) { st = toRoomState(r.Snapshot()) }))
	return st
}

func TestJoinRoom_CreatesRoomAndGreetsUser(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.members.JoinRoom(context.Background(), "lobby", domain.Identity{ID: "u1", Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "lobby", st.ID)
	require.Len(t, st.Participants, 1)
	assert.Equal(t, "Ann", st.Participants[0].Name)

	joined := f.rec.ofType(protocol.TypeRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "u1", joined[0].user)
	assert.Len(t, f.rec.ofType(protocol.TypeParticipantsUpdate), 1)
	assert.Equal(t, "lobby", f.members.RoomOf("u1"))
}

func TestJoinRoom_RejectsBlankID(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.members.JoinRoom(context.Background(), "  ", domain.Identity{ID: "u1"})
	require.ErrorIs(t, err, domain.ErrInvalidRoomID)
}

func TestJoinRoom_SwitchingRoomsLeavesThePreviousOne(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "a", "u1")
	f.join(t, "b", "u1")

	_, err := f.rooms.GetRoom(context.Background(), "a", "u1")
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, "b", f.members.RoomOf("u1"))
}

func TestLeaveRoom_LastParticipantClosesRoom(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2")

	require.NoError(t, f.members.LeaveRoom(context.Background(), "r", "u1"))
	assert.Equal(t, 1, f.registry.Len())
	require.ErrorIs(t, f.members.LeaveRoom(context.Background(), "r", "u1"), domain.ErrNotParticipant)

	require.NoError(t, f.members.LeaveRoom(context.Background(), "r", "u2"))
	assert.Zero(t, f.registry.Len())
	assert.Empty(t, f.rooms.ListRooms(context.Background()))
}

func TestAddSong_StartsPlaybackAndNotifiesRequesterOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2")
	f.rec.reset()

	acc, err := f.queue.AddSong(context.Background(), "r", domain.Identity{ID: "u1", Name: "Ann"}, domain.Track{ID: "s1", Duration: 200})
	require.NoError(t, err)
	assert.Equal(t, "processing", acc.Status)
	f.queue.Wait()

	progress := f.rec.ofType(protocol.TypeQueueProcessing)
	require.Len(t, progress, 2)
	for _, p := range progress {
		assert.Equal(t, "u1", p.user)
		assert.Empty(t, p.room)
	}
	assert.Equal(t, protocol.StatusFetching, progress[0].ev.(*protocol.QueueProcessing).Status)
	assert.Equal(t, protocol.StatusSuccess, progress[1].ev.(*protocol.QueueProcessing).Status)

	changes := f.rec.ofType(protocol.TypeTrackChange)
	require.Len(t, changes, 1)
	tc := changes[0].ev.(*protocol.TrackChange)
	assert.Empty(t, tc.PreviousID)
	assert.Equal(t, "s1", tc.NewID)

	st := f.state(t, "r")
	require.NotNil(t, st.CurrentSong)
	assert.Equal(t, "s1", st.CurrentSong.ID)
	assert.Equal(t, "https://cdn.test/s1", st.CurrentSong.StreamURL)
	assert.Equal(t, "Ann", st.CurrentSong.AddedByName)
	assert.True(t, st.IsPlaying)
	assert.Empty(t, st.Queue)
}

func TestAddSong_SecondSongIsQueued(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 200)
	f.add(t, "r", "u1", "s2", 200)

	st := f.state(t, "r")
	assert.Equal(t, "s1", st.CurrentSong.ID)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, "s2", st.Queue[0].ID)
	assert.Equal(t, 2, st.Participants[0].SongsAdded)
}

func TestAddSong_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, resolverFunc(func(ctx context.Context, id string) (audio.Stream, error) {
		if calls.Add(1) == 1 {
			return audio.Stream{}, audio.ErrResolveTimeout
		}
		return okResolver(ctx, id)
	}))
	f.join(t, "r", "u1")
	f.rec.reset()
	f.add(t, "r", "u1", "s1", 100)

	var statuses []protocol.ProcessingStatus
	for _, p := range f.rec.ofType(protocol.TypeQueueProcessing) {
		statuses = append(statuses, p.ev.(*protocol.QueueProcessing).Status)
	}
	assert.Equal(t, []protocol.ProcessingStatus{protocol.StatusFetching, protocol.StatusRetrying, protocol.StatusSuccess}, statuses)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAddSong_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, resolverFunc(func(context.Context, string) (audio.Stream, error) {
		calls.Add(1)
		return audio.Stream{}, errors.New("upstream 503")
	}))
	f.join(t, "r", "u1")
	f.rec.reset()
	f.add(t, "r", "u1", "s1", 100)

	progress := f.rec.ofType(protocol.TypeQueueProcessing)
	require.NotEmpty(t, progress)
	last := progress[len(progress)-1].ev.(*protocol.QueueProcessing)
	assert.Equal(t, protocol.StatusError, last.Status)
	assert.Contains(t, last.Message, "upstream 503")
	assert.EqualValues(t, 3, calls.Load())
	assert.Nil(t, f.state(t, "r").CurrentSong)
}

func TestAddSong_MissingBinaryIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	f := newFixture(t, resolverFunc(func(context.Context, string) (audio.Stream, error) {
		calls.Add(1)
		return audio.Stream{}, audio.ErrResolverBinary
	}))
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	assert.EqualValues(t, 1, calls.Load())
}

func TestAddSong_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	ctx := context.Background()

	_, err := f.queue.AddSong(ctx, "r", domain.Identity{ID: "u1"}, domain.Track{})
	require.ErrorIs(t, err, domain.ErrInvalidTrack)

	_, err = f.queue.AddSong(ctx, "r", domain.Identity{ID: "stranger"}, domain.Track{ID: "x"})
	require.ErrorIs(t, err, domain.ErrNotParticipant)

	_, err = f.queue.AddSong(ctx, "nope", domain.Identity{ID: "u1"}, domain.Track{ID: "x"})
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	f.add(t, "r", "u1", "playing", 100)
	f.add(t, "r", "u1", "q1", 100)
	_, err = f.queue.AddSong(ctx, "r", domain.Identity{ID: "u1"}, domain.Track{ID: "q1"})
	require.ErrorIs(t, err, domain.ErrDuplicateTrack)

	// the current song is not a duplicate
	f.add(t, "r", "u1", "playing", 100)

	f.add(t, "r", "u1", "q2", 100)
	_, err = f.queue.AddSong(ctx, "r", domain.Identity{ID: "u1"}, domain.Track{ID: "q3"})
	require.ErrorIs(t, err, domain.ErrQueueLimit)
}

func TestAddSong_CapCountsAddsInFlight(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, resolverFunc(func(ctx context.Context, id string) (audio.Stream, error) {
		<-gate
		return okResolver(ctx, id)
	}))
	f.join(t, "r", "u1", "u2")
	ctx := context.Background()

	var accepted, limited int
	for i := 0; i < 8; i++ {
		_, err := f.queue.AddSong(ctx, "r", domain.Identity{ID: "u1"}, domain.Track{ID: fmt.Sprintf("s%d", i), Duration: 100})
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrQueueLimit):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 5, limited)

	close(gate)
	f.queue.Wait()

	st := f.state(t, "r")
	require.NotNil(t, st.CurrentSong)
	assert.Len(t, st.Queue, 2)

	// slots free up once resolutions finish
	f.add(t, "r", "u1", "late", 100)
	_, err := f.queue.AddSong(ctx, "r", domain.Identity{ID: "u1"}, domain.Track{ID: "one-too-many"})
	require.ErrorIs(t, err, domain.ErrQueueLimit)

	// the cap is per user
	f.add(t, "r", "u2", "other", 100)
	assert.Len(t, f.state(t, "r").Queue, 4)
}

func TestAddSong_RoomGoneBeforeCommit(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, resolverFunc(func(ctx context.Context, id string) (audio.Stream, error) {
		<-release
		return okResolver(ctx, id)
	}))
	f.join(t, "r", "u1")
	_, err := f.queue.AddSong(context.Background(), "r", domain.Identity{ID: "u1"}, domain.Track{ID: "s1"})
	require.NoError(t, err)

	require.NoError(t, f.members.LeaveRoom(context.Background(), "r", "u1"))
	close(release)
	f.queue.Wait()

	progress := f.rec.ofType(protocol.TypeQueueProcessing)
	last := progress[len(progress)-1].ev.(*protocol.QueueProcessing)
	assert.Equal(t, protocol.StatusError, last.Status)
	assert.Equal(t, "Room no longer exists", last.Message)
}

func TestQueueEdits(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2")
	f.add(t, "r", "u1", "now", 100)
	f.add(t, "r", "u1", "a", 100)
	f.add(t, "r", "u2", "b", 100)
	f.add(t, "r", "u2", "c", 100)
	ctx := context.Background()

	require.NoError(t, f.queue.Reorder(ctx, "r", "u1", 2, 0))
	q, err := f.queue.Queue(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(q))

	require.ErrorIs(t, f.queue.Reorder(ctx, "r", "u1", 0, 3), domain.ErrInvalidIndex)
	require.ErrorIs(t, f.queue.RemoveSong(ctx, "r", "u1", "zzz"), domain.ErrTrackNotFound)
	require.NoError(t, f.queue.RemoveSong(ctx, "r", "u1", "a"))

	require.NoError(t, f.queue.Shuffle(ctx, "r", "u2"))
	q, _ = f.queue.Queue(ctx, "r", "u1")
	assert.ElementsMatch(t, []string{"b", "c"}, ids(q))

	require.NoError(t, f.queue.ClearQueue(ctx, "r", "u2"))
	q, _ = f.queue.Queue(ctx, "r", "u1")
	assert.Empty(t, q)
	assert.Equal(t, "now", f.state(t, "r").CurrentSong.ID)
}

func ids(ts []protocol.Track) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestNext_ExhaustedQueueEndsPlayback(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)
	ctx := context.Background()

	sync, err := f.playback.Next(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, protocol.ActionNext, sync.Action)
	assert.Equal(t, "s2", sync.CurrentSong.ID)

	f.rec.reset()
	sync, err = f.playback.Next(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Nil(t, sync.CurrentSong)
	assert.False(t, sync.IsPlaying)
	assert.Len(t, f.rec.ofType(protocol.TypePlaybackEnded), 1)

	st := f.state(t, "r")
	assert.Nil(t, st.CurrentSong)
	require.Len(t, st.PlaybackHistory, 2)
	assert.Equal(t, "s2", st.PlaybackHistory[0].ID)

	_, err = f.playback.Next(ctx, "r", "u1")
	require.ErrorIs(t, err, domain.ErrNoCurrentTrack)
}

func TestPlayPauseSeek(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	ctx := context.Background()

	f.clock.Add(10 * time.Second)
	pos := 12.0
	sync, err := f.playback.Pause(ctx, "r", "u1", &pos)
	require.NoError(t, err)
	assert.False(t, sync.IsPlaying)
	assert.InDelta(t, 12.0, sync.CurrentPosition, 0.001)

	// pausing twice is harmless
	_, err = f.playback.Pause(ctx, "r", "u1", nil)
	require.NoError(t, err)

	sync, err = f.playback.Seek(ctx, "r", "u1", 40)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, sync.CurrentPosition, 0.001)
	assert.Equal(t, protocol.ActionSeek, sync.Action)

	sync, err = f.playback.Toggle(ctx, "r", "u1")
	require.NoError(t, err)
	assert.True(t, sync.IsPlaying)

	_, err = f.playback.Seek(ctx, "r", "u1", -1)
	require.ErrorIs(t, err, domain.ErrInvalidPosition)

	_, err = f.playback.Play(ctx, "r", "stranger")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestPrevious_And_PlaySong(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	ctx := context.Background()

	_, err := f.playback.Previous(ctx, "r", "u1")
	require.ErrorIs(t, err, domain.ErrNoPreviousTrack)

	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)
	f.add(t, "r", "u1", "s3", 100)

	sync, err := f.playback.PlaySong(ctx, "r", "u1", "s3")
	require.NoError(t, err)
	assert.Equal(t, "s3", sync.CurrentSong.ID)

	sync, err = f.playback.Previous(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sync.CurrentSong.ID)

	_, err = f.playback.PlaySong(ctx, "r", "u1", "missing")
	require.ErrorIs(t, err, domain.ErrTrackNotFound)
}

func TestSkip_MajorityVote(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2", "u3")
	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)
	ctx := context.Background()

	res, err := f.playback.Skip(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, room.SkipVoteRecorded, res.Outcome)
	assert.Equal(t, 1, res.CurrentVotes)
	assert.Equal(t, 2, res.VotesNeeded)

	res, err = f.playback.Skip(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, room.SkipAlreadyVoted, res.Outcome)
	assert.False(t, res.Success)

	res, err = f.playback.Skip(ctx, "r", "u2")
	require.NoError(t, err)
	assert.Equal(t, room.SkipSkipped, res.Outcome)
	require.NotNil(t, res.Sync)
	assert.Equal(t, "s2", res.Sync.CurrentSong.ID)

	st := f.state(t, "r")
	assert.Zero(t, st.SkipVotes)
}

func TestLeaveRoom_LowerThresholdCompletesSkip(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2", "u3", "u4", "u5")
	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2"} {
		res, err := f.playback.Skip(ctx, "r", u)
		require.NoError(t, err)
		assert.Equal(t, room.SkipVoteRecorded, res.Outcome)
	}
	f.rec.reset()

	require.NoError(t, f.members.LeaveRoom(ctx, "r", "u5"))
	assert.Equal(t, "s2", f.state(t, "r").CurrentSong.ID)

	changes := f.rec.ofType(protocol.TypeTrackChange)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].ev.(*protocol.TrackChange).Skipped)
}

func TestSkip_NothingPlaying(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	_, err := f.playback.Skip(context.Background(), "r", "u1")
	require.ErrorIs(t, err, domain.ErrNoCurrentTrack)
}

func TestTrackEnded_DuplicateReportsAdvanceOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1", "u2")
	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)
	f.rec.reset()

	ev := &protocol.ClientEvent{Kind: protocol.ClientEventTrackEnded, SongID: "s1", RoomID: "r"}
	first := f.playback.HandleTrackEnded(context.Background(), "u1", ev)
	second := f.playback.HandleTrackEnded(context.Background(), "u2", ev)

	assert.True(t, first.Ack.Processed)
	assert.False(t, second.Ack.Processed)
	assert.Equal(t, "duplicate", second.Ack.Reason)

	changes := f.rec.ofType(protocol.TypeTrackChange)
	require.Len(t, changes, 1)
	tc := changes[0].ev.(*protocol.TrackChange)
	assert.True(t, tc.ClientReported)
	assert.Equal(t, "s2", tc.NewID)
}

func TestTrackEnded_StaleReportGetsCorrection(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)

	res := f.playback.HandleTrackEnded(context.Background(), "u1",
		&protocol.ClientEvent{Kind: protocol.ClientEventTrackEnded, SongID: "old", RoomID: "r"})
	assert.False(t, res.Ack.Processed)
	assert.Equal(t, "song-mismatch", res.Ack.Reason)
	require.NotNil(t, res.Correction)
	assert.Equal(t, "s1", res.Correction.CurrentSong.ID)

	res = f.playback.HandleTrackEnded(context.Background(), "u1",
		&protocol.ClientEvent{Kind: protocol.ClientEventTrackEnded, SongID: "s1", RoomID: "missing"})
	assert.Equal(t, "room-not-found", res.Ack.Reason)
}

func TestTrackEnded_LastSongEndsPlayback(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	f.rec.reset()

	res := f.playback.HandleTrackEnded(context.Background(), "u1",
		&protocol.ClientEvent{Kind: protocol.ClientEventTrackEnded, SongID: "s1", RoomID: "r"})
	assert.True(t, res.Ack.Processed)
	assert.Len(t, f.rec.ofType(protocol.TypePlaybackEnded), 1)
	assert.Nil(t, f.state(t, "r").CurrentSong)
}

func TestTrackEnded_StalledRoomAdvances(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	f.add(t, "r", "u1", "s2", 100)

	r, err := f.registry.Get("r")
	require.NoError(t, err)
	require.NoError(t, r.Do(func(r *room.Room) { r.EndPlayback() }))
	st := f.state(t, "r")
	require.Nil(t, st.CurrentSong)
	require.Len(t, st.Queue, 1)
	f.rec.reset()

	res := f.playback.HandleTrackEnded(context.Background(), "u1",
		&protocol.ClientEvent{Kind: protocol.ClientEventTrackEnded, SongID: "s1", RoomID: "r"})
	assert.True(t, res.Ack.Processed)
	assert.Nil(t, res.Correction)

	st = f.state(t, "r")
	require.NotNil(t, st.CurrentSong)
	assert.Equal(t, "s2", st.CurrentSong.ID)
	assert.True(t, st.IsPlaying)
	assert.Empty(t, st.Queue)
	assert.NotEmpty(t, f.rec.ofType(protocol.TypePlaybackSync))
}

func TestAutoNext_TimerAdvancesAndBroadcasts(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 10)
	f.add(t, "r", "u1", "s2", 10)
	f.rec.reset()

	f.clock.Add(11 * time.Second)
	require.Eventually(t, func() bool {
		return len(f.rec.ofType(protocol.TypeTrackChange)) == 1
	}, time.Second, 5*time.Millisecond)

	tc := f.rec.ofType(protocol.TypeTrackChange)[0].ev.(*protocol.TrackChange)
	assert.True(t, tc.Automatic)
	assert.Equal(t, "s1", tc.PreviousID)
	assert.Equal(t, "s2", tc.NewID)
}

func TestSync_EchoesClientTime(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)

	sync, err := f.playback.Sync(context.Background(), "r", "u1", 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, sync.ClientTime)
	assert.Equal(t, sync.ServerTime-1000, sync.TimeOffset)
	assert.NotEmpty(t, sync.SyncID)

	_, err = f.playback.Sync(context.Background(), "gone", "u1", 0)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestReads_RequireMembership(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "r", "u1")
	f.add(t, "r", "u1", "s1", 100)
	ctx := context.Background()

	_, err := f.playback.Sync(ctx, "r", "stranger", 0)
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	_, err = f.rooms.GetRoom(ctx, "r", "stranger")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	_, err = f.queue.Queue(ctx, "r", "stranger")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
	_, err = f.members.ListParticipants(ctx, "r", "stranger")
	require.ErrorIs(t, err, domain.ErrNotParticipant)

	st, err := f.rooms.GetRoom(ctx, "r", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", st.CurrentSong.ID)
}

func TestListRooms(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "b", "u1")
	f.join(t, "a", "u2")
	f.add(t, "a", "u2", "s1", 100)

	list := f.rooms.ListRooms(context.Background())
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.True(t, list[0].IsPlaying)
	assert.Equal(t, "s1", list[0].CurrentSong.ID)
	assert.Equal(t, 1, list[1].Participants)
}
