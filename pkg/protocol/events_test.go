package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_WireShape(t *testing.T) {
	env, err := Encode(&SkipVoteUpdate{RoomID: "r", CurrentVotes: 1, VotesNeeded: 2})
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"skipVoteUpdate","payload":{"roomId":"r","currentVotes":1,"votesNeeded":2}}`,
		string(b))
}

func TestDecode_PlaybackSync(t *testing.T) {
	raw := `{"type":"playbackSync","payload":{
		"roomId":"r","currentSong":{"id":"a","title":"A","duration":180},
		"isPlaying":true,"currentPosition":12.5,"startTimestamp":1000,
		"serverTime":1500,"action":"seek","syncId":"x"}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	ev, err := Decode(env)
	require.NoError(t, err)

	s, ok := ev.(*PlaybackSync)
	require.True(t, ok)
	assert.Equal(t, ActionSeek, s.Action)
	assert.Equal(t, "a", s.CurrentSong.ID)
	assert.InDelta(t, 12.5, s.CurrentPosition, 0.0001)
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]Envelope{
		"unknown type":         {Type: "bogus"},
		"bad json":             {Type: TypeQueueUpdate, Payload: json.RawMessage(`{"queue":7}`)},
		"sync without id":      {Type: TypePlaybackSync, Payload: json.RawMessage(`{"serverTime":1,"action":"none"}`)},
		"sync unknown action":  {Type: TypePlaybackSync, Payload: json.RawMessage(`{"serverTime":1,"action":"rewind","syncId":"x"}`)},
		"playing no song":      {Type: TypePlaybackSync, Payload: json.RawMessage(`{"serverTime":1,"action":"play","syncId":"x","isPlaying":true}`)},
		"negative position":    {Type: TypePlaybackSync, Payload: json.RawMessage(`{"serverTime":1,"action":"none","syncId":"x","currentPosition":-1}`)},
		"change without ids":   {Type: TypeTrackChange, Payload: json.RawMessage(`{"roomId":"r"}`)},
		"votes out of range":   {Type: TypeSkipVoteUpdate, Payload: json.RawMessage(`{"votesNeeded":0}`)},
		"unknown status":       {Type: TypeQueueProcessing, Payload: json.RawMessage(`{"songId":"a","status":"done"}`)},
		"sync request no room": {Type: TypeRequestSync, Payload: json.RawMessage(`{"clientTime":1}`)},
		"unsupported client":   {Type: TypeClientEvent, Payload: json.RawMessage(`{"type":"paused","songId":"a","roomId":"r"}`)},
		"ended without song":   {Type: TypeClientEvent, Payload: json.RawMessage(`{"type":"trackEnded","roomId":"r"}`)},
		"joined without room":  {Type: TypeRoomJoined, Payload: json.RawMessage(`{"room":{}}`)},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(env)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_ClientEvents(t *testing.T) {
	ev, err := Decode(Envelope{Type: TypeHeartbeat})
	require.NoError(t, err)
	assert.IsType(t, &Heartbeat{}, ev)

	ev, err = Decode(Envelope{
		Type:    TypeClientEvent,
		Payload: json.RawMessage(`{"type":"trackEnded","songId":"a","roomId":"r","timestamp":5}`),
	})
	require.NoError(t, err)
	ce := ev.(*ClientEvent)
	assert.Equal(t, ClientEventTrackEnded, ce.Kind)
	assert.EqualValues(t, 5, ce.Timestamp)
}

func TestMillis(t *testing.T) {
	assert.Zero(t, Millis(time.Time{}))
	assert.True(t, FromMillis(0).IsZero())

	at := time.UnixMilli(1_700_000_000_123)
	assert.Equal(t, int64(1_700_000_000_123), Millis(at))
	assert.True(t, FromMillis(Millis(at)).Equal(at))
}
