package ws

import (
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/music-room/pkg/protocol"
)

var errConnClosed = errors.New("ws: connection closed")

func encodeFrame(ev protocol.Event) ([]byte, error) {
	env, err := protocol.Encode(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func decodeFrame(data []byte) (protocol.Event, error) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Join(protocol.ErrMalformed, err)
	}
	return protocol.Decode(env)
}
