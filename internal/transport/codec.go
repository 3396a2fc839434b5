package transport

import (
	"encoding/json"
	"fmt"

	"github.com/senutpal/synod/internal/paxos"
)

// envelope is the wire form of a message: its kind plus the JSON body.
type envelope struct {
	Kind paxos.Kind      `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Encode serializes msg. The output depends only on msg, so equal messages
// encode to equal bytes. A nil msg encodes to nil.
func Encode(msg paxos.Message) ([]byte, error) {
	if msg == nil {
		return nil, nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{Kind: msg.Kind(), Body: body})
}

// Decode is the inverse of Encode.
func Decode(data []byte) (paxos.Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Kind {
	case paxos.KindPrepare:
		return decodeBody[paxos.Prepare](env)
	case paxos.KindPromise:
		return decodeBody[paxos.Promise](env)
	case paxos.KindAccept:
		return decodeBody[paxos.Accept](env)
	case paxos.KindAck:
		return decodeBody[paxos.Ack](env)
	case paxos.KindReject:
		return decodeBody[paxos.Reject](env)
	case paxos.KindLearn:
		return decodeBody[paxos.Learn](env)
	}
	return nil, fmt.Errorf("decode: unknown message kind %d", env.Kind)
}

func decodeBody[M paxos.Message](env envelope) (paxos.Message, error) {
	var m M
	if err := json.Unmarshal(env.Body, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return m, nil
}

// copyMessage runs msg through the codec, the way a real network would.
func copyMessage(msg paxos.Message) (paxos.Message, error) {
	data, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
