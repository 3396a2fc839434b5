package transport

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/senutpal/synod/internal/paxos"
)

func TestCodecPreservesEveryKind(t *testing.T) {
	b := paxos.Ballot{Round: 2, ProposerID: "node-1"}
	messages := []paxos.Message{
		paxos.Prepare{Ballot: b},
		paxos.Promise{Ballot: b},
		paxos.Promise{Ballot: b, AcceptedBallot: paxos.Ballot{Round: 1, ProposerID: "node-0"}, AcceptedValue: []byte{0, 'y', 255}},
		paxos.Accept{Ballot: b, Value: []byte("x")},
		paxos.Ack{Ballot: b},
		paxos.Reject{Seen: b},
		paxos.Learn{Value: []byte("x")},
	}
	for _, msg := range messages {
		data, err := Encode(msg)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", msg, err)
		}
		again, _ := Encode(msg)
		if !bytes.Equal(data, again) {
			t.Errorf("%s encodes differently on a second pass", msg.Kind())
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%s): %v", data, err)
		}
		if !reflect.DeepEqual(got, msg) {
			t.Errorf("decoded %#v, want %#v", got, msg)
		}
	}
}

func TestCodecNil(t *testing.T) {
	data, err := Encode(nil)
	if err != nil || data != nil {
		t.Fatalf("Encode(nil) = %v, %v", data, err)
	}
	msg, err := Decode(nil)
	if err != nil || msg != nil {
		t.Fatalf("Decode(nil) = %v, %v", msg, err)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	for _, data := range []string{`{`, `{"kind":99,"body":{}}`, `{"kind":1,"body":"nope"}`} {
		if _, err := Decode([]byte(data)); err == nil {
			t.Errorf("Decode(%s) succeeded", data)
		}
	}
}
