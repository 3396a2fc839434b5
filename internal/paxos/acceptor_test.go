package paxos

import (
	"errors"
	"sync"
	"testing"
)

// memStore is a minimal Store for tests in this package.
type memStore struct {
	mu     sync.Mutex
	states map[NodeID]AcceptorState
	rounds map[NodeID]int64
	saves  int
	fail   error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[NodeID]AcceptorState), rounds: make(map[NodeID]int64)}
}

func (m *memStore) SaveAcceptorState(id NodeID, s AcceptorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.states[id] = s.clone()
	return nil
}

func (m *memStore) LoadAcceptorState(id NodeID) (AcceptorState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	return s.clone(), ok, nil
}

func (m *memStore) SaveRound(id NodeID, round int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.rounds[id] = round
	return nil
}

func (m *memStore) LoadRound(id NodeID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rounds[id], nil
}

func newTestAcceptor(t *testing.T, id NodeID, store Store) *Acceptor {
	t.Helper()
	a, err := NewAcceptor(id, store)
	if err != nil {
		t.Fatalf("NewAcceptor(%s): %v", id, err)
	}
	return a
}

func TestAcceptorPromisesHigherBallots(t *testing.T) {
	a := newTestAcceptor(t, "A1", newMemStore())

	reply, err := a.HandlePrepare(Prepare{Ballot: Ballot{1, "P1"}})
	if err != nil {
		t.Fatal(err)
	}
	p, ok := reply.(Promise)
	if !ok {
		t.Fatalf("reply = %#v, want Promise", reply)
	}
	if p.HasAccepted() || p.AcceptedValue != nil {
		t.Errorf("fresh acceptor reported an accepted value: %#v", p)
	}

	// Equal and lower ballots are refused, naming the promise.
	for _, b := range []Ballot{{1, "P1"}, {1, "P0"}, {0, "P9"}} {
		reply, _ := a.HandlePrepare(Prepare{Ballot: b})
		r, ok := reply.(Reject)
		if !ok || !r.Seen.Equal(Ballot{1, "P1"}) {
			t.Errorf("Prepare%s = %#v, want Reject{(1,P1)}", b, reply)
		}
	}
}

func TestAcceptorPromiseCarriesAcceptedValue(t *testing.T) {
	a := newTestAcceptor(t, "A1", newMemStore())
	if _, err := a.HandleAccept(Accept{Ballot: Ballot{1, "P0"}, Value: []byte("y")}); err != nil {
		t.Fatal(err)
	}
	reply, _ := a.HandlePrepare(Prepare{Ballot: Ballot{2, "P1"}})
	p, ok := reply.(Promise)
	if !ok {
		t.Fatalf("reply = %#v, want Promise", reply)
	}
	if !p.AcceptedBallot.Equal(Ballot{1, "P0"}) || string(p.AcceptedValue) != "y" {
		t.Errorf("promise = %#v, want accepted (1,P0) y", p)
	}
}

func TestAcceptorAcceptRules(t *testing.T) {
	a := newTestAcceptor(t, "A1", newMemStore())
	a.HandlePrepare(Prepare{Ballot: Ballot{2, "P1"}})

	reply, _ := a.HandleAccept(Accept{Ballot: Ballot{1, "P2"}, Value: []byte("old")})
	if r, ok := reply.(Reject); !ok || !r.Seen.Equal(Ballot{2, "P1"}) {
		t.Fatalf("stale Accept = %#v, want Reject{(2,P1)}", reply)
	}

	// Accept at exactly the promised ballot succeeds.
	reply, _ = a.HandleAccept(Accept{Ballot: Ballot{2, "P1"}, Value: []byte("x")})
	if ack, ok := reply.(Ack); !ok || !ack.Ballot.Equal(Ballot{2, "P1"}) {
		t.Fatalf("Accept(2,P1) = %#v, want Ack", reply)
	}

	// Accept above the promise also succeeds and raises the promise.
	reply, _ = a.HandleAccept(Accept{Ballot: Ballot{4, "P3"}, Value: []byte("z")})
	if _, ok := reply.(Ack); !ok {
		t.Fatalf("Accept(4,P3) = %#v, want Ack", reply)
	}
	s := a.State()
	if !s.Promised.Equal(Ballot{4, "P3"}) || !s.AcceptedBallot.Equal(Ballot{4, "P3"}) || string(s.AcceptedValue) != "z" {
		t.Errorf("state = %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("state invalid: %v", err)
	}
}

func TestAcceptorIdempotentRedelivery(t *testing.T) {
	store := newMemStore()
	a := newTestAcceptor(t, "A1", store)

	prepare := Prepare{Ballot: Ballot{3, "P1"}}
	a.HandlePrepare(prepare)
	afterPrepare := a.State()
	a.HandlePrepare(prepare)
	if !a.State().Equal(afterPrepare) {
		t.Errorf("replayed Prepare changed state: %+v -> %+v", afterPrepare, a.State())
	}

	accept := Accept{Ballot: Ballot{3, "P1"}, Value: []byte("v")}
	first, _ := a.HandleAccept(accept)
	afterAccept := a.State()
	saves := store.saves
	second, _ := a.HandleAccept(accept)
	if !a.State().Equal(afterAccept) {
		t.Errorf("replayed Accept changed state: %+v -> %+v", afterAccept, a.State())
	}
	if first != second {
		t.Errorf("replayed Accept answered %#v, first answer %#v", second, first)
	}
	if store.saves != saves {
		t.Errorf("replayed Accept rewrote storage")
	}
}

func TestAcceptorPersistsBeforeReplying(t *testing.T) {
	store := newMemStore()
	a := newTestAcceptor(t, "A1", store)

	a.HandlePrepare(Prepare{Ballot: Ballot{1, "P1"}})
	if s, ok, _ := store.LoadAcceptorState("A1"); !ok || !s.Promised.Equal(Ballot{1, "P1"}) {
		t.Fatalf("promise not persisted: %+v %v", s, ok)
	}
	a.HandleAccept(Accept{Ballot: Ballot{1, "P1"}, Value: []byte("x")})
	if s, _, _ := store.LoadAcceptorState("A1"); string(s.AcceptedValue) != "x" {
		t.Fatalf("accept not persisted: %+v", s)
	}

	store.fail = errors.New("disk full")
	before := a.State()
	reply, err := a.HandlePrepare(Prepare{Ballot: Ballot{9, "P2"}})
	if err == nil || reply != nil {
		t.Fatalf("HandlePrepare with failing store = %#v, %v; want nil, error", reply, err)
	}
	reply, err = a.HandleAccept(Accept{Ballot: Ballot{9, "P2"}, Value: []byte("y")})
	if err == nil || reply != nil {
		t.Fatalf("HandleAccept with failing store = %#v, %v; want nil, error", reply, err)
	}
	if !a.State().Equal(before) {
		t.Errorf("failed write changed in-memory state: %+v -> %+v", before, a.State())
	}
}

func TestAcceptorRestoresState(t *testing.T) {
	store := newMemStore()
	a := newTestAcceptor(t, "A1", store)
	a.HandlePrepare(Prepare{Ballot: Ballot{2, "P1"}})
	a.HandleAccept(Accept{Ballot: Ballot{2, "P1"}, Value: []byte("kept")})

	restarted := newTestAcceptor(t, "A1", store)
	if !restarted.State().Equal(a.State()) {
		t.Fatalf("restored %+v, want %+v", restarted.State(), a.State())
	}
	reply, _ := restarted.HandlePrepare(Prepare{Ballot: Ballot{1, "P9"}})
	if _, ok := reply.(Reject); !ok {
		t.Errorf("restarted acceptor forgot its promise: %#v", reply)
	}
}

func TestAcceptorRejectsCorruptState(t *testing.T) {
	tests := map[string]AcceptorState{
		"promise below accepted": {
			Promised:       Ballot{1, "P1"},
			AcceptedBallot: Ballot{2, "P1"},
			AcceptedValue:  []byte("x"),
		},
		"value without ballot": {
			Promised:      Ballot{1, "P1"},
			AcceptedValue: []byte("x"),
		},
	}
	for name, state := range tests {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			store.states["A1"] = state
			_, err := NewAcceptor("A1", store)
			var cerr *ConsistencyError
			if !errors.As(err, &cerr) || !errors.Is(err, ErrConsistency) {
				t.Fatalf("NewAcceptor = %v, want ConsistencyError", err)
			}
		})
	}
}
