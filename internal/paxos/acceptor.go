// =============================================================================
// ACCEPTOR - The Safety Guardian of Paxos
// =============================================================================
//
// RULE 1: PROMISE RULE
//         Once a ballot b is promised, every Prepare at or below b and every
//         Accept below b is rejected.
//
// RULE 2: ACCEPTANCE RULE
//         Accept (b, v) only if nothing above b was promised, and remember
//         both b and v so later Promises can report them.
//
// Every change is written to the Store before it is installed and before the
// reply leaves HandlePrepare/HandleAccept. If the write fails the acceptor
// keeps its previous state and produces no reply.
//
// =============================================================================

package paxos

import (
	"bytes"
	"fmt"
	"sync"
)

// AcceptorState is the durable part of an acceptor.
type AcceptorState struct {
	Promised       Ballot `json:"promised"`
	AcceptedBallot Ballot `json:"accepted_ballot"`
	AcceptedValue  []byte `json:"accepted_value,omitempty"`
}

// Validate checks the invariants every persisted state must satisfy.
func (s AcceptorState) Validate() error {
	if s.AcceptedBallot.IsZero() {
		if len(s.AcceptedValue) != 0 {
			return fmt.Errorf("accepted value %q without an accepted ballot", s.AcceptedValue)
		}
		return nil
	}
	if s.Promised.Less(s.AcceptedBallot) {
		return fmt.Errorf("promised %s is below accepted %s", s.Promised, s.AcceptedBallot)
	}
	return nil
}

// Equal compares two states field by field.
func (s AcceptorState) Equal(other AcceptorState) bool {
	return s.Promised.Equal(other.Promised) &&
		s.AcceptedBallot.Equal(other.AcceptedBallot) &&
		bytes.Equal(s.AcceptedValue, other.AcceptedValue)
}

func (s AcceptorState) clone() AcceptorState {
	s.AcceptedValue = cloneValue(s.AcceptedValue)
	return s
}

// Store persists acceptor state. SaveAcceptorState must not return before
// the state is durable.
type Store interface {
	SaveAcceptorState(id NodeID, state AcceptorState) error
	LoadAcceptorState(id NodeID) (AcceptorState, bool, error)
}

type Acceptor struct {
	id    NodeID
	store Store

	mu    sync.Mutex
	state AcceptorState
}

// NewAcceptor restores the acceptor's state from store. A stored state that
// breaks the acceptor invariants is reported as a *ConsistencyError.
func NewAcceptor(id NodeID, store Store) (*Acceptor, error) {
	a := &Acceptor{id: id, store: store}
	state, ok, err := store.LoadAcceptorState(id)
	if err != nil {
		return nil, fmt.Errorf("load acceptor state for %s: %w", id, err)
	}
	if ok {
		if err := state.Validate(); err != nil {
			return nil, &ConsistencyError{Node: id, Detail: "persisted acceptor state: " + err.Error()}
		}
		a.state = state.clone()
	}
	return a, nil
}

// HandlePrepare answers Promise or Reject.
func (a *Acceptor) HandlePrepare(msg Prepare) (Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !msg.Ballot.Greater(a.state.Promised) {
		return Reject{Seen: a.state.Promised}, nil
	}
	next := a.state
	next.Promised = msg.Ballot
	if err := a.persist(next); err != nil {
		return nil, err
	}
	return Promise{
		Ballot:         msg.Ballot,
		AcceptedBallot: a.state.AcceptedBallot,
		AcceptedValue:  cloneValue(a.state.AcceptedValue),
	}, nil
}

// HandleAccept answers Ack or Reject. Accept at exactly the promised ballot
// succeeds; that is the point of the promise.
func (a *Acceptor) HandleAccept(msg Accept) (Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if msg.Ballot.Less(a.state.Promised) {
		return Reject{Seen: a.state.Promised}, nil
	}
	next := AcceptorState{
		Promised:       msg.Ballot,
		AcceptedBallot: msg.Ballot,
		AcceptedValue:  cloneValue(msg.Value),
	}
	if err := a.persist(next); err != nil {
		return nil, err
	}
	return Ack{Ballot: msg.Ballot}, nil
}

// State returns a copy of the current state.
func (a *Acceptor) State() AcceptorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// persist must be called with a.mu held.
func (a *Acceptor) persist(next AcceptorState) error {
	if a.state.Equal(next) {
		return nil
	}
	if err := a.store.SaveAcceptorState(a.id, next); err != nil {
		return fmt.Errorf("persist acceptor state for %s: %w", a.id, err)
	}
	a.state = next
	return nil
}
