// =============================================================================
// PAXOS MESSAGE TYPES
// =============================================================================
//
// PHASE 1: PREPARE                      PHASE 2: ACCEPT
//
//   Proposer ── Prepare(b) ──▶ Acceptor   Proposer ── Accept(b, v) ──▶ Acceptor
//   Proposer ◀── Promise ───── Acceptor   Proposer ◀── Ack(b) ──────── Acceptor
//   Proposer ◀── Reject ────── Acceptor   Proposer ◀── Reject ──────── Acceptor
//
// PHASE 3: LEARN
//
//   Proposer ── Learn(v) ──▶ every Learner
//
// A Promise MUST carry the acceptor's previously accepted (ballot, value).
// The proposer relies on it to preserve a value that may already be chosen.
//
// Message is closed: only the six types in this file implement it.
//
// =============================================================================

package paxos

// Kind tags the concrete type of a Message.
type Kind uint8

const (
	KindPrepare Kind = iota + 1
	KindPromise
	KindAccept
	KindAck
	KindReject
	KindLearn
)

func (k Kind) String() string {
	switch k {
	case KindPrepare:
		return "Prepare"
	case KindPromise:
		return "Promise"
	case KindAccept:
		return "Accept"
	case KindAck:
		return "Ack"
	case KindReject:
		return "Reject"
	case KindLearn:
		return "Learn"
	}
	return "INVALID"
}

// Message is one of Prepare, Promise, Accept, Ack, Reject or Learn.
type Message interface {
	Kind() Kind
	isMessage()
}

type Prepare struct {
	Ballot Ballot `json:"ballot"`
}

// Promise answers a Prepare. AcceptedBallot is zero when the acceptor has
// not accepted anything, in which case AcceptedValue is nil.
type Promise struct {
	Ballot         Ballot `json:"ballot"`
	AcceptedBallot Ballot `json:"accepted_ballot"`
	AcceptedValue  []byte `json:"accepted_value,omitempty"`
}

type Accept struct {
	Ballot Ballot `json:"ballot"`
	Value  []byte `json:"value"`
}

type Ack struct {
	Ballot Ballot `json:"ballot"`
}

// Reject answers a Prepare or Accept whose ballot is stale. Seen is the
// acceptor's highest promised ballot.
type Reject struct {
	Seen Ballot `json:"seen"`
}

type Learn struct {
	Value []byte `json:"value"`
}

func (Prepare) Kind() Kind { return KindPrepare }
func (Promise) Kind() Kind { return KindPromise }
func (Accept) Kind() Kind  { return KindAccept }
func (Ack) Kind() Kind     { return KindAck }
func (Reject) Kind() Kind  { return KindReject }
func (Learn) Kind() Kind   { return KindLearn }

func (Prepare) isMessage() {}
func (Promise) isMessage() {}
func (Accept) isMessage()  {}
func (Ack) isMessage()     {}
func (Reject) isMessage()  {}
func (Learn) isMessage()   {}

// HasAccepted reports whether the promising acceptor had accepted a value.
func (p Promise) HasAccepted() bool {
	return !p.AcceptedBallot.IsZero()
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
