package paxos

// QuorumSize is the smallest majority of n acceptors.
func QuorumSize(n int) int {
	return n/2 + 1
}

// QuorumTracker counts the replies of one phase of one round. Only the first
// reply from each acceptor counts; later ones are duplicates.
type QuorumTracker struct {
	size     int
	replies  map[NodeID]Message
	granted  int
	promises []Promise
	rejects  []Reject
}

func NewQuorumTracker(size int) *QuorumTracker {
	return &QuorumTracker{
		size:    size,
		replies: make(map[NodeID]Message),
	}
}

// Record stores reply as from's answer. It returns false if from has
// already answered.
func (q *QuorumTracker) Record(from NodeID, reply Message) bool {
	if _, dup := q.replies[from]; dup {
		return false
	}
	q.replies[from] = reply
	switch m := reply.(type) {
	case Promise:
		q.granted++
		q.promises = append(q.promises, m)
	case Ack:
		q.granted++
	case Reject:
		q.rejects = append(q.rejects, m)
	case nil, Prepare, Accept, Learn:
		// no vote
	}
	return true
}

// HasQuorum reports whether a majority has promised or acked.
func (q *QuorumTracker) HasQuorum() bool {
	return q.granted >= q.size
}

// AnyRejectionAtOrAbove returns the highest rejecting ballot that is not
// below b, if any acceptor sent one.
func (q *QuorumTracker) AnyRejectionAtOrAbove(b Ballot) (Ballot, bool) {
	var (
		seen  Ballot
		found bool
	)
	for _, r := range q.rejects {
		if r.Seen.AtLeast(b) && (!found || r.Seen.Greater(seen)) {
			seen, found = r.Seen, true
		}
	}
	return seen, found
}

// Promises returns the promises recorded so far, one per acceptor.
func (q *QuorumTracker) Promises() []Promise {
	return q.promises
}

// Granted is the number of distinct acceptors that promised or acked.
func (q *QuorumTracker) Granted() int {
	return q.granted
}

// Responded is the number of distinct acceptors heard from, including those
// whose reply carried no vote.
func (q *QuorumTracker) Responded() int {
	return len(q.replies)
}

// highestAccepted picks the value the proposer is obliged to carry forward:
// the one accepted under the highest ballot among the promises.
func highestAccepted(promises []Promise) (Ballot, []byte, bool) {
	var (
		best  Ballot
		value []byte
		found bool
	)
	for _, p := range promises {
		if p.HasAccepted() && (!found || p.AcceptedBallot.Greater(best)) {
			best, value, found = p.AcceptedBallot, p.AcceptedValue, true
		}
	}
	return best, value, found
}
