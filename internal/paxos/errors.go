package paxos

import (
	"errors"
	"fmt"
)

var (
	// ErrPreempted means an acceptor has promised a ballot at or above the
	// round's own. Retrying with a higher ballot is safe.
	ErrPreempted = errors.New("proposal preempted by a higher ballot")
	// ErrTimedOut means a phase did not reach a quorum in time.
	ErrTimedOut = errors.New("proposal timed out waiting for quorum")
	// ErrConsistency marks a broken protocol invariant. It is fatal for the
	// node that observes it.
	ErrConsistency = errors.New("paxos consistency violation")
)

// ProposalError describes how a round ended when it did not end Chosen.
type ProposalError struct {
	Phase  Phase  // terminal phase: Preempted, TimedOut or Abandoned
	During Phase  // phase that was running when the round ended
	Ballot Ballot // the round's ballot
	Seen   Ballot // the preempting ballot, zero unless Preempted
	Err    error
}

func (e *ProposalError) Error() string {
	if e.Phase == Preempted {
		return fmt.Sprintf("ballot %s %s: %v (seen %s)", e.Ballot, e.During, e.Err, e.Seen)
	}
	return fmt.Sprintf("ballot %s %s: %v", e.Ballot, e.During, e.Err)
}

func (e *ProposalError) Unwrap() error { return e.Err }

// Retryable reports whether a fresh round may succeed where this one failed.
func (e *ProposalError) Retryable() bool {
	return e.Phase == Preempted || e.Phase == TimedOut
}

// ConsistencyError reports a violated invariant: a learner asked to decide
// a second value, or acceptor state loaded from storage that cannot be
// valid.
type ConsistencyError struct {
	Node   NodeID
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%v on %s: %s", ErrConsistency, e.Node, e.Detail)
}

func (e *ConsistencyError) Unwrap() error { return ErrConsistency }
