// =============================================================================
// BALLOTS - Total Order Over Proposal Rounds
// =============================================================================
//
// A ballot is a (round, proposer) pair. Rounds are compared first; the
// proposer id breaks ties, so two proposers can never produce the same
// ballot:
//
//    (1, "node-a") < (1, "node-b") < (2, "node-a") < (3, "node-a")
//
// The zero ballot stands for "nothing promised / nothing accepted". A
// proposer's first round is 1, so every generated ballot is above it.
//
// =============================================================================

package paxos

import (
	"fmt"
	"strings"
)

// NodeID identifies a participant in the cluster.
type NodeID string

// Ballot totally orders competing proposals.
type Ballot struct {
	Round      int64  `json:"round"`
	ProposerID NodeID `json:"proposer"`
}

// Compare returns -1, 0 or +1 depending on whether b sorts before, equal to,
// or after other.
func (b Ballot) Compare(other Ballot) int {
	switch {
	case b.Round < other.Round:
		return -1
	case b.Round > other.Round:
		return 1
	}
	return strings.Compare(string(b.ProposerID), string(other.ProposerID))
}

func (b Ballot) Less(other Ballot) bool    { return b.Compare(other) < 0 }
func (b Ballot) Greater(other Ballot) bool { return b.Compare(other) > 0 }
func (b Ballot) Equal(other Ballot) bool   { return b.Compare(other) == 0 }
func (b Ballot) AtLeast(other Ballot) bool { return b.Compare(other) >= 0 }

// IsZero reports whether b is the "none" ballot.
func (b Ballot) IsZero() bool {
	return b.Round == 0 && b.ProposerID == ""
}

// Next returns the first ballot owned by id that is strictly greater than b.
func (b Ballot) Next(id NodeID) Ballot {
	return Ballot{Round: b.Round + 1, ProposerID: id}
}

func (b Ballot) String() string {
	if b.IsZero() {
		return "(none)"
	}
	return fmt.Sprintf("(%d,%s)", b.Round, b.ProposerID)
}
