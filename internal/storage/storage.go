// =============================================================================
// STORAGE - Durable State for Acceptors and Proposers
// =============================================================================
//
// An acceptor that forgets what it promised or accepted can help choose a
// second value. Everything the acceptor reports to the network must be
// written here first, and Save must not return before the write is durable.
//
// Two backends:
//
//   MemoryStorage   survives a simulated restart in-process only
//   FileStorage     one JSON document per node, fsync'd on every save
//
// Both keep the proposer's highest round next to the acceptor state, so a
// restarted node never reuses a ballot.
//
// =============================================================================

package storage

import (
	"errors"

	"github.com/senutpal/synod/internal/paxos"
)

var ErrClosed = errors.New("storage is closed")

// Storage is everything a node persists.
type Storage interface {
	paxos.Store
	paxos.RoundStore
	Close() error
}

// record is the per-node document both backends store.
type record struct {
	Acceptor    *paxos.AcceptorState `json:"acceptor,omitempty"`
	ProposerRnd int64                `json:"proposer_round"`
}

func (r record) clone() record {
	if r.Acceptor != nil {
		s := *r.Acceptor
		if s.AcceptedValue != nil {
			s.AcceptedValue = append([]byte{}, s.AcceptedValue...)
		}
		r.Acceptor = &s
	}
	return r
}
