// =============================================================================
// NODE - Wiring All Paxos Roles Together
// =============================================================================
//
//   ┌─────────────────────────────────────────────┐
//   │                    NODE                     │
//   │  ┌──────────┐  ┌──────────┐  ┌──────────┐   │
//   │  │ PROPOSER │  │ ACCEPTOR │  │ LEARNER  │   │
//   │  └────┬─────┘  └────┬─────┘  └────┬─────┘   │
//   │       │ Send        │ Receive     │         │
//   │  ┌────┴─────────────┴─────────────┴──────┐  │
//   │  │      ROUTER (paxos.Router / Handler)  │  │
//   │  └───────────────────────────────────────┘  │
//   │                     │                       │
//   │               ┌─────┴─────┐                 │
//   │               │  STORAGE  │                 │
//   │               └───────────┘                 │
//   └─────────────────────────────────────────────┘
//
// A node knows its peers only by id. All traffic goes through the router,
// which lets tests put a faulty network between nodes.
//
// Receive is the router-facing side:
//
//   Prepare  -> acceptor -> Promise | Reject
//   Accept   -> acceptor -> Ack | Reject
//   Learn    -> learner  -> (no reply)
//   Promise, Ack, Reject arrive as replies to Send, never here.
//
// If the node ever sees its own invariants break it halts: it stops
// answering and refuses to propose. Proceeding on corrupted state could
// help choose a second value.
//
// =============================================================================

package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/senutpal/synod/internal/paxos"
)

// ErrHalted is returned by a node that stopped after a consistency
// violation. Use Err to get the cause.
var ErrHalted = errors.New("node halted")

type Node struct {
	id       paxos.NodeID
	acceptor *paxos.Acceptor
	proposer *paxos.Proposer
	learner  *paxos.Learner
	logger   *log.Logger

	mu     sync.Mutex
	halted error
	rng    *rand.Rand
}

// New builds a node, restoring its acceptor state from store. If store also
// implements paxos.RoundStore, the proposer's round counter is restored and
// persisted too.
func New(cfg Config, router paxos.Router, store paxos.Store) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	acceptor, err := paxos.NewAcceptor(cfg.ID, store)
	if err != nil {
		return nil, err
	}
	rounds, _ := store.(paxos.RoundStore)
	proposer, err := paxos.NewProposer(paxos.ProposerConfig{
		ID:           cfg.ID,
		Acceptors:    cfg.Acceptors,
		Learners:     cfg.Learners,
		PhaseTimeout: cfg.PhaseTimeout,
		Logger:       cfg.Logger,
	}, router, rounds)
	if err != nil {
		return nil, err
	}
	return &Node{
		id:       cfg.ID,
		acceptor: acceptor,
		proposer: proposer,
		learner:  paxos.NewLearner(cfg.ID),
		logger:   cfg.Logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (n *Node) ID() paxos.NodeID {
	return n.id
}

// Receive handles one inbound request and returns the reply, if any.
func (n *Node) Receive(from paxos.NodeID, msg paxos.Message) paxos.Message {
	if n.Err() != nil {
		return nil
	}
	switch m := msg.(type) {
	case paxos.Prepare:
		reply, err := n.acceptor.HandlePrepare(m)
		if err != nil {
			n.logger.Printf("prepare %s from %s: %v", m.Ballot, from, err)
			return nil
		}
		return reply
	case paxos.Accept:
		reply, err := n.acceptor.HandleAccept(m)
		if err != nil {
			n.logger.Printf("accept %s from %s: %v", m.Ballot, from, err)
			return nil
		}
		return reply
	case paxos.Learn:
		n.learn(m.Value)
		return nil
	case paxos.Promise, paxos.Ack, paxos.Reject:
		n.logger.Printf("unsolicited %s from %s", m.Kind(), from)
		return nil
	default:
		n.logger.Printf("unknown message type %T from %s", msg, from)
		return nil
	}
}

// Propose runs a single round for value. On success it returns the chosen
// value, which may be a value proposed earlier by another node. Failed rounds
// return a *paxos.ProposalError; see ProposeWithRetry.
func (n *Node) Propose(ctx context.Context, value []byte) ([]byte, error) {
	if err := n.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHalted, err)
	}
	chosen, err := n.proposer.Propose(ctx, value)
	if err != nil {
		return nil, err
	}
	n.learn(chosen)
	if err := n.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHalted, err)
	}
	return chosen, nil
}

// DecidedValue returns the value this node has learned, if any.
func (n *Node) DecidedValue() ([]byte, bool) {
	return n.learner.Value()
}

// WaitDecided blocks until this node learns a value or ctx is done.
func (n *Node) WaitDecided(ctx context.Context) ([]byte, error) {
	return n.learner.Wait(ctx)
}

// AcceptorState returns a copy of the node's durable acceptor state.
func (n *Node) AcceptorState() paxos.AcceptorState {
	return n.acceptor.State()
}

// Phase returns the phase of the node's running or last round.
func (n *Node) Phase() paxos.Phase {
	return n.proposer.Phase()
}

// Ballot returns the ballot of the node's running or last round.
func (n *Node) Ballot() paxos.Ballot {
	return n.proposer.Ballot()
}

// Err returns the consistency violation that halted the node, or nil.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.halted
}

func (n *Node) learn(value []byte) {
	_, known := n.learner.Value()
	if err := n.learner.Learn(value); err != nil {
		n.halt(err)
		return
	}
	if !known {
		n.logger.Printf("learned %q", value)
	}
}

func (n *Node) halt(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.halted == nil {
		n.halted = err
		n.logger.Printf("halting: %v", err)
	}
}
