// =============================================================================
// TRANSPORT - Moving Paxos Messages Between Nodes
// =============================================================================
//
// The paxos package only needs one thing from the network:
//
//   Send(ctx, to, msg) -> reply      (paxos.Router)
//
// and every node exposes one thing to it:
//
//   Receive(from, msg) -> reply      (Handler)
//
// Paxos assumes an asynchronous network: messages may be delayed, lost,
// duplicated or reordered, but never corrupted. Both implementations here
// copy every message through the Codec, so no two nodes ever share memory.
//
//   Network     in-process, with seeded drop/duplicate/delay and partitions
//   RPCServer   net/rpc over TCP, paired with RPCRouter on the sending side
//
// =============================================================================

package transport

import (
	"errors"

	"github.com/senutpal/synod/internal/paxos"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnreachable = errors.New("node unreachable")
	ErrClosed      = errors.New("transport is closed")
)

// Handler is the receiving side of a node. It must be safe for concurrent
// use. A nil reply means there is nothing to send back.
type Handler interface {
	Receive(from paxos.NodeID, msg paxos.Message) paxos.Message
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(from paxos.NodeID, msg paxos.Message) paxos.Message

func (f HandlerFunc) Receive(from paxos.NodeID, msg paxos.Message) paxos.Message {
	return f(from, msg)
}
