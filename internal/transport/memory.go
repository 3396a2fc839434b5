package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/senutpal/synod/internal/paxos"
)

// Faults configures how unreliable a Network is. Rates are probabilities in
// [0, 1] applied to each request and each reply independently.
type Faults struct {
	DropRate      float64
	DuplicateRate float64
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// Stats counts what a Network did with the messages it was given.
type Stats struct {
	Sent       int
	Delivered  int
	Dropped    int
	Duplicated int
}

type link struct{ from, to paxos.NodeID }

// Network is an in-process network for running many nodes in one process.
// A lost message looks like what it is on a real network: the sender hears
// nothing until its context gives up.
type Network struct {
	mu       sync.Mutex
	handlers map[paxos.NodeID]Handler
	down     map[paxos.NodeID]bool
	cut      map[link]bool
	faults   Faults
	rng      *rand.Rand
	stats    Stats
	closed   bool
}

// NewNetwork returns a network whose random choices are driven by seed.
func NewNetwork(seed int64, faults Faults) *Network {
	return &Network{
		handlers: make(map[paxos.NodeID]Handler),
		down:     make(map[paxos.NodeID]bool),
		cut:      make(map[link]bool),
		faults:   faults,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Register attaches h as node id, replacing any earlier handler. A crashed
// node comes back up when it is registered again.
func (n *Network) Register(id paxos.NodeID, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = h
	delete(n.down, id)
}

// Crash makes id unreachable until it is registered again.
func (n *Network) Crash(id paxos.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = true
}

// Partition silently drops all traffic between a and b, both ways.
func (n *Network) Partition(a, b paxos.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[link{a, b}] = true
	n.cut[link{b, a}] = true
}

// Isolate partitions id from every registered node.
func (n *Network) Isolate(id paxos.NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for other := range n.handlers {
		if other != id {
			n.cut[link{id, other}] = true
			n.cut[link{other, id}] = true
		}
	}
}

// Heal removes every partition.
func (n *Network) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut = make(map[link]bool)
}

func (n *Network) SetFaults(f Faults) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults = f
}

func (n *Network) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

// Close makes every later Send fail with ErrClosed.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

// Router returns the sending side of node from.
func (n *Network) Router(from paxos.NodeID) paxos.Router {
	return &endpoint{net: n, from: from}
}

type endpoint struct {
	net  *Network
	from paxos.NodeID
}

func (e *endpoint) Send(ctx context.Context, to paxos.NodeID, msg paxos.Message) (paxos.Message, error) {
	return e.net.send(ctx, e.from, to, msg)
}

// plan is the fate of one request, decided up front under the lock.
type plan struct {
	handler     Handler
	delay       time.Duration
	dropRequest bool
	duplicate   bool
	dropReply   bool
}

func (n *Network) plan(from, to paxos.NodeID) (plan, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return plan{}, ErrClosed
	}
	h, ok := n.handlers[to]
	if !ok {
		return plan{}, ErrUnknownNode
	}
	if n.down[to] || n.down[from] {
		return plan{}, ErrUnreachable
	}
	n.stats.Sent++
	p := plan{handler: h}
	if n.cut[link{from, to}] || n.roll(n.faults.DropRate) {
		p.dropRequest = true
		n.stats.Dropped++
		return p, nil
	}
	p.delay = n.faults.MinDelay
	if spread := n.faults.MaxDelay - n.faults.MinDelay; spread > 0 {
		p.delay += time.Duration(n.rng.Int63n(int64(spread)))
	}
	if n.roll(n.faults.DuplicateRate) {
		p.duplicate = true
		n.stats.Duplicated++
	}
	if n.cut[link{to, from}] || n.roll(n.faults.DropRate) {
		p.dropReply = true
		n.stats.Dropped++
	}
	return p, nil
}

// roll must be called with n.mu held.
func (n *Network) roll(rate float64) bool {
	return rate > 0 && n.rng.Float64() < rate
}

func (n *Network) send(ctx context.Context, from, to paxos.NodeID, msg paxos.Message) (paxos.Message, error) {
	p, err := n.plan(from, to)
	if err != nil {
		return nil, err
	}
	if p.dropRequest {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	reply, err := n.deliver(p.handler, from, msg)
	if err != nil {
		return nil, err
	}
	if p.duplicate {
		// The sender only ever sees the first reply.
		if _, err := n.deliver(p.handler, from, msg); err != nil {
			return nil, err
		}
	}
	if p.dropReply {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return copyMessage(reply)
}

func (n *Network) deliver(h Handler, from paxos.NodeID, msg paxos.Message) (paxos.Message, error) {
	in, err := copyMessage(msg)
	if err != nil {
		return nil, err
	}
	reply := h.Receive(from, in)
	n.mu.Lock()
	n.stats.Delivered++
	n.mu.Unlock()
	return reply, nil
}
