// =============================================================================
// DEMO RUNNER - Single-Decree Paxos in Action
// =============================================================================
//
// Runs a cluster of nodes in one process, has several of them propose
// different values at the same time, and checks that every node learns the
// same one.
//
//   go run ./cmd/demo -nodes 5 -proposers 3 -drop 0.1 -dup 0.1
//   go run ./cmd/demo -rpc -data /tmp/synod -restart
//
// -rpc runs every node behind its own net/rpc server on loopback instead of
// the simulated network. -data keeps acceptor state in JSON files. -restart
// crashes the last node after the decision, rebuilds it from storage, and
// shows that its next proposal can only return the value already chosen.
//
// =============================================================================

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/senutpal/synod/internal/node"
	"github.com/senutpal/synod/internal/paxos"
	"github.com/senutpal/synod/internal/storage"
	"github.com/senutpal/synod/internal/transport"
)

type options struct {
	nodes     int
	proposers int
	timeout   time.Duration
	drop      float64
	dup       float64
	maxDelay  time.Duration
	seed      int64
	dataDir   string
	useRPC    bool
	restart   bool
	verbose   bool
}

func parseFlags() options {
	var o options
	flag.IntVar(&o.nodes, "nodes", 5, "cluster size")
	flag.IntVar(&o.proposers, "proposers", 3, "number of nodes proposing at once")
	flag.DurationVar(&o.timeout, "timeout", 100*time.Millisecond, "per-phase timeout")
	flag.Float64Var(&o.drop, "drop", 0, "probability of losing a request or reply (simulated network only)")
	flag.Float64Var(&o.dup, "dup", 0, "probability of delivering a request twice (simulated network only)")
	flag.DurationVar(&o.maxDelay, "delay", 5*time.Millisecond, "maximum delivery delay (simulated network only)")
	flag.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "seed for the simulated network")
	flag.StringVar(&o.dataDir, "data", "", "directory for file storage; in-memory when empty")
	flag.BoolVar(&o.useRPC, "rpc", false, "connect nodes over net/rpc on loopback")
	flag.BoolVar(&o.restart, "restart", false, "crash and restart the last node after the decision")
	flag.BoolVar(&o.verbose, "v", false, "log protocol messages")
	flag.Parse()
	return o
}

// slot lets a server or network entry outlive the node behind it, so a node
// can be crashed and rebuilt without re-wiring the transport.
type slot struct {
	node atomic.Pointer[node.Node]
}

func (s *slot) Receive(from paxos.NodeID, msg paxos.Message) paxos.Message {
	n := s.node.Load()
	if n == nil {
		return nil
	}
	return n.Receive(from, msg)
}

type cluster struct {
	opts    options
	ids     []paxos.NodeID
	slots   []*slot
	routers []paxos.Router
	store   storage.Storage
	network *transport.Network
	servers []*transport.RPCServer
}

func newCluster(o options) (*cluster, error) {
	c := &cluster{opts: o, ids: node.Cluster("node", o.nodes)}
	if o.dataDir != "" {
		files, err := storage.NewFileStorage(o.dataDir)
		if err != nil {
			return nil, err
		}
		c.store = files
	} else {
		c.store = storage.NewMemoryStorage()
	}

	c.slots = make([]*slot, len(c.ids))
	for i := range c.slots {
		c.slots[i] = &slot{}
	}
	if o.useRPC {
		addrs := make(map[paxos.NodeID]string, len(c.ids))
		for i, id := range c.ids {
			srv, err := transport.NewRPCServer("127.0.0.1:0", c.slots[i])
			if err != nil {
				c.close()
				return nil, err
			}
			c.servers = append(c.servers, srv)
			addrs[id] = srv.Addr()
		}
		for _, id := range c.ids {
			c.routers = append(c.routers, transport.NewRPCRouter(id, addrs))
		}
	} else {
		c.network = transport.NewNetwork(o.seed, transport.Faults{
			DropRate:      o.drop,
			DuplicateRate: o.dup,
			MaxDelay:      o.maxDelay,
		})
		for i, id := range c.ids {
			c.network.Register(id, c.slots[i])
			c.routers = append(c.routers, c.network.Router(id))
		}
	}
	for i := range c.ids {
		if err := c.start(i); err != nil {
			c.close()
			return nil, err
		}
	}
	return c, nil
}

// start builds node i from the shared storage and puts it behind its slot.
func (c *cluster) start(i int) error {
	logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", c.ids[i]), log.Lmicroseconds)
	if !c.opts.verbose {
		logger.SetOutput(io.Discard)
	}
	n, err := node.New(node.Config{
		ID:           c.ids[i],
		Acceptors:    c.ids,
		PhaseTimeout: c.opts.timeout,
		Logger:       logger,
	}, c.routers[i], c.store)
	if err != nil {
		return err
	}
	c.slots[i].node.Store(n)
	return nil
}

func (c *cluster) node(i int) *node.Node {
	return c.slots[i].node.Load()
}

func (c *cluster) crash(i int) {
	c.slots[i].node.Store(nil)
	if c.network != nil {
		c.network.Crash(c.ids[i])
	}
}

func (c *cluster) recover(i int) error {
	if err := c.start(i); err != nil {
		return err
	}
	if c.network != nil {
		c.network.Register(c.ids[i], c.slots[i])
	}
	return nil
}

func (c *cluster) close() {
	for _, s := range c.servers {
		s.Close()
	}
	if c.network != nil {
		c.network.Close()
	}
	c.store.Close()
}

func main() {
	o := parseFlags()
	if o.nodes < 1 || o.proposers < 1 || o.proposers > o.nodes {
		log.Fatalf("need 1 <= proposers <= nodes, got proposers=%d nodes=%d", o.proposers, o.nodes)
	}
	c, err := newCluster(o)
	if err != nil {
		log.Fatalf("start cluster: %v", err)
	}
	defer c.close()

	fmt.Printf("Starting Paxos cluster with %d nodes (quorum %d)\n", o.nodes, paxos.QuorumSize(o.nodes))
	if c.network != nil {
		fmt.Printf("Simulated network: seed=%d drop=%.2f dup=%.2f delay<=%s\n", o.seed, o.drop, o.dup, o.maxDelay)
	} else {
		fmt.Println("Transport: net/rpc on loopback")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < o.proposers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value := []byte(fmt.Sprintf("value from %s", c.ids[i]))
			chosen, err := c.node(i).ProposeWithRetry(ctx, value, node.RetryPolicy{
				BaseBackoff: o.timeout / 4,
				MaxBackoff:  4 * o.timeout,
			})
			if err != nil {
				fmt.Printf("%s proposed %q: %v\n", c.ids[i], value, err)
				return
			}
			fmt.Printf("%s proposed %q, chosen %q (ballot %s)\n", c.ids[i], value, chosen, c.node(i).Ballot())
		}(i)
	}
	wg.Wait()

	if !report(ctx, c) {
		os.Exit(1)
	}

	if o.restart {
		last := len(c.ids) - 1
		before := c.node(last).AcceptorState()
		fmt.Printf("\nCrashing %s (promised %s, accepted %s)\n", c.ids[last], before.Promised, before.AcceptedBallot)
		c.crash(last)
		if err := c.recover(last); err != nil {
			log.Fatalf("restart %s: %v", c.ids[last], err)
		}
		after := c.node(last).AcceptorState()
		fmt.Printf("Restarted %s (promised %s, accepted %s)\n", c.ids[last], after.Promised, after.AcceptedBallot)
		chosen, err := c.node(last).ProposeWithRetry(ctx, []byte("a late newcomer"), node.DefaultRetryPolicy)
		if err != nil {
			log.Fatalf("propose after restart: %v", err)
		}
		fmt.Printf("%s proposed %q after restart, chosen %q\n", c.ids[last], "a late newcomer", chosen)
	}

	if c.network != nil {
		s := c.network.Stats()
		fmt.Printf("\nNetwork: sent=%d delivered=%d dropped=%d duplicated=%d\n", s.Sent, s.Delivered, s.Dropped, s.Duplicated)
	}
}

// report waits for every node to learn and checks that they agree.
func report(ctx context.Context, c *cluster) bool {
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fmt.Println("\nFinal state:")
	var first []byte
	agree := true
	for i, id := range c.ids {
		v, err := c.node(i).WaitDecided(waitCtx)
		if err != nil {
			fmt.Printf("  %s: nothing learned (%v)\n", id, err)
			continue
		}
		fmt.Printf("  %s: learned %q\n", id, v)
		if first == nil {
			first = v
		} else if !bytes.Equal(first, v) {
			agree = false
		}
	}
	if !agree {
		fmt.Println("SAFETY VIOLATION: nodes learned different values")
		return false
	}
	fmt.Println("Consensus achieved. All nodes that learned agree.")
	return true
}
