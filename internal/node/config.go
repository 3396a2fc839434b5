package node

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/senutpal/synod/internal/paxos"
)

// Config describes one participant and the fixed cluster around it.
type Config struct {
	ID paxos.NodeID
	// Acceptors is the full acceptor set, including this node if it votes.
	Acceptors []paxos.NodeID
	// Learners receive Learn once a value is chosen. Empty means the
	// acceptors.
	Learners []paxos.NodeID
	// PhaseTimeout bounds each of Prepare and Accept.
	PhaseTimeout time.Duration
	// Logger defaults to the standard logger's output, prefixed with the id.
	Logger *log.Logger
}

// Validate fills in defaults and rejects configurations no cluster can run.
func (c *Config) Validate() error {
	if c.ID == "" {
		return errors.New("node id is empty")
	}
	if len(c.Acceptors) == 0 {
		return errors.New("no acceptors configured")
	}
	seen := make(map[paxos.NodeID]bool, len(c.Acceptors))
	for _, id := range c.Acceptors {
		if id == "" {
			return errors.New("empty acceptor id")
		}
		if seen[id] {
			return fmt.Errorf("acceptor %s listed twice", id)
		}
		seen[id] = true
	}
	if len(c.Learners) == 0 {
		c.Learners = append([]paxos.NodeID(nil), c.Acceptors...)
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = paxos.DefaultPhaseTimeout
	}
	if c.Logger == nil {
		c.Logger = log.New(log.Writer(), fmt.Sprintf("[%s] ", c.ID), log.Flags())
	}
	return nil
}

// Cluster returns node ids "<prefix>-0" .. "<prefix>-(n-1)".
func Cluster(prefix string, n int) []paxos.NodeID {
	ids := make([]paxos.NodeID, n)
	for i := range ids {
		ids[i] = paxos.NodeID(fmt.Sprintf("%s-%d", prefix, i))
	}
	return ids
}
