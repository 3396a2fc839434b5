// =============================================================================
// LEARNER - The Observer of Paxos Consensus
// =============================================================================
//
// The learner is told the chosen value by the proposer that got it chosen.
// It records the first value it hears and never changes it. Hearing the
// same value again is normal (Learn is broadcast and may be duplicated);
// hearing a different one means safety broke somewhere upstream, and that
// is reported as a *ConsistencyError.
//
// =============================================================================

package paxos

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

type Learner struct {
	id NodeID

	mu      sync.Mutex
	value   []byte
	decided bool
	done    chan struct{}
}

func NewLearner(id NodeID) *Learner {
	return &Learner{id: id, done: make(chan struct{})}
}

// Learn records value as decided.
func (l *Learner) Learn(value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.decided {
		if bytes.Equal(l.value, value) {
			return nil
		}
		return &ConsistencyError{
			Node:   l.id,
			Detail: fmt.Sprintf("learned %q after deciding %q", value, l.value),
		}
	}
	l.value = cloneValue(value)
	l.decided = true
	close(l.done)
	return nil
}

// Value returns the decided value, if any.
func (l *Learner) Value() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.decided {
		return nil, false
	}
	return cloneValue(l.value), true
}

// Wait blocks until a value is decided or ctx is done.
func (l *Learner) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-l.done:
		v, _ := l.Value()
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
