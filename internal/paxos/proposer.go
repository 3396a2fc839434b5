// =============================================================================
// PROPOSER - The Driver of Paxos Consensus
// =============================================================================
//
//   Idle ──▶ Preparing ──▶ Accepting ──▶ Chosen
//               │              │
//               ├──────────────┴──▶ Preempted   (some acceptor promised >= b)
//               └──────────────┴──▶ TimedOut    (no quorum within the bound)
//
// PHASE 1: pick a ballot above every ballot this proposer has used or seen,
// send Prepare to every acceptor, and wait for a majority of Promises. If any
// Promise reports an accepted value, the value accepted under the highest
// ballot replaces the caller's value. This rule is what keeps a possibly
// chosen value from being overwritten.
//
// PHASE 2: send Accept(b, v) to every acceptor and wait for a majority of
// Acks. Then v is chosen and Learn(v) goes to every learner.
//
// A round never retries by itself. Preempted and TimedOut are returned to
// the caller, who may start a new round with a higher ballot.
//
// =============================================================================

package paxos

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Router delivers a request to one node and returns that node's reply. Send
// blocks until the reply arrives, delivery fails, or ctx is done. A nil reply
// with a nil error means the target had nothing to say.
type Router interface {
	Send(ctx context.Context, to NodeID, msg Message) (Message, error)
}

// RoundStore persists the highest round a proposer has used, so a restarted
// node never reissues a ballot.
type RoundStore interface {
	SaveRound(id NodeID, round int64) error
	LoadRound(id NodeID) (int64, error)
}

// Phase is where a round is in its life cycle.
type Phase uint8

const (
	Idle Phase = iota
	Preparing
	Accepting
	Chosen
	Preempted
	TimedOut
	Abandoned
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Accepting:
		return "accepting"
	case Chosen:
		return "chosen"
	case Preempted:
		return "preempted"
	case TimedOut:
		return "timed out"
	case Abandoned:
		return "abandoned"
	}
	return "INVALID"
}

const DefaultPhaseTimeout = 500 * time.Millisecond

type ProposerConfig struct {
	ID           NodeID
	Acceptors    []NodeID
	Learners     []NodeID
	PhaseTimeout time.Duration
	Logger       *log.Logger
}

type Proposer struct {
	id        NodeID
	acceptors []NodeID
	learners  []NodeID
	quorum    int
	timeout   time.Duration
	router    Router
	rounds    RoundStore
	logger    *log.Logger

	// Only one round runs at a time.
	run sync.Mutex

	mu     sync.Mutex
	round  int64
	ballot Ballot
	phase  Phase
}

// NewProposer builds a proposer. rounds may be nil, in which case the round
// counter starts from zero and is not persisted.
func NewProposer(cfg ProposerConfig, router Router, rounds RoundStore) (*Proposer, error) {
	if cfg.ID == "" {
		return nil, errors.New("proposer id is empty")
	}
	if len(cfg.Acceptors) == 0 {
		return nil, errors.New("proposer has no acceptors")
	}
	if router == nil {
		return nil, errors.New("proposer has no router")
	}
	p := &Proposer{
		id:        cfg.ID,
		acceptors: append([]NodeID(nil), cfg.Acceptors...),
		learners:  append([]NodeID(nil), cfg.Learners...),
		quorum:    QuorumSize(len(cfg.Acceptors)),
		timeout:   cfg.PhaseTimeout,
		router:    router,
		rounds:    rounds,
		logger:    cfg.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultPhaseTimeout
	}
	if p.logger == nil {
		p.logger = log.New(log.Writer(), fmt.Sprintf("[%s] ", cfg.ID), log.Flags())
	}
	if rounds != nil {
		round, err := rounds.LoadRound(cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("load round for %s: %w", cfg.ID, err)
		}
		p.round = round
	}
	return p, nil
}

// Propose runs one round for value and returns the chosen value, which is
// not necessarily value. A failed round returns a *ProposalError.
func (p *Proposer) Propose(ctx context.Context, value []byte) ([]byte, error) {
	p.run.Lock()
	defer p.run.Unlock()

	ballot, err := p.nextBallot()
	if err != nil {
		return nil, err
	}
	candidate := cloneValue(value)

	p.setPhase(Preparing)
	p.logger.Printf("prepare %s", ballot)
	promises, err := p.collect(ctx, Preparing, ballot, Prepare{Ballot: ballot})
	if err != nil {
		return nil, p.fail(err)
	}
	if prior, v, ok := highestAccepted(promises.Promises()); ok {
		p.logger.Printf("ballot %s adopts %q accepted at %s", ballot, v, prior)
		candidate = cloneValue(v)
	}

	p.setPhase(Accepting)
	p.logger.Printf("accept %s %q", ballot, candidate)
	if _, err := p.collect(ctx, Accepting, ballot, Accept{Ballot: ballot, Value: candidate}); err != nil {
		return nil, p.fail(err)
	}

	p.setPhase(Chosen)
	p.logger.Printf("ballot %s chose %q", ballot, candidate)
	p.broadcastLearn(ctx, candidate)
	return cloneValue(candidate), nil
}

// Phase returns the phase of the running round, or of the last one.
func (p *Proposer) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// Ballot returns the ballot of the running or last round.
func (p *Proposer) Ballot() Ballot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ballot
}

func (p *Proposer) nextBallot() (Ballot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.round++
	if p.rounds != nil {
		if err := p.rounds.SaveRound(p.id, p.round); err != nil {
			return Ballot{}, fmt.Errorf("persist round %d for %s: %w", p.round, p.id, err)
		}
	}
	p.ballot = Ballot{Round: p.round, ProposerID: p.id}
	p.phase = Idle
	return p.ballot, nil
}

func (p *Proposer) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// observe moves the round counter past a ballot reported by an acceptor, so
// the next round starts above it.
func (p *Proposer) observe(seen Ballot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seen.Round > p.round {
		p.round = seen.Round
	}
}

func (p *Proposer) fail(err error) error {
	var perr *ProposalError
	if errors.As(err, &perr) {
		p.setPhase(perr.Phase)
		p.logger.Printf("%v", perr)
	}
	return err
}

type reply struct {
	from NodeID
	msg  Message
}

// collect sends msg to every acceptor and waits until a quorum grants it,
// one acceptor rejects it with a ballot at or above the round's, or the
// phase deadline passes.
func (p *Proposer) collect(ctx context.Context, during Phase, ballot Ballot, msg Message) (*QuorumTracker, error) {
	phaseCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	replies := make(chan reply, len(p.acceptors))
	for _, to := range p.acceptors {
		go func(to NodeID) {
			m, err := p.router.Send(phaseCtx, to, msg)
			if err != nil {
				m = nil
			}
			replies <- reply{from: to, msg: m}
		}(to)
	}

	tracker := NewQuorumTracker(p.quorum)
	for pending := len(p.acceptors); pending > 0; pending-- {
		select {
		case r := <-replies:
			tracker.Record(r.from, relevant(during, ballot, r.msg))
			if seen, ok := tracker.AnyRejectionAtOrAbove(ballot); ok {
				p.observe(seen)
				return nil, &ProposalError{Phase: Preempted, During: during, Ballot: ballot, Seen: seen, Err: ErrPreempted}
			}
			if tracker.HasQuorum() {
				return tracker, nil
			}
		case <-phaseCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, &ProposalError{Phase: Abandoned, During: during, Ballot: ballot, Err: err}
			}
			return nil, &ProposalError{Phase: TimedOut, During: during, Ballot: ballot, Err: ErrTimedOut}
		}
	}
	// Everyone answered and there is still no majority.
	return nil, &ProposalError{Phase: TimedOut, During: during, Ballot: ballot, Err: ErrTimedOut}
}

// relevant drops replies that cannot belong to this phase of this round.
func relevant(during Phase, ballot Ballot, msg Message) Message {
	switch m := msg.(type) {
	case Promise:
		if during == Preparing && m.Ballot.Equal(ballot) {
			return m
		}
	case Ack:
		if during == Accepting && m.Ballot.Equal(ballot) {
			return m
		}
	case Reject:
		return m
	case nil, Prepare, Accept, Learn:
	}
	return nil
}

// broadcastLearn tells every learner about the chosen value. It does not
// wait: the value is already chosen, and a learner that misses the message
// changes nothing about that.
func (p *Proposer) broadcastLearn(ctx context.Context, value []byte) {
	learnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	var wg sync.WaitGroup
	for _, to := range p.learners {
		wg.Add(1)
		go func(to NodeID) {
			defer wg.Done()
			if _, err := p.router.Send(learnCtx, to, Learn{Value: cloneValue(value)}); err != nil {
				p.logger.Printf("learn to %s: %v", to, err)
			}
		}(to)
	}
	go func() {
		wg.Wait()
		cancel()
	}()
}
