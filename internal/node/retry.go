package node

import (
	"context"
	"errors"
	"time"

	"github.com/senutpal/synod/internal/paxos"
)

// RetryPolicy controls ProposeWithRetry. Attempts <= 0 retries until ctx is
// done.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:    10,
	BaseBackoff: 10 * time.Millisecond,
	MaxBackoff:  500 * time.Millisecond,
}

// ProposeWithRetry runs rounds until one succeeds, a non-retryable error
// occurs, the attempts run out, or ctx is done. Each new round uses a higher
// ballot than the last. The sleep between rounds is randomized so duelling
// proposers drift apart instead of preempting each other forever.
func (n *Node) ProposeWithRetry(ctx context.Context, value []byte, policy RetryPolicy) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		chosen, err := n.Propose(ctx, value)
		if err == nil {
			return chosen, nil
		}
		var perr *paxos.ProposalError
		if !errors.As(err, &perr) || !perr.Retryable() {
			return nil, err
		}
		if policy.Attempts > 0 && attempt >= policy.Attempts {
			return nil, err
		}
		t := time.NewTimer(n.backoff(policy, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
}

// backoff is a random duration in [d/2, d) where d doubles per attempt up to
// the policy maximum.
func (n *Node) backoff(policy RetryPolicy, attempt int) time.Duration {
	d := policy.BaseBackoff
	if d <= 0 {
		d = DefaultRetryPolicy.BaseBackoff
	}
	limit := policy.MaxBackoff
	if limit <= 0 {
		limit = DefaultRetryPolicy.MaxBackoff
	}
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return half + time.Duration(n.rng.Int63n(int64(half)))
}
