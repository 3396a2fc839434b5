package paxos

import "testing"

func TestQuorumSize(t *testing.T) {
	for n, want := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 7: 4} {
		if got := QuorumSize(n); got != want {
			t.Errorf("QuorumSize(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestQuorumTrackerIgnoresDuplicateSenders(t *testing.T) {
	b := Ballot{1, "P1"}
	q := NewQuorumTracker(QuorumSize(3))

	if !q.Record("A1", Promise{Ballot: b}) {
		t.Fatal("first reply from A1 not recorded")
	}
	for i := 0; i < 3; i++ {
		if q.Record("A1", Promise{Ballot: b}) {
			t.Fatal("duplicate reply from A1 recorded")
		}
	}
	if q.HasQuorum() {
		t.Fatal("one acceptor replying repeatedly formed a quorum")
	}
	q.Record("A2", Promise{Ballot: b})
	if !q.HasQuorum() {
		t.Fatal("two of three promises is a quorum")
	}
	if got := len(q.Promises()); got != 2 {
		t.Errorf("Promises() has %d entries, want 2", got)
	}
}

func TestQuorumTrackerFirstReplyWins(t *testing.T) {
	b := Ballot{1, "P1"}
	q := NewQuorumTracker(2)
	q.Record("A1", Reject{Seen: Ballot{4, "P2"}})
	q.Record("A1", Ack{Ballot: b})
	if q.Granted() != 0 {
		t.Errorf("Granted() = %d after a reject, want 0", q.Granted())
	}
	if _, ok := q.AnyRejectionAtOrAbove(b); !ok {
		t.Error("rejection lost")
	}
}

func TestQuorumTrackerRejections(t *testing.T) {
	b := Ballot{3, "P1"}
	q := NewQuorumTracker(3)
	q.Record("A1", Reject{Seen: Ballot{2, "P9"}})
	if _, ok := q.AnyRejectionAtOrAbove(b); ok {
		t.Fatal("stale rejection below the ballot counted as preemption")
	}
	q.Record("A2", Reject{Seen: Ballot{3, "P1"}})
	q.Record("A3", Reject{Seen: Ballot{5, "P2"}})
	seen, ok := q.AnyRejectionAtOrAbove(b)
	if !ok || !seen.Equal(Ballot{5, "P2"}) {
		t.Errorf("AnyRejectionAtOrAbove = %s, %v; want (5,P2), true", seen, ok)
	}
}

func TestQuorumTrackerNoReply(t *testing.T) {
	q := NewQuorumTracker(2)
	q.Record("A1", nil)
	q.Record("A2", nil)
	if q.HasQuorum() || q.Responded() != 2 {
		t.Errorf("HasQuorum=%v Responded=%d, want false 2", q.HasQuorum(), q.Responded())
	}
}

func TestHighestAccepted(t *testing.T) {
	promises := []Promise{
		{Ballot: Ballot{7, "P3"}},
		{Ballot: Ballot{7, "P3"}, AcceptedBallot: Ballot{5, "P1"}, AcceptedValue: []byte("X")},
		{Ballot: Ballot{7, "P3"}, AcceptedBallot: Ballot{3, "P2"}, AcceptedValue: []byte("Y")},
	}
	b, v, ok := highestAccepted(promises)
	if !ok || string(v) != "X" || !b.Equal(Ballot{5, "P1"}) {
		t.Errorf("highestAccepted = %s %q %v, want (5,P1) X true", b, v, ok)
	}
	if _, _, ok := highestAccepted(promises[:1]); ok {
		t.Error("found an accepted value where there is none")
	}
}
