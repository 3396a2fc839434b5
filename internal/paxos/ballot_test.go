package paxos

import "testing"

func TestBallotOrdering(t *testing.T) {
	tests := []struct {
		a, b Ballot
		want int
	}{
		{Ballot{1, "node-a"}, Ballot{1, "node-b"}, -1},
		{Ballot{1, "node-b"}, Ballot{2, "node-a"}, -1},
		{Ballot{3, "node-a"}, Ballot{2, "node-z"}, 1},
		{Ballot{2, "P1"}, Ballot{2, "P1"}, 0},
		{Ballot{}, Ballot{1, "P0"}, -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Compare(tt.a); got != -tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestBallotNextIsStrictlyGreater(t *testing.T) {
	b := Ballot{}
	for i := 0; i < 5; i++ {
		next := b.Next("P1")
		if !next.Greater(b) {
			t.Fatalf("%s is not above %s", next, b)
		}
		b = next
	}
	if b.Round != 5 {
		t.Errorf("round = %d, want 5", b.Round)
	}
	// Another proposer's round at the same height still orders.
	if !(Ballot{5, "P2"}).Greater(b) {
		t.Errorf("(5,P2) should sort above (5,P1)")
	}
}

func TestBallotZero(t *testing.T) {
	if !(Ballot{}).IsZero() {
		t.Error("zero ballot not IsZero")
	}
	if (Ballot{Round: 1, ProposerID: "a"}).IsZero() {
		t.Error("(1,a) reported as zero")
	}
	if got := (Ballot{}).String(); got != "(none)" {
		t.Errorf("String() = %q", got)
	}
	if got := (Ballot{2, "P1"}).String(); got != "(2,P1)" {
		t.Errorf("String() = %q", got)
	}
}
