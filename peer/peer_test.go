// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"testing"
	"time"

	"github.com/meshchain/meshchain/chain"
)

func TestTableUpsertCreatesAndUpdatesPeers(t *testing.T) {
	t.Parallel()

	tbl := NewTable(10)
	now := time.Now()
	id := chain.NodeID{1}

	p := tbl.Upsert(id, now)
	if p.Reputation.Score(now) != InitialReputation {
		t.Fatalf("new peer should start at initial reputation, got %v", p.Reputation.Score(now))
	}

	later := now.Add(time.Minute)
	tbl.Upsert(id, later)
	p2, _ := tbl.Get(id)
	if p2.LastSeen != later {
		t.Fatalf("last_seen should update on repeat upsert, got %v", p2.LastSeen)
	}
	if tbl.Len() != 1 {
		t.Fatalf("got %d peers, want 1 (same id upserted twice)", tbl.Len())
	}
}

func TestTableEvictsOldestOnOverflow(t *testing.T) {
	t.Parallel()

	tbl := NewTable(2)
	now := time.Now()
	tbl.Upsert(chain.NodeID{1}, now)
	tbl.Upsert(chain.NodeID{2}, now.Add(time.Second))
	tbl.Upsert(chain.NodeID{3}, now.Add(2*time.Second)) // should evict NodeID{1}

	if tbl.Len() != 2 {
		t.Fatalf("got %d peers, want 2", tbl.Len())
	}
	if _, ok := tbl.Get(chain.NodeID{1}); ok {
		t.Fatal("the oldest last_seen peer should have been evicted")
	}
}

func TestReputationDecaysTowardHalf(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewReputation(now)
	r.AddEvent(EventValidBlock, now)
	boosted := r.Score(now)
	if boosted <= InitialReputation {
		t.Fatalf("a valid-block event should raise reputation above 0.5, got %v", boosted)
	}

	decayed := r.Score(now.Add(48 * time.Hour))
	if decayed >= boosted {
		t.Fatalf("reputation should decay back toward 0.5 over time, got %v (was %v)", decayed, boosted)
	}
	if decayed <= InitialReputation-0.01 {
		t.Fatalf("after ~2 half-lives reputation should be very close to 0.5, got %v", decayed)
	}
}

func TestReputationClampedToUnitInterval(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewReputation(now)
	for i := 0; i < 100; i++ {
		r.AddEvent(EventValidBlock, now)
	}
	if got := r.Score(now); got > 1 {
		t.Fatalf("reputation must be clamped to <= 1, got %v", got)
	}

	r2 := NewReputation(now)
	for i := 0; i < 100; i++ {
		r2.AddEvent(EventDoubleSpendAttempt, now)
	}
	if got := r2.Score(now); got < 0 {
		t.Fatalf("reputation must be clamped to >= 0, got %v", got)
	}
}

func TestBandForThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		score float64
		want  Band
	}{
		{0.95, BandExcellent},
		{0.9, BandExcellent},
		{0.8, BandGood},
		{0.7, BandGood},
		{0.6, BandFair},
		{0.5, BandFair},
		{0.4, BandPoor},
		{0.3, BandPoor},
		{0.1, BandVeryPoor},
	}
	for _, tc := range cases {
		if got := BandFor(tc.score); got != tc.want {
			t.Fatalf("score=%v: got %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestTrustworthinessFallsBackToReputationWithoutSamples(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewReputation(now)
	if got := r.Trustworthiness(now); got != InitialReputation {
		t.Fatalf("got %v, want bare reputation %v with no validity samples", got, InitialReputation)
	}
}

func TestTrustworthinessBlendsValidityRatios(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewReputation(now)
	r.RecordMessageValidity(true)
	r.RecordMessageValidity(true)
	r.RecordMessageValidity(false)

	got := r.Trustworthiness(now)
	want := 0.7*InitialReputation + 0.3*(2.0/3.0)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSelectPeersForBroadcastOrdersByScore(t *testing.T) {
	t.Parallel()

	tbl := NewTable(10)
	now := time.Now()
	a := tbl.Upsert(chain.NodeID{1}, now)
	b := tbl.Upsert(chain.NodeID{2}, now)
	a.Reputation.AddEvent(EventValidBlock, now)
	b.Reputation.AddEvent(EventDoubleSpendAttempt, now)

	top := tbl.SelectPeersForBroadcast(1, nil, now)
	if len(top) != 1 || top[0] != a.NodeID {
		t.Fatalf("expected the higher-reputation peer first, got %v", top)
	}
}

func TestSelectPeerForSyncExcludesBelowFair(t *testing.T) {
	t.Parallel()

	tbl := NewTable(10)
	now := time.Now()
	poor := tbl.Upsert(chain.NodeID{1}, now)
	for i := 0; i < 20; i++ {
		poor.Reputation.AddEvent(EventDoubleSpendAttempt, now)
	}

	if _, ok := tbl.SelectPeerForSync(nil, 100, 1000, now); ok {
		t.Fatal("expected no eligible sync peer when the only peer is below Fair")
	}
}

func TestHelloGuardAcceptsFirstAndMonotonicHeights(t *testing.T) {
	t.Parallel()

	g := NewHelloGuard(2, time.Minute)
	now := time.Now()
	id := chain.NodeID{1}

	if !g.Accept(id, 100, now) {
		t.Fatal("first hello from a peer should always be accepted")
	}
	if !g.Accept(id, 105, now.Add(time.Second)) {
		t.Fatal("an increasing height should be accepted")
	}
}

func TestHelloGuardRejectsReplayedRegression(t *testing.T) {
	t.Parallel()

	g := NewHelloGuard(2, time.Minute)
	now := time.Now()
	id := chain.NodeID{1}
	g.Accept(id, 100, now)

	if g.Accept(id, 50, now.Add(time.Second)) {
		t.Fatal("a large height regression within the staleness window should be rejected")
	}
}

func TestHelloGuardToleratesSmallRegression(t *testing.T) {
	t.Parallel()

	g := NewHelloGuard(2, time.Minute)
	now := time.Now()
	id := chain.NodeID{1}
	g.Accept(id, 100, now)

	if !g.Accept(id, 99, now.Add(time.Second)) {
		t.Fatal("a regression within tolerance should be accepted")
	}
}

func TestHelloGuardAllowsRegressionAfterStalenessWindow(t *testing.T) {
	t.Parallel()

	g := NewHelloGuard(2, time.Minute)
	now := time.Now()
	id := chain.NodeID{1}
	g.Accept(id, 100, now)

	if !g.Accept(id, 10, now.Add(2*time.Minute)) {
		t.Fatal("a regression past the staleness window should be accepted as a fresh baseline")
	}
}
