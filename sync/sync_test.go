// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sync

import (
	"testing"
	"time"

	"github.com/meshchain/meshchain/chain"
)

func TestStartSyncRejectsWhenAlreadySyncing(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Now()
	if err := s.StartSync(10, 20, now); err != nil {
		t.Fatalf("first StartSync: %v", err)
	}
	if err := s.StartSync(10, 30, now); err != ErrAlreadySyncing {
		t.Fatalf("got err=%v, want ErrAlreadySyncing", err)
	}
}

func TestAddSyncBlockTracksProgressAndAutoCompletes(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Now()
	if err := s.StartSync(0, 3, now); err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	if s.BlocksRemaining() != 3 {
		t.Fatalf("got blocks_remaining=%d, want 3", s.BlocksRemaining())
	}

	for i := uint32(1); i <= 2; i++ {
		if err := s.AddSyncBlock(i, []byte("block"), now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("AddSyncBlock(%d): %v", i, err)
		}
	}
	if s.State() != Syncing {
		t.Fatalf("got state=%v, want Syncing after partial progress", s.State())
	}
	if s.BlocksSynced() != 2 || s.BlocksRemaining() != 1 {
		t.Fatalf("got synced=%d remaining=%d, want 2/1", s.BlocksSynced(), s.BlocksRemaining())
	}

	if err := s.AddSyncBlock(3, []byte("block"), now.Add(4*time.Second)); err != nil {
		t.Fatalf("final AddSyncBlock: %v", err)
	}
	if s.State() != Synced {
		t.Fatalf("got state=%v, want Synced once blocks_remaining hits zero", s.State())
	}
	stats := s.Stats()
	if stats.SessionsCompleted != 1 {
		t.Fatalf("got sessions_completed=%d, want 1", stats.SessionsCompleted)
	}
	if stats.TotalSyncTime != 4*time.Second {
		t.Fatalf("got total_sync_time=%v, want 4s", stats.TotalSyncTime)
	}
}

func TestAddSyncBlockRejectedWhenNotSyncing(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.AddSyncBlock(1, []byte("block"), time.Now()); err != ErrNotSyncing {
		t.Fatalf("got err=%v, want ErrNotSyncing", err)
	}
}

func TestCompleteSyncCallerDrivenFailureSetsError(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Now()
	if err := s.StartSync(0, 100, now); err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	if err := s.CompleteSync(false, now.Add(time.Second)); err != nil {
		t.Fatalf("CompleteSync: %v", err)
	}
	if s.State() != Error {
		t.Fatalf("got state=%v, want Error", s.State())
	}
}

func TestCompleteSyncAveragesAcrossSessions(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Now()

	if err := s.StartSync(0, 10, now); err != nil {
		t.Fatalf("StartSync 1: %v", err)
	}
	if err := s.CompleteSync(true, now.Add(2*time.Second)); err != nil {
		t.Fatalf("CompleteSync 1: %v", err)
	}
	if err := s.StartSync(10, 20, now.Add(2*time.Second)); err != nil {
		t.Fatalf("StartSync 2: %v", err)
	}
	if err := s.CompleteSync(true, now.Add(6*time.Second)); err != nil {
		t.Fatalf("CompleteSync 2: %v", err)
	}

	stats := s.Stats()
	if stats.SessionsCompleted != 2 {
		t.Fatalf("got sessions_completed=%d, want 2", stats.SessionsCompleted)
	}
	if stats.AvgSyncTime != 3*time.Second {
		t.Fatalf("got avg_sync_time=%v, want 3s", stats.AvgSyncTime)
	}
}

func TestDrainQueueReturnsAndClearsBuffered(t *testing.T) {
	t.Parallel()

	s := New()
	now := time.Now()
	if err := s.StartSync(0, 5, now); err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	s.AddSyncBlock(1, []byte("a"), now)
	s.AddSyncBlock(2, []byte("b"), now)

	blocks := s.DrainQueue()
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if more := s.DrainQueue(); len(more) != 0 {
		t.Fatalf("expected queue to be empty after draining, got %d", len(more))
	}
}

func TestShouldRestartSyncOnlyWhenIdleAndBehind(t *testing.T) {
	t.Parallel()

	s := New()
	if !s.ShouldRestartSync(5, 10) {
		t.Fatal("an idle node behind the observed peer target should restart sync")
	}
	if s.ShouldRestartSync(10, 10) {
		t.Fatal("a node at the observed target should not restart sync")
	}

	if err := s.StartSync(5, 10, time.Now()); err != nil {
		t.Fatalf("StartSync: %v", err)
	}
	if s.ShouldRestartSync(5, 20) {
		t.Fatal("a node already syncing should not restart")
	}
}

func TestForkDetectorRaisesOnConflictingHashAtKnownHeight(t *testing.T) {
	t.Parallel()

	d := NewForkDetector()
	var a, b chain.BlockHash
	a[0], b[0] = 1, 2

	if _, detected := d.Observe(100, a); detected {
		t.Fatal("first observation at a height should not be a fork")
	}
	if _, detected := d.Observe(100, a); detected {
		t.Fatal("re-observing the same hash should not be a fork")
	}
	event, detected := d.Observe(100, b)
	if !detected {
		t.Fatal("a different hash at a known height should be detected as a fork")
	}
	if event.Height != 100 || event.KnownHash != a || event.ConflictHash != b {
		t.Fatalf("got event=%+v, unexpected fields", event)
	}
	if len(d.ForksDetected()) != 1 {
		t.Fatalf("got %d forks recorded, want 1", len(d.ForksDetected()))
	}
}

func TestResolveForkPrefersLongestFinalizedChain(t *testing.T) {
	t.Parallel()

	var shortHash, longHash chain.BlockHash
	shortHash[0], longHash[0] = 1, 2

	candidates := []ChainCandidate{
		{TipHeight: 100, TipHash: shortHash, IsFinalized: true},
		{TipHeight: 120, TipHash: longHash, IsFinalized: true},
	}
	best, ok := ResolveFork(candidates)
	if !ok {
		t.Fatal("expected a resolvable fork")
	}
	if best.TipHeight != 120 {
		t.Fatalf("got tip_height=%d, want the longer finalized chain (120)", best.TipHeight)
	}
}

func TestResolveForkIgnoresUnfinalizedLongerChain(t *testing.T) {
	t.Parallel()

	var finalizedHash, unfinalizedHash chain.BlockHash
	finalizedHash[0], unfinalizedHash[0] = 1, 2

	candidates := []ChainCandidate{
		{TipHeight: 100, TipHash: finalizedHash, IsFinalized: true},
		{TipHeight: 150, TipHash: unfinalizedHash, IsFinalized: false},
	}
	best, ok := ResolveFork(candidates)
	if !ok {
		t.Fatal("expected a resolvable fork")
	}
	if best.TipHeight != 100 {
		t.Fatalf("an unfinalized tip must never win even if longer, got tip_height=%d", best.TipHeight)
	}
}

func TestResolveForkBreaksTiesByLowestTipHash(t *testing.T) {
	t.Parallel()

	var lower, higher chain.BlockHash
	lower[0], higher[0] = 1, 9

	candidates := []ChainCandidate{
		{TipHeight: 100, TipHash: higher, IsFinalized: true},
		{TipHeight: 100, TipHash: lower, IsFinalized: true},
	}
	best, ok := ResolveFork(candidates)
	if !ok {
		t.Fatal("expected a resolvable fork")
	}
	if best.TipHash != lower {
		t.Fatalf("got tip_hash=%x, want the lower of the two equal-height tips", best.TipHash)
	}
}

func TestResolveForkReturnsFalseWhenNoCandidateIsFinalized(t *testing.T) {
	t.Parallel()

	candidates := []ChainCandidate{
		{TipHeight: 100, IsFinalized: false},
	}
	if _, ok := ResolveFork(candidates); ok {
		t.Fatal("expected no resolvable fork when nothing is finalized")
	}
}
