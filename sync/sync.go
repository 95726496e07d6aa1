// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sync implements the synchronizer state machine and fork
// detection/resolution (spec.md §4.10).
package sync

import (
	"errors"
	"time"

	"github.com/meshchain/meshchain/chain"
)

// State is a sync session's state (spec.md §4.10).
type State int

const (
	Idle State = iota
	Syncing
	Synced
	Error
)

func (s State) String() string {
	switch s {
	case Syncing:
		return "Syncing"
	case Synced:
		return "Synced"
	case Error:
		return "Error"
	default:
		return "Idle"
	}
}

var (
	ErrAlreadySyncing = errors.New("sync: a sync session is already in progress")
	ErrNotSyncing     = errors.New("sync: no sync session is in progress")
)

// Stats tracks completed-session timing (spec.md §4.10 "total_sync_time,
// avg_sync_time").
type Stats struct {
	SessionsCompleted int
	TotalSyncTime     time.Duration
	AvgSyncTime       time.Duration
}

// pendingBlock is a block received mid-session, queued until the
// caller applies it to chain state.
type pendingBlock struct {
	height uint32
	bytes  []byte
}

// Synchronizer drives one node's block-sync session (spec.md §4.10).
// A node has exactly one live instance (spec.md §5 Global state).
type Synchronizer struct {
	state State

	targetHeight    uint32
	blocksSynced    uint32
	blocksRemaining uint32
	lastUpdate      time.Time
	startedAt       time.Time

	queue []pendingBlock
	stats Stats
}

// New constructs an idle synchronizer.
func New() *Synchronizer {
	return &Synchronizer{state: Idle}
}

// State returns the current session state.
func (s *Synchronizer) State() State { return s.state }

// StartSync begins a session targeting targetHeight, starting from
// currentHeight. Rejected if already Syncing (spec.md §4.10
// start_sync).
func (s *Synchronizer) StartSync(currentHeight, targetHeight uint32, now time.Time) error {
	if s.state == Syncing {
		return ErrAlreadySyncing
	}
	s.state = Syncing
	s.targetHeight = targetHeight
	s.blocksSynced = 0
	if targetHeight > currentHeight {
		s.blocksRemaining = targetHeight - currentHeight
	} else {
		s.blocksRemaining = 0
	}
	s.queue = nil
	s.startedAt = now
	s.lastUpdate = now
	return nil
}

// AddSyncBlock records a received block during a session, decrementing
// blocks_remaining and bumping last_update (spec.md §4.10
// add_sync_block). The session auto-completes successfully once
// blocks_remaining reaches zero.
func (s *Synchronizer) AddSyncBlock(height uint32, bytes []byte, now time.Time) error {
	if s.state != Syncing {
		return ErrNotSyncing
	}
	s.queue = append(s.queue, pendingBlock{height: height, bytes: bytes})
	s.blocksSynced++
	if s.blocksRemaining > 0 {
		s.blocksRemaining--
	}
	s.lastUpdate = now

	if s.blocksRemaining == 0 {
		s.completeSync(true, now)
	}
	return nil
}

// DrainQueue returns and clears the blocks queued so far for the
// caller to apply to chain state.
func (s *Synchronizer) DrainQueue() [][]byte {
	out := make([][]byte, len(s.queue))
	for i, p := range s.queue {
		out[i] = p.bytes
	}
	s.queue = nil
	return out
}

// CompleteSync ends the session under caller control, e.g. on a
// timeout or unrecoverable peer failure (spec.md §4.10 complete_sync).
func (s *Synchronizer) CompleteSync(ok bool, now time.Time) error {
	if s.state != Syncing {
		return ErrNotSyncing
	}
	s.completeSync(ok, now)
	return nil
}

func (s *Synchronizer) completeSync(ok bool, now time.Time) {
	if ok {
		s.state = Synced
	} else {
		s.state = Error
	}
	elapsed := now.Sub(s.startedAt)
	s.stats.SessionsCompleted++
	s.stats.TotalSyncTime += elapsed
	s.stats.AvgSyncTime = s.stats.TotalSyncTime / time.Duration(s.stats.SessionsCompleted)
}

// Stats returns the cumulative session-timing statistics.
func (s *Synchronizer) Stats() Stats { return s.stats }

// BlocksSynced and BlocksRemaining expose session progress counters.
func (s *Synchronizer) BlocksSynced() uint32    { return s.blocksSynced }
func (s *Synchronizer) BlocksRemaining() uint32 { return s.blocksRemaining }

// ShouldRestartSync implements the background re-sync check (spec.md
// §4.10 "every 5s, if not Syncing and current_height <
// observed_peer_target, re-start sync").
func (s *Synchronizer) ShouldRestartSync(currentHeight, observedPeerTarget uint32) bool {
	return s.state != Syncing && currentHeight < observedPeerTarget
}

// ForkEvent describes a detected fork (spec.md §4.10 Fork detection).
type ForkEvent struct {
	Height       uint32
	KnownHash    chain.BlockHash
	ConflictHash chain.BlockHash
}

// ForkDetector tracks the single known-canonical hash per height and
// raises a ForkEvent when a different hash arrives at a height already
// recorded (spec.md §4.10).
type ForkDetector struct {
	knownHash map[uint32]chain.BlockHash
	detected  []ForkEvent
}

// NewForkDetector constructs an empty detector.
func NewForkDetector() *ForkDetector {
	return &ForkDetector{knownHash: make(map[uint32]chain.BlockHash)}
}

// Observe records hash at height, returning a ForkEvent if a different
// hash was already known at that height.
func (f *ForkDetector) Observe(height uint32, hash chain.BlockHash) (ForkEvent, bool) {
	known, ok := f.knownHash[height]
	if !ok {
		f.knownHash[height] = hash
		return ForkEvent{}, false
	}
	if known == hash {
		return ForkEvent{}, false
	}
	event := ForkEvent{Height: height, KnownHash: known, ConflictHash: hash}
	f.detected = append(f.detected, event)
	return event, true
}

// ForksDetected returns every fork event recorded so far.
func (f *ForkDetector) ForksDetected() []ForkEvent {
	return f.detected
}

// ChainCandidate is one of the competing chains a fork resolution
// chooses between.
type ChainCandidate struct {
	TipHeight   uint32
	TipHash     chain.BlockHash
	IsFinalized bool
}

// ResolveFork picks the canonical chain among candidates: the longest
// chain whose tip is finalized, ties broken by lowest tip hash
// (spec.md §4.10 Resolution). Returns ok=false if no candidate's tip
// is finalized.
func ResolveFork(candidates []ChainCandidate) (ChainCandidate, bool) {
	var best ChainCandidate
	found := false
	for _, c := range candidates {
		if !c.IsFinalized {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		if c.TipHeight > best.TipHeight {
			best = c
		} else if c.TipHeight == best.TipHeight && lessHash(c.TipHash, best.TipHash) {
			best = c
		}
	}
	return best, found
}

func lessHash(a, b chain.BlockHash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
