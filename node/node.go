// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package node composes every MeshChain subsystem into one running
// node process: the event loop, task scheduler, and the single
// long-lived instances of chain state, storage, consensus, mempool,
// routing, peer, propagation, sync and wallet (spec.md §4.11, §5, §9
// "Global state").
package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/meshchain/meshchain/chain"
	"github.com/meshchain/meshchain/config"
	"github.com/meshchain/meshchain/consensus"
	"github.com/meshchain/meshchain/mempool"
	"github.com/meshchain/meshchain/peer"
	"github.com/meshchain/meshchain/propagator"
	"github.com/meshchain/meshchain/router"
	"github.com/meshchain/meshchain/storage"
	"github.com/meshchain/meshchain/sync"
	"github.com/meshchain/meshchain/wallet"
)

// Stats is a read-only snapshot of a running node's counters, the
// kind of thing an operator or a status RPC would want (spec.md §5
// "read-only snapshots may be returned to callers").
type Stats struct {
	TipHeight     uint32
	MempoolCount  int
	PeerCount     int
	EventsDropped uint64
	ForksDetected int
	SyncState     sync.State
	StorageErrors uint64
}

// Node is the single per-process composition root. Every field below
// is a single long-lived instance constructed once in New and never
// duplicated (spec.md §9 Global state): "Compose them via explicit
// construction in Node::new; no module-scope singletons."
type Node struct {
	cfg *config.Config

	chainState *chain.State
	store      *storage.Store

	registry *consensus.Registry
	stakeMgr *consensus.StakeManager
	selector *consensus.Selector

	mempool *mempool.Mempool

	dedup          *router.DedupTable
	broadcastCache *router.BroadcastCache
	routes         *router.RoutingTable

	peers      *peer.Table
	helloGuard *peer.HelloGuard

	prop *propagator.Propagator

	synchronizer *sync.Synchronizer
	forkDetector *sync.ForkDetector

	wallet *wallet.Wallet

	bus       *EventBus
	scheduler *Scheduler

	stopping      bool
	storageErrors uint64
}

// New composes a Node from cfg and a genesis block. Storage path and
// cache size, the peer table bound and the event-bus capacity come
// from cfg (spec.md §6); the registry, mempool and router tables use
// their packages' defaults.
func New(cfg *config.Config, genesis *chain.Block, now time.Time) (*Node, error) {
	if _, err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("node: invalid configuration: %w", err)
	}

	store, err := storage.NewStore(cfg.StoragePath, cfg.CacheSizeKB)
	if err != nil {
		return nil, fmt.Errorf("node: open storage: %w", err)
	}

	n := &Node{
		cfg:        cfg,
		chainState: chain.NewState(genesis),
		store:      store,

		registry: consensus.NewRegistry(consensus.DefaultMinStake, consensus.DefaultMaxStake),
		mempool:  mempool.New(mempool.DefaultMaxCount, mempool.DefaultMaxBytes),

		dedup:          router.NewDedupTable(router.DefaultMessageTimeout),
		broadcastCache: router.NewBroadcastCache(router.DefaultBroadcastTimeout, router.DefaultFloodMinInterval),
		routes:         router.NewRoutingTable(router.DefaultRouteTimeout, router.DefaultMaxHops),

		peers:      peer.NewTable(cfg.MaxPeers),
		helloGuard: peer.NewHelloGuard(peer.DefaultHeightRegressionTolerance, peer.DefaultHelloStalenessWindow),

		prop: propagator.New(),

		synchronizer: sync.New(),
		forkDetector: sync.NewForkDetector(),

		bus:       NewEventBus(cfg.TaskQueueSize),
		scheduler: NewScheduler(),
	}
	n.stakeMgr = consensus.NewStakeManager(n.registry)
	n.selector = consensus.NewSelector(n.registry)

	n.scheduler.Add("mempool_cleanup", time.Minute, now, func(t time.Time) {
		n.mempool.CleanupStale(mempool.DefaultMaxAge, t)
	})
	n.scheduler.Add("dedup_purge", router.DefaultCleanupInterval, now, func(t time.Time) {
		n.dedup.Purge(t)
		n.broadcastCache.Purge(t)
		n.routes.Cleanup(t)
	})
	n.scheduler.Add("sync_watchdog", 5*time.Second, now, func(t time.Time) {
		n.maybeRestartSync(t)
	})

	return n, nil
}

// AttachWallet gives the node an unlocked or locked wallet handle. A
// relay/light node may run with no wallet at all.
func (n *Node) AttachWallet(w *wallet.Wallet) {
	n.wallet = w
}

// maybeRestartSync implements the background re-sync loop (spec.md
// §4.10: "every 5s, if not Syncing and current_height <
// observed_peer_target, re-start sync"). observedPeerTarget is read
// from the best currently-known peer height.
func (n *Node) maybeRestartSync(now time.Time) {
	var target uint32
	for _, id := range n.peers.SelectPeersForBroadcast(n.peers.Len(), nil, now) {
		if p, ok := n.peers.Get(id); ok && p.BlockHeight > target {
			target = p.BlockHeight
		}
	}
	if n.synchronizer.ShouldRestartSync(n.chainState.TipHeight, target) {
		n.synchronizer.StartSync(n.chainState.TipHeight, target, now)
	}
}

// Stats returns a read-only snapshot of the node's counters.
func (n *Node) Stats() Stats {
	return Stats{
		TipHeight:     n.chainState.TipHeight,
		MempoolCount:  n.mempool.Count(),
		PeerCount:     n.peers.Len(),
		EventsDropped: n.bus.Dropped(),
		ForksDetected: len(n.forkDetector.ForksDetected()),
		SyncState:     n.synchronizer.State(),
		StorageErrors: n.storageErrors,
	}
}

// Enqueue offers an inbound event to the node's bus for the event
// loop to process on its next iteration.
func (n *Node) Enqueue(ev Event) error {
	return n.bus.Enqueue(ev)
}

// Stop requests the event loop exit at its next iteration (spec.md §5
// "stop() sets a flag; the event loop observes it on its next
// iteration").
func (n *Node) Stop() {
	n.stopping = true
}

// Stopped reports whether Stop has been called.
func (n *Node) Stopped() bool { return n.stopping }

// RunOnce drains at most one event (waiting up to timeout if the bus
// is empty) and runs any scheduler tasks that have come due,
// returning whether an event was processed.
func (n *Node) RunOnce(timeout time.Duration, now time.Time) bool {
	ev, ok := n.bus.Dequeue(timeout)
	if ok {
		n.dispatch(ev, now)
	}
	n.scheduler.RunDue(now)
	return ok
}

// Run drives the event loop until d has elapsed or Stop is called,
// waiting between iterations per the scheduler's computed backoff
// (spec.md §5 suspension point (c)).
func (n *Node) Run(d time.Duration, now func() time.Time) {
	deadline := now().Add(d)
	for !n.stopping && now().Before(deadline) {
		t := now()
		wait := n.scheduler.NextWait(t)
		n.RunOnce(wait, t)
	}
}

// dispatch routes one event to its handler. A handler's own error is
// isolated here and never propagated out of the loop (spec.md §7
// Internal: "handler exceptions inside the event loop; isolated per
// handler, errors counter incremented, loop continues").
func (n *Node) dispatch(ev Event, now time.Time) {
	switch ev.Kind {
	case EventBlockReceived:
		b, ok := ev.Payload.(*chain.Block)
		if !ok {
			return
		}
		n.handleBlock(b, now)
	case EventTxReceived:
		tx, ok := ev.Payload.(*chain.Transaction)
		if !ok {
			return
		}
		n.mempool.Insert(tx, now)
	case EventPeerHello:
		hello, ok := ev.Payload.(PeerHelloPayload)
		if !ok {
			return
		}
		n.handleHello(hello, now)
	case EventSyncBlock:
		b, ok := ev.Payload.(*chain.Block)
		if !ok {
			return
		}
		n.synchronizer.AddSyncBlock(b.Height, b.Encode(), now)
	}
}

// PeerHelloPayload is the decoded body of a PeerHello frame (spec.md
// §6 Peer discovery frame).
type PeerHelloPayload struct {
	NodeID      chain.NodeID
	BlockHeight uint32
	Stake       uint32
}

func (n *Node) handleHello(hello PeerHelloPayload, now time.Time) {
	if !n.helloGuard.Accept(hello.NodeID, hello.BlockHeight, now) {
		return
	}
	p := n.peers.Upsert(hello.NodeID, now)
	p.BlockHeight = hello.BlockHeight
	p.Stake = uint64(hello.Stake)
}

// handleBlock validates b against the known hash at its height (fork
// detection), then against chain continuity, applies it, and commits
// it to storage (spec.md §4.10/§8 invariant 1). A commit failure is
// retried at most once; if it still fails the error is counted and, if
// it signals on-disk corruption or a broken chain link, the
// synchronizer is kicked to resync from the last good height (spec.md
// §7: "IoError retried at most once, otherwise surfaced" / "Corrupted
// triggers resync").
func (n *Node) handleBlock(b *chain.Block, now time.Time) {
	hash := b.Hash()
	if _, detected := n.forkDetector.Observe(b.Height, hash); detected {
		return
	}
	if err := n.chainState.ValidateForAppend(b); err != nil {
		return
	}
	lastGood := n.chainState.TipHeight
	n.chainState.Apply(b)

	encoded := b.Encode()
	err := n.store.AddBlock(b.Height, hash, encoded, b.PreviousHash)
	if err != nil {
		err = n.store.AddBlock(b.Height, hash, encoded, b.PreviousHash)
	}
	if err != nil {
		n.storageErrors++
		if errors.Is(err, storage.ErrCorrupted) || errors.Is(err, storage.ErrPreviousHashBreak) {
			n.synchronizer.StartSync(lastGood, b.Height, now)
		}
	}
}

// Shutdown performs the mandated ordered teardown (spec.md §9: "stop
// loop -> stop propagator/scheduler -> flush storage -> zeroize
// wallet").
func (n *Node) Shutdown() error {
	n.Stop()
	n.scheduler = NewScheduler()
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("node: flush storage: %w", err)
	}
	if n.wallet != nil {
		n.wallet.Lock()
	}
	return nil
}
