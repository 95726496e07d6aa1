// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package router

import (
	"testing"
	"time"

	"github.com/meshchain/meshchain/chain"
)

func TestDedupTableFirstReceiptProcessedSubsequentDropped(t *testing.T) {
	t.Parallel()

	d := NewDedupTable(time.Minute)
	now := time.Now()
	var hash MessageHash
	hash[0] = 1

	if !d.Observe(hash, chain.NodeID{1}, now) {
		t.Fatal("first receipt should be processed")
	}
	if d.Observe(hash, chain.NodeID{2}, now) {
		t.Fatal("second receipt of the same hash should be dropped")
	}
	if d.Dropped() != 1 {
		t.Fatalf("got dropped=%d, want 1", d.Dropped())
	}
}

func TestDedupTablePurgeEvictsExpiredEntries(t *testing.T) {
	t.Parallel()

	d := NewDedupTable(time.Minute)
	now := time.Now()
	var hash MessageHash
	hash[0] = 1
	d.Observe(hash, chain.NodeID{1}, now)

	removed := d.Purge(now.Add(2 * time.Minute))
	if removed != 1 {
		t.Fatalf("got removed=%d, want 1", removed)
	}
	// After purge, the same hash is treated as new again.
	if !d.Observe(hash, chain.NodeID{1}, now.Add(2*time.Minute)) {
		t.Fatal("a purged entry should be processed as new")
	}
}

func TestBroadcastCacheRespectsFloodMinInterval(t *testing.T) {
	t.Parallel()

	c := NewBroadcastCache(5*time.Minute, 5*time.Second)
	now := time.Now()
	var hash MessageHash
	hash[0] = 1

	if !c.ShouldBroadcastFlood(hash, now) {
		t.Fatal("never-flooded hash should be eligible immediately")
	}
	c.RecordFlood(hash, now)

	if c.ShouldBroadcastFlood(hash, now.Add(time.Second)) {
		t.Fatal("re-flood within flood_min_interval should be refused")
	}
	if !c.ShouldBroadcastFlood(hash, now.Add(6*time.Second)) {
		t.Fatal("re-flood past flood_min_interval should be allowed")
	}
}

func TestAddRouteOnlyReplacesOnStrictlyBetterMetric(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(time.Minute, 3)
	dest := chain.NodeID{9}
	now := time.Now()

	good := Route{Destination: dest, HopCount: 1, Metric: RouteMetric{HopCount: 1}, LastUpdated: now}
	if !rt.AddRoute(dest, good) {
		t.Fatal("first route to a destination should always be added")
	}

	equal := Route{Destination: dest, HopCount: 1, Metric: RouteMetric{HopCount: 1}, LastUpdated: now}
	if rt.AddRoute(dest, equal) {
		t.Fatal("an equal-metric route must not replace the existing one")
	}

	worse := Route{Destination: dest, HopCount: 2, Metric: RouteMetric{HopCount: 2}, LastUpdated: now}
	if rt.AddRoute(dest, worse) {
		t.Fatal("a worse-metric route must not replace the existing one")
	}

	better := Route{Destination: dest, HopCount: 0, Metric: RouteMetric{HopCount: 0}, LastUpdated: now}
	if !rt.AddRoute(dest, better) {
		t.Fatal("a strictly better route must replace the existing one")
	}
}

func TestGetRouteEvictsStaleEntryAndFiresHook(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(time.Minute, 3)
	dest := chain.NodeID{9}
	now := time.Now()
	rt.AddRoute(dest, Route{Destination: dest, LastUpdated: now})

	var expiredCalled bool
	rt.SetOnRouteExpired(func(d chain.NodeID, r Route) {
		expiredCalled = true
		if d != dest {
			t.Fatalf("hook called with wrong destination: %v", d)
		}
	})

	if _, ok := rt.GetRoute(dest, now.Add(2*time.Minute)); ok {
		t.Fatal("expected the stale route to be evicted")
	}
	if !expiredCalled {
		t.Fatal("on_route_expired hook should have fired")
	}
}

func TestCalculateHopLimitFallsBackToMaxHopsWithoutARoute(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(time.Minute, 3)
	dest := chain.NodeID{9}
	if got := rt.CalculateHopLimit(dest, time.Now()); got != 3 {
		t.Fatalf("got %d, want max_hops=3", got)
	}
}

func TestCalculateHopLimitCapsAtMaxHops(t *testing.T) {
	t.Parallel()

	rt := NewRoutingTable(time.Minute, 3)
	dest := chain.NodeID{9}
	now := time.Now()
	rt.AddRoute(dest, Route{Destination: dest, HopCount: 5, Metric: RouteMetric{HopCount: 5}, LastUpdated: now})

	if got := rt.CalculateHopLimit(dest, now); got != 3 {
		t.Fatalf("got %d, want max_hops=3 (hop_count+1=6 capped)", got)
	}
}

func TestRouteMetricCombinedLowerIsBetter(t *testing.T) {
	t.Parallel()

	good := RouteMetric{HopCount: 1, LinkQuality: 0.9, Reputation: 0.9, Latency: 10, Bandwidth: 100}
	bad := RouteMetric{HopCount: 3, LinkQuality: 0.1, Reputation: 0.1, Latency: 500, Bandwidth: 1}

	if good.Combined() >= bad.Combined() {
		t.Fatalf("expected the good route to score lower: good=%v bad=%v", good.Combined(), bad.Combined())
	}
}
