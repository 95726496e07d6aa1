// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package consensus

import "sort"

// DefaultTargetGini is the advisory wealth-distribution target
// spec.md §4.5 names; nothing in the core gates behavior on it.
const DefaultTargetGini = 0.35

// Gini computes the Gini coefficient over a set of effective stakes,
// clamped to [0, 1]. Returns 0 when there are fewer than two entries or
// their sum is zero (spec.md §4.5).
func Gini(effectiveStakes []uint64) float64 {
	n := len(effectiveStakes)
	if n <= 1 {
		return 0
	}

	sorted := make([]uint64, n)
	copy(sorted, effectiveStakes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum uint64
	for _, x := range sorted {
		sum += x
	}
	if sum == 0 {
		return 0
	}

	var weighted float64
	for i, x := range sorted {
		weighted += float64(i+1) * float64(x)
	}

	g := (2*weighted)/(float64(n)*float64(sum)) - float64(n+1)/float64(n)
	if g < 0 {
		return 0
	}
	if g > 1 {
		return 1
	}
	return g
}
