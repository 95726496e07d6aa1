// Copyright (c) 2024 The MeshChain developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import "sort"

// confirmationPercentile maps a requested confirmation target (in
// blocks) to the fee-rate percentile a transaction should clear to
// meet it: a tighter target demands a higher percentile. Matches the
// shape of the prototype's wallet_utils.py estimate_fee, which favors
// fast confirmation over precise queueing-theoretic modeling given how
// few transactions a mesh block actually carries (spec.md §3
// MaxTxPerBlock = 5).
func confirmationPercentile(confTarget int) float64 {
	switch {
	case confTarget <= 1:
		return 0.90
	case confTarget <= 3:
		return 0.75
	case confTarget <= 6:
		return 0.50
	default:
		return 0.25
	}
}

// FeeEstimate sorts current mempool entries by fee rate and returns
// the rate at confTarget's percentile as a suggested fee rate for a transaction that wants to confirm within
// confTarget blocks (spec.md §C item 4 supplemented feature). Returns 0
// when the mempool is empty -- callers should fall back to a
// configured minimum relay fee.
func (m *Mempool) FeeEstimate(confTarget int) float64 {
	if len(m.order) == 0 {
		return 0
	}
	rates := make([]float64, 0, len(m.order))
	for _, id := range m.order {
		rates = append(rates, m.byID[id].feeRate())
	}
	sort.Float64s(rates)

	idx := int(confirmationPercentile(confTarget) * float64(len(rates)-1))
	return rates[idx]
}
