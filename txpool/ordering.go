// Copyright 2024 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package txpool

import (
	"container/heap"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// PriorityPolicy assigns a scalar priority to a transaction under the current
// fee environment. Higher priorities are served first; equal priorities fall
// back to submission order.
//
// Implementations must be pure functions of the transaction and the supplied
// fees: the pool recomputes priorities only when the canonical head (and thus
// the base fee) moves.
type PriorityPolicy interface {
	// Priority returns the scheduling score of the given transaction at the
	// given base fee. The result must never be nil.
	Priority(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int
}

// effectiveTipPolicy scores transactions by their effective miner tip, i.e.
// min(tipCap, feeCap-baseFee), clamped at zero when the fee cap is below the
// current base fee.
type effectiveTipPolicy struct{}

func (effectiveTipPolicy) Priority(tx *types.Transaction, baseFee *uint256.Int) *uint256.Int {
	var baseFeeBig *big.Int
	if baseFee != nil {
		baseFeeBig = baseFee.ToBig()
	}
	tip := tx.EffectiveGasTipValue(baseFeeBig)
	if tip.Sign() < 0 {
		return new(uint256.Int)
	}
	prio, _ := uint256.FromBig(tip)
	return prio
}

// evictEntry is one heap slot: the entry plus the readiness it was tracked
// under. Readiness is part of the eviction key, so a copy tracked under an
// outdated verdict is stale and shed on pop.
type evictEntry struct {
	p         *pooledTx
	readiness txReadiness
}

// worse ranks two heap slots for eviction. Entries furthest from inclusion go
// first: gapped before parked before ready. Within one readiness class the
// lower priority is worse, and among equal priorities the later arrival
// (higher sequence) is worse, the exact inverse of the service order. The
// three plain sub-pools each hold a single readiness class, so the first key
// only bites in the blob sub-pool, which mixes all three.
func worse(a, b evictEntry) bool {
	if a.readiness != b.readiness {
		return a.readiness > b.readiness
	}
	if cmp := a.p.priority.Cmp(b.p.priority); cmp != 0 {
		return cmp < 0
	}
	return a.p.seq > b.p.seq
}

// evictHeap is a min-heap of pool entries keyed by eviction order, one per
// sub-pool. Entries are never removed eagerly on reclassification or drop;
// instead each pop is checked against the live index and stale hits are
// discarded on the spot.
type evictHeap struct {
	tag    SubPool
	items  []evictEntry
	stales int
}

func newEvictHeap(tag SubPool) *evictHeap {
	return &evictHeap{tag: tag}
}

func (h *evictHeap) Len() int           { return len(h.items) }
func (h *evictHeap) Less(i, j int) bool { return worse(h.items[i], h.items[j]) }
func (h *evictHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *evictHeap) Push(x interface{}) {
	h.items = append(h.items, x.(evictEntry))
}

func (h *evictHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	x := old[n-1]
	old[n-1] = evictEntry{}
	h.items = old[0 : n-1]
	return x
}

// Track registers an entry as a member of this heap's sub-pool under its
// current readiness. Old copies of the same entry from earlier
// classifications may linger here or in other heaps; they are shed lazily on
// pop.
func (h *evictHeap) Track(p *pooledTx) {
	heap.Push(h, evictEntry{p: p, readiness: p.readiness})
}

// PopWorst removes and returns the worst live entry of the sub-pool, skipping
// any stale copies whose transaction has since been dropped, replaced or
// reclassified elsewhere. Returns nil if the sub-pool is empty.
func (h *evictHeap) PopWorst(all *lookup) *pooledTx {
	for h.Len() > 0 {
		e := heap.Pop(h).(evictEntry)
		if live := all.Get(e.p.hash); live == e.p && live.subpool == h.tag && live.readiness == e.readiness {
			return e.p
		}
		h.stales++
	}
	return nil
}

// Reheap rebuilds the heap from the live index after a priority change, e.g.
// when a new head moved the base fee under every entry.
func (h *evictHeap) Reheap(all *lookup) {
	h.items = h.items[:0]
	h.stales = 0
	all.Range(func(hash common.Hash, p *pooledTx) bool {
		if p.subpool == h.tag {
			h.items = append(h.items, evictEntry{p: p, readiness: p.readiness})
		}
		return true
	})
	heap.Init(h)
}
