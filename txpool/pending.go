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
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// LazyTransaction contains a small subset of the transaction properties that
// is enough for block building to make scheduling decisions, alongside a
// resolver to pull up the full transaction only if it is actually included.
type LazyTransaction struct {
	Pool LazyResolver       // Transaction resolver to pull the real transaction up
	Hash common.Hash        // Transaction hash to pull up if needed
	Tx   *types.Transaction // Transaction if already resolved

	Time      time.Time    // Time when the transaction was first seen
	GasFeeCap *uint256.Int // Maximum fee per gas the transaction may consume
	GasTipCap *uint256.Int // Maximum miner tip per gas the transaction can pay

	Gas     uint64 // Amount of gas required by the transaction
	BlobGas uint64 // Amount of blob gas required by the transaction
}

// Resolve retrieves the full transaction belonging to a lazy handle if it is
// still maintained by the pool.
func (ltx *LazyTransaction) Resolve() *types.Transaction {
	if ltx.Tx == nil {
		ltx.Tx = ltx.Pool.Get(ltx.Hash)
	}
	return ltx.Tx
}

// LazyResolver is a minimal interface needed for a transaction pool to satisfy
// resolving lazy transactions. It's mostly a helper to avoid the entire pool
// as a dependency.
type LazyResolver interface {
	// Get returns a transaction if it is contained in the pool, or nil otherwise.
	Get(hash common.Hash) *types.Transaction
}

// PendingFilter is a collection of filter rules to allow retrieving a subset
// of transactions for announcement or mining.
//
// Note, the entries here are not arbitrary useful filters, rather each one has
// a very specific call site in mind and each one can be evaluated very cheaply
// by the pool implementations. Only add new ones that satisfy those constraints.
type PendingFilter struct {
	MinTip  *uint256.Int // Minimum miner tip required to include a transaction
	BaseFee *uint256.Int // Minimum 1559 basefee needed to include a transaction
	BlobFee *uint256.Int // Minimum 4844 blobfee needed to include a blob transaction

	OnlyPlainTxs bool // Return only plain EVM transactions (peer-join announces, block space filling)
	OnlyBlobTxs  bool // Return only blob transactions (sidecar announces)

	Limit int // Maximum number of accounts to return, 0 for all

	ExcludeSenders mapset.Set[common.Address] // Sender accounts to skip entirely
}

// pendingTx is one entry of the pending feed: the lazy handle plus the
// scheduling score captured when the snapshot was taken.
type pendingTx struct {
	lazy *LazyTransaction
	prio *uint256.Int
	seq  uint64
}

// PendingSet is a point-in-time snapshot of the servable transactions,
// iterable in priority order while respecting per-sender nonce order. It is
// detached from the pool: the caller consumes it without holding any pool
// locks, at the risk of the content going stale underneath.
type PendingSet struct {
	tails map[common.Address][]*pendingTx // Per account nonce-sorted list of transactions
	heads headsByPriority                 // Next transaction for each unique account, priority sorted
}

type headEntry struct {
	from common.Address
	p    *pendingTx
}

type headsByPriority []headEntry

func (h headsByPriority) Len() int { return len(h) }
func (h headsByPriority) Less(i, j int) bool {
	if cmp := h[i].p.prio.Cmp(h[j].p.prio); cmp != 0 {
		return cmp > 0
	}
	return h[i].p.seq < h[j].p.seq
}
func (h headsByPriority) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *headsByPriority) Push(x interface{}) {
	*h = append(*h, x.(headEntry))
}

func (h *headsByPriority) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// newPendingSet wraps the per-sender tails into an iterable snapshot. Each
// tail must be nonce-sorted and non-empty.
func newPendingSet(tails map[common.Address][]*pendingTx) *PendingSet {
	heads := make(headsByPriority, 0, len(tails))
	for from, txs := range tails {
		heads = append(heads, headEntry{from: from, p: txs[0]})
		tails[from] = txs[1:]
	}
	heap.Init(&heads)
	return &PendingSet{tails: tails, heads: heads}
}

// Empty reports whether the snapshot has been fully consumed.
func (s *PendingSet) Empty() bool {
	return len(s.heads) == 0
}

// Peek returns the next transaction by priority without advancing, together
// with its priority score.
func (s *PendingSet) Peek() (*LazyTransaction, *uint256.Int) {
	if len(s.heads) == 0 {
		return nil, nil
	}
	return s.heads[0].p.lazy, s.heads[0].p.prio
}

// Shift consumes the current best transaction and replaces it with the next
// one from the same account, if any. Use it after the transaction has been
// taken for inclusion.
func (s *PendingSet) Shift() {
	if len(s.heads) == 0 {
		return
	}
	from := s.heads[0].from
	if txs := s.tails[from]; len(txs) > 0 {
		s.heads[0].p, s.tails[from] = txs[0], txs[1:]
		heap.Fix(&s.heads, 0)
		return
	}
	heap.Pop(&s.heads)
}

// Pop removes the current best transaction along with the rest of the same
// account. Use it when a transaction cannot be executed, invalidating every
// later one from the sender.
func (s *PendingSet) Pop() {
	if len(s.heads) == 0 {
		return
	}
	from := s.heads[0].from
	delete(s.tails, from)
	heap.Pop(&s.heads)
}
