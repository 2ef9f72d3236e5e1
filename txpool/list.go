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
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// nonceHeap is a heap.Interface implementation over 64bit unsigned integers for
// retrieving sorted transactions from the possibly gapped ledger.
type nonceHeap []uint64

func (h nonceHeap) Len() int           { return len(h) }
func (h nonceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nonceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nonceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *nonceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = 0
	*h = old[0 : n-1]
	return x
}

// sortedMap is a nonce->entry map with a heap based index to allow iterating
// over the contents in a nonce-incrementing way.
type sortedMap struct {
	items map[uint64]*pooledTx // Hash map storing the entries
	index *nonceHeap           // Heap of nonces of all the stored entries
	cache []*pooledTx          // Cache of the entries already sorted
}

// newSortedMap creates a new nonce-sorted entry map.
func newSortedMap() *sortedMap {
	return &sortedMap{
		items: make(map[uint64]*pooledTx),
		index: new(nonceHeap),
	}
}

// Get retrieves the current entry associated with the given nonce.
func (m *sortedMap) Get(nonce uint64) *pooledTx {
	return m.items[nonce]
}

// Put inserts a new entry into the map, also updating the map's nonce index.
// If an entry already exists with the same nonce, it's overwritten.
func (m *sortedMap) Put(p *pooledTx) {
	nonce := p.tx.Nonce()
	if m.items[nonce] == nil {
		heap.Push(m.index, nonce)
	}
	m.items[nonce], m.cache = p, nil
}

// Forward removes all entries from the map with a nonce lower than the
// provided threshold. Every removed entry is returned for any post-removal
// maintenance.
func (m *sortedMap) Forward(threshold uint64) []*pooledTx {
	var removed []*pooledTx

	// Pop off heap items until the threshold is reached
	for m.index.Len() > 0 && (*m.index)[0] < threshold {
		nonce := heap.Pop(m.index).(uint64)
		removed = append(removed, m.items[nonce])
		delete(m.items, nonce)
	}
	// If we had a cached order, shift the front
	if m.cache != nil {
		m.cache = m.cache[len(removed):]
	}
	return removed
}

// Filter iterates over the entries and removes all of them for which the
// specified function evaluates to true. The heap and cache are regenerated
// afterwards if anything was removed.
func (m *sortedMap) Filter(filter func(*pooledTx) bool) []*pooledTx {
	var removed []*pooledTx

	for nonce, p := range m.items {
		if filter(p) {
			removed = append(removed, p)
			delete(m.items, nonce)
		}
	}
	if len(removed) > 0 {
		m.reheap()
	}
	return removed
}

func (m *sortedMap) reheap() {
	*m.index = make([]uint64, 0, len(m.items))
	for nonce := range m.items {
		*m.index = append(*m.index, nonce)
	}
	heap.Init(m.index)
	m.cache = nil
}

// Cap places a hard limit on the number of items, returning all entries
// exceeding that limit. The highest nonced entries go first.
func (m *sortedMap) Cap(threshold int) []*pooledTx {
	// Short circuit if the number of items is under the limit
	if len(m.items) <= threshold {
		return nil
	}
	// Otherwise gather and drop the highest nonce'd entries
	var drops []*pooledTx
	slices.Sort(*m.index)
	for size := len(m.items); size > threshold; size-- {
		drops = append(drops, m.items[(*m.index)[size-1]])
		delete(m.items, (*m.index)[size-1])
	}
	*m.index = (*m.index)[:threshold]
	// The sorted m.index slice is still a valid heap, so there is no need to
	// reheap after deleting tail items.
	if m.cache != nil {
		m.cache = m.cache[:len(m.cache)-len(drops)]
	}
	return drops
}

// Remove deletes an entry from the maintained map, returning whether the
// entry was found.
func (m *sortedMap) Remove(nonce uint64) bool {
	// Short circuit if no entry is present
	_, ok := m.items[nonce]
	if !ok {
		return false
	}
	// Otherwise delete the entry and fix the heap index
	for i := 0; i < m.index.Len(); i++ {
		if (*m.index)[i] == nonce {
			heap.Remove(m.index, i)
			break
		}
	}
	delete(m.items, nonce)
	m.cache = nil
	return true
}

// Len returns the length of the entry map.
func (m *sortedMap) Len() int {
	return len(m.items)
}

// Flatten creates a nonce-sorted slice of entries based on the loosely sorted
// internal representation. The result of the sorting is cached in case it's
// requested again before any modifications are made to the contents.
func (m *sortedMap) Flatten() []*pooledTx {
	if m.cache == nil {
		m.cache = make([]*pooledTx, 0, len(m.items))
		for _, p := range m.items {
			m.cache = append(m.cache, p)
		}
		sort.Slice(m.cache, func(i, j int) bool {
			return m.cache[i].tx.Nonce() < m.cache[j].tx.Nonce()
		})
	}
	txs := make([]*pooledTx, len(m.cache))
	copy(txs, m.cache)
	return txs
}

// LastElement returns the entry with the highest nonce, or nil if empty.
func (m *sortedMap) LastElement() *pooledTx {
	if len(m.items) == 0 {
		return nil
	}
	cache := m.Flatten()
	return cache[len(cache)-1]
}

// list is the ledger of one sender's pool entries, sorted by account nonce.
// Unlike an executable-only queue, the ledger may be gapped: classification,
// not membership, decides whether an entry is servable.
type list struct {
	txs *sortedMap // Heap indexed sorted hash map of the entries

	totalcost *uint256.Int // Total cost of all entries in the ledger
}

// newList creates a new ledger for maintaining one sender's nonce-indexed
// transactions.
func newList() *list {
	return &list{
		txs:       newSortedMap(),
		totalcost: new(uint256.Int),
	}
}

// Contains returns whether the ledger holds an entry with the provided nonce.
func (l *list) Contains(nonce uint64) bool {
	return l.txs.Get(nonce) != nil
}

// Get returns the entry at the provided nonce, or nil.
func (l *list) Get(nonce uint64) *pooledTx {
	return l.txs.Get(nonce)
}

// Add tries to insert a new entry into the ledger, returning whether it was
// accepted, and if yes, any previous entry it replaced.
//
// A same-nonce submission is a replacement attempt: it is only accepted if
// every fee component exceeds the old entry's by at least priceBump percent
// (blobBump percent for the blob fee cap). Otherwise the old entry stays
// untouched and the add reports failure.
func (l *list) Add(p *pooledTx, priceBump, blobBump uint64) (bool, *pooledTx) {
	old := l.txs.Get(p.tx.Nonce())
	if old != nil {
		if !bumpedEnough(old.tx, p.tx, priceBump, blobBump) {
			return false, nil
		}
		// Old is being replaced, subtract old cost
		l.subTotalCost([]*pooledTx{old})
	}
	l.totalcost.Add(l.totalcost, p.cost)
	l.txs.Put(p)
	return true, old
}

// Put inserts an entry unconditionally, displacing any same-nonce one. It is
// the reinstatement path for rolled back admissions; new submissions go
// through Add and its replacement policy.
func (l *list) Put(p *pooledTx) {
	if old := l.txs.Get(p.tx.Nonce()); old != nil {
		l.subTotalCost([]*pooledTx{old})
	}
	l.totalcost.Add(l.totalcost, p.cost)
	l.txs.Put(p)
}

// bumpedEnough checks the replacement policy: both the fee cap and the tip
// cap of the newcomer must strictly exceed the old values by the configured
// percentage, and likewise the blob fee cap if blobs are carried.
func bumpedEnough(oldTx, newTx *types.Transaction, priceBump, blobBump uint64) bool {
	if oldTx.GasFeeCapCmp(newTx) >= 0 || oldTx.GasTipCapCmp(newTx) >= 0 {
		return false
	}
	// thresholdFeeCap = oldFC  * (100 + priceBump) / 100
	a := big.NewInt(100 + int64(priceBump))
	aFeeCap := new(big.Int).Mul(a, oldTx.GasFeeCap())
	aTip := a.Mul(a, oldTx.GasTipCap())

	// thresholdTip    = oldTip * (100 + priceBump) / 100
	b := big.NewInt(100)
	thresholdFeeCap := aFeeCap.Div(aFeeCap, b)
	thresholdTip := aTip.Div(aTip, b)

	// We have to ensure that both the new fee cap and tip are higher than the
	// old ones as well as checking the percentage threshold to ensure that
	// this is accurate for low (Wei-level) gas price replacements.
	if newTx.GasFeeCapIntCmp(thresholdFeeCap) < 0 || newTx.GasTipCapIntCmp(thresholdTip) < 0 {
		return false
	}
	if oldTx.Type() == types.BlobTxType && newTx.Type() == types.BlobTxType {
		oldBlobFee, newBlobFee := oldTx.BlobGasFeeCap(), newTx.BlobGasFeeCap()
		if newBlobFee.Cmp(oldBlobFee) <= 0 {
			return false
		}
		c := big.NewInt(100 + int64(blobBump))
		thresholdBlobFee := new(big.Int).Mul(c, oldBlobFee)
		thresholdBlobFee.Div(thresholdBlobFee, b)
		if newBlobFee.Cmp(thresholdBlobFee) < 0 {
			return false
		}
	}
	return true
}

// Forward removes all entries from the ledger with a nonce lower than the
// provided threshold. Every removed entry is returned for any post-removal
// maintenance.
func (l *list) Forward(threshold uint64) []*pooledTx {
	txs := l.txs.Forward(threshold)
	l.subTotalCost(txs)
	return txs
}

// Filter removes all entries for which the specified function evaluates to
// true, returning them for post-removal maintenance.
func (l *list) Filter(filter func(*pooledTx) bool) []*pooledTx {
	removed := l.txs.Filter(filter)
	l.subTotalCost(removed)
	return removed
}

// Cap places a hard limit on the number of items, returning all entries
// exceeding that limit, highest nonces first.
func (l *list) Cap(threshold int) []*pooledTx {
	txs := l.txs.Cap(threshold)
	l.subTotalCost(txs)
	return txs
}

// Remove deletes the entry at the given nonce from the ledger, returning
// whether it was found.
func (l *list) Remove(nonce uint64) (bool, *pooledTx) {
	p := l.txs.Get(nonce)
	if p == nil {
		return false, nil
	}
	l.txs.Remove(nonce)
	l.subTotalCost([]*pooledTx{p})
	return true, p
}

// Len returns the number of entries in the ledger.
func (l *list) Len() int {
	return l.txs.Len()
}

// Empty returns whether the ledger holds no entries.
func (l *list) Empty() bool {
	return l.Len() == 0
}

// Flatten returns the ledger's entries sorted by nonce.
func (l *list) Flatten() []*pooledTx {
	return l.txs.Flatten()
}

// LastElement returns the entry with the highest nonce, or nil if empty.
func (l *list) LastElement() *pooledTx {
	return l.txs.LastElement()
}

// TotalCost returns the cumulative cost of all entries in the ledger.
func (l *list) TotalCost() *uint256.Int {
	return new(uint256.Int).Set(l.totalcost)
}

// subTotalCost subtracts the cost of the given entries from the total cost of
// the ledger.
func (l *list) subTotalCost(txs []*pooledTx) {
	for _, p := range txs {
		_, underflow := l.totalcost.SubOverflow(l.totalcost, p.cost)
		if underflow {
			panic("ledger totalcost underflow")
		}
	}
}
