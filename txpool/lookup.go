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
	"github.com/ethereum/go-ethereum/common"
)

// lookup is the canonical owner of all pool entries, keyed by transaction
// hash. Ledgers and subpool indices store references resolved through it, so
// removing a hash here is the authoritative "gone" signal for lazy indices.
//
// The lookup also keeps the pool-wide resource counters (slots, bytes, blob
// bytes) incrementally, so capacity checks never have to walk the contents.
type lookup struct {
	txs map[common.Hash]*pooledTx

	slots     uint64 // DoS-protection slots occupied by all entries
	bytes     uint64 // encoded size of all non-blob entries
	blobBytes uint64 // encoded size of all blob entries, budgeted separately
}

// newLookup creates a new index for tracking pool entries by hash.
func newLookup() *lookup {
	return &lookup{
		txs: make(map[common.Hash]*pooledTx),
	}
}

// Get returns the entry with the given hash, or nil if not tracked.
func (l *lookup) Get(hash common.Hash) *pooledTx {
	return l.txs[hash]
}

// Contains reports whether a transaction with the given hash is tracked.
func (l *lookup) Contains(hash common.Hash) bool {
	_, ok := l.txs[hash]
	return ok
}

// Add inserts a new entry, updating the resource counters.
func (l *lookup) Add(p *pooledTx) {
	l.txs[p.hash] = p
	l.slots += p.slots()
	if p.isBlob() {
		l.blobBytes += p.size()
	} else {
		l.bytes += p.size()
	}
}

// Remove deletes an entry, updating the resource counters. Unknown hashes
// are ignored so callers can stay idempotent.
func (l *lookup) Remove(hash common.Hash) {
	p, ok := l.txs[hash]
	if !ok {
		return
	}
	l.slots -= p.slots()
	if p.isBlob() {
		l.blobBytes -= p.size()
	} else {
		l.bytes -= p.size()
	}
	delete(l.txs, hash)
}

// Count returns the current number of tracked entries.
func (l *lookup) Count() int {
	return len(l.txs)
}

// Range iterates over all tracked entries, aborting if f returns false.
func (l *lookup) Range(f func(hash common.Hash, p *pooledTx) bool) {
	for hash, p := range l.txs {
		if !f(hash, p) {
			return
		}
	}
}
