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
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// plainEvictionOrder is the sub-pool order capacity enforcement drains for
// non-blob budgets: entries furthest from inclusion go first, servable ones
// only as a last resort.
var plainEvictionOrder = [...]SubPool{QueuedSubPool, BaseFeeSubPool, PendingSubPool}

// slotEvictionOrder extends the plain order with the blob classification for
// the budgets all entries count against.
var slotEvictionOrder = [...]SubPool{QueuedSubPool, BaseFeeSubPool, PendingSubPool, BlobSubPool}

// enforceLimits evicts entries until every configured budget is satisfied,
// removing no more than necessary. Within each budget the globally worst
// entry goes first: furthest readiness from inclusion, then lowest priority,
// then newest arrival among equals. Evicting a low nonce reclassifies the
// sender's higher nonces, it does not drop them. The victims are returned so
// an admission that evicted its own newcomer can be rolled back. The caller
// must hold the pool mutex.
func (pool *Pool) enforceLimits(events *[]Event) (victims []*pooledTx) {
	// The blob budget is independent, only blob entries can relieve it. The
	// blob heap mixes readiness classes and drains gapped entries first,
	// then parked, then ready, mirroring the plain eviction order.
	for pool.all.blobBytes > pool.config.MaxBlobBytes {
		victim := pool.worst[BlobSubPool].PopWorst(pool.all)
		if victim == nil {
			break
		}
		pool.evict(victim, events)
		victims = append(victims, victim)
	}
	// The plain byte budget is only counted against by non-blob entries.
	for pool.all.bytes > pool.config.MaxBytes {
		victim := pool.popWorst(plainEvictionOrder[:])
		if victim == nil {
			break
		}
		pool.evict(victim, events)
		victims = append(victims, victim)
	}
	// The slot budget covers everything.
	for pool.all.slots > pool.config.GlobalSlots {
		victim := pool.popWorst(slotEvictionOrder[:])
		if victim == nil {
			break
		}
		pool.evict(victim, events)
		victims = append(victims, victim)
	}
	return victims
}

// popWorst returns the worst live entry across the given sub-pools, draining
// them in the provided order. Returns nil if all are empty.
func (pool *Pool) popWorst(order []SubPool) *pooledTx {
	for _, tag := range order {
		if victim := pool.worst[tag].PopWorst(pool.all); victim != nil {
			return victim
		}
	}
	return nil
}

// evict drops a capacity victim from all indices and accounts for it.
func (pool *Pool) evict(victim *pooledTx, events *[]Event) {
	log.Trace("Evicting transaction over capacity",
		"hash", victim.hash, "from", victim.from, "subpool", victim.subpool)
	pool.removeLocked(victim, EventEvicted, events)
	evictedTxMeter.Mark(1)
}

// evictExpired drops every non-servable remote entry that has been waiting on
// a nonce gap or balance shortfall for longer than the configured lifetime.
// Local accounts are exempt. The caller must hold the pool mutex.
func (pool *Pool) evictExpired(events *[]Event) {
	cutoff := time.Now().Add(-pool.config.Lifetime)

	for addr, l := range pool.index {
		if pool.locals.Contains(addr) {
			continue
		}
		drops := l.Filter(func(p *pooledTx) bool {
			return p.readiness == txGapped && p.arrival.Before(cutoff)
		})
		if len(drops) == 0 {
			continue
		}
		for _, p := range drops {
			pool.all.Remove(p.hash)
			*events = append(*events, Event{Kind: EventEvicted, Tx: p.tx})
		}
		evictedTxMeter.Mark(int64(len(drops)))
		log.Trace("Evicted expired transactions", "from", addr, "count", len(drops))
		pool.reclassify(addr)
	}
}
