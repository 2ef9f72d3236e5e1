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
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

const (
	// evictionInterval is the time between expired transaction sweeps.
	evictionInterval = time.Minute

	// statsReportInterval is the time between pool status reports.
	statsReportInterval = 8 * time.Second

	// maxReorgDepth is the deepest ancestor walk attempted when the head moves
	// sideways; anything deeper is handled as a fresh head with no reinjection.
	maxReorgDepth = 64
)

var (
	knownTxMeter       = metrics.NewRegisteredMeter("txpool/known", nil)
	validTxMeter       = metrics.NewRegisteredMeter("txpool/valid", nil)
	invalidTxMeter     = metrics.NewRegisteredMeter("txpool/invalid", nil)
	underpricedTxMeter = metrics.NewRegisteredMeter("txpool/underpriced", nil)
	overflowedTxMeter  = metrics.NewRegisteredMeter("txpool/overflowed", nil)
	replacedTxMeter    = metrics.NewRegisteredMeter("txpool/replaced", nil)
	evictedTxMeter     = metrics.NewRegisteredMeter("txpool/evicted", nil)
	minedTxMeter       = metrics.NewRegisteredMeter("txpool/mined", nil)
	reinjectedTxMeter  = metrics.NewRegisteredMeter("txpool/reinjected", nil)
	busyTxMeter        = metrics.NewRegisteredMeter("txpool/busy", nil)

	pendingGauge = metrics.NewRegisteredGauge("txpool/pending", nil)
	basefeeGauge = metrics.NewRegisteredGauge("txpool/basefee", nil)
	queuedGauge  = metrics.NewRegisteredGauge("txpool/queued", nil)
	blobGauge    = metrics.NewRegisteredGauge("txpool/blob", nil)
	slotsGauge   = metrics.NewRegisteredGauge("txpool/slots", nil)

	resetTimer = metrics.NewRegisteredTimer("txpool/reset", nil)
)

// acceptedTxTypes is the bitmap of transaction types this pool admits.
const acceptedTxTypes = 1<<types.LegacyTxType |
	1<<types.AccessListTxType |
	1<<types.DynamicFeeTxType |
	1<<types.BlobTxType

// Stats is a point-in-time accounting of the pool's contents, split by
// classification and by the resource budgets eviction enforces.
type Stats struct {
	Pending int // Transactions ready for inclusion
	BaseFee int // Transactions parked until the base fee recedes
	Queued  int // Transactions blocked on a nonce gap or balance shortfall
	Blob    int // Blob transactions, any readiness

	Slots     uint64 // DoS-protection slots occupied by all entries
	Bytes     uint64 // Encoded size of all non-blob entries
	BlobBytes uint64 // Encoded size of all blob entries
}

// resetRequest is a head change waiting to be folded into the pool.
type resetRequest struct {
	oldHead, newHead *types.Header
}

// Pool holds a set of transactions not yet included in the chain, classified
// by executability and ordered for block building. All structural mutation is
// serialized under a single mutex; head changes additionally funnel through a
// scheduler goroutine so concurrent announcements coalesce into one reset.
type Pool struct {
	config      Config
	chainconfig *params.ChainConfig
	chain       BlockChain
	signer      types.Signer
	policy      PriorityPolicy

	gasTip      atomic.Pointer[uint256.Int] // Minimum miner tip to admit a transaction
	currentHead atomic.Pointer[types.Header]

	mu            sync.RWMutex
	currentState  StateReader // State of the current canonical head
	pendingNonces *noncer     // Pending state tracking virtual nonces
	env           feeEnv      // Base fee and blob fee of the next block

	locals mapset.Set[common.Address]
	index  map[common.Address]*list
	all    *lookup
	worst  [numSubPools]*evictHeap
	seq    uint64 // next arrival sequence number, assigned under mu

	txFeed event.Feed
	scope  event.SubscriptionScope

	validationSem chan struct{}

	reqResetCh      chan *resetRequest
	reorgDoneCh     chan chan struct{}
	reorgShutdownCh chan struct{}
	wg              sync.WaitGroup
}

// New creates a transaction pool tracking the given chain, gathering inbound
// transactions and making them available for block building in priority order.
func New(config Config, chain BlockChain) (*Pool, error) {
	config = (&config).sanitize()

	pool := &Pool{
		config:          config,
		chainconfig:     chain.Config(),
		chain:           chain,
		signer:          types.LatestSigner(chain.Config()),
		policy:          effectiveTipPolicy{},
		locals:          mapset.NewThreadUnsafeSet[common.Address](),
		index:           make(map[common.Address]*list),
		all:             newLookup(),
		validationSem:   make(chan struct{}, config.ValidationSlots),
		reqResetCh:      make(chan *resetRequest),
		reorgDoneCh:     make(chan chan struct{}),
		reorgShutdownCh: make(chan struct{}),
	}
	for tag := PendingSubPool; tag < numSubPools; tag++ {
		pool.worst[tag] = newEvictHeap(tag)
	}
	if !config.NoLocals {
		for _, addr := range config.Locals {
			log.Info("Setting new local account", "address", addr)
			pool.locals.Add(addr)
		}
	}
	pool.gasTip.Store(uint256.NewInt(config.PriceLimit))

	head := chain.CurrentBlock()
	pool.mu.Lock()
	var events []Event
	pool.reset(nil, head, &events)
	pool.mu.Unlock()
	if pool.currentState == nil {
		return nil, errors.New("txpool: state unavailable for current head")
	}
	pool.wg.Add(2)
	go pool.scheduleReorgLoop()
	go pool.loop()
	return pool, nil
}

// loop is the pool's housekeeping goroutine, sweeping expired transactions
// and reporting stats until shutdown.
func (pool *Pool) loop() {
	defer pool.wg.Done()

	var (
		evict  = time.NewTicker(evictionInterval)
		report = time.NewTicker(statsReportInterval)
	)
	defer evict.Stop()
	defer report.Stop()

	for {
		select {
		case <-pool.reorgShutdownCh:
			return

		case <-evict.C:
			var events []Event
			pool.mu.Lock()
			pool.evictExpired(&events)
			pool.mu.Unlock()
			pool.sendEvents(events)

		case <-report.C:
			pool.mu.RLock()
			stats := pool.statsLocked()
			pool.mu.RUnlock()
			log.Debug("Transaction pool status report",
				"pending", stats.Pending, "basefee", stats.BaseFee,
				"queued", stats.Queued, "blob", stats.Blob, "slots", stats.Slots)
		}
	}
}

// Close terminates the transaction pool, waiting for all internal goroutines
// to wind down.
func (pool *Pool) Close() error {
	close(pool.reorgShutdownCh)
	pool.wg.Wait()
	pool.scope.Close()
	log.Info("Transaction pool stopped")
	return nil
}

// SubscribeEvents registers a subscription for pool lifecycle events.
func (pool *Pool) SubscribeEvents(ch chan<- Event) event.Subscription {
	return pool.scope.Track(pool.txFeed.Subscribe(ch))
}

// SetGasTip updates the minimum miner tip required by the pool for new
// transactions, dropping all remote transactions below the new threshold.
func (pool *Pool) SetGasTip(tip *big.Int) {
	var events []Event

	pool.mu.Lock()
	old := pool.gasTip.Load()
	newTip := uint256.MustFromBig(tip)
	pool.gasTip.Store(newTip)

	if newTip.Cmp(old) > 0 {
		tipBig := tip
		for addr, l := range pool.index {
			if pool.locals.Contains(addr) {
				continue
			}
			drops := l.Filter(func(p *pooledTx) bool {
				return p.tx.GasTipCapIntCmp(tipBig) < 0
			})
			for _, p := range drops {
				pool.all.Remove(p.hash)
				events = append(events, Event{Kind: EventEvicted, Tx: p.tx})
			}
			if len(drops) > 0 {
				evictedTxMeter.Mark(int64(len(drops)))
				pool.reclassify(addr)
			}
		}
	}
	pool.mu.Unlock()

	pool.sendEvents(events)
	log.Info("Transaction pool tip threshold updated", "tip", tip)
}

// Add enqueues a batch of transactions into the pool if they are valid. The
// returned error slice is parallel to the input. Transactions submitted with
// local set bypass lifetime eviction and mark their sender as local.
func (pool *Pool) Add(txs []*types.Transaction, local bool) []error {
	var (
		errs   = make([]error, len(txs))
		events []Event
	)
	for i, tx := range txs {
		errs[i] = pool.add(tx, local, &events)
	}
	pool.sendEvents(events)
	return errs
}

// add validates a single transaction and inserts it into the pool's indices,
// collecting any emitted lifecycle events for delivery after unlock.
func (pool *Pool) add(tx *types.Transaction, local bool, events *[]Event) error {
	// Bound the validation concurrency; reject outright instead of queueing
	// unboundedly when saturated.
	select {
	case pool.validationSem <- struct{}{}:
		defer func() { <-pool.validationSem }()
	default:
		busyTxMeter.Mark(1)
		return ErrPoolBusy
	}
	hash := tx.Hash()
	if pool.Has(hash) {
		knownTxMeter.Mark(1)
		return ErrAlreadyKnown
	}
	// Stateless checks run against the head published by the last reset and
	// need no pool lock.
	head := pool.currentHead.Load()
	opts := &ValidationOptions{
		Config:  pool.chainconfig,
		Accept:  acceptedTxTypes,
		MaxSize: pool.config.MaxTxSize,
		MaxGas:  pool.config.MaxTxGas,
		MinTip:  pool.gasTip.Load().ToBig(),
	}
	if err := ValidateTransaction(tx, head, pool.signer, opts); err != nil {
		invalidTxMeter.Mark(1)
		return err
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()

	if pool.all.Contains(hash) {
		knownTxMeter.Mark(1)
		return ErrAlreadyKnown
	}
	if err := pool.validateStateLocked(tx); err != nil {
		invalidTxMeter.Mark(1)
		return err
	}
	if err := pool.insertLocked(tx, local, EventInserted, events); err != nil {
		return err
	}
	validTxMeter.Mark(1)
	return nil
}

// validateStateLocked runs the stateful admission checks against the current
// head state. The caller must hold the pool mutex.
func (pool *Pool) validateStateLocked(tx *types.Transaction) error {
	return ValidateTransactionWithState(tx, pool.signer, &ValidationOptionsWithState{
		State: pool.currentState,
		UsedAndLeftSlots: func(addr common.Address) (int, int) {
			var have int
			if l := pool.index[addr]; l != nil {
				have = l.Len()
			}
			if left := int(pool.config.AccountSlots) - have; left > 0 {
				return have, left
			}
			// Local accounts are exempt from the per-account cap.
			if pool.locals.Contains(addr) {
				return have, 1
			}
			return have, 0
		},
		ExistingNonce: func(addr common.Address, nonce uint64) bool {
			l := pool.index[addr]
			return l != nil && l.Contains(nonce)
		},
	})
}

// insertLocked places a validated transaction into the ledger, the hash index
// and the classification machinery, enforcing capacity afterwards. The caller
// must hold the pool mutex.
func (pool *Pool) insertLocked(tx *types.Transaction, local bool, kind EventKind, events *[]Event) error {
	from, _ := types.Sender(pool.signer, tx) // validated upstream

	cost, overflow := uint256.FromBig(tx.Cost())
	if overflow {
		return fmt.Errorf("%w: cost overflows uint256", core.ErrInsufficientFunds)
	}
	ptx := &pooledTx{
		tx:      tx,
		hash:    tx.Hash(),
		from:    from,
		cost:    cost,
		local:   local || pool.locals.Contains(from),
		arrival: time.Now(),
		seq:     pool.seq,
		subpool: unclassified,
	}
	pool.seq++

	l := pool.index[from]
	if l == nil {
		l = newList()
		pool.index[from] = l
	}
	inserted, old := l.Add(ptx, pool.config.PriceBump, pool.config.BlobPriceBump)
	if !inserted {
		underpricedTxMeter.Mark(1)
		return ErrReplaceUnderpriced
	}
	// Stage the lifecycle events: if capacity enforcement throws the newcomer
	// back out below, the admission is undone and nothing is announced.
	var staged []Event
	if old != nil {
		pool.all.Remove(old.hash)
		staged = append(staged, Event{Kind: EventReplaced, Tx: tx, Replaced: old.tx})
	} else {
		staged = append(staged, Event{Kind: kind, Tx: tx})
	}
	pool.all.Add(ptx)
	ptx.priority = pool.policy.Priority(tx, pool.env.baseFee)

	if local && !pool.config.NoLocals && !pool.locals.Contains(from) {
		log.Info("Setting new local account", "address", from)
		pool.locals.Add(from)
	}
	pool.reclassify(from)
	victims := pool.enforceLimits(&staged)

	// Capacity enforcement may have picked the newcomer itself as the worst
	// entry. Undo the whole admission in that case: reinstate the replaced
	// entry and any other victims, and surface an overflow instead of a
	// silent accept. No events leak from a rejected admission.
	if pool.all.Get(ptx.hash) != ptx {
		for _, victim := range victims {
			if victim != ptx {
				pool.reinstate(victim)
			}
		}
		if old != nil {
			pool.reinstate(old)
		}
		overflowedTxMeter.Mark(1)
		return ErrTxPoolOverflow
	}
	if old != nil {
		replacedTxMeter.Mark(1)
	}
	*events = append(*events, staged...)
	return nil
}

// reinstate puts a previously removed entry back into the ledger, the hash
// index and its eviction heap, reversing a rolled back admission.
func (pool *Pool) reinstate(p *pooledTx) {
	l := pool.index[p.from]
	if l == nil {
		l = newList()
		pool.index[p.from] = l
	}
	l.Put(p)
	pool.all.Add(p)
	pool.reclassify(p.from)
	pool.worst[p.subpool].Track(p)
}

// reclassify recomputes readiness and sub-pool membership for one sender's
// ledger against the current fee environment and account state. Entries that
// moved are tracked in their new eviction heap; stale heap copies are shed
// lazily. The caller must hold the pool mutex.
func (pool *Pool) reclassify(addr common.Address) {
	l := pool.index[addr]
	if l == nil {
		return
	}
	if l.Empty() {
		delete(pool.index, addr)
		return
	}
	nonce, err := pool.currentState.Nonce(addr)
	if err != nil {
		log.Warn("Failed to reclassify account, nonce unavailable", "address", addr, "err", err)
		return
	}
	balance, err := pool.currentState.Balance(addr)
	if err != nil {
		log.Warn("Failed to reclassify account, balance unavailable", "address", addr, "err", err)
		return
	}
	txs := l.Flatten()
	before := make([]SubPool, len(txs))
	beforeReady := make([]txReadiness, len(txs))
	for i, p := range txs {
		before[i], beforeReady[i] = p.subpool, p.readiness
	}
	classifyAccount(txs, nonce, balance, pool.env)
	for i, p := range txs {
		// Readiness is part of the eviction key, so a blob entry changing
		// readiness within its sub-pool needs retracking just like a plain
		// entry changing sub-pools.
		if p.subpool != before[i] || p.readiness != beforeReady[i] {
			pool.worst[p.subpool].Track(p)
		}
	}
}

// removeLocked drops a single entry from every index and reclassifies the
// sender's remaining entries, cascading higher nonces into the queued
// classification if the removal broke their continuity. The caller must hold
// the pool mutex.
func (pool *Pool) removeLocked(p *pooledTx, kind EventKind, events *[]Event) {
	if l := pool.index[p.from]; l != nil {
		l.Remove(p.tx.Nonce())
		if l.Empty() {
			delete(pool.index, p.from)
		}
	}
	pool.all.Remove(p.hash)
	*events = append(*events, Event{Kind: kind, Tx: p.tx})
	pool.reclassify(p.from)
}

// RemoveTxs drops the given transactions from the pool if tracked, for
// example because they were invalidated by an external collaborator. Unknown
// hashes are ignored.
func (pool *Pool) RemoveTxs(hashes []common.Hash) {
	var events []Event

	pool.mu.Lock()
	for _, hash := range hashes {
		if p := pool.all.Get(hash); p != nil {
			pool.removeLocked(p, EventEvicted, &events)
		}
	}
	pool.mu.Unlock()

	pool.sendEvents(events)
}

// Has returns whether the pool tracks a transaction with the given hash.
func (pool *Pool) Has(hash common.Hash) bool {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	return pool.all.Contains(hash)
}

// Get returns a transaction if it is contained in the pool, or nil otherwise.
func (pool *Pool) Get(hash common.Hash) *types.Transaction {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if p := pool.all.Get(hash); p != nil {
		return p.tx
	}
	return nil
}

// Status returns the classification of a tracked transaction, and whether the
// pool tracks it at all.
func (pool *Pool) Status(hash common.Hash) (SubPool, bool) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	if p := pool.all.Get(hash); p != nil {
		return p.subpool, true
	}
	return 0, false
}

// Nonce returns the next nonce of an account, with all transactions executable
// by the pool already applied on top of the current state.
func (pool *Pool) Nonce(addr common.Address) uint64 {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	nonce := pool.pendingNonces.get(addr)
	if l := pool.index[addr]; l != nil {
		for l.Contains(nonce) {
			nonce++
		}
	}
	return nonce
}

// statsLocked gathers the pool's accounting under an already held lock.
func (pool *Pool) statsLocked() Stats {
	stats := Stats{
		Slots:     pool.all.slots,
		Bytes:     pool.all.bytes,
		BlobBytes: pool.all.blobBytes,
	}
	pool.all.Range(func(hash common.Hash, p *pooledTx) bool {
		switch p.subpool {
		case PendingSubPool:
			stats.Pending++
		case BaseFeeSubPool:
			stats.BaseFee++
		case QueuedSubPool:
			stats.Queued++
		case BlobSubPool:
			stats.Blob++
		}
		return true
	})
	return stats
}

// Stats returns the current accounting of the pool, split by classification
// and resource budget.
func (pool *Pool) Stats() Stats {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	stats := pool.statsLocked()
	pendingGauge.Update(int64(stats.Pending))
	basefeeGauge.Update(int64(stats.BaseFee))
	queuedGauge.Update(int64(stats.Queued))
	blobGauge.Update(int64(stats.Blob))
	slotsGauge.Update(int64(stats.Slots))
	return stats
}

// Pending retrieves all currently servable transactions as a snapshot that
// iterates in priority order whilst respecting per-sender nonce order. The
// snapshot is detached: it stays consistent while the pool moves on.
func (pool *Pool) Pending(filter PendingFilter) *PendingSet {
	pool.mu.RLock()
	defer pool.mu.RUnlock()

	baseFee := pool.env.baseFee
	if filter.BaseFee != nil {
		baseFee = filter.BaseFee
	}
	tails := make(map[common.Address][]*pendingTx)
	for addr, l := range pool.index {
		if filter.ExcludeSenders != nil && filter.ExcludeSenders.Contains(addr) {
			continue
		}
		var tail []*pendingTx
		for _, p := range l.Flatten() {
			if p.readiness != txReady {
				break
			}
			blob := p.isBlob()
			if blob && filter.OnlyPlainTxs || !blob && filter.OnlyBlobTxs {
				break
			}
			prio := pool.policy.Priority(p.tx, baseFee)
			if filter.MinTip != nil && prio.Cmp(filter.MinTip) < 0 {
				break
			}
			if filter.BaseFee != nil {
				feeCap, _ := uint256.FromBig(p.tx.GasFeeCap())
				if feeCap.Cmp(filter.BaseFee) < 0 {
					break
				}
			}
			if blob && filter.BlobFee != nil {
				blobCap, _ := uint256.FromBig(p.tx.BlobGasFeeCap())
				if blobCap.Cmp(filter.BlobFee) < 0 {
					break
				}
			}
			tail = append(tail, &pendingTx{
				lazy: &LazyTransaction{
					Pool:      pool,
					Hash:      p.hash,
					Tx:        p.tx,
					Time:      p.arrival,
					GasFeeCap: uint256.MustFromBig(p.tx.GasFeeCap()),
					GasTipCap: uint256.MustFromBig(p.tx.GasTipCap()),
					Gas:       p.tx.Gas(),
					BlobGas:   p.tx.BlobGas(),
				},
				prio: prio,
				seq:  p.seq,
			})
		}
		if len(tail) > 0 {
			tails[addr] = tail
		}
	}
	// Bound the snapshot by serving order, not map order: keep the accounts
	// whose head transaction ranks best and drop the rest.
	if filter.Limit > 0 && len(tails) > filter.Limit {
		heads := make(headsByPriority, 0, len(tails))
		for addr, tail := range tails {
			heads = append(heads, headEntry{from: addr, p: tail[0]})
		}
		sort.Sort(heads)
		for _, he := range heads[filter.Limit:] {
			delete(tails, he.from)
		}
	}
	return newPendingSet(tails)
}

// Clear drops every tracked transaction, resetting the pool to empty against
// the unchanged chain head.
func (pool *Pool) Clear() {
	pool.mu.Lock()
	defer pool.mu.Unlock()

	pool.index = make(map[common.Address]*list)
	pool.all = newLookup()
	for tag := PendingSubPool; tag < numSubPools; tag++ {
		pool.worst[tag] = newEvictHeap(tag)
	}
	pool.pendingNonces = newNoncer(pool.currentState)
	log.Info("Transaction pool cleared")
}

// ResetHead folds a canonical head change into the pool: mined transactions
// are pruned, transactions from abandoned blocks are reinjected, and every
// account is reclassified against the new fee environment. The call returns
// once the update has been applied, so a subsequent Pending reflects it.
// Concurrent head announcements coalesce into a single reset.
func (pool *Pool) ResetHead(oldHead, newHead *types.Header) {
	wait := pool.requestReset(oldHead, newHead)
	<-wait
}

// requestReset schedules a head reset, returning a channel closed when the
// reset containing it has been processed.
func (pool *Pool) requestReset(oldHead, newHead *types.Header) <-chan struct{} {
	select {
	case pool.reqResetCh <- &resetRequest{oldHead, newHead}:
		return <-pool.reorgDoneCh
	case <-pool.reorgShutdownCh:
		return pool.reorgShutdownCh
	}
}

// scheduleReorgLoop schedules runs of reset. Head changes arriving while a
// reset is running are folded into the next one, keeping the old head of the
// first request and the new head of the last.
func (pool *Pool) scheduleReorgLoop() {
	defer pool.wg.Done()

	var (
		curDone       chan struct{} // non-nil while runReset is active
		nextDone      = make(chan struct{})
		launchNextRun bool
		reset         *resetRequest
	)
	for {
		// Launch next background reset if needed and none is running
		if curDone == nil && launchNextRun {
			go pool.runReset(nextDone, reset)

			curDone, nextDone = nextDone, make(chan struct{})
			launchNextRun, reset = false, nil
		}
		select {
		case req := <-pool.reqResetCh:
			if reset == nil {
				reset = req
			} else {
				reset.newHead = req.newHead
			}
			launchNextRun = true
			pool.reorgDoneCh <- nextDone

		case <-curDone:
			curDone = nil

		case <-pool.reorgShutdownCh:
			// Wait for current run to finish.
			if curDone != nil {
				<-curDone
			}
			close(nextDone)
			return
		}
	}
}

// runReset applies one coalesced head change under the pool mutex and flushes
// the resulting events afterwards.
func (pool *Pool) runReset(done chan struct{}, req *resetRequest) {
	defer close(done)
	defer func(t0 time.Time) {
		resetTimer.Update(time.Since(t0))
	}(time.Now())

	var events []Event
	pool.mu.Lock()
	pool.reset(req.oldHead, req.newHead, &events)
	pool.mu.Unlock()

	pool.sendEvents(events)
}

// reset retrieves the current state of the blockchain and ensures the content
// of the transaction pool is valid with regard to the chain state. The caller
// must hold the pool mutex.
func (pool *Pool) reset(oldHead, newHead *types.Header, events *[]Event) {
	// Special case during testing and on a nil head announcement: fall back
	// to the chain's current block. A chain without one leaves the pool as is.
	if newHead == nil {
		newHead = pool.chain.CurrentBlock()
	}
	if newHead == nil {
		log.Error("Transaction pool reset with no chain head")
		return
	}
	// If reorging an old chain, gather all transactions that left the
	// canonical chain and all that joined it.
	var (
		reinject types.Transactions
		included = make(map[common.Hash]struct{})
	)
	if oldHead != nil && oldHead.Hash() != newHead.ParentHash {
		// Reorg seems to have happened, or multiple blocks were connected at
		// once. Find the common ancestor if it is shallow enough.
		oldNum := oldHead.Number.Uint64()
		newNum := newHead.Number.Uint64()

		if depth := uint64(math.Abs(float64(oldNum) - float64(newNum))); depth > maxReorgDepth {
			log.Debug("Skipping deep transaction reorg", "depth", depth)
		} else {
			var (
				discarded types.Transactions
				additions types.Transactions

				rem = pool.chain.GetBlock(oldHead.Hash(), oldNum)
				add = pool.chain.GetBlock(newHead.Hash(), newNum)
			)
			if rem == nil || add == nil {
				log.Warn("Transaction pool reset with missing old or new block",
					"old", oldHead.Hash(), "new", newHead.Hash())
			} else {
				for rem.NumberU64() > add.NumberU64() {
					discarded = append(discarded, rem.Transactions()...)
					if rem = pool.chain.GetBlock(rem.ParentHash(), rem.NumberU64()-1); rem == nil {
						log.Error("Unrooted old chain seen by tx pool", "block", oldHead.Number, "hash", oldHead.Hash())
						return
					}
				}
				for add.NumberU64() > rem.NumberU64() {
					additions = append(additions, add.Transactions()...)
					if add = pool.chain.GetBlock(add.ParentHash(), add.NumberU64()-1); add == nil {
						log.Error("Unrooted new chain seen by tx pool", "block", newHead.Number, "hash", newHead.Hash())
						return
					}
				}
				for rem.Hash() != add.Hash() {
					discarded = append(discarded, rem.Transactions()...)
					if rem = pool.chain.GetBlock(rem.ParentHash(), rem.NumberU64()-1); rem == nil {
						log.Error("Unrooted old chain seen by tx pool", "block", oldHead.Number, "hash", oldHead.Hash())
						return
					}
					additions = append(additions, add.Transactions()...)
					if add = pool.chain.GetBlock(add.ParentHash(), add.NumberU64()-1); add == nil {
						log.Error("Unrooted new chain seen by tx pool", "block", newHead.Number, "hash", newHead.Hash())
						return
					}
				}
				for _, tx := range additions {
					included[tx.Hash()] = struct{}{}
				}
				reinject = types.TxDifference(discarded, additions)
			}
		}
	} else if oldHead != nil {
		// Plain one block advance, collect the mined transactions directly.
		if add := pool.chain.GetBlock(newHead.Hash(), newHead.Number.Uint64()); add != nil {
			for _, tx := range add.Transactions() {
				included[tx.Hash()] = struct{}{}
			}
		}
	}
	// Initialize the internal state to the current head
	statedb, err := pool.chain.StateAt(newHead.Root)
	if err != nil {
		log.Error("Failed to reset txpool state", "err", err)
		return
	}
	pool.currentHead.Store(newHead)
	pool.currentState = statedb
	pool.pendingNonces = newNoncer(statedb)

	// Recompute the fee environment of the next block
	var baseFee, blobFee *uint256.Int
	if pool.chainconfig.IsLondon(new(big.Int).Add(newHead.Number, big.NewInt(1))) {
		baseFee = uint256.MustFromBig(eip1559.CalcBaseFee(pool.chainconfig, newHead))
	}
	if pool.chainconfig.IsCancun(new(big.Int).Add(newHead.Number, big.NewInt(1)), newHead.Time) {
		var excess uint64
		if newHead.ExcessBlobGas != nil {
			excess = *newHead.ExcessBlobGas
		}
		blobFee = uint256.MustFromBig(eip4844.CalcBlobFee(excess))
	}
	pool.env = feeEnv{baseFee: baseFee, blobFee: blobFee}

	// Prune every entry already consumed by the chain
	var mined, stale int
	for addr, l := range pool.index {
		nonce, err := statedb.Nonce(addr)
		if err != nil {
			log.Warn("Failed to prune account after reset", "address", addr, "err", err)
			continue
		}
		for _, p := range l.Forward(nonce) {
			pool.all.Remove(p.hash)
			if _, ok := included[p.hash]; ok {
				mined++
				*events = append(*events, Event{Kind: EventMined, Tx: p.tx})
			} else {
				stale++
				*events = append(*events, Event{Kind: EventEvicted, Tx: p.tx})
			}
		}
		if l.Empty() {
			delete(pool.index, addr)
		}
	}
	minedTxMeter.Mark(int64(mined))
	if stale > 0 {
		evictedTxMeter.Mark(int64(stale))
	}
	// Reinject transactions returned to the pool by the reorg, preserving
	// their local marking. Failures are dropped, not errors: the transaction
	// was valid once, the new chain simply no longer admits it.
	var reinjected int
	for _, tx := range reinject {
		if pool.all.Contains(tx.Hash()) {
			continue
		}
		head := pool.currentHead.Load()
		opts := &ValidationOptions{
			Config:  pool.chainconfig,
			Accept:  acceptedTxTypes,
			MaxSize: pool.config.MaxTxSize,
			MaxGas:  pool.config.MaxTxGas,
			MinTip:  pool.gasTip.Load().ToBig(),
		}
		if err := ValidateTransaction(tx, head, pool.signer, opts); err != nil {
			log.Trace("Discarding reorged transaction", "hash", tx.Hash(), "err", err)
			continue
		}
		if err := pool.validateStateLocked(tx); err != nil {
			log.Trace("Discarding reorged transaction", "hash", tx.Hash(), "err", err)
			continue
		}
		from, _ := types.Sender(pool.signer, tx)
		if err := pool.insertLocked(tx, pool.locals.Contains(from), EventReorged, events); err != nil {
			log.Trace("Discarding reorged transaction", "hash", tx.Hash(), "err", err)
			continue
		}
		reinjected++
	}
	if reinjected > 0 {
		reinjectedTxMeter.Mark(int64(reinjected))
	}
	// Reclassify every account against the new state and fee environment,
	// refresh all cached priorities and rebuild the eviction order.
	for addr := range pool.index {
		pool.reclassify(addr)
	}
	pool.all.Range(func(hash common.Hash, p *pooledTx) bool {
		p.priority = pool.policy.Priority(p.tx, pool.env.baseFee)
		return true
	})
	for tag := PendingSubPool; tag < numSubPools; tag++ {
		pool.worst[tag].Reheap(pool.all)
	}
	pool.enforceLimits(events)

	log.Debug("Reset transaction pool head",
		"number", newHead.Number, "hash", newHead.Hash(),
		"mined", mined, "reinjected", reinjected)
}

// sendEvents publishes the collected lifecycle events to all subscribers.
// Must be called without holding the pool mutex.
func (pool *Pool) sendEvents(events []Event) {
	for _, ev := range events {
		pool.txFeed.Send(ev)
	}
}
