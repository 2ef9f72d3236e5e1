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
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// testState is an in-memory StateReader with togglable failures.
type testState struct {
	mu       sync.Mutex
	nonces   map[common.Address]uint64
	balances map[common.Address]*uint256.Int
	failing  bool
}

func newTestState() *testState {
	return &testState{
		nonces:   make(map[common.Address]uint64),
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (s *testState) setAccount(addr common.Address, nonce uint64, balance *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[addr] = nonce
	s.balances[addr] = balance
}

func (s *testState) Nonce(addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errors.New("state unavailable")
	}
	return s.nonces[addr], nil
}

func (s *testState) Balance(addr common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errors.New("state unavailable")
	}
	if bal, ok := s.balances[addr]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

// testChain is an in-memory BlockChain stub with explicit blocks and states.
type testChain struct {
	config *params.ChainConfig
	head   *types.Header
	blocks map[common.Hash]*types.Block
	states map[common.Hash]StateReader
}

func (c *testChain) Config() *params.ChainConfig { return c.config }
func (c *testChain) CurrentBlock() *types.Header { return c.head }

func (c *testChain) GetBlock(hash common.Hash, number uint64) *types.Block {
	return c.blocks[hash]
}

func (c *testChain) StateAt(root common.Hash) (StateReader, error) {
	if state, ok := c.states[root]; ok {
		return state, nil
	}
	return nil, errors.New("unknown state root")
}

type testAccount struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) testAccount {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return testAccount{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// newTestSetup builds a pool over a single genesis header with the given
// config, returning the pool, its chain stub and the genesis state.
func newTestSetup(t *testing.T, config Config) (*Pool, *testChain, *testState) {
	t.Helper()

	head := &types.Header{
		Number:     big.NewInt(0),
		GasLimit:   30_000_000,
		GasUsed:    0,
		BaseFee:    big.NewInt(params.InitialBaseFee),
		Difficulty: big.NewInt(0),
		Root:       common.HexToHash("0x6010"),
	}
	state := newTestState()
	chain := &testChain{
		config: params.TestChainConfig,
		head:   head,
		blocks: make(map[common.Hash]*types.Block),
		states: map[common.Hash]StateReader{head.Root: state},
	}
	chain.blocks[head.Hash()] = types.NewBlockWithHeader(head)

	pool, err := New(config, chain)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool, chain, state
}

// poolBaseFee is the base fee the pool judges admissions against, i.e. the
// one of the block following the current head.
func poolBaseFee(chain *testChain) *big.Int {
	return eip1559.CalcBaseFee(chain.config, chain.head)
}

// pricedTx signs a dynamic fee transfer with the given fee parameters.
func pricedTx(t *testing.T, chain *testChain, acc testAccount, nonce uint64, tip, feeCap *big.Int) *types.Transaction {
	t.Helper()
	to := common.Address{0xde, 0xad}
	return types.MustSignNewTx(acc.key, types.LatestSigner(chain.config), &types.DynamicFeeTx{
		ChainID:   chain.config.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(100),
	})
}

// readyTx signs a transfer whose fee cap clears the current base fee by the
// given tip, so it classifies as pending once contiguous and funded.
func readyTx(t *testing.T, chain *testChain, acc testAccount, nonce uint64, tip int64) *types.Transaction {
	t.Helper()
	feeCap := new(big.Int).Add(poolBaseFee(chain), big.NewInt(tip))
	return pricedTx(t, chain, acc, nonce, big.NewInt(tip), feeCap)
}

func newAddressSet(addrs ...common.Address) mapset.Set[common.Address] {
	return mapset.NewThreadUnsafeSet(addrs...)
}

func oneETH() *uint256.Int {
	return uint256.NewInt(0).Mul(uint256.NewInt(1e9), uint256.NewInt(1e9))
}

func TestAddAndRetrieve(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	tx := readyTx(t, chain, acc, 0, 1_000_000)
	errs := pool.Add([]*types.Transaction{tx}, false)
	require.NoError(t, errs[0])

	require.True(t, pool.Has(tx.Hash()))
	require.Equal(t, tx.Hash(), pool.Get(tx.Hash()).Hash())

	subpool, ok := pool.Status(tx.Hash())
	require.True(t, ok)
	require.Equal(t, PendingSubPool, subpool)

	stats := pool.Stats()
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, tx.Size(), stats.Bytes)
	require.Equal(t, numSlots(tx.Size()), stats.Slots)
}

func TestAddDuplicate(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	tx := readyTx(t, chain, acc, 0, 1_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{tx}, false)[0])
	require.ErrorIs(t, pool.Add([]*types.Transaction{tx}, false)[0], ErrAlreadyKnown)
}

func TestClassification(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	var (
		ready  = readyTx(t, chain, acc, 0, 1_000_000)
		parked = pricedTx(t, chain, acc, 1, big.NewInt(1), new(big.Int).Sub(poolBaseFee(chain), big.NewInt(1)))
		gapped = readyTx(t, chain, acc, 3, 1_000_000) // nonce 2 missing
	)
	for _, tx := range []*types.Transaction{ready, parked, gapped} {
		require.NoError(t, pool.Add([]*types.Transaction{tx}, false)[0])
	}
	status := func(tx *types.Transaction) SubPool {
		subpool, ok := pool.Status(tx.Hash())
		require.True(t, ok)
		return subpool
	}
	require.Equal(t, PendingSubPool, status(ready))
	require.Equal(t, BaseFeeSubPool, status(parked))
	require.Equal(t, QueuedSubPool, status(gapped))

	stats := pool.Stats()
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, 1, stats.BaseFee)
	require.Equal(t, 1, stats.Queued)
}

func TestCumulativeBalanceDemotion(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	tx0 := readyTx(t, chain, acc, 0, 1_000_000)
	tx1 := readyTx(t, chain, acc, 1, 1_000_000)

	// Fund each transaction on its own but not both together.
	cost := uint256.MustFromBig(tx0.Cost())
	balance := new(uint256.Int).Add(cost, uint256.NewInt(1000))
	state.setAccount(acc.addr, 0, balance)

	require.NoError(t, pool.Add([]*types.Transaction{tx0}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{tx1}, false)[0])

	subpool, _ := pool.Status(tx0.Hash())
	require.Equal(t, PendingSubPool, subpool)
	subpool, _ = pool.Status(tx1.Hash())
	require.Equal(t, QueuedSubPool, subpool)
}

func TestReplacement(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	events := make(chan Event, 16)
	sub := pool.SubscribeEvents(events)
	defer sub.Unsubscribe()

	base := poolBaseFee(chain)
	tip := big.NewInt(1_000_000)
	feeCap := new(big.Int).Add(base, tip)
	old := pricedTx(t, chain, acc, 0, tip, feeCap)
	require.NoError(t, pool.Add([]*types.Transaction{old}, false)[0])
	<-events // inserted

	// A bump below the threshold on either component is rejected untouched.
	weak := pricedTx(t, chain, acc, 0,
		new(big.Int).Add(tip, big.NewInt(1)),
		new(big.Int).Add(feeCap, big.NewInt(1)))
	require.ErrorIs(t, pool.Add([]*types.Transaction{weak}, false)[0], ErrReplaceUnderpriced)
	require.True(t, pool.Has(old.Hash()))

	// A strict >=10% bump on both components displaces the old entry.
	bump := func(v *big.Int) *big.Int {
		out := new(big.Int).Mul(v, big.NewInt(110))
		return out.Div(out, big.NewInt(100))
	}
	strong := pricedTx(t, chain, acc, 0, bump(tip), bump(feeCap))
	require.NoError(t, pool.Add([]*types.Transaction{strong}, false)[0])

	require.False(t, pool.Has(old.Hash()))
	require.True(t, pool.Has(strong.Hash()))

	ev := <-events
	require.Equal(t, EventReplaced, ev.Kind)
	require.Equal(t, strong.Hash(), ev.Tx.Hash())
	require.Equal(t, old.Hash(), ev.Replaced.Hash())
}

func TestAccountSlotCap(t *testing.T) {
	config := DefaultConfig
	config.AccountSlots = 2

	pool, chain, state := newTestSetup(t, config)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 0, 1_000_000)}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 1, 1_000_000)}, false)[0])
	require.ErrorIs(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 2, 1_000_000)}, false)[0], ErrAccountLimitExceeded)

	// Replacements reuse the displaced entry's slot and stay admissible.
	replacement := readyTx(t, chain, acc, 1, 2_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{replacement}, false)[0])
}

func TestTransientStateFailure(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	state.mu.Lock()
	state.failing = true
	state.mu.Unlock()

	tx := readyTx(t, chain, acc, 0, 1_000_000)
	require.ErrorIs(t, pool.Add([]*types.Transaction{tx}, false)[0], ErrTransientState)
	require.False(t, pool.Has(tx.Hash()))

	// The same submission succeeds once state access recovers.
	state.mu.Lock()
	state.failing = false
	state.mu.Unlock()
	require.NoError(t, pool.Add([]*types.Transaction{tx}, false)[0])
}

func TestPendingOrder(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	var (
		rich = newAccount(t)
		mid  = newAccount(t)
		poor = newAccount(t)
	)
	for _, acc := range []testAccount{rich, mid, poor} {
		state.setAccount(acc.addr, 0, oneETH())
	}
	txRich := readyTx(t, chain, rich, 0, 3_000_000)
	txMid0 := readyTx(t, chain, mid, 0, 2_000_000)
	txMid1 := readyTx(t, chain, mid, 1, 4_000_000) // held behind its lower-tip predecessor
	txPoor := readyTx(t, chain, poor, 0, 1_000_000)

	for _, tx := range []*types.Transaction{txPoor, txMid0, txMid1, txRich} {
		require.NoError(t, pool.Add([]*types.Transaction{tx}, false)[0])
	}
	var got []common.Hash
	for set := pool.Pending(PendingFilter{}); !set.Empty(); set.Shift() {
		ltx, _ := set.Peek()
		got = append(got, ltx.Hash)
	}
	require.Equal(t, []common.Hash{txRich.Hash(), txMid0.Hash(), txMid1.Hash(), txPoor.Hash()}, got)
}

func TestPendingFIFOTieBreak(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	accs := make([]testAccount, 4)
	txs := make([]*types.Transaction, 4)
	for i := range accs {
		accs[i] = newAccount(t)
		state.setAccount(accs[i].addr, 0, oneETH())
		txs[i] = readyTx(t, chain, accs[i], 0, 1_000_000)
		require.NoError(t, pool.Add([]*types.Transaction{txs[i]}, false)[0])
	}
	var got []common.Hash
	for set := pool.Pending(PendingFilter{}); !set.Empty(); set.Shift() {
		ltx, _ := set.Peek()
		got = append(got, ltx.Hash)
	}
	// Equal priorities serve in submission order.
	want := []common.Hash{txs[0].Hash(), txs[1].Hash(), txs[2].Hash(), txs[3].Hash()}
	require.Equal(t, want, got)
}

func TestPendingSnapshotDetached(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	tx0 := readyTx(t, chain, acc, 0, 1_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{tx0}, false)[0])

	set := pool.Pending(PendingFilter{})

	// Mutations after the snapshot must not leak into it.
	tx1 := readyTx(t, chain, acc, 1, 5_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{tx1}, false)[0])

	ltx, _ := set.Peek()
	require.Equal(t, tx0.Hash(), ltx.Hash)
	set.Shift()
	require.True(t, set.Empty())
}

func TestPendingExcludeSenders(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	var (
		kept    = newAccount(t)
		skipped = newAccount(t)
	)
	state.setAccount(kept.addr, 0, oneETH())
	state.setAccount(skipped.addr, 0, oneETH())

	keptTx := readyTx(t, chain, kept, 0, 1_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{keptTx}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, skipped, 0, 9_000_000)}, false)[0])

	filter := PendingFilter{ExcludeSenders: newAddressSet(skipped.addr)}
	set := pool.Pending(filter)
	ltx, _ := set.Peek()
	require.Equal(t, keptTx.Hash(), ltx.Hash)
	set.Shift()
	require.True(t, set.Empty())
}

func TestNonce(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 5, oneETH())

	require.Equal(t, uint64(5), pool.Nonce(acc.addr))

	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 5, 1_000_000)}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 6, 1_000_000)}, false)[0])
	require.Equal(t, uint64(7), pool.Nonce(acc.addr))

	// A gapped entry does not advance the pending nonce.
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 9, 1_000_000)}, false)[0])
	require.Equal(t, uint64(7), pool.Nonce(acc.addr))
}

func TestRemoveTxsCascade(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	tx0 := readyTx(t, chain, acc, 0, 1_000_000)
	tx1 := readyTx(t, chain, acc, 1, 1_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{tx0}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{tx1}, false)[0])

	// Removing the low nonce breaks continuity: the successor is demoted to
	// queued, not dropped.
	pool.RemoveTxs([]common.Hash{tx0.Hash()})
	require.False(t, pool.Has(tx0.Hash()))
	require.True(t, pool.Has(tx1.Hash()))

	subpool, _ := pool.Status(tx1.Hash())
	require.Equal(t, QueuedSubPool, subpool)

	// Unknown hashes are a no-op.
	pool.RemoveTxs([]common.Hash{common.HexToHash("0xdead")})
}

func TestSetGasTip(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	cheap := readyTx(t, chain, acc, 0, 100)
	dear := readyTx(t, chain, acc, 1, 2_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{cheap}, false)[0])
	require.NoError(t, pool.Add([]*types.Transaction{dear}, false)[0])

	pool.SetGasTip(big.NewInt(1_000_000))
	require.False(t, pool.Has(cheap.Hash()))
	require.True(t, pool.Has(dear.Hash()))

	// New submissions below the raised floor are rejected outright.
	require.ErrorIs(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 2, 100)}, false)[0], ErrUnderpriced)
}

func TestClear(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 0, 1_000_000)}, false)[0])

	pool.Clear()
	stats := pool.Stats()
	require.Zero(t, stats.Pending+stats.BaseFee+stats.Queued+stats.Blob)
	require.Zero(t, stats.Slots)

	// The pool keeps working against the unchanged head.
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 0, 1_000_000)}, false)[0])
}

func TestLocalExemptions(t *testing.T) {
	config := DefaultConfig
	config.AccountSlots = 1

	pool, chain, state := newTestSetup(t, config)

	acc := newAccount(t)
	state.setAccount(acc.addr, 0, oneETH())

	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 0, 1_000_000)}, true)[0])

	// Local senders may exceed their account slot share.
	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 1, 1_000_000)}, true)[0])
}

func TestPendingLimitKeepsBest(t *testing.T) {
	pool, chain, state := newTestSetup(t, DefaultConfig)

	// One high-tip sender among many cheap ones: a bounded snapshot must keep
	// the best-paying account regardless of map iteration order.
	best := newAccount(t)
	state.setAccount(best.addr, 0, oneETH())
	bestTx := readyTx(t, chain, best, 0, 9_000_000)
	require.NoError(t, pool.Add([]*types.Transaction{bestTx}, false)[0])

	for i := 0; i < 8; i++ {
		acc := newAccount(t)
		state.setAccount(acc.addr, 0, oneETH())
		require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, acc, 0, 1_000_000)}, false)[0])
	}
	set := pool.Pending(PendingFilter{Limit: 1})
	ltx, _ := set.Peek()
	require.NotNil(t, ltx)
	require.Equal(t, bestTx.Hash(), ltx.Hash)
	set.Shift()
	require.True(t, set.Empty())

	// A wider bound serves the accounts in priority order, best one first.
	set = pool.Pending(PendingFilter{Limit: 3})
	ltx, _ = set.Peek()
	require.Equal(t, bestTx.Hash(), ltx.Hash)
	count := 0
	for ; !set.Empty(); set.Shift() {
		count++
	}
	require.Equal(t, 3, count)
}

func TestReplacementRollbackOnOverflow(t *testing.T) {
	config := DefaultConfig
	config.GlobalSlots = 2

	pool, chain, state := newTestSetup(t, config)

	var (
		dear   = newAccount(t)
		victim = newAccount(t)
	)
	state.setAccount(dear.addr, 0, oneETH())
	state.setAccount(victim.addr, 0, oneETH())

	require.NoError(t, pool.Add([]*types.Transaction{readyTx(t, chain, dear, 0, 9_000_000)}, false)[0])
	old := readyTx(t, chain, victim, 0, 100)
	require.NoError(t, pool.Add([]*types.Transaction{old}, false)[0])

	events := make(chan Event, 16)
	sub := pool.SubscribeEvents(events)
	defer sub.Unsubscribe()

	// A well-bumped but bulky replacement spans two slots, overflows the pool
	// and is selected as its own eviction victim. The admission must be undone
	// wholesale: the displaced entry stays, and nothing is announced.
	base := poolBaseFee(chain)
	feeCap := new(big.Int).Add(base, big.NewInt(100))
	to := common.Address{0xde, 0xad}
	heavy := types.MustSignNewTx(victim.key, types.LatestSigner(chain.config), &types.DynamicFeeTx{
		ChainID:   chain.config.ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(200),
		GasFeeCap: new(big.Int).Mul(feeCap, big.NewInt(2)),
		Gas:       200_000,
		To:        &to,
		Value:     big.NewInt(100),
		Data:      make([]byte, 33*1024),
	})
	require.ErrorIs(t, pool.Add([]*types.Transaction{heavy}, false)[0], ErrTxPoolOverflow)

	require.True(t, pool.Has(old.Hash()))
	require.False(t, pool.Has(heavy.Hash()))
	subpool, ok := pool.Status(old.Hash())
	require.True(t, ok)
	require.Equal(t, PendingSubPool, subpool)
	require.Equal(t, config.GlobalSlots, pool.Stats().Slots)
	require.Empty(t, drainEvents(events))

	// The reinstated entry is still replaceable the ordinary way.
	strong := pricedTx(t, chain, victim, 0, big.NewInt(2_000_000), new(big.Int).Mul(base, big.NewInt(2)))
	require.NoError(t, pool.Add([]*types.Transaction{strong}, false)[0])
	require.False(t, pool.Has(old.Hash()))
}

func TestNewWithoutHead(t *testing.T) {
	chain := &testChain{
		config: params.TestChainConfig,
		blocks: make(map[common.Hash]*types.Block),
		states: make(map[common.Hash]StateReader),
	}
	_, err := New(DefaultConfig, chain)
	require.Error(t, err)
}
