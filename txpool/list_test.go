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
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// unsignedEntry wraps a bare dynamic fee transaction into a pool record; the
// ledger does not care about signatures.
func unsignedEntry(nonce uint64, tip, feeCap int64) *pooledTx {
	tx := types.NewTx(&types.DynamicFeeTx{
		Nonce:     nonce,
		GasTipCap: big.NewInt(tip),
		GasFeeCap: big.NewInt(feeCap),
		Gas:       21000,
		To:        &common.Address{},
		Value:     big.NewInt(0),
	})
	cost, _ := uint256.FromBig(tx.Cost())
	return &pooledTx{tx: tx, hash: tx.Hash(), cost: cost, arrival: time.Now()}
}

func blobEntry(nonce uint64, tip, feeCap, blobFeeCap uint64) *pooledTx {
	tx := types.NewTx(&types.BlobTx{
		ChainID:    uint256.NewInt(1),
		Nonce:      nonce,
		GasTipCap:  uint256.NewInt(tip),
		GasFeeCap:  uint256.NewInt(feeCap),
		Gas:        21000,
		Value:      uint256.NewInt(0),
		BlobFeeCap: uint256.NewInt(blobFeeCap),
		BlobHashes: []common.Hash{{0x01}},
	})
	cost, _ := uint256.FromBig(tx.Cost())
	return &pooledTx{tx: tx, hash: tx.Hash(), cost: cost, arrival: time.Now()}
}

func TestSortedMapOrdering(t *testing.T) {
	m := newSortedMap()
	for _, nonce := range rand.Perm(64) {
		m.Put(unsignedEntry(uint64(nonce), 1, 100))
	}
	require.Equal(t, 64, m.Len())

	flat := m.Flatten()
	for i := 1; i < len(flat); i++ {
		require.Less(t, flat[i-1].tx.Nonce(), flat[i].tx.Nonce())
	}
	require.Equal(t, uint64(63), m.LastElement().tx.Nonce())
}

func TestSortedMapForward(t *testing.T) {
	m := newSortedMap()
	for i := uint64(0); i < 10; i++ {
		m.Put(unsignedEntry(i, 1, 100))
	}
	removed := m.Forward(5)
	require.Len(t, removed, 5)
	require.Equal(t, 5, m.Len())
	for _, p := range removed {
		require.Less(t, p.tx.Nonce(), uint64(5))
	}
	// Forwarding past the end clears the map.
	require.Len(t, m.Forward(100), 5)
	require.Zero(t, m.Len())
}

func TestSortedMapCap(t *testing.T) {
	m := newSortedMap()
	for i := uint64(0); i < 10; i++ {
		m.Put(unsignedEntry(i, 1, 100))
	}
	drops := m.Cap(6)
	require.Len(t, drops, 4)
	for _, p := range drops {
		require.GreaterOrEqual(t, p.tx.Nonce(), uint64(6))
	}
	require.Nil(t, m.Cap(6))
}

func TestLedgerAdd(t *testing.T) {
	l := newList()
	for i := uint64(0); i < 5; i++ {
		inserted, old := l.Add(unsignedEntry(i, 1, 100), 10, 100)
		require.True(t, inserted)
		require.Nil(t, old)
	}
	require.Equal(t, 5, l.Len())
	require.True(t, l.Contains(3))
	require.False(t, l.Contains(5))

	// Gapped insertions are accepted, servability is classification's concern.
	inserted, old := l.Add(unsignedEntry(9, 1, 100), 10, 100)
	require.True(t, inserted)
	require.Nil(t, old)
	require.Equal(t, uint64(9), l.LastElement().tx.Nonce())
}

func TestLedgerReplacementBump(t *testing.T) {
	l := newList()
	old := unsignedEntry(0, 100, 1000)
	inserted, _ := l.Add(old, 10, 100)
	require.True(t, inserted)

	// Equal fees never replace.
	inserted, _ = l.Add(unsignedEntry(0, 100, 1000), 10, 100)
	require.False(t, inserted)

	// Sub-threshold bump on the tip fails even with a big fee cap bump.
	inserted, _ = l.Add(unsignedEntry(0, 105, 2000), 10, 100)
	require.False(t, inserted)

	// Sub-threshold bump on the fee cap fails even with a big tip bump.
	inserted, _ = l.Add(unsignedEntry(0, 200, 1005), 10, 100)
	require.False(t, inserted)

	// Meeting the threshold on both components replaces and returns the old.
	inserted, prev := l.Add(unsignedEntry(0, 110, 1100), 10, 100)
	require.True(t, inserted)
	require.Same(t, old, prev)
	require.Equal(t, 1, l.Len())
}

func TestLedgerBlobReplacementBump(t *testing.T) {
	l := newList()
	inserted, _ := l.Add(blobEntry(0, 100, 1000, 50), 10, 100)
	require.True(t, inserted)

	// Plain fee bumps satisfied but the blob fee cap below its own, much
	// steeper threshold.
	inserted, _ = l.Add(blobEntry(0, 200, 2000, 80), 10, 100)
	require.False(t, inserted)

	// A doubled blob fee cap is the minimum for blob replacements.
	inserted, _ = l.Add(blobEntry(0, 200, 2000, 100), 10, 100)
	require.True(t, inserted)
	require.Equal(t, 1, l.Len())
}

func TestLedgerTotalCost(t *testing.T) {
	l := newList()
	var want = new(uint256.Int)
	for i := uint64(0); i < 5; i++ {
		p := unsignedEntry(i, 1, 100)
		want.Add(want, p.cost)
		l.Add(p, 10, 100)
	}
	require.Equal(t, want, l.TotalCost())

	dropped := l.Forward(2)
	for _, p := range dropped {
		want.Sub(want, p.cost)
	}
	require.Equal(t, want, l.TotalCost())

	_, removed := l.Remove(3)
	want.Sub(want, removed.cost)
	require.Equal(t, want, l.TotalCost())
}

func TestLedgerFilter(t *testing.T) {
	l := newList()
	for i := uint64(0); i < 10; i++ {
		l.Add(unsignedEntry(i, int64(i), 100), 10, 100)
	}
	dropped := l.Filter(func(p *pooledTx) bool {
		return p.tx.GasTipCapIntCmp(big.NewInt(5)) < 0
	})
	require.Len(t, dropped, 5)
	require.Equal(t, 5, l.Len())
	for _, p := range l.Flatten() {
		require.GreaterOrEqual(t, p.tx.Nonce(), uint64(5))
	}
}
