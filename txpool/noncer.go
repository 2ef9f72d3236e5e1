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
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// noncer is a tiny virtual state database to manage the executable nonces of
// accounts in the pool, falling back to reading from a real state database if
// an account is unknown.
type noncer struct {
	fallback StateReader
	nonces   map[common.Address]uint64
	lock     sync.Mutex
}

// newNoncer creates a new virtual state database to track the pool nonces.
func newNoncer(statedb StateReader) *noncer {
	return &noncer{
		fallback: statedb,
		nonces:   make(map[common.Address]uint64),
	}
}

// get returns the current nonce of an account, falling back to a real state
// database if the account is unknown. A state read failure is reported as a
// zero nonce and left for the stateful validation path to surface.
func (txn *noncer) get(addr common.Address) uint64 {
	txn.lock.Lock()
	defer txn.lock.Unlock()

	if _, ok := txn.nonces[addr]; !ok {
		if nonce, err := txn.fallback.Nonce(addr); err == nil {
			txn.nonces[addr] = nonce
		}
	}
	return txn.nonces[addr]
}

// The noncer never takes writes: the pool derives virtual nonces by walking
// the contiguous ledger entries on top of the cached state nonce, and a head
// change swaps in a fresh noncer over the new state.
