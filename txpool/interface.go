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
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
)

// StateReader provides the account facts the pool needs to judge a transaction:
// the next expected nonce and the spendable balance. It is a read-only snapshot
// owned by the chain side; the pool never mutates account state through it.
//
// Lookups may fail transiently (e.g. state not yet available during sync), in
// which case the pool surfaces ErrTransientState instead of a verdict.
type StateReader interface {
	// Nonce returns the current on-chain nonce of the given account.
	Nonce(addr common.Address) (uint64, error)

	// Balance returns the current spendable balance of the given account.
	Balance(addr common.Address) (*uint256.Int, error)
}

// BlockChain defines the minimal set of methods needed to back the pool with
// a chain. Exists to allow mocking the live chain out of tests.
type BlockChain interface {
	// Config retrieves the chain's fork configuration.
	Config() *params.ChainConfig

	// CurrentBlock returns the current head of the chain.
	CurrentBlock() *types.Header

	// GetBlock retrieves a specific block, used during pool resets to walk the
	// old and new chain segments back to their common ancestor.
	GetBlock(hash common.Hash, number uint64) *types.Block

	// StateAt returns a state snapshot for a given root hash (generally the head).
	StateAt(root common.Hash) (StateReader, error)
}
