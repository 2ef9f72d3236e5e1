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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// SubPool identifies which of the pool's disjoint classifications an entry
// currently belongs to. Every tracked transaction is in exactly one.
type SubPool uint8

const (
	// PendingSubPool holds transactions that are nonce-contiguous with their
	// account and whose fees satisfy the current fee market; they are served
	// to block building in priority order.
	PendingSubPool SubPool = iota

	// BaseFeeSubPool holds transactions that are nonce-contiguous but whose
	// fee cap is below the current base fee. They promote without any input
	// from the sender once the base fee recedes.
	BaseFeeSubPool

	// QueuedSubPool holds transactions blocked by a nonce gap or by the
	// sender's cumulative balance falling short.
	QueuedSubPool

	// BlobSubPool holds all blob-carrying transactions. Their readiness is
	// tracked with the same machinery as the other three classifications,
	// but their capacity is budgeted independently.
	BlobSubPool

	numSubPools

	// unclassified marks an entry that has not been through the classifier
	// yet; it is never observable through the public surface.
	unclassified SubPool = 0xff
)

// String implements the stringer interface for logging and test failures.
func (s SubPool) String() string {
	switch s {
	case PendingSubPool:
		return "pending"
	case BaseFeeSubPool:
		return "basefee"
	case QueuedSubPool:
		return "queued"
	case BlobSubPool:
		return "blob"
	}
	return "unknown"
}

// txReadiness is the classifier's verdict for one entry relative to the
// current chain view, before folding in whether the transaction carries blobs.
type txReadiness uint8

const (
	txReady  txReadiness = iota // nonce-contiguous, funded, fees cover the market
	txParked                    // nonce-contiguous and funded, but fee cap below base fee
	txGapped                    // nonce gap ahead of it, or cumulative balance shortfall
)

// pooledTx is the pool's record of one tracked transaction: the canonical
// transaction plus the satellite data the pool needs but the chain does not.
// The lookup table owns the record; ledgers and subpool indices refer to it.
type pooledTx struct {
	tx   *types.Transaction
	hash common.Hash    // cached tx hash
	from common.Address // cached sender, recovered once on admission
	cost *uint256.Int   // cached tx.Cost(): value + gas fees + blob fees

	local   bool      // whether the transaction arrived through a local submission
	arrival time.Time // wall-clock admission time, drives lifetime eviction
	seq     uint64    // mutator-assigned arrival order, breaks priority ties

	readiness txReadiness
	subpool   SubPool
	priority  *uint256.Int // cached effective priority at the current base fee
}

// isBlob reports whether the wrapped transaction carries blob data.
func (p *pooledTx) isBlob() bool {
	return p.tx.Type() == types.BlobTxType
}

// size returns the encoded size of the wrapped transaction.
func (p *pooledTx) size() uint64 {
	return p.tx.Size()
}

// slots returns the number of DoS-protection slots the entry occupies.
func (p *pooledTx) slots() uint64 {
	return numSlots(p.tx.Size())
}

// resolveSubPool maps a readiness verdict onto the externally visible
// classification. Blob transactions always live in the blob classification,
// carrying their readiness alongside.
func resolveSubPool(blob bool, r txReadiness) SubPool {
	if blob {
		return BlobSubPool
	}
	switch r {
	case txReady:
		return PendingSubPool
	case txParked:
		return BaseFeeSubPool
	default:
		return QueuedSubPool
	}
}
