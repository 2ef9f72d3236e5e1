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
	"github.com/holiman/uint256"
)

// feeEnv is the fee environment of the current canonical head, against which
// every entry's readiness is judged.
type feeEnv struct {
	baseFee *uint256.Int // Current base fee, nil before London
	blobFee *uint256.Int // Current blob fee, nil before Cancun
}

// classifyAccount walks one sender's ledger in nonce order and assigns each
// entry its readiness and sub-pool tag. The walk maintains a cumulative cost
// sum so a transaction is only ready while the whole nonce-contiguous prefix
// up to and including it is payable from the account balance.
//
// Rules applied per entry, in order:
//   - a nonce below the account's state nonce should already have been pruned
//     and is skipped defensively
//   - a gap in the nonce sequence flips this and all higher entries to gapped
//   - an unpayable cumulative cost flips this and all higher entries to gapped
//   - an otherwise executable entry whose fee cap is below the current base
//     fee (or whose blob fee cap is below the current blob fee) is parked
//
// Fee adequacy is judged per entry, independently of its predecessors: a
// parked entry does not drag its successors into parked, since it still
// counts towards the contiguous prefix. The serving side only ever hands out
// the contiguous ready head of each account, so an entry behind a parked
// predecessor is classified ready yet not servable until the predecessor
// clears.
func classifyAccount(txs []*pooledTx, stateNonce uint64, balance *uint256.Int, env feeEnv) {
	var (
		next   = stateNonce
		spent  = new(uint256.Int)
		gapped bool
	)
	for _, p := range txs {
		nonce := p.tx.Nonce()
		if nonce < stateNonce {
			p.readiness = txGapped
			p.subpool = resolveSubPool(p.isBlob(), txGapped)
			continue
		}
		if !gapped && nonce != next {
			gapped = true
		}
		if !gapped {
			if _, overflow := spent.AddOverflow(spent, p.cost); overflow || spent.Cmp(balance) > 0 {
				// The prefix up to here overdraws the account. This and all
				// higher nonces wait for a balance or nonce change.
				gapped = true
			}
		}
		if gapped {
			p.readiness = txGapped
		} else if !feeAdequate(p, env) {
			p.readiness = txParked
		} else {
			p.readiness = txReady
		}
		p.subpool = resolveSubPool(p.isBlob(), p.readiness)
		next = nonce + 1
	}
}

// feeAdequate reports whether the entry's fee caps meet the current head's
// base fee and, for blob transactions, the current blob fee.
func feeAdequate(p *pooledTx, env feeEnv) bool {
	if env.baseFee != nil {
		feeCap, overflow := uint256.FromBig(p.tx.GasFeeCap())
		if overflow {
			feeCap = new(uint256.Int).SetAllOne()
		}
		if feeCap.Cmp(env.baseFee) < 0 {
			return false
		}
	}
	if p.isBlob() && env.blobFee != nil {
		blobCap, overflow := uint256.FromBig(p.tx.BlobGasFeeCap())
		if overflow {
			blobCap = new(uint256.Int).SetAllOne()
		}
		if blobCap.Cmp(env.blobFee) < 0 {
			return false
		}
	}
	return true
}
