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
	"github.com/ethereum/go-ethereum/core/types"
)

// EventKind enumerates the lifecycle transitions the pool announces to its
// subscribers.
type EventKind uint8

const (
	// EventInserted is fired when a new transaction is admitted into the pool.
	EventInserted EventKind = iota

	// EventReplaced is fired when a same-nonce transaction displaces an
	// existing entry; the event carries both transactions.
	EventReplaced

	// EventEvicted is fired when capacity or lifetime enforcement drops an
	// entry, and when an entry is removed on explicit request or because its
	// revalidation after a head change failed.
	EventEvicted

	// EventMined is fired when a canonical block includes the transaction and
	// the pool prunes it.
	EventMined

	// EventReorged is fired when a transaction previously mined returned to
	// the pool because its block left the canonical chain.
	EventReorged
)

// String implements the stringer interface for logging and test failures.
func (k EventKind) String() string {
	switch k {
	case EventInserted:
		return "inserted"
	case EventReplaced:
		return "replaced"
	case EventEvicted:
		return "evicted"
	case EventMined:
		return "mined"
	case EventReorged:
		return "reorged"
	}
	return "unknown"
}

// Event is a pool lifecycle notification. For EventReplaced, Replaced is the
// transaction that was displaced; it is nil for every other kind.
type Event struct {
	Kind     EventKind
	Tx       *types.Transaction
	Replaced *types.Transaction
}
