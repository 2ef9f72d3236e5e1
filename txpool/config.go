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
	"github.com/ethereum/go-ethereum/log"
)

const (
	// txSlotSize is used to calculate how many data slots a single transaction
	// takes up based on its size. The slots are used as DoS protection, ensuring
	// that validating a new transaction remains a constant operation (in reality
	// O(maxslots), where max slots are 4 currently).
	txSlotSize = 32 * 1024

	// txMaxSize is the default maximum size a single transaction can have. This
	// field has non-trivial consequences: larger transactions are significantly
	// harder and more expensive to propagate; larger transactions also take more
	// resources to validate whether they fit into the pool or not.
	txMaxSize = 4 * txSlotSize // 128KB

	// txMaxGas is the default per-transaction gas cap enforced on admission,
	// independent of the (possibly larger) block gas limit.
	txMaxGas = 30_000_000
)

// Config are the configuration parameters of the transaction pool.
type Config struct {
	Locals   []common.Address // Addresses that should be treated by default as local
	NoLocals bool             // Whether local transaction handling should be disabled

	PriceLimit    uint64 // Minimum gas tip to enforce for acceptance into the pool
	PriceBump     uint64 // Minimum price bump percentage to replace an already existing transaction (nonce)
	BlobPriceBump uint64 // Minimum price bump percentage to replace an existing blob transaction

	AccountSlots uint64 // Number of transaction slots guaranteed per account
	GlobalSlots  uint64 // Maximum number of transaction slots for all accounts
	MaxBytes     uint64 // Maximum total encoded size of non-blob transactions held in memory
	MaxBlobBytes uint64 // Maximum total encoded size of blob transactions, budgeted separately

	MaxTxSize uint64 // Maximum encoded size of a single transaction
	MaxTxGas  uint64 // Maximum gas limit of a single transaction

	Lifetime        time.Duration // Maximum amount of time non-executable transactions are queued
	ValidationSlots int           // Number of concurrent validations before submissions fail fast
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	PriceLimit:    1,
	PriceBump:     10,
	BlobPriceBump: 100,

	AccountSlots: 16,
	GlobalSlots:  10000,
	MaxBytes:     20 * 1024 * 1024,
	MaxBlobBytes: 20 * 1024 * 1024,

	MaxTxSize: txMaxSize,
	MaxTxGas:  txMaxGas,

	Lifetime:        3 * time.Hour,
	ValidationSlots: 16,
}

// sanitize checks the provided user configurations and changes anything that's
// unreasonable or unworkable.
func (config *Config) sanitize() Config {
	conf := *config
	if conf.PriceBump < 1 {
		log.Warn("Sanitizing invalid txpool price bump", "provided", conf.PriceBump, "updated", DefaultConfig.PriceBump)
		conf.PriceBump = DefaultConfig.PriceBump
	}
	if conf.BlobPriceBump < conf.PriceBump {
		log.Warn("Sanitizing invalid txpool blob price bump", "provided", conf.BlobPriceBump, "updated", conf.PriceBump)
		conf.BlobPriceBump = conf.PriceBump
	}
	if conf.AccountSlots < 1 {
		log.Warn("Sanitizing invalid txpool account slots", "provided", conf.AccountSlots, "updated", DefaultConfig.AccountSlots)
		conf.AccountSlots = DefaultConfig.AccountSlots
	}
	if conf.GlobalSlots < 1 {
		log.Warn("Sanitizing invalid txpool global slots", "provided", conf.GlobalSlots, "updated", DefaultConfig.GlobalSlots)
		conf.GlobalSlots = DefaultConfig.GlobalSlots
	}
	if conf.MaxBytes < conf.MaxTxSize {
		log.Warn("Sanitizing invalid txpool byte budget", "provided", conf.MaxBytes, "updated", DefaultConfig.MaxBytes)
		conf.MaxBytes = DefaultConfig.MaxBytes
	}
	if conf.MaxBlobBytes < conf.MaxTxSize {
		log.Warn("Sanitizing invalid txpool blob byte budget", "provided", conf.MaxBlobBytes, "updated", DefaultConfig.MaxBlobBytes)
		conf.MaxBlobBytes = DefaultConfig.MaxBlobBytes
	}
	if conf.MaxTxSize < 1 {
		log.Warn("Sanitizing invalid txpool max transaction size", "provided", conf.MaxTxSize, "updated", DefaultConfig.MaxTxSize)
		conf.MaxTxSize = DefaultConfig.MaxTxSize
	}
	if conf.MaxTxGas < 1 {
		log.Warn("Sanitizing invalid txpool transaction gas cap", "provided", conf.MaxTxGas, "updated", DefaultConfig.MaxTxGas)
		conf.MaxTxGas = DefaultConfig.MaxTxGas
	}
	if conf.Lifetime < 1 {
		log.Warn("Sanitizing invalid txpool lifetime", "provided", conf.Lifetime, "updated", DefaultConfig.Lifetime)
		conf.Lifetime = DefaultConfig.Lifetime
	}
	if conf.ValidationSlots < 1 {
		log.Warn("Sanitizing invalid txpool validation slots", "provided", conf.ValidationSlots, "updated", DefaultConfig.ValidationSlots)
		conf.ValidationSlots = DefaultConfig.ValidationSlots
	}
	return conf
}

// numSlots calculates the number of slots needed for a single transaction.
func numSlots(size uint64) uint64 {
	return (size + txSlotSize - 1) / txSlotSize
}
