package uniswapv3

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolSnapshot is the pool-level state of a concentrated liquidity pool at one block.
type PoolSnapshot struct {
	Pool             common.Address `json:"pool"`
	Block            uint64         `json:"block"`
	Tick             int64          `json:"tick"`
	Token0Decimals   uint8          `json:"token0Decimals"`
	Token1Decimals   uint8          `json:"token1Decimals"`
	FeeGrowthGlobal0 *uint256.Int   `json:"feeGrowthGlobal0,omitempty"`
	FeeGrowthGlobal1 *uint256.Int   `json:"feeGrowthGlobal1,omitempty"`
}

// TickCheckpoint holds the fee growth recorded on the far side of an initialized
// tick, relative to the current tick, as of the snapshot block.
type TickCheckpoint struct {
	Index           int64        `json:"index"`
	OuterFeeGrowth0 *uint256.Int `json:"outerFeeGrowth0"`
	OuterFeeGrowth1 *uint256.Int `json:"outerFeeGrowth1"`
}

// PositionRecord is a single liquidity position. Liquidity is a uint128.
type PositionRecord struct {
	ID        string         `json:"id"`
	Owner     common.Address `json:"owner"`
	TickLower int64          `json:"tickLower"`
	TickUpper int64          `json:"tickUpper"`
	Liquidity *uint256.Int   `json:"liquidity"`
}

// PositionFeeSnapshot is what the pool recorded for a position the last time it was touched.
type PositionFeeSnapshot struct {
	Liquidity        *uint256.Int `json:"liquidity"`
	InnerFeeGrowth0  *uint256.Int `json:"innerFeeGrowth0"`
	InnerFeeGrowth1  *uint256.Int `json:"innerFeeGrowth1"`
	UncollectedFees0 *uint256.Int `json:"uncollectedFees0"`
	UncollectedFees1 *uint256.Int `json:"uncollectedFees1"`
}

// PositionFeeRecord combines a position with its fee checkpoint and the two
// checkpoints of its bounding ticks.
type PositionFeeRecord struct {
	PositionRecord `json:",inline"`
	Fees           PositionFeeSnapshot `json:"fees"`
	Lower          TickCheckpoint      `json:"lower"`
	Upper          TickCheckpoint      `json:"upper"`
}

// PositionFailure reports a position that could not be valued. Failed positions
// never contribute to any aggregate.
type PositionFailure struct {
	ID        string         `json:"id"`
	Owner     common.Address `json:"owner"`
	TickLower int64          `json:"tickLower"`
	TickUpper int64          `json:"tickUpper"`
	Error     string         `json:"error"`
}

// ProviderAmounts is the token holdings of one liquidity provider, as decimal strings.
type ProviderAmounts struct {
	Token0Amount string `json:"token0Amount"`
	Token1Amount string `json:"token1Amount"`
}

// Composition maps every liquidity provider of a pool to the token amounts
// their positions represent at a block.
type Composition struct {
	Pool            common.Address                     `json:"pool"`
	Block           uint64                             `json:"block"`
	ActiveOnly      bool                               `json:"activeOnly"`
	Providers       map[common.Address]ProviderAmounts `json:"providers"`
	ActiveLiquidity *uint256.Int                       `json:"activeLiquidity,omitempty"`
	Failures        []PositionFailure                  `json:"failures,omitempty"`
}

// MarshalJSON writes addresses in their EIP-55 checksum form.
func (c Composition) MarshalJSON() ([]byte, error) {
	type composition Composition
	providers := make(map[string]ProviderAmounts, len(c.Providers))
	for owner, amounts := range c.Providers {
		providers[owner.Hex()] = amounts
	}
	return json.Marshal(struct {
		composition
		Pool      string                     `json:"pool"`
		Providers map[string]ProviderAmounts `json:"providers"`
	}{
		composition: composition(c),
		Pool:        c.Pool.Hex(),
		Providers:   providers,
	})
}

// PositionPendingFees is the fee amount a position could collect at a block, as decimal strings.
type PositionPendingFees struct {
	ID           string         `json:"id,omitempty"`
	Pool         common.Address `json:"pool"`
	Owner        common.Address `json:"owner"`
	TickLower    int64          `json:"tickLower"`
	TickUpper    int64          `json:"tickUpper"`
	PendingFees0 string         `json:"pendingFees0"`
	PendingFees1 string         `json:"pendingFees1"`
}

// MarshalJSON writes addresses in their EIP-55 checksum form.
func (p PositionPendingFees) MarshalJSON() ([]byte, error) {
	type pendingFees PositionPendingFees
	return json.Marshal(struct {
		pendingFees
		Pool  string `json:"pool"`
		Owner string `json:"owner"`
	}{
		pendingFees: pendingFees(p),
		Pool:        p.Pool.Hex(),
		Owner:       p.Owner.Hex(),
	})
}

// PendingFees lists the pending fees of every position of a pool, in input order.
type PendingFees struct {
	Pool      common.Address        `json:"pool"`
	Block     uint64                `json:"block"`
	Positions []PositionPendingFees `json:"positions"`
	Failures  []PositionFailure     `json:"failures,omitempty"`
}

// MarshalJSON writes the pool address in its EIP-55 checksum form.
func (p PendingFees) MarshalJSON() ([]byte, error) {
	type pendingFees PendingFees
	return json.Marshal(struct {
		pendingFees
		Pool string `json:"pool"`
	}{
		pendingFees: pendingFees(p),
		Pool:        p.Pool.Hex(),
	})
}
