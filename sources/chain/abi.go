package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// poolABIJSON covers the fee accounting views of an Algebra-style pool.
const poolABIJSON = `[
  {
    "inputs": [],
    "name": "totalFeeGrowth0Token",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "totalFeeGrowth1Token",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "bytes32", "name": "", "type": "bytes32"}],
    "name": "positions",
    "outputs": [
      {"internalType": "uint128", "name": "liquidity", "type": "uint128"},
      {"internalType": "uint32", "name": "lastLiquidityAddTimestamp", "type": "uint32"},
      {"internalType": "uint256", "name": "innerFeeGrowth0Token", "type": "uint256"},
      {"internalType": "uint256", "name": "innerFeeGrowth1Token", "type": "uint256"},
      {"internalType": "uint128", "name": "fees0", "type": "uint128"},
      {"internalType": "uint128", "name": "fees1", "type": "uint128"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "int24", "name": "", "type": "int24"}],
    "name": "ticks",
    "outputs": [
      {"internalType": "uint128", "name": "liquidityTotal", "type": "uint128"},
      {"internalType": "int128", "name": "liquidityDelta", "type": "int128"},
      {"internalType": "uint256", "name": "outerFeeGrowth0Token", "type": "uint256"},
      {"internalType": "uint256", "name": "outerFeeGrowth1Token", "type": "uint256"},
      {"internalType": "int56", "name": "outerTickCumulative", "type": "int56"},
      {"internalType": "uint160", "name": "outerSecondsPerLiquidity", "type": "uint160"},
      {"internalType": "uint32", "name": "outerSecondsSpent", "type": "uint32"},
      {"internalType": "bool", "name": "initialized", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const (
	methodTotalFeeGrowth0 = "totalFeeGrowth0Token"
	methodTotalFeeGrowth1 = "totalFeeGrowth1Token"
	methodPositions       = "positions"
	methodTicks           = "ticks"
)

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error
)

// PoolABI returns the parsed pool ABI.
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}
