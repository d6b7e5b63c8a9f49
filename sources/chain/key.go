package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const uint24Mask = 1<<24 - 1

// PositionKey returns the storage key the pool files a position under:
// ((owner << 24) | uint24(tickLower)) << 24 | uint24(tickUpper).
func PositionKey(owner common.Address, tickLower, tickUpper int64) [32]byte {
	key := new(uint256.Int).SetBytes20(owner.Bytes())
	key.Lsh(key, 24)
	key.Or(key, uint256.NewInt(uint64(tickLower)&uint24Mask))
	key.Lsh(key, 24)
	key.Or(key, uint256.NewInt(uint64(tickUpper)&uint24Mask))
	return key.Bytes32()
}
