package indexer

import (
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// IndexedSnapshot is a read-only view over the ticks and positions of one pool
// at one block.
type IndexedSnapshot interface {
	Pool() uniswapv3.PoolSnapshot
	TickByIndex(index int64) (uniswapv3.TickCheckpoint, bool)
	PositionsByOwner(owner common.Address) []uniswapv3.PositionRecord
	Owners() []common.Address
	All() []uniswapv3.PositionRecord
}
