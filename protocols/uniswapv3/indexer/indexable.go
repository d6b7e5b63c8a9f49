package indexer

import (
	"bytes"
	"sort"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds IndexedSnapshot values.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed snapshot from a pool snapshot, its tick checkpoints and its positions.
func (i *Indexer) Index(pool uniswapv3.PoolSnapshot, ticks []uniswapv3.TickCheckpoint, positions []uniswapv3.PositionRecord) IndexedSnapshot {
	return NewIndexableSnapshot(pool, ticks, positions)
}

// IndexableSnapshot provides fast lookups into a pool snapshot.
type IndexableSnapshot struct {
	pool    uniswapv3.PoolSnapshot
	ticks   map[int64]uniswapv3.TickCheckpoint
	byOwner map[common.Address][]uniswapv3.PositionRecord
	owners  []common.Address
	all     []uniswapv3.PositionRecord
}

// NewIndexableSnapshot creates a new indexed snapshot. When a tick index appears
// more than once the last checkpoint wins.
func NewIndexableSnapshot(pool uniswapv3.PoolSnapshot, ticks []uniswapv3.TickCheckpoint, positions []uniswapv3.PositionRecord) *IndexableSnapshot {
	byTick := make(map[int64]uniswapv3.TickCheckpoint, len(ticks))
	for _, t := range ticks {
		byTick[t.Index] = t
	}

	byOwner := make(map[common.Address][]uniswapv3.PositionRecord)
	for _, p := range positions {
		byOwner[p.Owner] = append(byOwner[p.Owner], p)
	}

	owners := make([]common.Address, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i][:], owners[j][:]) < 0
	})

	return &IndexableSnapshot{
		pool:    pool,
		ticks:   byTick,
		byOwner: byOwner,
		owners:  owners,
		all:     positions,
	}
}

// Pool returns the pool-level state the snapshot was indexed with.
func (s *IndexableSnapshot) Pool() uniswapv3.PoolSnapshot {
	return s.pool
}

// TickByIndex retrieves the checkpoint of an initialized tick.
func (s *IndexableSnapshot) TickByIndex(index int64) (uniswapv3.TickCheckpoint, bool) {
	t, ok := s.ticks[index]
	return t, ok
}

// PositionsByOwner returns a copy of the positions held by owner, in input order.
func (s *IndexableSnapshot) PositionsByOwner(owner common.Address) []uniswapv3.PositionRecord {
	held := s.byOwner[owner]
	out := make([]uniswapv3.PositionRecord, len(held))
	copy(out, held)
	return out
}

// Owners returns every distinct owner, sorted by address bytes.
func (s *IndexableSnapshot) Owners() []common.Address {
	out := make([]common.Address, len(s.owners))
	copy(out, s.owners)
	return out
}

// All returns a copy of every position.
func (s *IndexableSnapshot) All() []uniswapv3.PositionRecord {
	out := make([]uniswapv3.PositionRecord, len(s.all))
	copy(out, s.all)
	return out
}
