package calculator

import (
	"errors"
	"fmt"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/feemath"
	"github.com/defistate/lpsnapshot-go/units"
)

var ErrCheckpointMismatch = errors.New("tick checkpoint does not match position range")

// PendingFees computes the collectable fees of every record at the snapshot's
// current tick. Positions keep their input order; records that cannot be
// evaluated are reported in Failures instead.
func PendingFees(snapshot uniswapv3.PoolSnapshot, records []uniswapv3.PositionFeeRecord) uniswapv3.PendingFees {
	out := uniswapv3.PendingFees{
		Pool:      snapshot.Pool,
		Block:     snapshot.Block,
		Positions: make([]uniswapv3.PositionPendingFees, 0, len(records)),
	}

	for _, rec := range records {
		fees, err := pendingFees(snapshot, rec)
		if err != nil {
			out.Failures = append(out.Failures, failure(rec.PositionRecord, err))
			continue
		}
		out.Positions = append(out.Positions, fees)
	}
	return out
}

func pendingFees(snapshot uniswapv3.PoolSnapshot, rec uniswapv3.PositionFeeRecord) (uniswapv3.PositionPendingFees, error) {
	if rec.Lower.Index != rec.TickLower || rec.Upper.Index != rec.TickUpper {
		return uniswapv3.PositionPendingFees{}, fmt.Errorf("%w: position [%d, %d], checkpoints [%d, %d]",
			ErrCheckpointMismatch, rec.TickLower, rec.TickUpper, rec.Lower.Index, rec.Upper.Index)
	}

	inside0, inside1, err := feemath.FeeGrowthInside(snapshot.Tick, rec.Lower, rec.Upper, snapshot.FeeGrowthGlobal0, snapshot.FeeGrowthGlobal1)
	if err != nil {
		return uniswapv3.PositionPendingFees{}, err
	}
	fees0, fees1, err := feemath.PendingFees(inside0, inside1, rec.Fees)
	if err != nil {
		return uniswapv3.PositionPendingFees{}, err
	}

	return uniswapv3.PositionPendingFees{
		ID:           rec.ID,
		Pool:         snapshot.Pool,
		Owner:        rec.Owner,
		TickLower:    rec.TickLower,
		TickUpper:    rec.TickUpper,
		PendingFees0: units.FormatUnits(fees0, snapshot.Token0Decimals),
		PendingFees1: units.FormatUnits(fees1, snapshot.Token1Decimals),
	}, nil
}
