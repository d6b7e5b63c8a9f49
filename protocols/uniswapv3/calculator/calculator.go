package calculator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/fullmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/positionmath"
	"github.com/defistate/lpsnapshot-go/protocols/uniswapv3/calculator/tickmath"
	"github.com/defistate/lpsnapshot-go/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidBatchSize = errors.New("batch size must be positive")
	ErrOwnerOverflow    = errors.New("owner total overflows 256 bits")
)

// ownerTotals accumulates raw token amounts per owner. Decimal conversion only
// happens once all partial sums are merged.
type ownerTotals map[common.Address]*[2]uint256.Int

// add credits amount0 and amount1 to owner, leaving the totals untouched on overflow.
func (o ownerTotals) add(owner common.Address, amount0, amount1 *uint256.Int) error {
	cur, ok := o[owner]
	if !ok {
		cur = new([2]uint256.Int)
	}

	var sum0, sum1 uint256.Int
	if _, overflow := sum0.AddOverflow(&cur[0], amount0); overflow {
		return ErrOwnerOverflow
	}
	if _, overflow := sum1.AddOverflow(&cur[1], amount1); overflow {
		return ErrOwnerOverflow
	}

	cur[0].Set(&sum0)
	cur[1].Set(&sum1)
	o[owner] = cur
	return nil
}

func (o ownerTotals) merge(other ownerTotals) error {
	for owner, amounts := range other {
		if err := o.add(owner, &amounts[0], &amounts[1]); err != nil {
			return fmt.Errorf("%w: %s", err, owner.Hex())
		}
	}
	return nil
}

func failure(p uniswapv3.PositionRecord, err error) uniswapv3.PositionFailure {
	return uniswapv3.PositionFailure{
		ID:        p.ID,
		Owner:     p.Owner,
		TickLower: p.TickLower,
		TickUpper: p.TickUpper,
		Error:     err.Error(),
	}
}

// decomposeAll values every position independently. A position that fails is
// reported and never reaches the totals.
func decomposeAll(currentTick int64, positions []uniswapv3.PositionRecord, activeOnly bool) (ownerTotals, []uniswapv3.PositionFailure) {
	totals := make(ownerTotals)
	var failures []uniswapv3.PositionFailure

	for _, p := range positions {
		amount0, amount1, err := positionmath.Decompose(p.TickLower, p.TickUpper, p.Liquidity, currentTick, activeOnly)
		if err != nil {
			failures = append(failures, failure(p, err))
			continue
		}
		if amount0.IsZero() && amount1.IsZero() {
			continue
		}
		if err := totals.add(p.Owner, amount0, amount1); err != nil {
			failures = append(failures, failure(p, err))
		}
	}
	return totals, failures
}

func validateSnapshot(snapshot uniswapv3.PoolSnapshot) error {
	if snapshot.Tick < tickmath.MinTick || snapshot.Tick > tickmath.MaxTick {
		return fmt.Errorf("%w: pool tick %d", tickmath.ErrTickOutOfRange, snapshot.Tick)
	}
	return nil
}

// buildComposition converts the totals to decimal strings. ActiveLiquidity is
// left nil when the in-range tally does not fit uint128; the providers stand.
func buildComposition(snapshot uniswapv3.PoolSnapshot, positions []uniswapv3.PositionRecord, activeOnly bool, totals ownerTotals, failures []uniswapv3.PositionFailure) uniswapv3.Composition {
	active, _ := ActiveLiquidity(snapshot.Tick, positions)

	providers := make(map[common.Address]uniswapv3.ProviderAmounts, len(totals))
	for owner, amounts := range totals {
		providers[owner] = uniswapv3.ProviderAmounts{
			Token0Amount: units.FormatUnits(&amounts[0], snapshot.Token0Decimals),
			Token1Amount: units.FormatUnits(&amounts[1], snapshot.Token1Decimals),
		}
	}

	return uniswapv3.Composition{
		Pool:            snapshot.Pool,
		Block:           snapshot.Block,
		ActiveOnly:      activeOnly,
		Providers:       providers,
		ActiveLiquidity: active,
		Failures:        failures,
	}
}

// Compose maps every owner to the token amounts their positions represent at the
// snapshot's current tick. Positions that cannot be valued are listed in
// Failures and contribute nothing. The error reports a snapshot that cannot be
// valued at all.
func Compose(snapshot uniswapv3.PoolSnapshot, positions []uniswapv3.PositionRecord, activeOnly bool) (uniswapv3.Composition, error) {
	if err := validateSnapshot(snapshot); err != nil {
		return uniswapv3.Composition{}, err
	}
	totals, failures := decomposeAll(snapshot.Tick, positions, activeOnly)
	return buildComposition(snapshot, positions, activeOnly, totals, failures), nil
}

// ComposeParallel is Compose split into batches of batchSize positions valued
// by at most workers goroutines. The result is identical to Compose: if merging
// the batch totals overflows an owner, the positions are revalued serially so
// the offending position lands in Failures exactly as Compose reports it.
func ComposeParallel(ctx context.Context, snapshot uniswapv3.PoolSnapshot, positions []uniswapv3.PositionRecord, activeOnly bool, batchSize, workers int) (uniswapv3.Composition, error) {
	if batchSize <= 0 {
		return uniswapv3.Composition{}, ErrInvalidBatchSize
	}
	if err := validateSnapshot(snapshot); err != nil {
		return uniswapv3.Composition{}, err
	}

	batches := (len(positions) + batchSize - 1) / batchSize
	totals := make([]ownerTotals, batches)
	failures := make([][]uniswapv3.PositionFailure, batches)

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(positions))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			totals[i], failures[i] = decomposeAll(snapshot.Tick, positions[start:end], activeOnly)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uniswapv3.Composition{}, err
	}

	merged, all := combine(snapshot.Tick, positions, activeOnly, totals, failures)
	return buildComposition(snapshot, positions, activeOnly, merged, all), nil
}

// combine merges batch results in batch order, falling back to a serial pass
// when an owner's merged total overflows.
func combine(currentTick int64, positions []uniswapv3.PositionRecord, activeOnly bool, totals []ownerTotals, failures [][]uniswapv3.PositionFailure) (ownerTotals, []uniswapv3.PositionFailure) {
	merged := make(ownerTotals)
	var all []uniswapv3.PositionFailure
	for i := range totals {
		if err := merged.merge(totals[i]); err != nil {
			return decomposeAll(currentTick, positions, activeOnly)
		}
		all = append(all, failures[i]...)
	}
	return merged, all
}

// ActiveLiquidity returns the liquidity in range at currentTick, i.e. the pool's
// liquidity as the sum of the net liquidity of every tick at or below it.
// Invalid positions are ignored.
func ActiveLiquidity(currentTick int64, positions []uniswapv3.PositionRecord) (*uint256.Int, error) {
	net := make(map[int64]*uint256.Int)
	addNet := func(tick int64, delta *uint256.Int) {
		cur, ok := net[tick]
		if !ok {
			cur = new(uint256.Int)
			net[tick] = cur
		}
		// two's complement, so wrapping is the signed sum.
		fullmath.WrappingAdd(cur, cur, delta)
	}

	var negated uint256.Int
	for _, p := range positions {
		if positionmath.Validate(p.TickLower, p.TickUpper, p.Liquidity) != nil {
			continue
		}
		addNet(p.TickLower, p.Liquidity)
		addNet(p.TickUpper, negated.Neg(p.Liquidity))
	}

	ticks := make([]int64, 0, len(net))
	for tick := range net {
		ticks = append(ticks, tick)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })

	liquidity := new(uint256.Int)
	for _, tick := range ticks {
		if tick > currentTick {
			break
		}
		if err := liquiditymath.AddDelta(liquidity, liquidity, net[tick]); err != nil {
			return nil, fmt.Errorf("crossing tick %d: %w", tick, err)
		}
	}
	return liquidity, nil
}
